package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/nkiryanov/paywall/internal/apperrors"
	"github.com/nkiryanov/paywall/internal/handlers/render"
)

// Provider events are small json documents
const maxWebhookSize = 64 << 10

// handleWebhook answers provider so that it retries only what may succeed on retry
func handleWebhook(processor webhookProcessor) http.Handler {
	type response struct {
		Received bool   `json:"received"`
		Status   string `json:"status"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookSize))
		if err != nil {
			render.ServiceError(w, "Failed to read request body", http.StatusBadRequest)
			return
		}

		result, err := processor.Process(r.Context(), payload, r.Header.Get(processor.SignatureHeader()))

		switch {
		case err == nil:
			render.JSON(w, response{Received: true, Status: result.Status})
		case errors.Is(err, apperrors.ErrSignatureInvalid):
			render.ServiceError(w, "Invalid signature", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrEventMalformed):
			render.ServiceError(w, "Malformed event", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrPaymentMetadataMissing):
			// Redelivery carries the same event, so it is accepted and left for manual action
			render.JSON(w, response{Received: true, Status: result.Status})
		default:
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
