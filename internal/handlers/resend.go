package handlers

import (
	"net/http"

	"github.com/nkiryanov/paywall/internal/handlers/render"
	"github.com/nkiryanov/paywall/internal/logger"
)

// Same answer whether email paid or not
const resendMessage = "If this email purchased the article, an access link has been sent"

func handleResend(resender resender, l logger.Logger) http.Handler {
	type request struct {
		Email string `json:"email" validate:"required,email"`
	}
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slug := r.PathValue("slug")
		if !render.IsSlug(slug) {
			render.ServiceError(w, "Invalid article slug", http.StatusBadRequest)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		err = resender.Resend(r.Context(), slug, data.Email)
		if err != nil {
			l.Error("resend failed", "article", slug, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{Message: resendMessage})
	})
}
