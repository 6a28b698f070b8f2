package notify

import (
	"context"
	"net/http"

	"github.com/carlmjohnson/requests"
)

const resendURL = "https://api.resend.com"

type resendEmail struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
}

// Resend emails API
type Resend struct {
	url    string
	apiKey string
	from   string
	client *http.Client
}

func newResend(cfg Config, client *http.Client) *Resend {
	url := cfg.APIURL
	if url == "" {
		url = resendURL
	}
	return &Resend{url: url, apiKey: cfg.APIKey, from: cfg.From, client: client}
}

func (r *Resend) Send(ctx context.Context, msg Message) error {
	var sent struct {
		ID string `json:"id"`
	}

	err := requests.URL(r.url).
		Path("/emails").
		Client(r.client).
		Bearer(r.apiKey).
		BodyJSON(&resendEmail{
			From:    r.from,
			To:      []string{msg.To},
			Subject: msg.Subject,
			HTML:    msg.HTML,
			Text:    msg.Text,
		}).
		CheckStatus(http.StatusOK).
		ToJSON(&sent).
		Fetch(ctx)
	if err != nil {
		return &DeliveryError{Provider: ProviderResend, Err: err}
	}

	return nil
}
