package notify

import (
	"context"
	"net/http"

	"github.com/carlmjohnson/requests"
)

const sendGridURL = "https://api.sendgrid.com"

type sendGridAddress struct {
	Email string `json:"email"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridMail struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

// SendGrid v3 mail send API
type SendGrid struct {
	url    string
	apiKey string
	from   string
	client *http.Client
}

func newSendGrid(cfg Config, client *http.Client) *SendGrid {
	url := cfg.APIURL
	if url == "" {
		url = sendGridURL
	}
	return &SendGrid{url: url, apiKey: cfg.APIKey, from: cfg.From, client: client}
}

func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	// text/plain must go first
	mail := sendGridMail{
		Personalizations: []sendGridPersonalization{{To: []sendGridAddress{{Email: msg.To}}}},
		From:             sendGridAddress{Email: s.from},
		Subject:          msg.Subject,
		Content: []sendGridContent{
			{Type: "text/plain", Value: msg.Text},
			{Type: "text/html", Value: msg.HTML},
		},
	}

	err := requests.URL(s.url).
		Path("/v3/mail/send").
		Client(s.client).
		Bearer(s.apiKey).
		BodyJSON(&mail).
		CheckStatus(http.StatusOK, http.StatusAccepted).
		Fetch(ctx)
	if err != nil {
		return &DeliveryError{Provider: ProviderSendGrid, Err: err}
	}

	return nil
}
