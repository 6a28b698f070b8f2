package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/paywall/internal/apperrors"
	"github.com/nkiryanov/paywall/internal/logger"
	"github.com/nkiryanov/paywall/internal/metrics"
	"github.com/nkiryanov/paywall/internal/models"
	"github.com/nkiryanov/paywall/internal/repository"
	"github.com/nkiryanov/paywall/internal/service/access"
	"github.com/nkiryanov/paywall/internal/service/content"
	"github.com/nkiryanov/paywall/internal/service/magiclink"
	"github.com/nkiryanov/paywall/internal/service/notify"
	"github.com/nkiryanov/paywall/internal/service/payment"
	"github.com/nkiryanov/paywall/internal/service/tokens"
	"github.com/nkiryanov/paywall/internal/service/webhook"
	"github.com/nkiryanov/paywall/internal/testutil"
)

const (
	baseURL       = "https://blog.example.com"
	webhookSecret = "whsec_test"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// outbox records every sent message
type outbox struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (o *outbox) Send(ctx context.Context, msg notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

// Links returns magic links found in text bodies of sent messages
func (o *outbox) Links() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	var links []string
	for _, msg := range o.sent {
		for _, line := range strings.Split(msg.Text, "\n") {
			if strings.HasPrefix(line, baseURL) {
				links = append(links, line)
			}
		}
	}
	return links
}

// Allow to use a function as checkout provider
type checkoutFunc func(ctx context.Context, params payment.CheckoutParams) (payment.CheckoutSession, error)

func (f checkoutFunc) CreateCheckout(ctx context.Context, params payment.CheckoutParams) (payment.CheckoutSession, error) {
	return f(ctx, params)
}

// Allow to use a function as content store
type contentFunc func(ctx context.Context, slug string) (content.Article, error)

func (f contentFunc) Get(ctx context.Context, slug string) (content.Article, error) {
	return f(ctx, slug)
}

type fixture struct {
	url     string
	client  *http.Client
	storage *testutil.MemStorage
	outbox  *outbox
	tokens  *tokens.Service
	links   *magiclink.Service
	clock   *clock
}

// newFixture runs router with production services over in-memory storage
func newFixture(t *testing.T, checkout checkoutFunc, store contentStore) fixture {
	t.Helper()

	mem := testutil.NewMemStorage()
	f := serve(t, mem, checkout, store)
	f.storage = mem
	return f
}

// serve runs router with production services over the storage
func serve(t *testing.T, storage repository.Storage, checkout checkoutFunc, store contentStore) fixture {
	t.Helper()

	c := &clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	box := &outbox{}
	l := logger.NewNoOpLogger()
	m := metrics.New()

	ts := tokens.New(tokens.Config{Now: c.Now}, storage.Token())
	links, err := magiclink.New(baseURL, "test-secret")
	require.NoError(t, err)

	gate := access.NewGate(access.Config{}, ts, storage.Payment(), l, m)
	processor, err := webhook.New(
		webhook.Config{Secret: webhookSecret},
		payment.NewStripe("sk_test", "", nil),
		storage, ts, links, box, l, m,
	)
	require.NoError(t, err)

	services := Services{
		Gate:     gate,
		Resender: access.NewResender(gate, links, box, l, m),
		Webhooks: processor,
		Checkout: checkout,
		Links:    links,
	}
	if store != nil {
		services.Content = store
	}

	srv := httptest.NewServer(NewRouter(Config{BaseURL: baseURL}, services, l, m))
	t.Cleanup(srv.Close)

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}

	return fixture{url: srv.URL, client: client, outbox: box, tokens: ts, links: links, clock: c}
}

// do sends request and returns response with its body already read
func (f fixture) do(t *testing.T, method string, path string, body string, header http.Header, cookies ...*http.Cookie) (*http.Response, string) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, f.url+path, reader)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(b)
}

func (f fixture) webhook(t *testing.T, payload string) (*http.Response, string) {
	t.Helper()
	header := http.Header{}
	header.Set("Stripe-Signature", payment.StripeSignatureHeader([]byte(payload), webhookSecret, time.Now()))
	return f.do(t, http.MethodPost, "/api/webhooks/payment", payload, header)
}

func (f fixture) pay(t *testing.T, paymentID string, email string, slug string) {
	t.Helper()
	_, _, err := f.storage.Payment().Record(t.Context(), models.PaymentRecord{
		PaymentID:   paymentID,
		Email:       email,
		ArticleSlug: slug,
		PaidAt:      f.clock.Now(),
	})
	require.NoError(t, err)
}

func paidEvent(paymentID string, email string, slug string) string {
	return fmt.Sprintf(`{
		"id": "evt_%[1]s",
		"type": "checkout.session.completed",
		"created": 1735732800,
		"data": {"object": {
			"id": %[1]q,
			"payment_status": "paid",
			"customer_details": {"email": %[2]q},
			"metadata": {"articleSlug": %[3]q},
			"amount_total": 499,
			"currency": "usd"
		}}
	}`, paymentID, email, slug)
}

func cookieByName(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRouter_PurchaseFlow(t *testing.T) {
	store := contentFunc(func(_ context.Context, slug string) (content.Article, error) {
		return content.Article{Slug: slug, ContentType: "text/html; charset=utf-8", Body: []byte("<p>premium</p>")}, nil
	})
	f := newFixture(t, nil, store)

	// Provider reports payment
	resp, body := f.webhook(t, paidEvent("cs_1", "a@x.com", "go-basics"))
	require.Equalf(t, http.StatusOK, resp.StatusCode, "body: %s", body)
	require.JSONEq(t, `{"received": true, "status": "granted"}`, body)

	links := f.outbox.Links()
	require.Len(t, links, 1, "magic link should be sent")
	link, err := url.Parse(links[0])
	require.NoError(t, err)

	// Buyer follows magic link
	resp, body = f.do(t, http.MethodGet, "/access?"+link.RawQuery, "", nil)
	require.Equalf(t, http.StatusSeeOther, resp.StatusCode, "body: %s", body)
	require.Equal(t, baseURL+"/post/go-basics/", resp.Header.Get("Location"))

	cookie := cookieByName(resp, "go-basics")
	require.NotNil(t, cookie, "access cookie should be set")
	require.Equal(t, link.Query().Get("token"), cookie.Value)
	require.Equal(t, "/", cookie.Path)
	require.True(t, cookie.HttpOnly)
	require.True(t, cookie.Secure)
	require.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	// Article page checks access
	resp, body = f.do(t, http.MethodGet, "/api/articles/go-basics/access", "", nil, cookie)
	require.Equalf(t, http.StatusOK, resp.StatusCode, "body: %s", body)
	require.JSONEq(t, `{"hasAccess": true, "tokenRenewed": false}`, body)

	// Article page loads premium body
	resp, body = f.do(t, http.MethodGet, "/api/articles/go-basics/content", "", nil, cookie)
	require.Equalf(t, http.StatusOK, resp.StatusCode, "body: %s", body)
	require.Equal(t, "<p>premium</p>", body)
	require.Equal(t, "private, no-store", resp.Header.Get("Cache-Control"))

	// Token of one article does not open another
	other := &http.Cookie{Name: "go-advanced", Value: cookie.Value}
	resp, _ = f.do(t, http.MethodGet, "/api/articles/go-advanced/access", "", nil, other)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Provider redelivers the event
	resp, body = f.webhook(t, paidEvent("cs_1", "a@x.com", "go-basics"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"received": true, "status": "duplicate"}`, body)
	require.Len(t, f.outbox.Links(), 1, "redelivery should not send second email")
	require.Len(t, f.storage.Tokens(), 1, "redelivery should not issue second token")
}

func TestRouter_CheckAccess(t *testing.T) {
	t.Run("no cookie", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		resp, body := f.do(t, http.MethodGet, "/api/articles/go-basics/access", "", nil)

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.JSONEq(t, `{"hasAccess": false, "tokenRenewed": false}`, body)
	})

	t.Run("unknown token", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		resp, body := f.do(t, http.MethodGet, "/api/articles/go-basics/access", "", nil,
			&http.Cookie{Name: "go-basics", Value: strings.Repeat("ab", 16)})

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.JSONEq(t, `{"hasAccess": false, "tokenRenewed": false}`, body)
		require.Empty(t, resp.Cookies())
	})

	t.Run("expired token of buyer renewed", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		f.pay(t, "cs_1", "a@x.com", "go-basics")
		token, err := f.tokens.Issue(t.Context(), "go-basics", "a@x.com")
		require.NoError(t, err)
		f.clock.Advance(tokens.DefaultTTL + time.Hour)

		resp, body := f.do(t, http.MethodGet, "/api/articles/go-basics/access", "", nil,
			&http.Cookie{Name: "go-basics", Value: token.TokenID})

		require.Equalf(t, http.StatusOK, resp.StatusCode, "body: %s", body)
		require.JSONEq(t, `{"hasAccess": true, "tokenRenewed": true}`, body)

		cookie := cookieByName(resp, "go-basics")
		require.NotNil(t, cookie, "renewed token should be set as cookie")
		require.Equal(t, token.TokenID, cookie.Value, "renewal keeps token id")
		require.True(t, f.clock.Now().Add(tokens.DefaultTTL).Equal(cookie.Expires), "cookie expires with renewed token")
	})

	t.Run("expired token without payment denied", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		token, err := f.tokens.Issue(t.Context(), "go-basics", "a@x.com")
		require.NoError(t, err)
		f.clock.Advance(tokens.DefaultTTL + time.Hour)

		resp, _ := f.do(t, http.MethodGet, "/api/articles/go-basics/access", "", nil,
			&http.Cookie{Name: "go-basics", Value: token.TokenID})

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Empty(t, resp.Cookies())
	})

	t.Run("invalid slug", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		resp, _ := f.do(t, http.MethodGet, "/api/articles/Go_Basics/access", "", nil)

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("store failure is not denial", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		token, err := f.tokens.Issue(t.Context(), "go-basics", "a@x.com")
		require.NoError(t, err)
		f.storage.Fail(errors.New("connection refused"))

		resp, body := f.do(t, http.MethodGet, "/api/articles/go-basics/access", "", nil,
			&http.Cookie{Name: "go-basics", Value: token.TokenID})

		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		require.JSONEq(t, `{"error": "service_error", "message": "Internal server error"}`, body)
	})
}

func TestRouter_Resend(t *testing.T) {
	const message = `{"message": "If this email purchased the article, an access link has been sent"}`

	t.Run("buyer gets new link", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		f.pay(t, "cs_1", "a@x.com", "go-basics")

		resp, body := f.do(t, http.MethodPost, "/api/articles/go-basics/resend", `{"email": "A@x.com"}`, nil)

		require.Equalf(t, http.StatusOK, resp.StatusCode, "body: %s", body)
		require.JSONEq(t, message, body)
		require.Len(t, f.outbox.Links(), 1)
		require.Empty(t, resp.Cookies(), "resend never sets access cookie")
	})

	t.Run("not a buyer gets the same answer", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		f.pay(t, "cs_1", "a@x.com", "go-basics")

		resp, body := f.do(t, http.MethodPost, "/api/articles/go-basics/resend", `{"email": "b@x.com"}`, nil)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.JSONEq(t, message, body)
		require.Empty(t, f.outbox.Links())
		require.Empty(t, f.storage.Tokens())
	})

	t.Run("invalid email", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		resp, body := f.do(t, http.MethodPost, "/api/articles/go-basics/resend", `{"email": "not-an-email"}`, nil)

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.JSONEq(t, `{
			"error": "validation_failed",
			"message": "Request validation failed",
			"fields": {"email": "Invalid email address"}
		}`, body)
	})

	t.Run("store failure", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		f.storage.Fail(errors.New("connection refused"))

		resp, _ := f.do(t, http.MethodPost, "/api/articles/go-basics/resend", `{"email": "a@x.com"}`, nil)

		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestRouter_Checkout(t *testing.T) {
	t.Run("session created", func(t *testing.T) {
		var got payment.CheckoutParams
		f := newFixture(t, func(_ context.Context, params payment.CheckoutParams) (payment.CheckoutSession, error) {
			got = params
			return payment.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/c/pay/cs_1"}, nil
		}, nil)

		resp, body := f.do(t, http.MethodPost, "/api/checkout",
			`{"priceId": "price_1", "articleSlug": "go-basics", "email": "a@x.com"}`, nil)

		require.Equalf(t, http.StatusOK, resp.StatusCode, "body: %s", body)
		require.JSONEq(t, `{"checkoutUrl": "https://checkout.stripe.com/c/pay/cs_1", "sessionId": "cs_1"}`, body)
		require.Equal(t, "https://checkout.stripe.com/c/pay/cs_1", resp.Header.Get("Location"))

		require.Equal(t, payment.CheckoutParams{
			PriceID:    "price_1",
			SuccessURL: baseURL + "/post/go-basics/?purchase=success",
			CancelURL:  baseURL + "/post/go-basics/",
			Email:      "a@x.com",
			Metadata:   map[string]string{"articleSlug": "go-basics", "email": "a@x.com"},
		}, got)
	})

	t.Run("email is optional", func(t *testing.T) {
		var got payment.CheckoutParams
		f := newFixture(t, func(_ context.Context, params payment.CheckoutParams) (payment.CheckoutSession, error) {
			got = params
			return payment.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/c/pay/cs_1"}, nil
		}, nil)

		resp, _ := f.do(t, http.MethodPost, "/api/checkout", `{"priceId": "price_1", "articleSlug": "go-basics"}`, nil)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, map[string]string{"articleSlug": "go-basics"}, got.Metadata)
	})

	t.Run("invalid request", func(t *testing.T) {
		f := newFixture(t, func(context.Context, payment.CheckoutParams) (payment.CheckoutSession, error) {
			t.Fatal("provider should not be called")
			return payment.CheckoutSession{}, nil
		}, nil)

		resp, body := f.do(t, http.MethodPost, "/api/checkout", `{"articleSlug": "Go Basics"}`, nil)

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.JSONEq(t, `{
			"error": "validation_failed",
			"message": "Request validation failed",
			"fields": {"priceId": "This field is required", "articleSlug": "Invalid article slug"}
		}`, body)
	})

	t.Run("provider failure", func(t *testing.T) {
		f := newFixture(t, func(context.Context, payment.CheckoutParams) (payment.CheckoutSession, error) {
			return payment.CheckoutSession{}, errors.New("stripe is down")
		}, nil)

		resp, _ := f.do(t, http.MethodPost, "/api/checkout", `{"priceId": "price_1", "articleSlug": "go-basics"}`, nil)

		require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})
}

func TestRouter_Webhook(t *testing.T) {
	t.Run("invalid signature", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		header := http.Header{}
		header.Set("Stripe-Signature", "t=1,v1=00")

		resp, _ := f.do(t, http.MethodPost, "/api/webhooks/payment", paidEvent("cs_1", "a@x.com", "go-basics"), header)

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Empty(t, f.storage.Payments(), "unsigned event should not touch storage")
	})

	t.Run("malformed event", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		resp, _ := f.webhook(t, `{"id": `)

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("irrelevant event acknowledged", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		resp, body := f.webhook(t, `{"id": "evt_1", "type": "customer.created", "data": {"object": {}}}`)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.JSONEq(t, `{"received": true, "status": "ignored"}`, body)
	})

	t.Run("paid event without article is accepted unhandled", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		for range 2 {
			resp, body := f.webhook(t, paidEvent("cs_1", "a@x.com", ""))

			require.Equal(t, http.StatusOK, resp.StatusCode, "redelivery can not fix metadata")
			require.JSONEq(t, `{"received": true, "status": "unhandled"}`, body)
		}
		require.Empty(t, f.storage.Tokens())
		require.Empty(t, f.storage.Payments())
		require.Empty(t, f.outbox.Links())
	})

	t.Run("store failure asks provider to retry", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		f.storage.Fail(errors.New("connection refused"))

		resp, _ := f.webhook(t, paidEvent("cs_1", "a@x.com", "go-basics"))
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

		f.storage.Fail(nil)
		resp, body := f.webhook(t, paidEvent("cs_1", "a@x.com", "go-basics"))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.JSONEq(t, `{"received": true, "status": "granted"}`, body)
	})
}

func TestRouter_RedeemLink(t *testing.T) {
	issueLink := func(t *testing.T, f fixture, slug string) url.Values {
		t.Helper()
		token, err := f.tokens.Issue(t.Context(), slug, "a@x.com")
		require.NoError(t, err)
		link, err := f.links.Link(token)
		require.NoError(t, err)
		u, err := url.Parse(link)
		require.NoError(t, err)
		return u.Query()
	}

	t.Run("tampered signature", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		q := issueLink(t, f, "go-basics")
		q.Set("sig", q.Get("sig")+"x")

		resp, _ := f.do(t, http.MethodGet, "/access?"+q.Encode(), "", nil)

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Empty(t, resp.Cookies())
	})

	t.Run("link moved to another article", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		q := issueLink(t, f, "go-basics")
		q.Set("article", "go-advanced")

		resp, _ := f.do(t, http.MethodGet, "/access?"+q.Encode(), "", nil)

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("signed link for unknown token", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		link, err := f.links.Link(models.AccessToken{ArticleSlug: "go-basics", TokenID: strings.Repeat("cd", 16)})
		require.NoError(t, err)
		u, err := url.Parse(link)
		require.NoError(t, err)

		resp, _ := f.do(t, http.MethodGet, "/access?"+u.RawQuery, "", nil)

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("store failure", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		q := issueLink(t, f, "go-basics")
		f.storage.Fail(errors.New("connection refused"))

		resp, _ := f.do(t, http.MethodGet, "/access?"+q.Encode(), "", nil)

		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestRouter_Content(t *testing.T) {
	t.Run("without access", func(t *testing.T) {
		f := newFixture(t, nil, contentFunc(func(context.Context, string) (content.Article, error) {
			t.Fatal("content should not be read without access")
			return content.Article{}, nil
		}))

		resp, _ := f.do(t, http.MethodGet, "/api/articles/go-basics/content", "", nil)

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("article has no premium body", func(t *testing.T) {
		f := newFixture(t, nil, contentFunc(func(context.Context, string) (content.Article, error) {
			return content.Article{}, apperrors.ErrContentNotFound
		}))
		token, err := f.tokens.Issue(t.Context(), "go-basics", "a@x.com")
		require.NoError(t, err)

		resp, _ := f.do(t, http.MethodGet, "/api/articles/go-basics/content", "", nil,
			&http.Cookie{Name: "go-basics", Value: token.TokenID})

		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("not mounted without store", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		token, err := f.tokens.Issue(t.Context(), "go-basics", "a@x.com")
		require.NoError(t, err)

		resp, _ := f.do(t, http.MethodGet, "/api/articles/go-basics/content", "", nil,
			&http.Cookie{Name: "go-basics", Value: token.TokenID})

		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestRouter_Metrics(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.do(t, http.MethodGet, "/api/articles/go-basics/access", "", nil)

	resp, body := f.do(t, http.MethodGet, "/metrics", "", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `paywall_http_requests_total{method="GET",status="401"} 1`)
	require.Contains(t, body, `paywall_access_decisions_total{granted="false",state="NO_TOKEN"} 1`)
}
