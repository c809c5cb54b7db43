package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

const twilioAPIBase = "https://api.twilio.com"

// SendResult is the outcome of one outbound message.
type SendResult struct {
	MessageID string `json:"sid"`
	Status    string `json:"status"`
}

// Messenger delivers a single text message to an address. Implementations may be left
// unconfigured, in which case callers skip sending.
type Messenger interface {
	Configured() bool
	SendMessage(ctx context.Context, to, body string) (*SendResult, error)
}

// WhatsAppMessenger sends WhatsApp messages through the Twilio Messages API.
type WhatsAppMessenger struct {
	AccountSID string
	FromNumber string

	rest *twilio.RestClient
	log  *zap.Logger
}

// NewWhatsAppMessenger builds a Twilio REST client on top of httpClient. A baseURL other than
// the public Twilio API redirects every request to that host.
func NewWhatsAppMessenger(accountSID, authToken, fromNumber, baseURL string, httpClient *http.Client, log *zap.Logger) *WhatsAppMessenger {
	m := &WhatsAppMessenger{
		AccountSID: accountSID,
		FromNumber: fromNumber,
		log:        log.Named("whatsapp"),
	}
	if accountSID == "" || authToken == "" || fromNumber == "" {
		m.log.Warn("⚠️  Twilio credentials not configured, WhatsApp messages will be skipped")
		return m
	}

	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	if base, ok := rest.Client.(*twilioclient.Client); ok {
		base.HTTPClient = redirectClient(httpClient, baseURL, m.log)
	}
	m.rest = rest
	return m
}

func (m *WhatsAppMessenger) Configured() bool {
	return m.rest != nil
}

// E164 prefixes a bare phone number with "+".
func E164(number string) string {
	number = strings.TrimSpace(number)
	if number == "" || strings.HasPrefix(number, "+") {
		return number
	}
	return "+" + number
}

func (m *WhatsAppMessenger) SendMessage(ctx context.Context, to, body string) (*SendResult, error) {
	if !m.Configured() {
		return nil, fmt.Errorf("whatsapp messenger is not configured")
	}
	// CreateMessage takes no context; the HTTP client timeout bounds the call
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params := &openapi.CreateMessageParams{}
	params.SetFrom("whatsapp:" + E164(m.FromNumber))
	params.SetTo("whatsapp:" + E164(to))
	params.SetBody(body)

	msg, err := m.rest.Api.CreateMessage(params)
	if err != nil {
		return nil, fmt.Errorf("twilio send failed: %w", err)
	}

	result := &SendResult{}
	if msg.Sid != nil {
		result.MessageID = *msg.Sid
	}
	if msg.Status != nil {
		result.Status = *msg.Status
	}
	return result, nil
}

// redirectClient returns client unchanged for the public API, otherwise a copy whose
// transport rewrites the scheme and host of every request to baseURL.
func redirectClient(client *http.Client, baseURL string, log *zap.Logger) *http.Client {
	if client == nil {
		client = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" || baseURL == twilioAPIBase {
		return client
	}
	target, err := url.Parse(baseURL)
	if err != nil || target.Host == "" {
		log.Warn("invalid TWILIO_BASE_URL, using the public API", zap.String("base_url", baseURL))
		return client
	}

	next := client.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	redirected := *client
	redirected.Transport = &hostRewrite{target: target, next: next}
	return &redirected
}

type hostRewrite struct {
	target *url.URL
	next   http.RoundTripper
}

func (h *hostRewrite) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = h.target.Scheme
	out.URL.Host = h.target.Host
	out.Host = h.target.Host
	return h.next.RoundTrip(out)
}
