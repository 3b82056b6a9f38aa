package payment

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// WebhookPayload is the normalized shape of a provider delivery, whether it
// arrived as JSON or as a form post.
type WebhookPayload struct {
	WebhookKey       string `json:"webhookKey"`
	TransactionID    string `json:"transactionId"`
	TransactionToken string `json:"transactionToken"`
	TransactionCode  string `json:"transactionCode"`
	Status           string `json:"status"`
	Sum              string `json:"sum"`
	Currency         string `json:"currency"`
	UserID           string `json:"userId"`
	Tier             string `json:"tier"`
	BillingPeriod    string `json:"billingPeriod"`
	RecurringID      string `json:"recurringId"`
	Email            string `json:"email,omitempty"`
	Name             string `json:"name,omitempty"`
}

// Succeeded reports whether the provider marked the transaction successful.
func (p WebhookPayload) Succeeded() bool {
	return strings.EqualFold(p.Status, "success")
}

// ParseWebhook decodes a provider webhook request. The provider posts either
// application/json or application/x-www-form-urlencoded depending on the
// merchant account configuration, so both are accepted.
func ParseWebhook(r *http.Request) (WebhookPayload, error) {
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil && contentType != "" {
		return WebhookPayload{}, fmt.Errorf("%w: content type %q", ErrMalformedPayload, contentType)
	}

	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		return parseFormWebhook(r)
	default:
		return parseJSONWebhook(r)
	}
}

func parseJSONWebhook(r *http.Request) (WebhookPayload, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return WebhookPayload{}, fmt.Errorf("%w: read body: %v", ErrMalformedPayload, err)
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return payload, nil
}

func parseFormWebhook(r *http.Request) (WebhookPayload, error) {
	if err := r.ParseForm(); err != nil {
		return WebhookPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	return WebhookPayload{
		WebhookKey:       r.PostFormValue("webhookKey"),
		TransactionID:    r.PostFormValue("transactionId"),
		TransactionToken: r.PostFormValue("transactionToken"),
		TransactionCode:  r.PostFormValue("transactionCode"),
		Status:           r.PostFormValue("status"),
		Sum:              r.PostFormValue("sum"),
		Currency:         r.PostFormValue("currency"),
		UserID:           r.PostFormValue("userId"),
		Tier:             r.PostFormValue("tier"),
		BillingPeriod:    r.PostFormValue("billingPeriod"),
		RecurringID:      r.PostFormValue("recurringId"),
		Email:            r.PostFormValue("email"),
		Name:             r.PostFormValue("name"),
	}, nil
}

// WebhookVerifier authenticates a delivered payload against the shared key.
type WebhookVerifier interface {
	VerifyWebhookKey(key string) bool
}
