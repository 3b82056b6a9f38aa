// Package payment talks to the external recurring-billing provider over its
// HTTP API and parses the webhooks it delivers back. The provider is a black
// box: this package owns the request/response contract and nothing else.
package payment

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stridehq/subscription-engine/pkg/tier"
)

// CheckoutRequest describes a recurring payment to set up for a user.
type CheckoutRequest struct {
	UserID        uuid.UUID          `json:"userId"`
	Email         string             `json:"email,omitempty"`
	Tier          tier.Tier          `json:"tier"`
	BillingPeriod tier.BillingPeriod `json:"billingPeriod"`
	Amount        tier.Money         `json:"amount"`
	Description   string             `json:"description"`
}

// CheckoutSession is the provider's answer to a recurring-payment request.
// The client is redirected to URL to complete the purchase.
type CheckoutSession struct {
	TransactionID string `json:"transactionId"`
	URL           string `json:"url"`
}

// Gateway is the payment-provider surface the rest of the system depends on.
type Gateway interface {
	// CreateRecurringPayment registers a recurring charge and returns the
	// checkout session the user must be redirected to.
	CreateRecurringPayment(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)

	// ChargeOnce performs an immediate one-off charge against a stored
	// payment token and returns the provider transaction id.
	ChargeOnce(ctx context.Context, paymentToken string, amount tier.Money, description string) (string, error)

	// ApproveTransaction confirms a webhook-delivered transaction with the
	// provider before the subscription state is touched.
	ApproveTransaction(ctx context.Context, transactionID string) error
}

// HTTPGateway implements Gateway against the provider's REST API.
type HTTPGateway struct {
	baseURL    string
	apiKey     string
	webhookKey string
	client     *http.Client
}

// HTTPGatewayOption configures an HTTPGateway.
type HTTPGatewayOption func(*HTTPGateway)

// WithHTTPClient overrides the default pooled client, mainly for tests.
func WithHTTPClient(client *http.Client) HTTPGatewayOption {
	return func(g *HTTPGateway) {
		if client != nil {
			g.client = client
		}
	}
}

// NewHTTPGateway creates a gateway client for the provider at baseURL.
// Panics on missing credentials since the process cannot run without them.
func NewHTTPGateway(baseURL, apiKey, webhookKey string, opts ...HTTPGatewayOption) *HTTPGateway {
	if baseURL == "" {
		panic("payment: base URL is required")
	}
	if apiKey == "" {
		panic("payment: API key is required")
	}
	if webhookKey == "" {
		panic("payment: webhook key is required")
	}

	g := &HTTPGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		webhookKey: webhookKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *HTTPGateway) CreateRecurringPayment(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	var session CheckoutSession
	if err := g.post(ctx, "/v1/recurring", req, &session); err != nil {
		return CheckoutSession{}, err
	}
	if session.URL == "" {
		return CheckoutSession{}, fmt.Errorf("%w: empty checkout URL", ErrGatewayFailure)
	}
	return session, nil
}

func (g *HTTPGateway) ChargeOnce(ctx context.Context, paymentToken string, amount tier.Money, description string) (string, error) {
	body := struct {
		Token       string `json:"token"`
		Amount      int64  `json:"amount"`
		Currency    string `json:"currency"`
		Description string `json:"description"`
	}{paymentToken, amount.Amount, amount.Currency, description}

	var resp struct {
		TransactionID string `json:"transactionId"`
		Status        string `json:"status"`
	}
	if err := g.post(ctx, "/v1/charge", body, &resp); err != nil {
		return "", err
	}
	if !strings.EqualFold(resp.Status, "success") {
		return "", fmt.Errorf("%w: status %q", ErrChargeDeclined, resp.Status)
	}
	return resp.TransactionID, nil
}

func (g *HTTPGateway) ApproveTransaction(ctx context.Context, transactionID string) error {
	body := struct {
		TransactionID string `json:"transactionId"`
	}{transactionID}
	return g.post(ctx, "/v1/approve", body, nil)
}

func (g *HTTPGateway) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", ErrGatewayFailure, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrGatewayFailure, err)
	}
	return nil
}

// VerifyWebhookKey checks a payload key against the shared secret in
// constant time.
func (g *HTTPGateway) VerifyWebhookKey(key string) bool {
	return subtle.ConstantTimeCompare([]byte(key), []byte(g.webhookKey)) == 1
}
