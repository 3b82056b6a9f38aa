// Package invoicing issues invoice documents through the external invoicing
// provider. Every call here is best effort from the caller's point of view:
// the subscription state change has already happened by the time an invoice
// is requested, so failures are logged upstream and never propagated.
package invoicing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/stridehq/subscription-engine/pkg/tier"
)

// ErrInvoicingFailure wraps any provider-side failure.
var ErrInvoicingFailure = errors.New("invoicing request failed")

var titleCaser = cases.Title(language.English)

// Customer is a provider-side billing contact.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Issuer is the invoicing surface consumed by the webhook path.
type Issuer interface {
	// FindOrCreateCustomer resolves a billing contact by name and email,
	// creating one on the provider side if none exists.
	FindOrCreateCustomer(ctx context.Context, name, email string) (Customer, error)

	// IssueInvoice issues a subscription invoice document for the customer.
	IssueInvoice(ctx context.Context, customerID string, t tier.Tier, period tier.BillingPeriod, amount tier.Money) error
}

// Client implements Issuer against the provider's REST API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client, mainly for tests.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// NewClient creates an invoicing client. Panics on missing credentials.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	if baseURL == "" {
		panic("invoicing: base URL is required")
	}
	if apiKey == "" {
		panic("invoicing: API key is required")
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) FindOrCreateCustomer(ctx context.Context, name, email string) (Customer, error) {
	body := struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}{name, email}

	var customer Customer
	if err := c.post(ctx, "/v1/customers/find-or-create", body, &customer); err != nil {
		return Customer{}, err
	}
	if customer.ID == "" {
		return Customer{}, fmt.Errorf("%w: empty customer id", ErrInvoicingFailure)
	}
	return customer, nil
}

func (c *Client) IssueInvoice(ctx context.Context, customerID string, t tier.Tier, period tier.BillingPeriod, amount tier.Money) error {
	body := struct {
		CustomerID string `json:"customerId"`
		Title      string `json:"title"`
		Amount     int64  `json:"amount"`
		Currency   string `json:"currency"`
	}{customerID, InvoiceTitle(t, period), amount.Amount, amount.Currency}

	return c.post(ctx, "/v1/invoices", body, nil)
}

// InvoiceTitle renders the invoice document title, e.g.
// "Accelerate Monthly Subscription" or "Elite Annual Subscription".
func InvoiceTitle(t tier.Tier, period tier.BillingPeriod) string {
	return fmt.Sprintf("%s %s Subscription", titleCaser.String(string(t)), period.Label())
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvoicingFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", ErrInvoicingFailure, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrInvoicingFailure, err)
	}
	return nil
}
