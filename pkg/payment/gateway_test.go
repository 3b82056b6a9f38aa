package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stridehq/subscription-engine/pkg/payment"
	"github.com/stridehq/subscription-engine/pkg/tier"
)

func newGateway(t *testing.T, handler http.HandlerFunc) *payment.HTTPGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return payment.NewHTTPGateway(srv.URL, "test-api-key", "test-webhook-key",
		payment.WithHTTPClient(srv.Client()))
}

func TestHTTPGateway_CreateRecurringPayment(t *testing.T) {
	t.Parallel()

	t.Run("returns the checkout session", func(t *testing.T) {
		t.Parallel()
		gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/recurring", r.URL.Path)
			assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

			var req payment.CheckoutRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, tier.Accelerate, req.Tier)

			json.NewEncoder(w).Encode(payment.CheckoutSession{
				TransactionID: "txn_1",
				URL:           "https://pay.example.com/checkout/txn_1",
			})
		})

		session, err := gw.CreateRecurringPayment(context.Background(), payment.CheckoutRequest{
			UserID:        uuid.New(),
			Tier:          tier.Accelerate,
			BillingPeriod: tier.Monthly,
			Amount:        tier.Money{Amount: 1800, Currency: "USD"},
		})
		require.NoError(t, err)
		assert.Equal(t, "https://pay.example.com/checkout/txn_1", session.URL)
	})

	t.Run("provider error surfaces as gateway failure", func(t *testing.T) {
		t.Parallel()
		gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusBadGateway)
		})

		_, err := gw.CreateRecurringPayment(context.Background(), payment.CheckoutRequest{})
		assert.ErrorIs(t, err, payment.ErrGatewayFailure)
	})
}

func TestHTTPGateway_ChargeOnce(t *testing.T) {
	t.Parallel()

	t.Run("returns the transaction id on success", func(t *testing.T) {
		t.Parallel()
		gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/charge", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]string{
				"transactionId": "txn_charge_1",
				"status":        "success",
			})
		})

		id, err := gw.ChargeOnce(context.Background(), "tok_abc",
			tier.Money{Amount: 300, Currency: "USD"}, "Upgrade to Elite")
		require.NoError(t, err)
		assert.Equal(t, "txn_charge_1", id)
	})

	t.Run("declined charge", func(t *testing.T) {
		t.Parallel()
		gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"status": "declined"})
		})

		_, err := gw.ChargeOnce(context.Background(), "tok_abc",
			tier.Money{Amount: 300, Currency: "USD"}, "Upgrade to Elite")
		assert.ErrorIs(t, err, payment.ErrChargeDeclined)
	})
}

func TestHTTPGateway_ApproveTransaction(t *testing.T) {
	t.Parallel()

	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/approve", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	assert.NoError(t, gw.ApproveTransaction(context.Background(), "txn_1"))
}

func TestHTTPGateway_VerifyWebhookKey(t *testing.T) {
	t.Parallel()

	gw := payment.NewHTTPGateway("https://pay.example.com", "key", "shared-secret")
	assert.True(t, gw.VerifyWebhookKey("shared-secret"))
	assert.False(t, gw.VerifyWebhookKey("wrong"))
	assert.False(t, gw.VerifyWebhookKey(""))
}

func TestParseWebhook(t *testing.T) {
	t.Parallel()

	t.Run("json body", func(t *testing.T) {
		t.Parallel()
		body := `{
			"webhookKey": "shared-secret",
			"transactionId": "txn_1",
			"transactionCode": "code_777",
			"status": "success",
			"sum": "1800",
			"currency": "USD",
			"userId": "2f0c8a70-9df1-4f8e-a6a1-111111111111",
			"tier": "accelerate",
			"billingPeriod": "monthly",
			"recurringId": "rec_9",
			"email": "jo@example.com"
		}`
		r := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")

		p, err := payment.ParseWebhook(r)
		require.NoError(t, err)
		assert.Equal(t, "shared-secret", p.WebhookKey)
		assert.Equal(t, "code_777", p.TransactionCode)
		assert.Equal(t, "accelerate", p.Tier)
		assert.True(t, p.Succeeded())
	})

	t.Run("form body", func(t *testing.T) {
		t.Parallel()
		form := url.Values{}
		form.Set("webhookKey", "shared-secret")
		form.Set("transactionId", "txn_2")
		form.Set("status", "failed")
		form.Set("userId", "2f0c8a70-9df1-4f8e-a6a1-222222222222")
		form.Set("tier", "momentum")
		form.Set("billingPeriod", "yearly")

		r := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		p, err := payment.ParseWebhook(r)
		require.NoError(t, err)
		assert.Equal(t, "txn_2", p.TransactionID)
		assert.Equal(t, "yearly", p.BillingPeriod)
		assert.False(t, p.Succeeded())
	})

	t.Run("garbage json", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json"))
		r.Header.Set("Content-Type", "application/json")

		_, err := payment.ParseWebhook(r)
		assert.ErrorIs(t, err, payment.ErrMalformedPayload)
	})
}
