package invoicing_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stridehq/subscription-engine/pkg/invoicing"
	"github.com/stridehq/subscription-engine/pkg/tier"
)

func newClient(t *testing.T, handler http.HandlerFunc) *invoicing.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return invoicing.NewClient(srv.URL, "inv-api-key", invoicing.WithHTTPClient(srv.Client()))
}

func TestInvoiceTitle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Momentum Monthly Subscription", invoicing.InvoiceTitle(tier.Momentum, tier.Monthly))
	assert.Equal(t, "Accelerate Quarterly Subscription", invoicing.InvoiceTitle(tier.Accelerate, tier.Quarterly))
	assert.Equal(t, "Elite Annual Subscription", invoicing.InvoiceTitle(tier.Elite, tier.Yearly))
}

func TestClient_FindOrCreateCustomer(t *testing.T) {
	t.Parallel()

	t.Run("resolves the customer", func(t *testing.T) {
		t.Parallel()
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/customers/find-or-create", r.URL.Path)
			assert.Equal(t, "Bearer inv-api-key", r.Header.Get("Authorization"))

			var req struct {
				Name  string `json:"name"`
				Email string `json:"email"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "jo@example.com", req.Email)

			json.NewEncoder(w).Encode(invoicing.Customer{ID: "cus_1", Name: req.Name, Email: req.Email})
		})

		customer, err := client.FindOrCreateCustomer(context.Background(), "Jo Doe", "jo@example.com")
		require.NoError(t, err)
		assert.Equal(t, "cus_1", customer.ID)
	})

	t.Run("provider failure", func(t *testing.T) {
		t.Parallel()
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusInternalServerError)
		})

		_, err := client.FindOrCreateCustomer(context.Background(), "Jo Doe", "jo@example.com")
		assert.ErrorIs(t, err, invoicing.ErrInvoicingFailure)
	})
}

func TestClient_IssueInvoice(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/invoices", r.URL.Path)

		var req struct {
			CustomerID string `json:"customerId"`
			Title      string `json:"title"`
			Amount     int64  `json:"amount"`
			Currency   string `json:"currency"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "cus_1", req.CustomerID)
		assert.Equal(t, "Accelerate Monthly Subscription", req.Title)
		assert.Equal(t, int64(1800), req.Amount)

		w.WriteHeader(http.StatusCreated)
	})

	err := client.IssueInvoice(context.Background(), "cus_1", tier.Accelerate, tier.Monthly,
		tier.Money{Amount: 1800, Currency: "USD"})
	assert.NoError(t, err)
}
