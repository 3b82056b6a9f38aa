package billing_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/stridehq/subscription-engine/modules/billing"
	"github.com/stridehq/subscription-engine/pkg/access"
	"github.com/stridehq/subscription-engine/pkg/invoicing"
	"github.com/stridehq/subscription-engine/pkg/payment"
	"github.com/stridehq/subscription-engine/pkg/recommend"
	"github.com/stridehq/subscription-engine/pkg/subscription"
	"github.com/stridehq/subscription-engine/pkg/tier"
)

const (
	testWebhookKey = "hook-secret"
	testCronSecret = "cron-secret"
)

type toggleSwitch struct {
	on atomic.Bool
}

func (s *toggleSwitch) Enabled(context.Context) bool { return s.on.Load() }

type fakeGateway struct {
	mu         sync.Mutex
	approveErr error
	chargeErr  error
	approved   []string
	checkouts  []payment.CheckoutRequest
}

func (g *fakeGateway) CreateRecurringPayment(_ context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checkouts = append(g.checkouts, req)
	return payment.CheckoutSession{
		TransactionID: "txn_init_1",
		URL:           "https://pay.example.com/checkout/txn_init_1",
	}, nil
}

func (g *fakeGateway) ChargeOnce(context.Context, string, tier.Money, string) (string, error) {
	if g.chargeErr != nil {
		return "", g.chargeErr
	}
	return "txn_charge_1", nil
}

func (g *fakeGateway) ApproveTransaction(_ context.Context, transactionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.approveErr != nil {
		return g.approveErr
	}
	g.approved = append(g.approved, transactionID)
	return nil
}

func (g *fakeGateway) VerifyWebhookKey(key string) bool { return key == testWebhookKey }

type issuedInvoice struct {
	CustomerID string
	Tier       tier.Tier
	Period     tier.BillingPeriod
	Amount     tier.Money
}

type fakeIssuer struct {
	mu       sync.Mutex
	findErr  error
	invoices []issuedInvoice
}

func (f *fakeIssuer) FindOrCreateCustomer(_ context.Context, name, email string) (invoicing.Customer, error) {
	if f.findErr != nil {
		return invoicing.Customer{}, f.findErr
	}
	return invoicing.Customer{ID: "cus_" + email, Name: name, Email: email}, nil
}

func (f *fakeIssuer) IssueInvoice(_ context.Context, customerID string, t tier.Tier, p tier.BillingPeriod, amount tier.Money) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoices = append(f.invoices, issuedInvoice{customerID, t, p, amount})
	return nil
}

type sentNotice struct {
	Email string
	Name  string
	Tier  tier.Tier
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []sentNotice
}

func (f *fakeNotifier) PaymentFailed(_ context.Context, email, name string, t tier.Tier) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, sentNotice{email, name, t})
	return nil
}

type env struct {
	router   chi.Router
	store    *subscription.MemoryStore
	manager  *subscription.Manager
	gateway  *fakeGateway
	issuer   *fakeIssuer
	notifier *fakeNotifier
	sw       *toggleSwitch
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithSecret(t, testCronSecret)
}

func newEnvWithSecret(t *testing.T, cronSecret string) *env {
	t.Helper()

	catalog, err := tier.NewCatalog(context.Background(), tier.DefaultSource())
	require.NoError(t, err)

	store := subscription.NewMemoryStore()
	gateway := &fakeGateway{}
	issuer := &fakeIssuer{}
	notifier := &fakeNotifier{}
	sw := &toggleSwitch{}
	sw.on.Store(true)

	manager := subscription.NewManager(store, catalog, gateway)

	router := billing.Router(billing.Deps{
		Manager:    manager,
		Store:      store,
		Control:    access.NewControl(store, catalog, sw),
		Engine:     recommend.NewEngine(store),
		Catalog:    catalog,
		Gateway:    gateway,
		Verifier:   gateway,
		KillSwitch: sw,
		Issuer:     issuer,
		Notifier:   notifier,
		CronSecret: cronSecret,
	})

	return &env{
		router:   router,
		store:    store,
		manager:  manager,
		gateway:  gateway,
		issuer:   issuer,
		notifier: notifier,
		sw:       sw,
	}
}

func (e *env) do(t *testing.T, method, path string, userID uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != uuid.Nil {
		req.Header.Set("X-User-ID", userID.String())
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Message
}

func (e *env) activate(t *testing.T, userID uuid.UUID, tr tier.Tier, p tier.BillingPeriod) {
	t.Helper()
	_, err := e.manager.ActivateSubscription(context.Background(), userID, tr, p, &subscription.PaymentDetails{
		Token:           "tok_" + userID.String()[:8],
		RecurringID:     "rec_1",
		TransactionCode: "code_activation",
	})
	require.NoError(t, err)
}
