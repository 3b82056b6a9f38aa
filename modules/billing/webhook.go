package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/stridehq/subscription-engine/core"
	"github.com/stridehq/subscription-engine/pkg/logger"
	"github.com/stridehq/subscription-engine/pkg/payment"
	"github.com/stridehq/subscription-engine/pkg/subscription"
	"github.com/stridehq/subscription-engine/pkg/tier"
)

// webhook processes payment-provider deliveries. Deliveries are at-least-once
// and may arrive out of order; the manager's idempotency guards make retries
// safe, so this handler only validates, approves, and dispatches.
func (h *handlers) webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.deps.Logger

	payload, err := payment.ParseWebhook(r)
	if err != nil {
		core.JSONError(w, core.ErrBadRequest.WithMessage("Malformed webhook payload"))
		return
	}

	if !h.deps.Verifier.VerifyWebhookKey(payload.WebhookKey) {
		log.WarnContext(ctx, "webhook rejected: bad key",
			slog.String("transaction_id", payload.TransactionID))
		core.JSONError(w, core.ErrUnauthorized.WithMessage("Invalid webhook key"))
		return
	}

	if payload.UserID == "" {
		core.JSONError(w, core.ErrBadRequest.WithMessage("Missing userId"))
		return
	}
	uid, err := uuid.Parse(payload.UserID)
	if err != nil {
		core.JSONError(w, core.ErrBadRequest.WithMessage("Invalid userId"))
		return
	}

	if !payload.Succeeded() {
		h.handleFailedPayment(ctx, uid, payload)
		core.JSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	if payload.Tier == "" || payload.BillingPeriod == "" {
		core.JSONError(w, core.ErrBadRequest.WithMessage("Missing tier or billingPeriod"))
		return
	}
	t := tier.Tier(payload.Tier)
	period := tier.BillingPeriod(payload.BillingPeriod)
	if !t.Valid() || !period.Valid() {
		core.JSONError(w, core.ErrBadRequest.WithMessage("Unknown tier or billingPeriod"))
		return
	}

	if err := h.deps.Gateway.ApproveTransaction(ctx, payload.TransactionID); err != nil {
		log.ErrorContext(ctx, "transaction approval failed",
			logger.UserID(uid),
			slog.String("transaction_id", payload.TransactionID),
			logger.Error(err))
		core.JSONError(w, core.ErrInternalServerError.WithMessage("Transaction approval failed"))
		return
	}

	rec, err := h.dispatchPayment(ctx, uid, t, period, payload)
	if err != nil {
		core.JSONError(w, mapError(err))
		return
	}

	// Invoicing is best effort: the subscription transition above already
	// succeeded and must not be rolled back for a missing document.
	h.issueInvoice(ctx, rec, payload)

	core.JSON(w, http.StatusOK, map[string]any{"success": true})
}

// dispatchPayment routes a successful payment to activation for first-time
// (or tracking-only) users and to renewal for everyone else.
func (h *handlers) dispatchPayment(ctx context.Context, uid uuid.UUID, t tier.Tier, period tier.BillingPeriod, payload payment.WebhookPayload) (*subscription.Record, error) {
	existing, err := h.deps.Store.Get(ctx, uid)
	if err != nil && !errors.Is(err, subscription.ErrNotFound) {
		return nil, err
	}

	if existing == nil || !existing.Subscribed() {
		return h.deps.Manager.ActivateSubscription(ctx, uid, t, period, &subscription.PaymentDetails{
			Token:           payload.TransactionToken,
			RecurringID:     payload.RecurringID,
			TransactionCode: payload.TransactionCode,
		})
	}
	return h.deps.Manager.RenewSubscription(ctx, uid, payload.TransactionCode)
}

func (h *handlers) handleFailedPayment(ctx context.Context, uid uuid.UUID, payload payment.WebhookPayload) {
	log := h.deps.Logger

	if err := h.deps.Manager.HandlePaymentFailure(ctx, uid); err != nil {
		log.ErrorContext(ctx, "payment failure handling failed",
			logger.UserID(uid), logger.Error(err))
		return
	}

	if payload.Email == "" {
		return
	}
	if err := h.deps.Notifier.PaymentFailed(ctx, payload.Email, payload.Name, tier.Tier(payload.Tier)); err != nil {
		log.WarnContext(ctx, "payment failure notice not sent",
			logger.UserID(uid), logger.Error(err))
	}
}

func (h *handlers) issueInvoice(ctx context.Context, rec *subscription.Record, payload payment.WebhookPayload) {
	if h.deps.Issuer == nil || payload.Email == "" {
		return
	}
	log := h.deps.Logger

	customer, err := h.deps.Issuer.FindOrCreateCustomer(ctx, payload.Name, payload.Email)
	if err != nil {
		log.WarnContext(ctx, "invoice customer lookup failed",
			logger.UserID(rec.UserID), logger.Error(err))
		return
	}

	if rec.InvoiceCustomerID != customer.ID {
		rec.InvoiceCustomerID = customer.ID
		if err := h.deps.Store.Save(ctx, rec); err != nil {
			log.WarnContext(ctx, "invoice customer id not persisted",
				logger.UserID(rec.UserID), logger.Error(err))
		}
	}

	price, err := h.deps.Catalog.Price(rec.Tier, rec.BillingPeriod)
	if err != nil {
		log.WarnContext(ctx, "invoice price lookup failed",
			logger.UserID(rec.UserID), logger.Error(err))
		return
	}

	if err := h.deps.Issuer.IssueInvoice(ctx, customer.ID, rec.Tier, rec.BillingPeriod, price); err != nil {
		log.WarnContext(ctx, "invoice not issued",
			logger.UserID(rec.UserID), logger.Error(err))
	}
}
