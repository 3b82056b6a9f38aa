package billing

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/stridehq/subscription-engine/core"
	"github.com/stridehq/subscription-engine/pkg/invoicing"
	"github.com/stridehq/subscription-engine/pkg/payment"
	"github.com/stridehq/subscription-engine/pkg/subscription"
	"github.com/stridehq/subscription-engine/pkg/tier"
)

// statusResponse is the wire shape of a subscription record. Mapping is
// explicit here so the storage row never leaks its layout to clients.
type statusResponse struct {
	Tier                    tier.Tier           `json:"tier,omitempty"`
	BillingPeriod           tier.BillingPeriod  `json:"billingPeriod,omitempty"`
	Status                  subscription.Status `json:"status,omitempty"`
	CurrentPeriodStart      *time.Time          `json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd        *time.Time          `json:"currentPeriodEnd,omitempty"`
	CancellationEffectiveAt *time.Time          `json:"cancellationEffectiveAt,omitempty"`
	ScheduledTier           tier.Tier           `json:"scheduledTier,omitempty"`
	ScheduledBillingPeriod  tier.BillingPeriod  `json:"scheduledBillingPeriod,omitempty"`
	PendingTier             tier.Tier           `json:"pendingTier,omitempty"`
	PendingBillingPeriod    tier.BillingPeriod  `json:"pendingBillingPeriod,omitempty"`
	Usage                   map[string]int64    `json:"usage"`
}

func toStatusResponse(rec *subscription.Record) statusResponse {
	usage := make(map[string]int64, len(tier.Resources()))
	for _, res := range tier.Resources() {
		usage[string(res)] = rec.Usage.Get(res)
	}
	return statusResponse{
		Tier:                    rec.Tier,
		BillingPeriod:           rec.BillingPeriod,
		Status:                  rec.Status,
		CurrentPeriodStart:      rec.CurrentPeriodStart,
		CurrentPeriodEnd:        rec.CurrentPeriodEnd,
		CancellationEffectiveAt: rec.CancellationEffectiveAt,
		ScheduledTier:           rec.ScheduledTier,
		ScheduledBillingPeriod:  rec.ScheduledBillingPeriod,
		PendingTier:             rec.PendingTier,
		PendingBillingPeriod:    rec.PendingBillingPeriod,
		Usage:                   usage,
	}
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deps.Store.Ensure(r.Context(), userID(r))
	if err != nil {
		core.JSONError(w, mapError(err))
		return
	}
	core.JSON(w, http.StatusOK, toStatusResponse(rec))
}

type initiateRequest struct {
	Tier          tier.Tier          `json:"tier"`
	BillingPeriod tier.BillingPeriod `json:"billingPeriod"`
	Email         string             `json:"email,omitempty"`
}

func (h *handlers) initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.JSONError(w, core.ErrBadRequest.WithMessage("Invalid request body"))
		return
	}

	uid := userID(r)
	rec, err := h.deps.Manager.RecordPendingSelection(r.Context(), uid, req.Tier, req.BillingPeriod)
	if err != nil {
		core.JSONError(w, mapError(err))
		return
	}

	price, err := h.deps.Catalog.Price(req.Tier, req.BillingPeriod)
	if err != nil {
		core.JSONError(w, mapError(err))
		return
	}

	session, err := h.deps.Gateway.CreateRecurringPayment(r.Context(), payment.CheckoutRequest{
		UserID:        uid,
		Email:         req.Email,
		Tier:          req.Tier,
		BillingPeriod: req.BillingPeriod,
		Amount:        price,
		Description:   invoicing.InvoiceTitle(req.Tier, req.BillingPeriod),
	})
	if err != nil {
		core.JSONError(w, mapError(err))
		return
	}

	core.JSON(w, http.StatusOK, map[string]any{
		"redirectUrl":   session.URL,
		"transactionId": session.TransactionID,
		"pendingTier":   rec.PendingTier,
	})
}

func (h *handlers) cancel(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deps.Manager.CancelSubscription(r.Context(), userID(r))
	if err != nil {
		core.JSONError(w, mapError(err))
		return
	}

	core.JSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"effectiveAt": rec.CancellationEffectiveAt,
	})
}

type changePlanRequest struct {
	TargetTier          tier.Tier          `json:"targetTier"`
	TargetBillingPeriod tier.BillingPeriod `json:"targetBillingPeriod,omitempty"`
}

// changePlan dispatches one request shape into four scenarios: immediate
// prorated upgrade, scheduled downgrade, cancelling a scheduled downgrade by
// re-picking the current tier, and a billing-period change applied at the
// next renewal.
func (h *handlers) changePlan(w http.ResponseWriter, r *http.Request) {
	var req changePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.JSONError(w, core.ErrBadRequest.WithMessage("Invalid request body"))
		return
	}
	if !req.TargetTier.Valid() {
		core.JSONError(w, core.ErrBadRequest.WithMessage("Unknown tier"))
		return
	}

	ctx := r.Context()
	uid := userID(r)

	rec, err := h.deps.Store.Get(ctx, uid)
	if err != nil {
		core.JSONError(w, mapError(err))
		return
	}
	if !rec.Subscribed() {
		core.JSONError(w, mapError(subscription.ErrNoSubscription))
		return
	}

	switch {
	case req.TargetTier == rec.Tier && rec.ScheduledTier != "":
		updated, err := h.deps.Manager.CancelScheduledChange(ctx, uid)
		if err != nil {
			core.JSONError(w, mapError(err))
			return
		}
		core.JSON(w, http.StatusOK, map[string]any{
			"action": "scheduled_change_cancelled",
			"tier":   updated.Tier,
		})

	case req.TargetTier == rec.Tier:
		if !req.TargetBillingPeriod.Valid() || req.TargetBillingPeriod == rec.BillingPeriod {
			core.JSONError(w, core.ErrBadRequest.WithMessage("No plan change requested"))
			return
		}
		updated, err := h.deps.Manager.ScheduleBillingPeriodChange(ctx, uid, req.TargetBillingPeriod)
		if err != nil {
			core.JSONError(w, mapError(err))
			return
		}
		core.JSON(w, http.StatusOK, map[string]any{
			"action":        "billing_period_change_scheduled",
			"billingPeriod": updated.ScheduledBillingPeriod,
		})

	case req.TargetTier.HigherThan(rec.Tier):
		result, err := h.deps.Manager.UpgradeSubscription(ctx, uid, req.TargetTier)
		if err != nil {
			core.JSONError(w, mapError(err))
			return
		}
		core.JSON(w, http.StatusOK, map[string]any{
			"action":         "upgraded",
			"tier":           result.Record.Tier,
			"proratedAmount": result.ProratedAmount,
			"transactionId":  result.TransactionID,
		})

	default:
		effective, err := h.deps.Manager.ScheduleDowngrade(ctx, uid, req.TargetTier)
		if err != nil {
			core.JSONError(w, mapError(err))
			return
		}
		core.JSON(w, http.StatusOK, map[string]any{
			"action":      "downgrade_scheduled",
			"tier":        req.TargetTier,
			"effectiveAt": effective,
		})
	}
}

type checkAccessRequest struct {
	Feature tier.Feature `json:"feature"`
}

func (h *handlers) checkAccess(w http.ResponseWriter, r *http.Request) {
	var req checkAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.JSONError(w, core.ErrBadRequest.WithMessage("Invalid request body"))
		return
	}

	decision, err := h.deps.Control.CheckFeatureAccess(r.Context(), userID(r), req.Feature)
	if err != nil {
		core.JSONError(w, mapError(err))
		return
	}
	core.JSON(w, http.StatusOK, decision)
}

type checkLimitRequest struct {
	Resource tier.Resource `json:"resource"`
}

func (h *handlers) checkLimit(w http.ResponseWriter, r *http.Request) {
	var req checkLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.JSONError(w, core.ErrBadRequest.WithMessage("Invalid request body"))
		return
	}

	decision, err := h.deps.Control.CheckUsageLimit(r.Context(), userID(r), req.Resource)
	if err != nil {
		core.JSONError(w, mapError(err))
		return
	}
	core.JSON(w, http.StatusOK, decision)
}

func (h *handlers) recommendation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := userID(r)

	rec, err := h.deps.Engine.GetRecommendation(ctx, uid)
	if err != nil {
		core.JSONError(w, mapError(err))
		return
	}

	current := tier.Tier("")
	if record, err := h.deps.Store.Get(ctx, uid); err == nil {
		current = record.Tier
	}

	core.JSON(w, http.StatusOK, map[string]any{
		"recommendedTier": rec.Tier,
		"reason":          rec.Reason,
		"averages":        rec.Averages,
		"currentTier":     current,
		"isUpgrade":       current == "" || rec.Tier.HigherThan(current),
		"isDowngrade":     rec.Tier.LowerThan(current),
		"isCurrentPlan":   current != "" && rec.Tier == current,
	})
}
