package billing

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/stridehq/subscription-engine/core"
	"github.com/stridehq/subscription-engine/pkg/logger"
)

// cron runs the daily maintenance tick: expiration of lapsed subscriptions
// plus a snapshot-integrity sweep. The endpoint is idempotent, so an
// overlapping or repeated invocation does no harm.
func (h *handlers) cron(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.deps.CronSecret == "" {
		core.JSONError(w, core.ErrInternalServerError.WithMessage("Cron secret not configured"))
		return
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.deps.CronSecret)) != 1 {
		core.JSONError(w, core.ErrUnauthorized)
		return
	}

	if !h.deps.KillSwitch.Enabled(ctx) {
		core.JSON(w, http.StatusOK, map[string]any{
			"skipped": true,
			"reason":  "enforcement disabled",
		})
		return
	}

	started := time.Now()

	expired, err := h.deps.Manager.ProcessExpirations(ctx)
	if err != nil {
		h.deps.Logger.ErrorContext(ctx, "expiration scan failed", logger.Error(err))
		core.JSONError(w, core.ErrInternalServerError.WithMessage("Expiration scan failed"))
		return
	}

	corrupt, err := h.deps.Store.ListCorruptSnapshots(ctx)
	if err != nil {
		h.deps.Logger.ErrorContext(ctx, "snapshot reconciliation failed", logger.Error(err))
		core.JSONError(w, core.ErrInternalServerError.WithMessage("Snapshot reconciliation failed"))
		return
	}

	resp := map[string]any{
		"expired":       expired,
		"reconciled":    len(corrupt),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"executionTime": time.Since(started).String(),
	}
	if len(corrupt) > 0 {
		mismatches := make([]map[string]any, 0, len(corrupt))
		for _, snap := range corrupt {
			mismatches = append(mismatches, map[string]any{
				"userId": snap.UserID,
				"month":  snap.Month,
			})
		}
		resp["mismatches"] = mismatches
		h.deps.Logger.WarnContext(ctx, "corrupt usage snapshots flagged",
			logger.Component("cron"))
	}

	core.JSON(w, http.StatusOK, resp)
}
