package billing

import (
	"errors"

	"github.com/stridehq/subscription-engine/core"
	"github.com/stridehq/subscription-engine/pkg/access"
	"github.com/stridehq/subscription-engine/pkg/payment"
	"github.com/stridehq/subscription-engine/pkg/subscription"
	"github.com/stridehq/subscription-engine/pkg/tier"
)

// mapError translates domain errors into the HTTP taxonomy. Anything
// unrecognized stays a 500 so internal failures are never mislabeled as
// client mistakes.
func mapError(err error) core.HTTPError {
	switch {
	case errors.Is(err, subscription.ErrNotFound),
		errors.Is(err, subscription.ErrAlreadyCancelled):
		return core.ErrNotFound.WithMessage("No subscription found")

	case errors.Is(err, subscription.ErrNoSubscription),
		errors.Is(err, subscription.ErrNoTier):
		return core.ErrPaymentRequired.WithMessage("Subscription required")

	case errors.Is(err, subscription.ErrNotAnUpgrade):
		return core.ErrBadRequest.WithMessage("Target tier is not an upgrade")

	case errors.Is(err, subscription.ErrNotADowngrade):
		return core.ErrBadRequest.WithMessage("Target tier is not a downgrade")

	case errors.Is(err, subscription.ErrNoScheduledChange):
		return core.ErrBadRequest.WithMessage("No scheduled change to cancel")

	case errors.Is(err, subscription.ErrUnknownTier):
		return core.ErrBadRequest.WithMessage("Unknown tier")

	case errors.Is(err, subscription.ErrUnknownBillingPeriod):
		return core.ErrBadRequest.WithMessage("Unknown billing period")

	case errors.Is(err, subscription.ErrNoPaymentToken):
		return core.ErrBadRequest.WithMessage("No stored payment method")

	case errors.Is(err, access.ErrUnknownResource):
		return core.ErrBadRequest.WithMessage("Unknown resource")

	case errors.Is(err, access.ErrUnknownFeature):
		return core.ErrBadRequest.WithMessage("Unknown feature")

	case errors.Is(err, tier.ErrTierNotFound),
		errors.Is(err, tier.ErrPriceNotDefined):
		return core.ErrBadRequest.WithMessage("Unknown tier")

	case errors.Is(err, subscription.ErrChargeFailed),
		errors.Is(err, payment.ErrChargeDeclined),
		errors.Is(err, payment.ErrGatewayFailure):
		return core.ErrInternalServerError.WithMessage("Payment provider request failed")

	default:
		return core.ErrInternalServerError
	}
}
