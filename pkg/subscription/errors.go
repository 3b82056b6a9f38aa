package subscription

import "errors"

var (
	ErrNotFound               = errors.New("subscription: record not found")
	ErrNoSubscription         = errors.New("subscription: user has no subscription")
	ErrNoTier                 = errors.New("subscription: record has no tier or billing period")
	ErrAlreadyCancelled       = errors.New("subscription: subscription already cancelled")
	ErrNotAnUpgrade           = errors.New("subscription: target tier is not an upgrade")
	ErrNotADowngrade          = errors.New("subscription: target tier is not a downgrade")
	ErrUnknownTier            = errors.New("subscription: unknown tier")
	ErrUnknownBillingPeriod   = errors.New("subscription: unknown billing period")
	ErrInvalidPeriod          = errors.New("subscription: current period dates are invalid")
	ErrNoPaymentToken         = errors.New("subscription: no payment token on record")
	ErrChargeFailed           = errors.New("subscription: payment provider charge failed")
	ErrConcurrentModification = errors.New("subscription: record modified concurrently")
	ErrNoScheduledChange      = errors.New("subscription: no scheduled change to cancel")
)
