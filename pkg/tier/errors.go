package tier

import "errors"

var (
	ErrTierNotFound         = errors.New("tier: tier not found")
	ErrInvalidConfiguration = errors.New("tier: invalid tier configuration")
	ErrFailedToLoadCatalog  = errors.New("tier: failed to load tier catalog")
	ErrPriceNotDefined      = errors.New("tier: price not defined for billing period")
)
