package access

import "errors"

var (
	ErrUnknownResource = errors.New("access: unknown resource")
	ErrUnknownFeature  = errors.New("access: unknown feature")
)
