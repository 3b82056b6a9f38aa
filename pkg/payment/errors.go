package payment

import "errors"

var (
	// ErrInvalidWebhookKey is returned when a webhook payload carries a
	// missing or wrong shared key.
	ErrInvalidWebhookKey = errors.New("invalid webhook key")

	// ErrMalformedPayload is returned when a webhook body cannot be parsed.
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// ErrGatewayFailure is returned when the payment provider rejects or
	// fails a request.
	ErrGatewayFailure = errors.New("payment gateway request failed")

	// ErrChargeDeclined is returned when the provider declines a charge.
	ErrChargeDeclined = errors.New("charge declined")
)
