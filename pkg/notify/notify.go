// Package notify sends transactional subscription emails. Delivery is fire
// and forget: a lost email never blocks or rolls back a billing transition.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"

	"github.com/stridehq/subscription-engine/pkg/tier"
)

var (
	ErrInvalidConfig     = errors.New("invalid notifier configuration")
	ErrFailedToSendEmail = errors.New("failed to send email")
)

// Notifier is the subscription-email surface consumed by the webhook path.
type Notifier interface {
	// PaymentFailed tells the user a renewal charge failed and that access
	// will lapse after the grace window unless payment is fixed.
	PaymentFailed(ctx context.Context, email, name string, t tier.Tier) error
}

// PostmarkNotifier sends notifications through Postmark's transactional API.
type PostmarkNotifier struct {
	client      *postmark.Client
	senderEmail string
}

// NewPostmarkNotifier creates a Postmark-backed notifier. Both tokens are
// required so a misconfigured process fails at startup, not at send time.
func NewPostmarkNotifier(serverToken, accountToken, senderEmail string) (*PostmarkNotifier, error) {
	if serverToken == "" {
		return nil, fmt.Errorf("%w: server token is required", ErrInvalidConfig)
	}
	if accountToken == "" {
		return nil, fmt.Errorf("%w: account token is required", ErrInvalidConfig)
	}
	if senderEmail == "" {
		return nil, fmt.Errorf("%w: sender email is required", ErrInvalidConfig)
	}

	return &PostmarkNotifier{
		client:      postmark.NewClient(serverToken, accountToken),
		senderEmail: senderEmail,
	}, nil
}

func (n *PostmarkNotifier) PaymentFailed(ctx context.Context, email, name string, t tier.Tier) error {
	if email == "" {
		return fmt.Errorf("%w: recipient email is empty", ErrFailedToSendEmail)
	}
	greeting := "Hi"
	if name != "" {
		greeting = "Hi " + name
	}

	resp, err := n.client.SendEmail(ctx, postmark.Email{
		From:    n.senderEmail,
		To:      email,
		Subject: "Payment failed for your subscription",
		Tag:     "payment-failed",
		TextBody: fmt.Sprintf(
			"%s,\n\nWe could not process the renewal payment for your %s plan. "+
				"Please update your payment method within the next 3 days to keep your access.\n",
			greeting, t),
	})
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(
			ErrFailedToSendEmail,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}
	return nil
}

// NopNotifier drops every notification. Used when email is not configured.
type NopNotifier struct{}

func (NopNotifier) PaymentFailed(context.Context, string, string, tier.Tier) error { return nil }
