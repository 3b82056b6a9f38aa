// Package billing exposes the subscription engine over HTTP: the
// client-facing REST surface, the payment-provider webhook, and the daily
// cron tick. Handlers translate between the wire and the domain packages and
// hold no business logic of their own.
package billing

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/stridehq/subscription-engine/pkg/access"
	"github.com/stridehq/subscription-engine/pkg/invoicing"
	"github.com/stridehq/subscription-engine/pkg/notify"
	"github.com/stridehq/subscription-engine/pkg/payment"
	"github.com/stridehq/subscription-engine/pkg/recommend"
	"github.com/stridehq/subscription-engine/pkg/subscription"
	"github.com/stridehq/subscription-engine/pkg/tier"
)

// Deps wires the domain services into the HTTP surface. Issuer and Notifier
// are optional; everything else is required.
type Deps struct {
	Manager    *subscription.Manager
	Store      subscription.Store
	Control    *access.Control
	Engine     *recommend.Engine
	Catalog    *tier.Catalog
	Gateway    payment.Gateway
	Verifier   payment.WebhookVerifier
	KillSwitch access.Switch

	Issuer   invoicing.Issuer
	Notifier notify.Notifier

	CronSecret string
	Logger     *slog.Logger
}

func (d *Deps) validate() {
	if d.Manager == nil {
		panic("billing: Manager is required")
	}
	if d.Store == nil {
		panic("billing: Store is required")
	}
	if d.Control == nil {
		panic("billing: Control is required")
	}
	if d.Engine == nil {
		panic("billing: Engine is required")
	}
	if d.Catalog == nil {
		panic("billing: Catalog is required")
	}
	if d.Gateway == nil {
		panic("billing: Gateway is required")
	}
	if d.Verifier == nil {
		panic("billing: Verifier is required")
	}
	if d.KillSwitch == nil {
		panic("billing: KillSwitch is required")
	}
	if d.Notifier == nil {
		d.Notifier = notify.NopNotifier{}
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
}

// Router mounts the billing HTTP surface.
//
//	r.Mount("/billing", billing.Router(deps))
func Router(deps Deps) chi.Router {
	deps.validate()
	h := &handlers{deps: deps}

	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(requireUser)
		r.Get("/subscription/status", h.status)
		r.Post("/subscription/initiate", h.initiate)
		r.Post("/subscription/cancel", h.cancel)
		r.Post("/subscription/change-plan", h.changePlan)
		r.Post("/access/check-access", h.checkAccess)
		r.Post("/access/check-limit", h.checkLimit)
		r.Get("/recommendation", h.recommendation)
	})

	r.Post("/webhook", h.webhook)
	r.Get("/cron", h.cron)

	return r
}

type handlers struct {
	deps Deps
}
