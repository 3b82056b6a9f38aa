// Package subscription implements the subscription lifecycle engine: one
// record per user, an append-only event log, immutable monthly usage
// snapshots, and the Manager state machine that owns every tier, period and
// counter transition.
//
// The Manager is built for at-least-once, out-of-order webhook delivery.
// Renewals are guarded twice: a transaction code equal to the last stored one
// is ignored entirely, and counters reset only when the last reset predates
// the current period start. Both guards must hold for double-delivered
// renewals never to double-reset counters.
//
// Writers of the same record are serialized through an optimistic version
// check in Store.Save; callers that lose the race receive
// ErrConcurrentModification and retry from a fresh read.
//
// Basic wiring:
//
//	catalog, _ := tier.NewCatalog(ctx, tier.DefaultSource())
//	store := subscription.NewPostgresStore(pool)
//	mgr := subscription.NewManager(store, catalog, gateway,
//		subscription.WithLogger(log))
//
//	rec, err := mgr.ActivateSubscription(ctx, userID, tier.Momentum, tier.Monthly, details)
package subscription
