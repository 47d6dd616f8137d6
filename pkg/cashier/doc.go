// Package cashier manages subscription billing lifecycles against an
// external payment processor.
//
// A customer holds named subscription slots ("default", "main", etc), each
// created through a fluent builder and backed by a remote processor
// subscription. Lifecycle state is never stored as an enum: it is derived
// from two timestamps, the trial end and the scheduled end, so transitions
// are idempotent and re-derivable at any point in time.
//
// Basic usage:
//
//	processor, err := cashier.NewStripeProcessor(stripeCfg)
//	if err != nil { ... }
//
//	svc := cashier.NewService(processor, stores.Customers, stores.Subscriptions, stores.Plans)
//
//	sub, err := svc.NewSubscription(customer, "main", "plan-monthly-10").
//		TrialDays(7).
//		Create(ctx, paymentToken)
//
// Cancellation keeps the subscription active through the paid-up period
// (the grace period) and can be reversed with Resume until that period
// lapses. Asynchronous processor events are reconciled through
// Service.HandleWebhook, exposed over HTTP by Service.WebhookHandler.
//
// Stores are pluggable: NewPostgresStores provides pgx-backed persistence
// with optimistic locking, NewInMemoryStores a map-backed set for tests.
package cashier
