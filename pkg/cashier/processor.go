package cashier

import (
	"context"
	"time"
)

// Processor abstracts the remote payment processor. Implementations must
// translate provider failures into the package error taxonomy: business
// declines and validation failures map to ErrProcessorRejected (never
// retried), connectivity failures to ErrTransientNetwork (retried by the
// service with bounded backoff).
type Processor interface {
	// CreateCustomer registers the customer with the processor using a
	// one-time payment authorization token and returns the processor
	// reference plus a stored payment method summary.
	CreateCustomer(ctx context.Context, email, name, paymentToken string) (*CustomerRef, error)

	// CreateSubscription issues the remote create call with all accumulated
	// builder options and returns the processor's subscription reference.
	CreateSubscription(ctx context.Context, customerRef, planID string, opts SubscriptionOptions) (*RemoteSubscription, error)

	// CancelSubscription cancels remotely. When immediate is false the
	// subscription runs to the close of the current billing period, and the
	// returned timestamp is that remote-reported period end.
	CancelSubscription(ctx context.Context, remoteID string, immediate bool) (periodEnd time.Time, err error)

	// ResumeSubscription re-activates billing on a subscription cancelled at
	// period end whose grace period has not yet elapsed.
	ResumeSubscription(ctx context.Context, remoteID string) error

	// SwapPlan moves the subscription to a new plan in place; the processor
	// prorates the remainder of the current period.
	SwapPlan(ctx context.Context, remoteID, newPlanID string, quantity int64) error

	// RegisterPlan creates the pricing definition on the processor side and
	// returns its identifier.
	RegisterPlan(ctx context.Context, plan Plan) (string, error)

	// ApplyCoupon attaches a discount to an existing customer.
	ApplyCoupon(ctx context.Context, customerRef, code string) error

	// CreateOneOffInvoice bills the customer immediately for a single
	// line item outside any subscription.
	CreateOneOffInvoice(ctx context.Context, customerRef, description string, amount int64, currency string) (*Invoice, error)

	// Refund reverses a settled charge.
	Refund(ctx context.Context, chargeRef string) (*Refund, error)

	// FetchInvoices returns the customer's billed documents, newest first.
	FetchInvoices(ctx context.Context, customerRef string) ([]*Invoice, error)
}

// CustomerRef is the processor's view of a newly registered customer.
type CustomerRef struct {
	ID           string
	CardBrand    string
	CardLastFour string
}

// RemoteSubscription is the processor's view of a newly created subscription.
type RemoteSubscription struct {
	ID          string
	TrialEndsAt *time.Time // echoed back when a trial was requested
}

// SubscriptionOptions carries the builder's accumulated creation options to
// the processor.
type SubscriptionOptions struct {
	Quantity           int64
	TrialEndsAt        *time.Time // explicit trial end, nil for no trial
	SkipTrial          bool       // suppress the plan's default trial
	BillingCycleAnchor *time.Time // align the recurring boundary to this date
	Coupon             string
	PaymentToken       string
}

// Refund is the processor's record of a reversed charge.
type Refund struct {
	ID       string
	ChargeID string
	Amount   int64
	Currency string
}

// WebhookVerifier is implemented by processors that sign their webhook
// deliveries. The reconciler's HTTP handler verifies before reconciling.
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, signature string) error
}
