package cashier

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// SubscriptionBuilder accumulates creation options before the single remote
// create call. Obtained from Service.NewSubscription; immutable once Create
// has been issued. Trial configuration is last-writer-wins: calling
// TrialDays after TrialUntil (or vice versa) overwrites the earlier choice.
type SubscriptionBuilder struct {
	svc      *Service
	customer *Customer
	name     string
	planID   string
	quantity int64

	trialDays  *int
	trialUntil *time.Time
	skipTrial  bool
	anchor     *time.Time
	coupon     string
}

// TrialDays sets the trial to end n days from creation time.
func (b *SubscriptionBuilder) TrialDays(n int) *SubscriptionBuilder {
	b.trialDays = &n
	b.trialUntil = nil
	return b
}

// TrialUntil sets an explicit trial end, at any precision including
// time-of-day.
func (b *SubscriptionBuilder) TrialUntil(t time.Time) *SubscriptionBuilder {
	b.trialUntil = &t
	b.trialDays = nil
	return b
}

// SkipTrial suppresses any trial, including the plan's default trial period.
func (b *SubscriptionBuilder) SkipTrial() *SubscriptionBuilder {
	b.skipTrial = true
	return b
}

// AnchorBillingCycleOn aligns the recurring billing boundary to the given
// future date. The processor bills a short first period from creation to the
// anchor; the first invoice's line item period reflects the split.
func (b *SubscriptionBuilder) AnchorBillingCycleOn(t time.Time) *SubscriptionBuilder {
	b.anchor = &t
	return b
}

// WithCoupon attaches a discount applied at subscription-creation time.
func (b *SubscriptionBuilder) WithCoupon(code string) *SubscriptionBuilder {
	b.coupon = code
	return b
}

// Quantity overrides the default quantity of 1.
func (b *SubscriptionBuilder) Quantity(n int64) *SubscriptionBuilder {
	b.quantity = n
	return b
}

// Create issues the remote create call with all accumulated options and the
// one-time payment authorization token, then persists the local subscription
// row. Local preconditions (duplicate slot, unknown plan, negative trial)
// fail before any remote call; a remote decline surfaces as
// ErrProcessorRejected with nothing persisted.
func (b *SubscriptionBuilder) Create(ctx context.Context, paymentToken string) (*Subscription, error) {
	if paymentToken == "" {
		return nil, ErrMissingPaymentToken
	}
	if b.trialDays != nil && *b.trialDays < 0 {
		return nil, ErrNegativeTrialDays
	}

	now := b.svc.clock()

	// (customer, slot) is a natural key: at most one subscription may occupy
	// a slot. An ended predecessor does not block creation, but it must be
	// superseded by the new row, never left alongside it.
	var superseded *Subscription
	if existing, err := b.svc.subscriptions.FindBySlot(ctx, b.customer.ID, b.name); err == nil {
		if existing.ActiveAt(now) {
			return nil, ErrDuplicateSlot
		}
		superseded = existing
	} else if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}

	plan, err := b.svc.plans.Get(ctx, b.planID)
	if err != nil {
		return nil, err
	}

	trialEndsAt := b.resolveTrialEnd(plan, now)

	// The processor needs a customer reference before a subscription can be
	// attached; register the customer lazily on first billing contact.
	if b.customer.ProcessorID == "" {
		if err := b.svc.registerCustomer(ctx, b.customer, paymentToken); err != nil {
			return nil, err
		}
	}

	opts := SubscriptionOptions{
		Quantity:           b.quantity,
		TrialEndsAt:        trialEndsAt,
		SkipTrial:          b.skipTrial,
		BillingCycleAnchor: b.anchor,
		Coupon:             b.coupon,
		PaymentToken:       paymentToken,
	}

	var remote *RemoteSubscription
	err = b.svc.retry.call(ctx, func(ctx context.Context) error {
		var callErr error
		remote, callErr = b.svc.processor.CreateSubscription(ctx, b.customer.ProcessorID, b.planID, opts)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	// The remote create is confirmed; replace the ended predecessor so the
	// slot holds exactly one row. A remote failure above leaves it in place.
	if superseded != nil {
		if err := b.svc.subscriptions.Delete(ctx, superseded.ID); err != nil {
			return nil, err
		}
	}

	sub := &Subscription{
		ID:          uuid.New(),
		CustomerID:  b.customer.ID,
		Name:        b.name,
		ProcessorID: remote.ID,
		PlanID:      b.planID,
		Quantity:    b.quantity,
		TrialEndsAt: trialEndsAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := b.svc.subscriptions.Save(ctx, sub); err != nil {
		return nil, err
	}

	b.svc.log.InfoContext(ctx, "subscription created",
		slog.String("subscription_id", sub.ID.String()),
		slog.String("slot", sub.Name),
		slog.String("plan_id", sub.PlanID),
	)
	return sub, nil
}

// resolveTrialEnd applies the precedence: explicit skip beats everything,
// then an explicit end or day count, then the plan's default trial.
func (b *SubscriptionBuilder) resolveTrialEnd(plan *Plan, now time.Time) *time.Time {
	if b.skipTrial {
		return nil
	}
	if b.trialUntil != nil {
		t := *b.trialUntil
		return &t
	}
	if b.trialDays != nil {
		t := now.AddDate(0, 0, *b.trialDays)
		return &t
	}
	if plan.HasTrial() {
		t := plan.TrialEndsAt(now)
		return &t
	}
	return nil
}
