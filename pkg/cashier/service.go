package cashier

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Service coordinates the local subscription state with the remote payment
// processor. Every transition performs the remote call first and mutates
// local state only after remote confirmation; a remote failure leaves the
// stored row untouched.
type Service struct {
	processor     Processor
	customers     CustomerStore
	subscriptions SubscriptionStore
	plans         PlanStore

	clock    Clock
	log      *slog.Logger
	retry    RetryPolicy
	currency string
	deduper  EventDeduper
}

// NewService creates a Service with the given collaborators.
// Panics if a required collaborator is nil to fail fast during wiring.
func NewService(processor Processor, customers CustomerStore, subscriptions SubscriptionStore, plans PlanStore, opts ...ServiceOption) *Service {
	if processor == nil {
		panic("cashier: Processor is required")
	}
	if customers == nil {
		panic("cashier: CustomerStore is required")
	}
	if subscriptions == nil {
		panic("cashier: SubscriptionStore is required")
	}
	if plans == nil {
		panic("cashier: PlanStore is required")
	}

	s := &Service{
		processor:     processor,
		customers:     customers,
		subscriptions: subscriptions,
		plans:         plans,
		clock:         SystemClock,
		log:           slog.Default(),
		retry:         DefaultRetryPolicy(),
		currency:      "USD",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterPlan creates the pricing definition on the processor and records
// it locally. Plans are immutable after registration.
func (s *Service) RegisterPlan(ctx context.Context, plan Plan) (*Plan, error) {
	if plan.Currency == "" {
		plan.Currency = s.currency
	}
	if plan.IntervalCount <= 0 {
		plan.IntervalCount = 1
	}

	err := s.retry.call(ctx, func(ctx context.Context) error {
		id, callErr := s.processor.RegisterPlan(ctx, plan)
		if callErr != nil {
			return callErr
		}
		plan.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.plans.Save(ctx, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// CreateCustomer registers the customer with the processor using a one-time
// payment token and persists the local row with the stored payment method
// summary.
func (s *Service) CreateCustomer(ctx context.Context, email, name, paymentToken string) (*Customer, error) {
	if paymentToken == "" {
		return nil, ErrMissingPaymentToken
	}

	now := s.clock()
	customer := &Customer{
		ID:        uuid.New(),
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.registerCustomer(ctx, customer, paymentToken); err != nil {
		return nil, err
	}
	return customer, nil
}

// registerCustomer performs the remote customer registration and updates the
// local row with the processor reference and card summary.
func (s *Service) registerCustomer(ctx context.Context, customer *Customer, paymentToken string) error {
	var ref *CustomerRef
	err := s.retry.call(ctx, func(ctx context.Context) error {
		var callErr error
		ref, callErr = s.processor.CreateCustomer(ctx, customer.Email, customer.Name, paymentToken)
		return callErr
	})
	if err != nil {
		return err
	}

	customer.ProcessorID = ref.ID
	customer.CardBrand = ref.CardBrand
	customer.CardLastFour = ref.CardLastFour
	customer.UpdatedAt = s.clock()
	return s.customers.Save(ctx, customer)
}

// NewSubscription starts a builder for the customer bound to one slot name
// and plan. Quantity defaults to 1.
func (s *Service) NewSubscription(customer *Customer, name, planID string) *SubscriptionBuilder {
	return &SubscriptionBuilder{
		svc:      s,
		customer: customer,
		name:     name,
		planID:   planID,
		quantity: 1,
	}
}

// Subscription returns the customer's subscription in the named slot.
func (s *Service) Subscription(ctx context.Context, customer *Customer, name string) (*Subscription, error) {
	return s.subscriptions.FindBySlot(ctx, customer.ID, name)
}

// Subscriptions returns all of the customer's subscriptions.
func (s *Service) Subscriptions(ctx context.Context, customer *Customer) ([]*Subscription, error) {
	return s.subscriptions.ListByCustomer(ctx, customer.ID)
}

// Subscribed reports whether the customer has an active subscription in the
// named slot, optionally constrained to specific plans. Fails closed:
// returns false on any lookup error.
func (s *Service) Subscribed(ctx context.Context, customer *Customer, name string, planIDs ...string) bool {
	sub, err := s.subscriptions.FindBySlot(ctx, customer.ID, name)
	if err != nil {
		return false
	}
	if !sub.ActiveAt(s.clock()) {
		return false
	}
	return len(planIDs) == 0 || slices.Contains(planIDs, sub.PlanID)
}

// SubscribedToPlan reports whether the customer's subscription in the named
// slot is active on the given plan.
func (s *Service) SubscribedToPlan(ctx context.Context, customer *Customer, planID, name string) bool {
	return s.Subscribed(ctx, customer, name, planID)
}

// Cancel schedules the end of the subscription. On trial the grace period
// coincides with the remaining trial; otherwise the subscription runs to the
// remote-reported close of the current billing period. Cancelling an
// already-cancelled subscription re-issues the same schedule.
func (s *Service) Cancel(ctx context.Context, sub *Subscription) error {
	var periodEnd time.Time
	err := s.retry.call(ctx, func(ctx context.Context) error {
		var callErr error
		periodEnd, callErr = s.processor.CancelSubscription(ctx, sub.ProcessorID, false)
		return callErr
	})
	if err != nil {
		return err
	}

	now := s.clock()
	endsAt := periodEnd
	if sub.OnTrialAt(now) {
		endsAt = *sub.TrialEndsAt
	}
	sub.EndsAt = &endsAt
	sub.UpdatedAt = now
	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "subscription cancelled",
		slog.String("subscription_id", sub.ID.String()),
		slog.Time("ends_at", endsAt),
	)
	return nil
}

// CancelNow ends the subscription immediately, bypassing the grace period.
func (s *Service) CancelNow(ctx context.Context, sub *Subscription) error {
	err := s.retry.call(ctx, func(ctx context.Context) error {
		_, callErr := s.processor.CancelSubscription(ctx, sub.ProcessorID, true)
		return callErr
	})
	if err != nil {
		return err
	}

	now := s.clock()
	sub.EndsAt = &now
	sub.UpdatedAt = now
	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "subscription cancelled immediately",
		slog.String("subscription_id", sub.ID.String()),
	)
	return nil
}

// Resume re-activates a subscription whose grace period has not yet elapsed.
// The trial end is deliberately left untouched: a subscription cancelled
// during its trial returns to Trialing, not Active-Recurring.
func (s *Service) Resume(ctx context.Context, sub *Subscription) error {
	if !sub.OnGracePeriodAt(s.clock()) {
		return ErrInvalidStateTransition
	}

	err := s.retry.call(ctx, func(ctx context.Context) error {
		return s.processor.ResumeSubscription(ctx, sub.ProcessorID)
	})
	if err != nil {
		return err
	}

	sub.EndsAt = nil
	sub.UpdatedAt = s.clock()
	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "subscription resumed",
		slog.String("subscription_id", sub.ID.String()),
	)
	return nil
}

// SwapOption adjusts a plan swap.
type SwapOption func(*swapConfig)

type swapConfig struct {
	quantity *int64
}

// SwapQuantity overrides the quantity carried over by the swap.
func SwapQuantity(n int64) SwapOption {
	return func(c *swapConfig) { c.quantity = &n }
}

// Swap moves the subscription to a new registered plan in place. The
// processor prorates the remainder of the current period; trial and
// cancellation state are unchanged. Quantity is carried over unless
// SwapQuantity is given.
func (s *Service) Swap(ctx context.Context, sub *Subscription, newPlanID string, opts ...SwapOption) error {
	if _, err := s.plans.Get(ctx, newPlanID); err != nil {
		return err
	}

	cfg := swapConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	quantity := sub.Quantity
	if cfg.quantity != nil {
		quantity = *cfg.quantity
	}

	err := s.retry.call(ctx, func(ctx context.Context) error {
		return s.processor.SwapPlan(ctx, sub.ProcessorID, newPlanID, quantity)
	})
	if err != nil {
		return err
	}

	oldPlanID := sub.PlanID
	sub.PlanID = newPlanID
	sub.Quantity = quantity
	sub.UpdatedAt = s.clock()
	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "subscription plan swapped",
		slog.String("subscription_id", sub.ID.String()),
		slog.String("from_plan", oldPlanID),
		slog.String("to_plan", newPlanID),
	)
	return nil
}

// ApplyCoupon attaches a discount to an existing customer.
func (s *Service) ApplyCoupon(ctx context.Context, customer *Customer, code string) error {
	return s.retry.call(ctx, func(ctx context.Context) error {
		return s.processor.ApplyCoupon(ctx, customer.ProcessorID, code)
	})
}

// InvoiceFor bills the customer immediately for a single line item outside
// any subscription, in the service's default currency.
func (s *Service) InvoiceFor(ctx context.Context, customer *Customer, description string, amount int64) (*Invoice, error) {
	var invoice *Invoice
	err := s.retry.call(ctx, func(ctx context.Context) error {
		var callErr error
		invoice, callErr = s.processor.CreateOneOffInvoice(ctx, customer.ProcessorID, description, amount, s.currency)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// Refund reverses a settled charge.
func (s *Service) Refund(ctx context.Context, chargeRef string) (*Refund, error) {
	var refund *Refund
	err := s.retry.call(ctx, func(ctx context.Context) error {
		var callErr error
		refund, callErr = s.processor.Refund(ctx, chargeRef)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

// Invoices fetches the customer's billed documents from the processor. The
// projection is request-scoped and never cached locally.
func (s *Service) Invoices(ctx context.Context, customer *Customer) ([]*Invoice, error) {
	var invoices []*Invoice
	err := s.retry.call(ctx, func(ctx context.Context) error {
		var callErr error
		invoices, callErr = s.processor.FetchInvoices(ctx, customer.ProcessorID)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return invoices, nil
}
