package cashier_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/cashier/pkg/cashier"
)

// testNow is the fixed reconciliation instant injected into services under
// test so timestamp-derived state is deterministic.
var testNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func timePtr(t time.Time) *time.Time { return &t }

// fastRetry keeps retried tests quick without changing retry semantics.
func fastRetry() cashier.RetryPolicy {
	return cashier.RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
	}
}

// Mock implementations
type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) CreateCustomer(ctx context.Context, email, name, paymentToken string) (*cashier.CustomerRef, error) {
	args := m.Called(ctx, email, name, paymentToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cashier.CustomerRef), args.Error(1)
}

func (m *mockProcessor) CreateSubscription(ctx context.Context, customerRef, planID string, opts cashier.SubscriptionOptions) (*cashier.RemoteSubscription, error) {
	args := m.Called(ctx, customerRef, planID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cashier.RemoteSubscription), args.Error(1)
}

func (m *mockProcessor) CancelSubscription(ctx context.Context, remoteID string, immediate bool) (time.Time, error) {
	args := m.Called(ctx, remoteID, immediate)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *mockProcessor) ResumeSubscription(ctx context.Context, remoteID string) error {
	args := m.Called(ctx, remoteID)
	return args.Error(0)
}

func (m *mockProcessor) SwapPlan(ctx context.Context, remoteID, newPlanID string, quantity int64) error {
	args := m.Called(ctx, remoteID, newPlanID, quantity)
	return args.Error(0)
}

func (m *mockProcessor) RegisterPlan(ctx context.Context, plan cashier.Plan) (string, error) {
	args := m.Called(ctx, plan)
	return args.String(0), args.Error(1)
}

func (m *mockProcessor) ApplyCoupon(ctx context.Context, customerRef, code string) error {
	args := m.Called(ctx, customerRef, code)
	return args.Error(0)
}

func (m *mockProcessor) CreateOneOffInvoice(ctx context.Context, customerRef, description string, amount int64, currency string) (*cashier.Invoice, error) {
	args := m.Called(ctx, customerRef, description, amount, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cashier.Invoice), args.Error(1)
}

func (m *mockProcessor) Refund(ctx context.Context, chargeRef string) (*cashier.Refund, error) {
	args := m.Called(ctx, chargeRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cashier.Refund), args.Error(1)
}

func (m *mockProcessor) FetchInvoices(ctx context.Context, customerRef string) ([]*cashier.Invoice, error) {
	args := m.Called(ctx, customerRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*cashier.Invoice), args.Error(1)
}

type mockDeduper struct {
	mock.Mock
}

func (m *mockDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

// Test helpers
func newTestService(processor cashier.Processor, opts ...cashier.ServiceOption) (*cashier.Service, *cashier.InMemoryStores) {
	stores := cashier.NewInMemoryStores()
	opts = append([]cashier.ServiceOption{
		cashier.WithClock(fixedClock),
		cashier.WithRetryPolicy(fastRetry()),
	}, opts...)
	svc := cashier.NewService(processor, stores.Customers, stores.Subscriptions, stores.Plans, opts...)
	return svc, stores
}

func monthlyPlan(id string, trialDays int) *cashier.Plan {
	return &cashier.Plan{
		ID:            id,
		Name:          "Monthly " + id,
		Amount:        1000,
		Currency:      "USD",
		Interval:      cashier.IntervalMonth,
		IntervalCount: 1,
		TrialDays:     trialDays,
	}
}
