package cashier_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/cashier/pkg/cashier"
)

func registeredCustomer() *cashier.Customer {
	return &cashier.Customer{
		ID:          uuid.New(),
		Email:       "jane@example.com",
		ProcessorID: "cus_123",
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	}
}

func TestSubscriptionBuilder_Create(t *testing.T) {
	t.Parallel()

	t.Run("applies plan default trial", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		customer := registeredCustomer()

		processor := &mockProcessor{}
		svc, stores := newTestService(processor)
		require.NoError(t, stores.Plans.Save(ctx, monthlyPlan("plan-trial", 7)))

		wantTrialEnd := testNow.AddDate(0, 0, 7)
		processor.On("CreateSubscription", mock.Anything, "cus_123", "plan-trial",
			mock.MatchedBy(func(opts cashier.SubscriptionOptions) bool {
				return opts.TrialEndsAt != nil && opts.TrialEndsAt.Equal(wantTrialEnd)
			}),
		).Return(&cashier.RemoteSubscription{ID: "sub_123"}, nil)

		sub, err := svc.NewSubscription(customer, "main", "plan-trial").Create(ctx, "tok_visa")
		require.NoError(t, err)

		assert.Equal(t, "sub_123", sub.ProcessorID)
		assert.Equal(t, "main", sub.Name)
		assert.Equal(t, int64(1), sub.Quantity)
		require.NotNil(t, sub.TrialEndsAt)
		assert.True(t, sub.TrialEndsAt.Equal(wantTrialEnd))
		assert.True(t, sub.OnTrialAt(testNow))

		stored, err := stores.Subscriptions.FindBySlot(ctx, customer.ID, "main")
		require.NoError(t, err)
		assert.Equal(t, sub.ID, stored.ID)

		processor.AssertExpectations(t)
	})

	t.Run("explicit trial days override plan default", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		customer := registeredCustomer()

		processor := &mockProcessor{}
		svc, stores := newTestService(processor)
		require.NoError(t, stores.Plans.Save(ctx, monthlyPlan("plan-trial", 7)))

		wantTrialEnd := testNow.AddDate(0, 0, 30)
		processor.On("CreateSubscription", mock.Anything, "cus_123", "plan-trial",
			mock.MatchedBy(func(opts cashier.SubscriptionOptions) bool {
				return opts.TrialEndsAt != nil && opts.TrialEndsAt.Equal(wantTrialEnd)
			}),
		).Return(&cashier.RemoteSubscription{ID: "sub_123"}, nil)

		sub, err := svc.NewSubscription(customer, "main", "plan-trial").
			TrialDays(30).
			Create(ctx, "tok_visa")
		require.NoError(t, err)
		assert.True(t, sub.TrialEndsAt.Equal(wantTrialEnd))

		processor.AssertExpectations(t)
	})

	t.Run("trial until preserves time of day", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		customer := registeredCustomer()

		processor := &mockProcessor{}
		svc, stores := newTestService(processor)
		require.NoError(t, stores.Plans.Save(ctx, monthlyPlan("plan-basic", 0)))

		until := time.Date(2026, time.April, 1, 17, 45, 30, 0, time.UTC)
		processor.On("CreateSubscription", mock.Anything, "cus_123", "plan-basic", mock.Anything).
			Return(&cashier.RemoteSubscription{ID: "sub_123"}, nil)

		sub, err := svc.NewSubscription(customer, "main", "plan-basic").
			TrialUntil(until).
			Create(ctx, "tok_visa")
		require.NoError(t, err)
		require.NotNil(t, sub.TrialEndsAt)
		assert.True(t, sub.TrialEndsAt.Equal(until))
	})

	t.Run("trial configuration is last writer wins", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		customer := registeredCustomer()

		processor := &mockProcessor{}
		svc, stores := newTestService(processor)
		require.NoError(t, stores.Plans.Save(ctx, monthlyPlan("plan-basic", 0)))

		until := testNow.AddDate(0, 1, 0)
		wantTrialEnd := testNow.AddDate(0, 0, 5)
		processor.On("CreateSubscription", mock.Anything, "cus_123", "plan-basic", mock.Anything).
			Return(&cashier.RemoteSubscription{ID: "sub_123"}, nil)

		sub, err := svc.NewSubscription(customer, "main", "plan-basic").
			TrialUntil(until).
			TrialDays(5).
			Create(ctx, "tok_visa")
		require.NoError(t, err)
		require.NotNil(t, sub.TrialEndsAt)
		assert.True(t, sub.TrialEndsAt.Equal(wantTrialEnd))
	})

	t.Run("skip trial suppresses plan default", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		customer := registeredCustomer()

		processor := &mockProcessor{}
		svc, stores := newTestService(processor)
		require.NoError(t, stores.Plans.Save(ctx, monthlyPlan("plan-trial", 7)))

		processor.On("CreateSubscription", mock.Anything, "cus_123", "plan-trial",
			mock.MatchedBy(func(opts cashier.SubscriptionOptions) bool {
				return opts.TrialEndsAt == nil && opts.SkipTrial
			}),
		).Return(&cashier.RemoteSubscription{ID: "sub_123"}, nil)

		sub, err := svc.NewSubscription(customer, "main", "plan-trial").
			SkipTrial().
			Create(ctx, "tok_visa")
		require.NoError(t, err)
		assert.Nil(t, sub.TrialEndsAt)
		assert.True(t, sub.RecurringAt(testNow))

		processor.AssertExpectations(t)
	})

	t.Run("passes anchor coupon and quantity through", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		customer := registeredCustomer()

		processor := &mockProcessor{}
		svc, stores := newTestService(processor)
		require.NoError(t, stores.Plans.Save(ctx, monthlyPlan("plan-basic", 0)))

		anchor := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
		processor.On("CreateSubscription", mock.Anything, "cus_123", "plan-basic",
			mock.MatchedBy(func(opts cashier.SubscriptionOptions) bool {
				return opts.BillingCycleAnchor != nil &&
					opts.BillingCycleAnchor.Equal(anchor) &&
					opts.Coupon == "WELCOME50" &&
					opts.Quantity == 3
			}),
		).Return(&cashier.RemoteSubscription{ID: "sub_123"}, nil)

		sub, err := svc.NewSubscription(customer, "main", "plan-basic").
			AnchorBillingCycleOn(anchor).
			WithCoupon("WELCOME50").
			Quantity(3).
			Create(ctx, "tok_visa")
		require.NoError(t, err)
		assert.Equal(t, int64(3), sub.Quantity)

		processor.AssertExpectations(t)
	})

	t.Run("rejects missing payment token before any remote call", func(t *testing.T) {
		t.Parallel()
		processor := &mockProcessor{}
		svc, _ := newTestService(processor)

		_, err := svc.NewSubscription(registeredCustomer(), "main", "plan-basic").Create(context.Background(), "")
		assert.ErrorIs(t, err, cashier.ErrMissingPaymentToken)
		processor.AssertNotCalled(t, "CreateSubscription")
	})

	t.Run("rejects negative trial days", func(t *testing.T) {
		t.Parallel()
		processor := &mockProcessor{}
		svc, _ := newTestService(processor)

		_, err := svc.NewSubscription(registeredCustomer(), "main", "plan-basic").
			TrialDays(-1).
			Create(context.Background(), "tok_visa")
		assert.ErrorIs(t, err, cashier.ErrNegativeTrialDays)
		processor.AssertNotCalled(t, "CreateSubscription")
	})

	t.Run("rejects unknown plan", func(t *testing.T) {
		t.Parallel()
		processor := &mockProcessor{}
		svc, _ := newTestService(processor)

		_, err := svc.NewSubscription(registeredCustomer(), "main", "plan-missing").Create(context.Background(), "tok_visa")
		assert.ErrorIs(t, err, cashier.ErrPlanNotFound)
		processor.AssertNotCalled(t, "CreateSubscription")
	})

	t.Run("rejects duplicate active slot", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		customer := registeredCustomer()

		processor := &mockProcessor{}
		svc, stores := newTestService(processor)
		require.NoError(t, stores.Plans.Save(ctx, monthlyPlan("plan-basic", 0)))
		require.NoError(t, stores.Subscriptions.Save(ctx, &cashier.Subscription{
			ID:          uuid.New(),
			CustomerID:  customer.ID,
			Name:        "main",
			ProcessorID: "sub_existing",
			PlanID:      "plan-basic",
			Quantity:    1,
		}))

		_, err := svc.NewSubscription(customer, "main", "plan-basic").Create(ctx, "tok_visa")
		assert.ErrorIs(t, err, cashier.ErrDuplicateSlot)
		processor.AssertNotCalled(t, "CreateSubscription")
	})

	t.Run("reusing a slot supersedes the ended subscription", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		customer := registeredCustomer()

		processor := &mockProcessor{}
		svc, stores := newTestService(processor)
		require.NoError(t, stores.Plans.Save(ctx, monthlyPlan("plan-basic", 0)))
		require.NoError(t, stores.Subscriptions.Save(ctx, &cashier.Subscription{
			ID:          uuid.New(),
			CustomerID:  customer.ID,
			Name:        "main",
			ProcessorID: "sub_old",
			PlanID:      "plan-basic",
			Quantity:    1,
			EndsAt:      timePtr(testNow.AddDate(0, 0, -5)),
		}))

		processor.On("CreateSubscription", mock.Anything, "cus_123", "plan-basic", mock.Anything).
			Return(&cashier.RemoteSubscription{ID: "sub_new"}, nil)

		sub, err := svc.NewSubscription(customer, "main", "plan-basic").Create(ctx, "tok_visa")
		require.NoError(t, err)
		assert.Equal(t, "sub_new", sub.ProcessorID)

		// The slot holds exactly the new row; the ended predecessor is gone.
		all, err := stores.Subscriptions.ListByCustomer(ctx, customer.ID)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, sub.ID, all[0].ID)

		current, err := stores.Subscriptions.FindBySlot(ctx, customer.ID, "main")
		require.NoError(t, err)
		assert.Equal(t, "sub_new", current.ProcessorID)
	})

	t.Run("duplicate check honors the injected clock", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		customer := registeredCustomer()

		processor := &mockProcessor{}
		svc, stores := newTestService(processor)
		require.NoError(t, stores.Plans.Save(ctx, monthlyPlan("plan-basic", 0)))

		// Grace period still open at the injected instant, regardless of the
		// wall clock the test happens to run under.
		require.NoError(t, stores.Subscriptions.Save(ctx, &cashier.Subscription{
			ID:          uuid.New(),
			CustomerID:  customer.ID,
			Name:        "main",
			ProcessorID: "sub_old",
			PlanID:      "plan-basic",
			Quantity:    1,
			EndsAt:      timePtr(testNow.Add(24 * time.Hour)),
		}))

		_, err := svc.NewSubscription(customer, "main", "plan-basic").Create(ctx, "tok_visa")
		assert.ErrorIs(t, err, cashier.ErrDuplicateSlot)
		processor.AssertNotCalled(t, "CreateSubscription")
	})

	t.Run("processor decline persists nothing", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		customer := registeredCustomer()

		processor := &mockProcessor{}
		svc, stores := newTestService(processor)
		require.NoError(t, stores.Plans.Save(ctx, monthlyPlan("plan-basic", 0)))

		processor.On("CreateSubscription", mock.Anything, "cus_123", "plan-basic", mock.Anything).
			Return(nil, errors.Join(cashier.ErrProcessorRejected, errors.New("card declined")))

		_, err := svc.NewSubscription(customer, "main", "plan-basic").Create(ctx, "tok_visa")
		assert.ErrorIs(t, err, cashier.ErrProcessorRejected)

		_, err = stores.Subscriptions.FindBySlot(ctx, customer.ID, "main")
		assert.ErrorIs(t, err, cashier.ErrSubscriptionNotFound)
	})

	t.Run("registers customer lazily on first billing contact", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		customer := &cashier.Customer{
			ID:    uuid.New(),
			Email: "jane@example.com",
			Name:  "Jane",
		}

		processor := &mockProcessor{}
		svc, stores := newTestService(processor)
		require.NoError(t, stores.Plans.Save(ctx, monthlyPlan("plan-basic", 0)))

		processor.On("CreateCustomer", mock.Anything, "jane@example.com", "Jane", "tok_visa").
			Return(&cashier.CustomerRef{ID: "cus_new", CardBrand: "Visa", CardLastFour: "4242"}, nil)
		processor.On("CreateSubscription", mock.Anything, "cus_new", "plan-basic", mock.Anything).
			Return(&cashier.RemoteSubscription{ID: "sub_123"}, nil)

		_, err := svc.NewSubscription(customer, "main", "plan-basic").Create(ctx, "tok_visa")
		require.NoError(t, err)

		assert.Equal(t, "cus_new", customer.ProcessorID)
		assert.Equal(t, "Visa", customer.CardBrand)
		assert.Equal(t, "4242", customer.CardLastFour)

		stored, err := stores.Customers.Get(ctx, customer.ID)
		require.NoError(t, err)
		assert.Equal(t, "cus_new", stored.ProcessorID)

		processor.AssertExpectations(t)
	})
}
