package cashier

import (
	"context"

	"github.com/google/uuid"
)

// CustomerStore persists customers. CRUD only; no lifecycle logic lives here.
type CustomerStore interface {
	// Get retrieves a customer by local ID.
	// Returns ErrCustomerNotFound if no customer exists.
	Get(ctx context.Context, id uuid.UUID) (*Customer, error)

	// Save creates or updates a customer.
	Save(ctx context.Context, customer *Customer) error
}

// SubscriptionStore persists subscriptions. Implementations must enforce the
// optimistic version check on Save: a write whose Version does not match the
// stored row fails with ErrConcurrentUpdate, and a successful write
// increments Version. The (CustomerID, Name) pair is a natural key:
// inserting a second row into an occupied slot fails with ErrDuplicateSlot.
type SubscriptionStore interface {
	// Get retrieves a subscription by local ID.
	// Returns ErrSubscriptionNotFound if no subscription exists.
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// FindBySlot retrieves the customer's subscription in the named slot.
	FindBySlot(ctx context.Context, customerID uuid.UUID, name string) (*Subscription, error)

	// FindByProcessorID retrieves a subscription by the processor's
	// reference. Webhook events identify rows this way.
	FindByProcessorID(ctx context.Context, processorID string) (*Subscription, error)

	// ListByCustomer returns all of the customer's subscriptions.
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*Subscription, error)

	// Save creates or updates a subscription under the version check.
	Save(ctx context.Context, subscription *Subscription) error

	// Delete removes a subscription row. Used when a new subscription
	// supersedes an ended predecessor in the same slot.
	Delete(ctx context.Context, id uuid.UUID) error
}

// PlanStore persists registered plan definitions.
type PlanStore interface {
	// Get retrieves a plan by ID.
	// Returns ErrPlanNotFound if the plan was never registered.
	Get(ctx context.Context, id string) (*Plan, error)

	// Save records a registered plan.
	Save(ctx context.Context, plan *Plan) error
}
