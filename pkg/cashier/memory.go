package cashier

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// InMemoryStores bundles map-backed implementations of all three stores.
// Intended for tests and local development; production deployments use the
// Postgres stores.
type InMemoryStores struct {
	Customers     *InMemoryCustomerStore
	Subscriptions *InMemorySubscriptionStore
	Plans         *InMemoryPlanStore
}

// NewInMemoryStores creates an empty in-memory store set.
func NewInMemoryStores() *InMemoryStores {
	return &InMemoryStores{
		Customers:     &InMemoryCustomerStore{customers: make(map[uuid.UUID]Customer)},
		Subscriptions: &InMemorySubscriptionStore{subscriptions: make(map[uuid.UUID]Subscription)},
		Plans:         &InMemoryPlanStore{plans: make(map[string]Plan)},
	}
}

// InMemoryCustomerStore is a map-backed CustomerStore safe for concurrent use.
type InMemoryCustomerStore struct {
	mu        sync.RWMutex
	customers map[uuid.UUID]Customer
}

func (s *InMemoryCustomerStore) Get(_ context.Context, id uuid.UUID) (*Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	return &c, nil
}

func (s *InMemoryCustomerStore) Save(_ context.Context, customer *Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.customers[customer.ID] = *customer
	return nil
}

// InMemorySubscriptionStore is a map-backed SubscriptionStore enforcing the
// same optimistic version contract as the Postgres implementation.
type InMemorySubscriptionStore struct {
	mu            sync.RWMutex
	subscriptions map[uuid.UUID]Subscription
}

func (s *InMemorySubscriptionStore) Get(_ context.Context, id uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return &sub, nil
}

func (s *InMemorySubscriptionStore) FindBySlot(_ context.Context, customerID uuid.UUID, name string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscriptions {
		if sub.CustomerID == customerID && sub.Name == name {
			return &sub, nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *InMemorySubscriptionStore) FindByProcessorID(_ context.Context, processorID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscriptions {
		if sub.ProcessorID == processorID {
			return &sub, nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *InMemorySubscriptionStore) ListByCustomer(_ context.Context, customerID uuid.UUID) ([]*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Subscription
	for _, sub := range s.subscriptions {
		if sub.CustomerID == customerID {
			copied := sub
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *InMemorySubscriptionStore) Save(_ context.Context, subscription *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.subscriptions[subscription.ID]; ok {
		if stored.Version != subscription.Version {
			return ErrConcurrentUpdate
		}
	} else {
		for _, other := range s.subscriptions {
			if other.CustomerID == subscription.CustomerID && other.Name == subscription.Name {
				return ErrDuplicateSlot
			}
		}
	}
	subscription.Version++
	s.subscriptions[subscription.ID] = *subscription
	return nil
}

func (s *InMemorySubscriptionStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.subscriptions, id)
	return nil
}

// InMemoryPlanStore is a map-backed PlanStore safe for concurrent use.
type InMemoryPlanStore struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

func (s *InMemoryPlanStore) Get(_ context.Context, id string) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return &p, nil
}

func (s *InMemoryPlanStore) Save(_ context.Context, plan *Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.plans[plan.ID] = *plan
	return nil
}
