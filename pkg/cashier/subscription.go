package cashier

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is the lifecycle state machine entity. Its state is never
// stored as an explicit status field: every predicate below derives it from
// TrialEndsAt and EndsAt compared against the current time, which keeps the
// timestamps that actually govern billing as the single source of truth.
//
// The two timestamps span orthogonal dimensions: TrialEndsAt in the future
// means "on trial" regardless of cancellation, and a non-nil EndsAt means
// "cancelled" — in the future it is a grace period, in the past the
// subscription has ended.
type Subscription struct {
	ID          uuid.UUID
	CustomerID  uuid.UUID
	Name        string // slot name, unique per customer
	ProcessorID string // processor's subscription reference
	PlanID      string
	Quantity    int64

	TrialEndsAt *time.Time
	EndsAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	// Version is the optimistic concurrency token. Webhook-driven and
	// user-driven transitions can race across process boundaries, so stores
	// reject writes whose version no longer matches the stored row.
	Version int64
}

// Active reports whether the subscription still grants access: on trial,
// never cancelled, or cancelled but inside the grace period.
func (s *Subscription) Active() bool { return s.ActiveAt(time.Now().UTC()) }

// ActiveAt is the fixed-time variant of Active.
func (s *Subscription) ActiveAt(now time.Time) bool {
	return s.OnTrialAt(now) || s.EndsAt == nil || s.EndsAt.After(now)
}

// Cancelled reports whether a cancellation (scheduled or immediate) or a
// natural expiry has been recorded.
func (s *Subscription) Cancelled() bool {
	return s.EndsAt != nil
}

// OnGracePeriod reports whether the subscription is cancelled but access
// remains until the already-paid period elapses.
func (s *Subscription) OnGracePeriod() bool { return s.OnGracePeriodAt(time.Now().UTC()) }

// OnGracePeriodAt is the fixed-time variant of OnGracePeriod.
func (s *Subscription) OnGracePeriodAt(now time.Time) bool {
	return s.EndsAt != nil && s.EndsAt.After(now)
}

// Recurring reports whether the subscription will auto-renew without further
// intervention: not cancelled and past any trial.
func (s *Subscription) Recurring() bool { return s.RecurringAt(time.Now().UTC()) }

// RecurringAt is the fixed-time variant of Recurring.
func (s *Subscription) RecurringAt(now time.Time) bool {
	return !s.Cancelled() && !s.OnTrialAt(now)
}

// OnTrial reports whether the subscription-level trial window is open.
func (s *Subscription) OnTrial() bool { return s.OnTrialAt(time.Now().UTC()) }

// OnTrialAt is the fixed-time variant of OnTrial.
func (s *Subscription) OnTrialAt(now time.Time) bool {
	return s.TrialEndsAt != nil && s.TrialEndsAt.After(now)
}

// Ended reports whether the subscription was cancelled and the grace period
// has elapsed.
func (s *Subscription) Ended() bool { return s.EndedAt(time.Now().UTC()) }

// EndedAt is the fixed-time variant of Ended.
func (s *Subscription) EndedAt(now time.Time) bool {
	return s.Cancelled() && !s.EndsAt.After(now)
}
