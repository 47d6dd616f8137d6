package cashier

import (
	"time"

	"github.com/google/uuid"
)

// Customer is the owning side of billing: it holds the processor-assigned
// identifier, an optional stored payment method summary, and zero or more
// slot-named subscriptions.
type Customer struct {
	ID          uuid.UUID
	Email       string
	Name        string
	ProcessorID string // processor's customer reference (empty until registered)

	// Stored payment method summary, set when the customer is registered
	// with a payment token.
	CardBrand    string
	CardLastFour string

	// TrialEndsAt is the customer-level "generic" trial, granted before any
	// paid plan is chosen. Independent of any subscription's trial.
	TrialEndsAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OnGenericTrial reports whether the customer-level trial window is open.
func (c *Customer) OnGenericTrial() bool {
	return c.OnGenericTrialAt(time.Now().UTC())
}

// OnGenericTrialAt is the fixed-time variant of OnGenericTrial.
func (c *Customer) OnGenericTrialAt(now time.Time) bool {
	return c.TrialEndsAt != nil && c.TrialEndsAt.After(now)
}
