package cashier

import "time"

// Plan is a priced, recurring billing definition registered with the payment
// processor. Plans are registered once at setup time and are immutable from
// this package's perspective; subscriptions reference them by ID only.
type Plan struct {
	ID            string
	Name          string
	Amount        int64  // minor currency units
	Currency      string // ISO 4217 code
	Interval      BillingInterval
	IntervalCount int64 // billing frequency, e.g. every 1 month
	TrialDays     int   // default trial granted to new subscriptions
	ExpiryCount   int64 // max billing cycles, 0 for unlimited
}

// BillingInterval is the recurrence unit of a plan.
type BillingInterval string

const (
	IntervalDay   BillingInterval = "day"
	IntervalWeek  BillingInterval = "week"
	IntervalMonth BillingInterval = "month"
	IntervalYear  BillingInterval = "year"
)

// TrialEndsAt calculates when the plan's default trial ends for a
// subscription started at the given time. Returns startedAt unchanged if the
// plan has no trial.
func (p Plan) TrialEndsAt(startedAt time.Time) time.Time {
	if p.TrialDays <= 0 {
		return startedAt
	}
	return startedAt.AddDate(0, 0, p.TrialDays).UTC()
}

// HasTrial reports whether the plan grants a default trial period.
func (p Plan) HasTrial() bool {
	return p.TrialDays > 0
}
