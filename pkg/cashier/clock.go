package cashier

import "time"

// Clock supplies the current time. Lifecycle state is derived entirely from
// stored timestamps compared against "now", so injecting a fixed clock makes
// every state transition deterministic in tests.
type Clock func() time.Time

// SystemClock returns the current UTC time.
func SystemClock() time.Time {
	return time.Now().UTC()
}
