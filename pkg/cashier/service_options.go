package cashier

import "log/slog"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// WithClock replaces the time source. Tests inject a fixed clock to make
// timestamp-derived state deterministic.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithRetryPolicy overrides how transient processor failures are retried.
func WithRetryPolicy(policy RetryPolicy) ServiceOption {
	return func(s *Service) {
		s.retry = policy
	}
}

// WithDefaultCurrency sets the currency used for one-off invoices and plans
// registered without an explicit currency. Defaults to USD.
func WithDefaultCurrency(code string) ServiceOption {
	return func(s *Service) {
		if code != "" {
			s.currency = code
		}
	}
}

// WithEventDeduper enables duplicate suppression for webhook events. Without
// a deduper the reconciler relies on transition idempotence alone, which is
// correct but performs redundant lookups on redelivery.
func WithEventDeduper(deduper EventDeduper) ServiceOption {
	return func(s *Service) {
		s.deduper = deduper
	}
}
