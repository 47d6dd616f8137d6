package cashier

import "errors"

var (
	ErrProcessorRejected    = errors.New("payment processor rejected the request")
	ErrProcessorUnavailable = errors.New("payment processor unavailable")
	ErrTransientNetwork     = errors.New("transient network failure")

	ErrDuplicateSlot          = errors.New("customer already has a subscription in this slot")
	ErrInvalidStateTransition = errors.New("invalid subscription state transition")
	ErrPlanNotFound           = errors.New("billing plan not found")

	ErrMalformedEvent = errors.New("malformed webhook event payload")

	ErrCustomerNotFound     = errors.New("customer not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrConcurrentUpdate     = errors.New("subscription modified concurrently")

	ErrMissingPaymentToken = errors.New("payment token is required")
	ErrNegativeTrialDays   = errors.New("trial days must not be negative")
)
