package models

// DeliveryOutcome is the result of a private send, returned as data so
// callers branch on it instead of catching suppressed failures.
type DeliveryOutcome string

const (
	Delivered   DeliveryOutcome = "delivered"
	Unreachable DeliveryOutcome = "unreachable"
)

// DeletionOutcome is the result of a best-effort group message
// suppression. A failed deletion never affects the triggering request.
type DeletionOutcome string

const (
	Deleted           DeletionOutcome = "deleted"
	SuppressionFailed DeletionOutcome = "suppression_failed"
)
