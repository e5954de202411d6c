package types

// Status is a type for the lifecycle status of a persisted resource.
// This tracks whether a row should be included in queries and is distinct
// from domain statuses such as SubscriptionStatus or InvoiceStatus.
type Status string

const (
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusDeleted   Status = "deleted"
)
