package model

import "time"

// ReviewStatus is the lifecycle state of a manual review item.
type ReviewStatus string

const (
	ReviewPending    ReviewStatus = "pending"
	ReviewApproved   ReviewStatus = "approved"
	ReviewOverridden ReviewStatus = "overridden"
	ReviewRejected   ReviewStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s ReviewStatus) Terminal() bool {
	return s == ReviewApproved || s == ReviewOverridden || s == ReviewRejected
}

// ManualReviewItem is a low-confidence suggestion awaiting a human decision.
type ManualReviewItem struct {
	ID             int64        `json:"id"`
	ProviderID     int64        `json:"provider_id"`
	FieldName      FieldName    `json:"field_name"`
	CurrentValue   string       `json:"current_value"`
	SuggestedValue string       `json:"suggested_value"`
	Reason         string       `json:"reason"`
	Status         ReviewStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	ResolvedAt     *time.Time   `json:"resolved_at,omitempty"`
}

// ReviewAction is a human decision on a review item.
type ReviewAction string

const (
	ReviewActionApprove  ReviewAction = "approve"
	ReviewActionOverride ReviewAction = "override"
	ReviewActionReject   ReviewAction = "reject"
)

// AuditAction names the kind of change an audit entry records.
type AuditAction string

const (
	AuditAutoUpdate     AuditAction = "auto_update"
	AuditManualApprove  AuditAction = "manual_approve"
	AuditManualOverride AuditAction = "manual_override"
	AuditManualReject   AuditAction = "manual_reject"
)

// Actors recorded on audit entries.
const (
	ActorSystem        = "system"
	ActorHumanReviewer = "human_reviewer"
)

// AuditEntry is an immutable record of a field change or review decision.
type AuditEntry struct {
	ID         int64       `json:"id"`
	ProviderID int64       `json:"provider_id"`
	FieldName  FieldName   `json:"field_name"`
	OldValue   string      `json:"old_value"`
	NewValue   string      `json:"new_value"`
	Action     AuditAction `json:"action"`
	Actor      string      `json:"actor"`
	CreatedAt  time.Time   `json:"created_at"`
}

// ReviewResolution is the fully-determined effect of resolving a review item.
// When Apply is false the provider is left untouched.
type ReviewResolution struct {
	ItemID     int64        `json:"item_id"`
	ProviderID int64        `json:"provider_id"`
	Field      FieldName    `json:"field"`
	Status     ReviewStatus `json:"status"`
	Apply      bool         `json:"apply"`
	Audit      AuditEntry   `json:"audit"`
	At         time.Time    `json:"at"`
}
