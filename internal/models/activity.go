package models

import "time"

// Activity type tags recorded in the append-only activity log.
const (
	ActivitySubmitted  = "submitted"
	ActivityUpdated    = "updated"
	ActivityDeleted    = "deleted"
	ActivityApproved   = "approved"
	ActivityRejected   = "rejected"
	ActivityArchived   = "archived"
	ActivityUnarchived = "unarchived"
	ActivityLogin      = "login"
	ActivityLogout     = "logout"
	ActivityUserChange = "user_change"
)

// ActivityLog is an append-only record of any action taken on or by a
// user/sample. Rows are never updated or deleted; sample deletion leaves its
// activity history behind.
type ActivityLog struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	SampleID     *string   `db:"sample_id" json:"sample_id,omitempty"`
	ActivityType string    `db:"activity_type" json:"activity_type"`
	Description  string    `db:"description" json:"description"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// ActivityRow enriches a log entry with the acting user's name.
type ActivityRow struct {
	ActivityLog
	UserName string `db:"user_name" json:"user_name"`
}

// ActivityFilter narrows activity log listings.
type ActivityFilter struct {
	UserID       string
	ActivityType string
	Search       string
	DateFrom     *time.Time
	DateTo       *time.Time
	Limit        int
	Offset       int
}

// ApprovalAction is a verifier decision outcome.
type ApprovalAction string

const (
	ApprovalActionApproved ApprovalAction = "approved"
	ApprovalActionRejected ApprovalAction = "rejected"
)

// ApprovalLog is the append-only verification decision trail, distinct from
// the general activity log.
type ApprovalLog struct {
	ID        string         `db:"id" json:"id"`
	UserID    string         `db:"user_id" json:"user_id"`
	SampleID  string         `db:"sample_id" json:"sample_id"`
	Action    ApprovalAction `db:"action" json:"action"`
	Remarks   string         `db:"remarks" json:"remarks"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// ApprovalRow enriches an approval entry with the verifier's name.
type ApprovalRow struct {
	ApprovalLog
	UserName string `db:"user_name" json:"user_name"`
}
