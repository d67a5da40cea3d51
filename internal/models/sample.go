package models

import "time"

// SampleStatus tracks the verification axis of a rock sample.
type SampleStatus string

const (
	SampleStatusPending  SampleStatus = "PENDING"
	SampleStatusVerified SampleStatus = "VERIFIED"
	SampleStatusRejected SampleStatus = "REJECTED"
)

// RockSample is a submitted rock specimen record. Status transitions happen
// only inside SampleRepository transactions; VERIFIED and REJECTED rows always
// carry a non-nil VerifiedBy.
type RockSample struct {
	ID           string       `db:"id" json:"id"`
	UserID       string       `db:"user_id" json:"user_id"`
	RockIndex    string       `db:"rock_index" json:"rock_index"`
	RockID       string       `db:"rock_id" json:"rock_id"`
	RockType     string       `db:"rock_type" json:"rock_type"`
	Description  string       `db:"description" json:"description"`
	Formation    string       `db:"formation" json:"formation"`
	OutcropID    string       `db:"outcrop_id" json:"outcrop_id"`
	LocationName string       `db:"location_name" json:"location_name"`
	Barangay     string       `db:"barangay" json:"barangay"`
	Province     string       `db:"province" json:"province"`
	Latitude     *float64     `db:"latitude" json:"latitude,omitempty"`
	Longitude    *float64     `db:"longitude" json:"longitude,omitempty"`
	Status       SampleStatus `db:"status" json:"status"`
	VerifiedBy   *string      `db:"verified_by" json:"verified_by,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// SampleRow is a list view row enriched with submitter/verifier names and
// image presence flags.
type SampleRow struct {
	RockSample
	SubmittedByName  string  `db:"submitted_by_name" json:"submitted_by_name"`
	VerifiedByName   *string `db:"verified_by_name" json:"verified_by_name,omitempty"`
	SchoolID         *string `db:"school_id" json:"school_id,omitempty"`
	HasSpecimenImage bool    `db:"-" json:"has_specimen_image"`
	HasOutcropImage  bool    `db:"-" json:"has_outcrop_image"`
}

// SampleFilter captures the role-scope precondition plus the user-selected
// filters, AND-combined by the repository.
type SampleFilter struct {
	// Scope precondition (set by the authorization gate, not by callers).
	OwnerID         string
	OwnerOrVerified string
	Status          SampleStatus
	ExcludeArchived bool
	OldestFirst     bool

	// User-selected filters.
	Search   string
	RockType string
	Location string
	DateFrom *time.Time
	DateTo   *time.Time

	Limit  int
	Offset int
}

// SampleStats summarises a user's (or the whole registry's) submissions.
type SampleStats struct {
	Total           int `db:"total" json:"total"`
	Verified        int `db:"verified" json:"verified"`
	Pending         int `db:"pending" json:"pending"`
	Rejected        int `db:"rejected" json:"rejected"`
	UniqueRockTypes int `db:"unique_rock_types" json:"unique_rock_types"`
	UniqueLocations int `db:"unique_locations" json:"unique_locations"`
}

// MapPoint is a location-bearing sample projection for map consumers.
type MapPoint struct {
	SampleID     string       `db:"id" json:"sample_id"`
	RockID       string       `db:"rock_id" json:"rock_id"`
	RockType     string       `db:"rock_type" json:"rock_type"`
	LocationName string       `db:"location_name" json:"location_name"`
	Latitude     float64      `db:"latitude" json:"latitude"`
	Longitude    float64      `db:"longitude" json:"longitude"`
	Status       SampleStatus `db:"status" json:"status"`
}
