package models

import "time"

// Archive is a soft-delete side record. Its presence excludes a sample from
// default active list views without touching the sample's status column.
type Archive struct {
	ID         string    `db:"id" json:"id"`
	SampleID   string    `db:"sample_id" json:"sample_id"`
	ArchivedBy string    `db:"archived_by" json:"archived_by"`
	Reason     string    `db:"reason" json:"reason"`
	Status     string    `db:"status" json:"status"`
	ArchivedAt time.Time `db:"archived_at" json:"archived_at"`
}

// ArchiveRow enriches an archive record with sample and user context.
type ArchiveRow struct {
	Archive
	RockID         string `db:"rock_id" json:"rock_id"`
	RockType       string `db:"rock_type" json:"rock_type"`
	LocationName   string `db:"location_name" json:"location_name"`
	ArchivedByName string `db:"archived_by_name" json:"archived_by_name"`
	SubmitterName  string `db:"submitter_name" json:"submitter_name"`
}

// ArchiveFilter narrows archive listings.
type ArchiveFilter struct {
	ArchivedBy string
	Limit      int
	Offset     int
}
