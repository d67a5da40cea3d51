package models

import "time"

// ImageType distinguishes the two photo slots a sample may carry.
type ImageType string

const (
	ImageTypeSpecimen ImageType = "rock_specimen"
	ImageTypeOutcrop  ImageType = "outcrop"
)

// ValidImageType reports whether the given type names a known image slot.
func ValidImageType(t ImageType) bool {
	return t == ImageTypeSpecimen || t == ImageTypeOutcrop
}

// Image stores a sample photo blob. At most one row exists per
// (sample, image_type); replacement is delete-then-insert inside the owning
// lifecycle transaction.
type Image struct {
	ID        string    `db:"id" json:"id"`
	SampleID  string    `db:"sample_id" json:"sample_id"`
	ImageType ImageType `db:"image_type" json:"image_type"`
	Data      []byte    `db:"data" json:"-"`
	FileName  string    `db:"file_name" json:"file_name"`
	FileSize  int64     `db:"file_size" json:"file_size"`
	MimeType  string    `db:"mime_type" json:"mime_type"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ImageMeta is the blob-free projection used in detail views.
type ImageMeta struct {
	ID        string    `db:"id" json:"id"`
	SampleID  string    `db:"sample_id" json:"sample_id"`
	ImageType ImageType `db:"image_type" json:"image_type"`
	FileName  string    `db:"file_name" json:"file_name"`
	FileSize  int64     `db:"file_size" json:"file_size"`
	MimeType  string    `db:"mime_type" json:"mime_type"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
