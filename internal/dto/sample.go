package dto

import "github.com/litholog/rock-registry-api/internal/models"

// ImageUpload carries one decoded multipart image slot.
type ImageUpload struct {
	Type     models.ImageType
	FileName string
	MimeType string
	Data     []byte
}

// CreateSampleRequest is the submit payload. Latitude/longitude are optional
// but range-checked when present.
type CreateSampleRequest struct {
	RockIndex    string   `form:"rock_index" json:"rock_index"`
	RockID       string   `form:"rock_id" json:"rock_id" validate:"required"`
	RockType     string   `form:"rock_type" json:"rock_type" validate:"required"`
	Description  string   `form:"description" json:"description"`
	Formation    string   `form:"formation" json:"formation"`
	OutcropID    string   `form:"outcrop_id" json:"outcrop_id"`
	LocationName string   `form:"location_name" json:"location_name" validate:"required"`
	Barangay     string   `form:"barangay" json:"barangay"`
	Province     string   `form:"province" json:"province"`
	Latitude     *float64 `form:"latitude" json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude    *float64 `form:"longitude" json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`

	Images []ImageUpload `form:"-" json:"-"`
}

// UpdateSampleRequest is the edit payload; image slots are replaced only when
// provided.
type UpdateSampleRequest struct {
	RockIndex    string   `form:"rock_index" json:"rock_index"`
	RockID       string   `form:"rock_id" json:"rock_id" validate:"required"`
	RockType     string   `form:"rock_type" json:"rock_type" validate:"required"`
	Description  string   `form:"description" json:"description"`
	Formation    string   `form:"formation" json:"formation"`
	OutcropID    string   `form:"outcrop_id" json:"outcrop_id"`
	LocationName string   `form:"location_name" json:"location_name" validate:"required"`
	Barangay     string   `form:"barangay" json:"barangay"`
	Province     string   `form:"province" json:"province"`
	Latitude     *float64 `form:"latitude" json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude    *float64 `form:"longitude" json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`

	Images []ImageUpload `form:"-" json:"-"`
}

// DecideRequest carries a verifier decision.
type DecideRequest struct {
	Action  string `json:"action" validate:"required,oneof=approve reject"`
	Remarks string `json:"remarks"`
}

// ArchiveRequest carries the archive reason.
type ArchiveRequest struct {
	Reason string `json:"reason"`
}

// SampleQuery holds list query parameters before scope resolution.
type SampleQuery struct {
	Scope           string `form:"scope"`
	Search          string `form:"search"`
	RockType        string `form:"rock_type"`
	Location        string `form:"location"`
	DateFrom        string `form:"date_from"`
	DateTo          string `form:"date_to"`
	Status          string `form:"status"`
	IncludeArchived bool   `form:"include_archived"`
	Page            int    `form:"page"`
	PageSize        int    `form:"page_size"`
}

// SampleDetail bundles a sample with its images and decision history.
type SampleDetail struct {
	Sample    models.SampleRow     `json:"sample"`
	Images    []models.ImageMeta   `json:"images"`
	Approvals []models.ApprovalRow `json:"approvals"`
}
