package dto

import "time"

// ExportQuery selects format and reuses the catalog filters.
type ExportQuery struct {
	Format   string `form:"format"`
	Scope    string `form:"scope"`
	Search   string `form:"search"`
	RockType string `form:"rock_type"`
	Location string `form:"location"`
	DateFrom string `form:"date_from"`
	DateTo   string `form:"date_to"`
	Status   string `form:"status"`
}

// ExportResponse points the caller at the rendered file.
type ExportResponse struct {
	ExportID  string    `json:"export_id"`
	Format    string    `json:"format"`
	FileName  string    `json:"file_name"`
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	RowCount  int       `json:"row_count"`
	ExpiresAt time.Time `json:"expires_at"`
}
