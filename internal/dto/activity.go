package dto

// ActivityQuery holds activity log listing parameters.
type ActivityQuery struct {
	Type     string `form:"type"`
	Search   string `form:"search"`
	DateFrom string `form:"date_from"`
	DateTo   string `form:"date_to"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}
