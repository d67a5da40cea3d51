package dto

import "github.com/litholog/rock-registry-api/internal/models"

// CreateUserRequest is the admin user-creation payload.
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	Password string          `json:"password" validate:"required,min=6"`
	FullName string          `json:"full_name" validate:"required"`
	Role     models.UserRole `json:"role" validate:"required,oneof=STUDENT PERSONNEL ADMIN"`
	SchoolID string          `json:"school_id"`
}

// UpdateUserRequest mutates an existing user's editable fields.
type UpdateUserRequest struct {
	FullName string          `json:"full_name" validate:"required"`
	Role     models.UserRole `json:"role" validate:"required,oneof=STUDENT PERSONNEL ADMIN"`
	SchoolID string          `json:"school_id"`
	Active   *bool           `json:"active"`
}

// UpdateProfileRequest lets a user edit their own display data.
type UpdateProfileRequest struct {
	FullName string `json:"full_name" validate:"required"`

	Photo     []byte `json:"-"`
	PhotoMime string `json:"-"`
}

// UserQuery holds user listing parameters.
type UserQuery struct {
	Role     string `form:"role"`
	Active   string `form:"active"`
	Search   string `form:"search"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Sort     string `form:"sort"`
	Order    string `form:"order"`
}
