package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/litholog/rock-registry-api/internal/authz"
	"github.com/litholog/rock-registry-api/internal/dto"
	"github.com/litholog/rock-registry-api/internal/models"
	appErrors "github.com/litholog/rock-registry-api/pkg/errors"
)

type userAdminRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindConflicts(ctx context.Context, email string, schoolID *string) ([]string, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	SetActive(ctx context.Context, id string, active bool) error
	UpdateProfile(ctx context.Context, id, fullName string, photo []byte, photoMime *string) error
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
}

// UserService covers admin user management plus self-service profile edits.
type UserService struct {
	repo      userAdminRepository
	activity  activityAppender
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService.
func NewUserService(repo userAdminRepository, activity activityAppender, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, activity: activity, validator: validate, logger: logger}
}

// List returns users matching the query. Admin only.
func (s *UserService) List(ctx context.Context, actor *models.JWTClaims, query dto.UserQuery) ([]models.User, *models.Pagination, error) {
	if actor == nil || !authz.CanManageUsers(actor.Role) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "user management is admin only")
	}

	filter := models.UserFilter{
		Search:    query.Search,
		Page:      query.Page,
		PageSize:  query.PageSize,
		SortBy:    query.Sort,
		SortOrder: query.Order,
	}
	if query.Role != "" {
		role := models.UserRole(strings.ToUpper(query.Role))
		filter.Role = &role
	}
	if query.Active != "" {
		active := query.Active == "true"
		filter.Active = &active
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Create registers a user with any role. Admin only.
func (s *UserService) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateUserRequest) (*models.User, error) {
	if actor == nil || !authz.CanManageUsers(actor.Role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "user management is admin only")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	var schoolID *string
	if req.SchoolID != "" {
		schoolID = &req.SchoolID
	}

	taken, err := s.repo.FindConflicts(ctx, req.Email, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check identity conflicts")
	}
	if len(taken) > 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("already registered: %s", strings.Join(taken, ", ")))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         req.Role,
		SchoolID:     schoolID,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.recordUserChange(ctx, actor.UserID, fmt.Sprintf("User %s created with role %s", user.Email, user.Role))
	return user, nil
}

// Update edits a user's role, name, school id and active flag. Admin only;
// admins cannot deactivate themselves.
func (s *UserService) Update(ctx context.Context, actor *models.JWTClaims, userID string, req dto.UpdateUserRequest) (*models.User, error) {
	if actor == nil || !authz.CanManageUsers(actor.Role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "user management is admin only")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if req.Active != nil && !*req.Active && userID == actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot deactivate own account")
	}

	user.FullName = req.FullName
	user.Role = req.Role
	if req.SchoolID != "" {
		schoolID := req.SchoolID
		user.SchoolID = &schoolID
	} else {
		user.SchoolID = nil
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.recordUserChange(ctx, actor.UserID, fmt.Sprintf("User %s updated", user.Email))
	return user, nil
}

// Deactivate disables an account; users are never hard-deleted so their
// samples and log entries keep a valid author.
func (s *UserService) Deactivate(ctx context.Context, actor *models.JWTClaims, userID string) error {
	if actor == nil || !authz.CanManageUsers(actor.Role) {
		return appErrors.Clone(appErrors.ErrForbidden, "user management is admin only")
	}
	if userID == actor.UserID {
		return appErrors.Clone(appErrors.ErrValidation, "cannot deactivate own account")
	}

	if err := s.repo.SetActive(ctx, userID, false); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate user")
	}

	s.recordUserChange(ctx, actor.UserID, fmt.Sprintf("User %s deactivated", userID))
	return nil
}

// Reactivate re-enables a previously deactivated account. Admin only.
func (s *UserService) Reactivate(ctx context.Context, actor *models.JWTClaims, userID string) error {
	if actor == nil || !authz.CanManageUsers(actor.Role) {
		return appErrors.Clone(appErrors.ErrForbidden, "user management is admin only")
	}

	if err := s.repo.SetActive(ctx, userID, true); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reactivate user")
	}

	s.recordUserChange(ctx, actor.UserID, fmt.Sprintf("User %s reactivated", userID))
	return nil
}

// Profile returns the actor's own record.
func (s *UserService) Profile(ctx context.Context, actor *models.JWTClaims) (*models.User, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	user, err := s.repo.FindByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return user, nil
}

// UpdateProfile edits the actor's display name and optional photo.
func (s *UserService) UpdateProfile(ctx context.Context, actor *models.JWTClaims, req dto.UpdateProfileRequest) error {
	if actor == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	var photoMime *string
	if req.PhotoMime != "" {
		mime := req.PhotoMime
		photoMime = &mime
	}

	if err := s.repo.UpdateProfile(ctx, actor.UserID, req.FullName, req.Photo, photoMime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	return nil
}

func (s *UserService) recordUserChange(ctx context.Context, actorID, description string) {
	if s.activity == nil {
		return
	}
	if err := s.activity.Append(ctx, &models.ActivityLog{
		UserID:       actorID,
		ActivityType: models.ActivityUserChange,
		Description:  description,
	}); err != nil {
		s.logger.Warn("failed to record user change activity", zap.Error(err))
	}
}
