package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/litholog/rock-registry-api/internal/dto"
	"github.com/litholog/rock-registry-api/internal/models"
	appErrors "github.com/litholog/rock-registry-api/pkg/errors"
)

type mockUserAdminRepo struct {
	users     map[string]*models.User
	conflicts []string
	created   *models.User
	active    map[string]bool
}

func newMockUserAdminRepo() *mockUserAdminRepo {
	return &mockUserAdminRepo{users: make(map[string]*models.User), active: make(map[string]bool)}
}

func (m *mockUserAdminRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (m *mockUserAdminRepo) FindConflicts(ctx context.Context, email string, schoolID *string) ([]string, error) {
	return m.conflicts, nil
}

func (m *mockUserAdminRepo) Create(ctx context.Context, user *models.User) error {
	user.ID = "created-user"
	m.created = user
	m.users[user.ID] = user
	return nil
}

func (m *mockUserAdminRepo) Update(ctx context.Context, user *models.User) error {
	if _, ok := m.users[user.ID]; !ok {
		return sql.ErrNoRows
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserAdminRepo) SetActive(ctx context.Context, id string, active bool) error {
	user, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.Active = active
	m.active[id] = active
	return nil
}

func (m *mockUserAdminRepo) UpdateProfile(ctx context.Context, id, fullName string, photo []byte, photoMime *string) error {
	user, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.FullName = fullName
	if len(photo) > 0 {
		user.ProfilePhoto = photo
		user.ProfilePhotoMime = photoMime
	}
	return nil
}

func (m *mockUserAdminRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, user := range m.users {
		out = append(out, *user)
	}
	return out, len(out), nil
}

func newUserService(repo *mockUserAdminRepo) *UserService {
	return NewUserService(repo, &mockActivityLog{}, validator.New(), zap.NewNop())
}

func TestUserCreateIsAdminOnly(t *testing.T) {
	repo := newMockUserAdminRepo()
	svc := newUserService(repo)

	req := dto.CreateUserRequest{Email: "p@example.com", Password: "secret1", FullName: "P", Role: models.RolePersonnel}

	_, err := svc.Create(context.Background(), personnelClaims(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	user, err := svc.Create(context.Background(), adminClaims(), req)
	require.NoError(t, err)
	assert.Equal(t, models.RolePersonnel, user.Role)
	assert.True(t, user.Active)
}

func TestUserCreateNamesConflicts(t *testing.T) {
	repo := newMockUserAdminRepo()
	repo.conflicts = []string{"email"}
	svc := newUserService(repo)

	_, err := svc.Create(context.Background(), adminClaims(), dto.CreateUserRequest{
		Email: "taken@example.com", Password: "secret1", FullName: "X", Role: models.RoleStudent,
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "email")
}

func TestAdminCannotDeactivateSelf(t *testing.T) {
	repo := newMockUserAdminRepo()
	repo.users["admin-1"] = &models.User{ID: "admin-1", Email: "admin@example.com", Role: models.RoleAdmin, Active: true}
	svc := newUserService(repo)

	err := svc.Deactivate(context.Background(), adminClaims(), "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	active := false
	_, err = svc.Update(context.Background(), adminClaims(), "admin-1", dto.UpdateUserRequest{
		FullName: "Admin One", Role: models.RoleAdmin, Active: &active,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDeactivateAndReactivateUser(t *testing.T) {
	repo := newMockUserAdminRepo()
	repo.users["u1"] = &models.User{ID: "u1", Email: "u1@example.com", Role: models.RoleStudent, Active: true}
	svc := newUserService(repo)

	require.NoError(t, svc.Deactivate(context.Background(), adminClaims(), "u1"))
	assert.False(t, repo.users["u1"].Active)

	require.NoError(t, svc.Reactivate(context.Background(), adminClaims(), "u1"))
	assert.True(t, repo.users["u1"].Active)
}

func TestUpdateProfileWithPhoto(t *testing.T) {
	repo := newMockUserAdminRepo()
	repo.users["student-1"] = &models.User{ID: "student-1", Email: "s1@example.com", Role: models.RoleStudent, Active: true}
	svc := newUserService(repo)

	err := svc.UpdateProfile(context.Background(), studentClaims(), dto.UpdateProfileRequest{
		FullName:  "Student Renamed",
		Photo:     []byte{0xFF, 0xD8},
		PhotoMime: "image/jpeg",
	})
	require.NoError(t, err)
	assert.Equal(t, "Student Renamed", repo.users["student-1"].FullName)
	assert.NotEmpty(t, repo.users["student-1"].ProfilePhoto)
}

func TestUserListForbiddenForNonAdmins(t *testing.T) {
	repo := newMockUserAdminRepo()
	svc := newUserService(repo)

	_, _, err := svc.List(context.Background(), studentClaims(), dto.UserQuery{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
