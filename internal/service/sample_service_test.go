package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/litholog/rock-registry-api/internal/dto"
	"github.com/litholog/rock-registry-api/internal/models"
	"github.com/litholog/rock-registry-api/internal/repository"
	appErrors "github.com/litholog/rock-registry-api/pkg/errors"
)

type mockSampleRepo struct {
	samples    map[string]*models.RockSample
	images     map[string][]models.Image
	activities []*models.ActivityLog
	approvals  []repository.DecideParams
	archived   map[string]bool
	decideErr  error
	archiveErr error
}

func newMockSampleRepo() *mockSampleRepo {
	return &mockSampleRepo{
		samples:  make(map[string]*models.RockSample),
		images:   make(map[string][]models.Image),
		archived: make(map[string]bool),
	}
}

func (m *mockSampleRepo) GetByID(ctx context.Context, id string) (*models.RockSample, error) {
	sample, ok := m.samples[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *sample
	return &copied, nil
}

func (m *mockSampleRepo) Create(ctx context.Context, sample *models.RockSample, images []models.Image, activity *models.ActivityLog) error {
	if sample.ID == "" {
		sample.ID = "sample-1"
	}
	m.samples[sample.ID] = sample
	m.images[sample.ID] = images
	m.activities = append(m.activities, activity)
	return nil
}

func (m *mockSampleRepo) Update(ctx context.Context, sample *models.RockSample, images []models.Image, activity *models.ActivityLog) error {
	if _, ok := m.samples[sample.ID]; !ok {
		return sql.ErrNoRows
	}
	m.samples[sample.ID] = sample
	if len(images) > 0 {
		m.images[sample.ID] = images
	}
	m.activities = append(m.activities, activity)
	return nil
}

func (m *mockSampleRepo) Delete(ctx context.Context, sampleID string, activity *models.ActivityLog) error {
	if _, ok := m.samples[sampleID]; !ok {
		return sql.ErrNoRows
	}
	delete(m.samples, sampleID)
	delete(m.images, sampleID)
	m.activities = append(m.activities, activity)
	return nil
}

func (m *mockSampleRepo) Decide(ctx context.Context, params repository.DecideParams) error {
	if m.decideErr != nil {
		return m.decideErr
	}
	sample, ok := m.samples[params.SampleID]
	if !ok || sample.Status != models.SampleStatusPending {
		return sql.ErrNoRows
	}
	sample.Status = params.Status
	verifier := params.VerifierID
	sample.VerifiedBy = &verifier
	m.approvals = append(m.approvals, params)
	m.activities = append(m.activities, &models.ActivityLog{
		UserID:       params.VerifierID,
		SampleID:     &params.SampleID,
		ActivityType: string(params.Action),
	})
	return nil
}

func (m *mockSampleRepo) Archive(ctx context.Context, archive *models.Archive, activity *models.ActivityLog) error {
	if m.archiveErr != nil {
		return m.archiveErr
	}
	if m.archived[archive.SampleID] {
		return repository.ErrDuplicateArchive
	}
	m.archived[archive.SampleID] = true
	m.activities = append(m.activities, activity)
	return nil
}

func (m *mockSampleRepo) Unarchive(ctx context.Context, sampleID string, activity *models.ActivityLog) error {
	if !m.archived[sampleID] {
		return sql.ErrNoRows
	}
	delete(m.archived, sampleID)
	m.activities = append(m.activities, activity)
	return nil
}

type mockCacheStore struct {
	patterns []string
}

func (m *mockCacheStore) Get(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}

func (m *mockCacheStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}

func (m *mockCacheStore) DeleteByPattern(ctx context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	return nil
}

func studentClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent, FullName: "Student One"}
}

func personnelClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "personnel-1", Role: models.RolePersonnel, FullName: "Personnel One"}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, FullName: "Admin One"}
}

func newSampleService(repo *mockSampleRepo) (*SampleService, *mockCacheStore) {
	store := &mockCacheStore{}
	cache := NewCacheService(store, nil, 0, nil, true)
	return NewSampleService(repo, cache, nil, validator.New(), zap.NewNop()), store
}

func floatPtr(v float64) *float64 { return &v }

func TestSubmitThenApproveFlow(t *testing.T) {
	repo := newMockSampleRepo()
	svc, cache := newSampleService(repo)

	sample, err := svc.Submit(context.Background(), studentClaims(), dto.CreateSampleRequest{
		RockID:       "AGT-0001",
		RockType:     "Basalt",
		LocationName: "Agusan",
		Latitude:     floatPtr(8.95),
		Longitude:    floatPtr(125.54),
	})
	require.NoError(t, err)
	assert.Equal(t, models.SampleStatusPending, sample.Status)
	assert.Equal(t, "student-1", sample.UserID)
	assert.Nil(t, sample.VerifiedBy)
	require.Len(t, repo.activities, 1)
	assert.Equal(t, models.ActivitySubmitted, repo.activities[0].ActivityType)

	decided, err := svc.Decide(context.Background(), personnelClaims(), sample.ID, dto.DecideRequest{Action: "approve", Remarks: "ok"})
	require.NoError(t, err)
	assert.Equal(t, models.SampleStatusVerified, decided.Status)
	require.NotNil(t, decided.VerifiedBy)
	assert.Equal(t, "personnel-1", *decided.VerifiedBy)

	require.Len(t, repo.approvals, 1)
	assert.Equal(t, models.ApprovalActionApproved, repo.approvals[0].Action)
	assert.Equal(t, "ok", repo.approvals[0].Remarks)
	assert.Len(t, repo.activities, 2)
	assert.Contains(t, cache.patterns, "catalog:*")
}

func TestSubmitByPersonnelIsPreVerified(t *testing.T) {
	repo := newMockSampleRepo()
	svc, _ := newSampleService(repo)

	sample, err := svc.Submit(context.Background(), personnelClaims(), dto.CreateSampleRequest{
		RockID:       "AGT-0002",
		RockType:     "Granite",
		LocationName: "Butuan",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SampleStatusVerified, sample.Status)
	require.NotNil(t, sample.VerifiedBy)
	assert.Equal(t, "personnel-1", *sample.VerifiedBy)
}

func TestSubmitRejectsOutOfRangeCoordinates(t *testing.T) {
	repo := newMockSampleRepo()
	svc, _ := newSampleService(repo)

	_, err := svc.Submit(context.Background(), studentClaims(), dto.CreateSampleRequest{
		RockID:       "AGT-0003",
		RockType:     "Basalt",
		LocationName: "Agusan",
		Latitude:     floatPtr(91),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSubmitRejectsDuplicateImageSlot(t *testing.T) {
	repo := newMockSampleRepo()
	svc, _ := newSampleService(repo)

	_, err := svc.Submit(context.Background(), studentClaims(), dto.CreateSampleRequest{
		RockID:       "AGT-0004",
		RockType:     "Basalt",
		LocationName: "Agusan",
		Images: []dto.ImageUpload{
			{Type: models.ImageTypeSpecimen, FileName: "a.jpg", MimeType: "image/jpeg", Data: []byte{1}},
			{Type: models.ImageTypeSpecimen, FileName: "b.jpg", MimeType: "image/jpeg", Data: []byte{2}},
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDecideTwiceConflicts(t *testing.T) {
	repo := newMockSampleRepo()
	svc, _ := newSampleService(repo)

	sample, err := svc.Submit(context.Background(), studentClaims(), dto.CreateSampleRequest{
		RockID: "AGT-0005", RockType: "Basalt", LocationName: "Agusan",
	})
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), personnelClaims(), sample.ID, dto.DecideRequest{Action: "approve"})
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), personnelClaims(), sample.ID, dto.DecideRequest{Action: "reject"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyDecided.Code, appErrors.FromError(err).Code)
}

func TestDecideRaceLostReportsConflict(t *testing.T) {
	repo := newMockSampleRepo()
	repo.samples["s1"] = &models.RockSample{ID: "s1", UserID: "student-1", Status: models.SampleStatusPending}
	repo.decideErr = sql.ErrNoRows
	svc, _ := newSampleService(repo)

	_, err := svc.Decide(context.Background(), personnelClaims(), "s1", dto.DecideRequest{Action: "approve"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyDecided.Code, appErrors.FromError(err).Code)
}

func TestDecideForbiddenForStudents(t *testing.T) {
	repo := newMockSampleRepo()
	svc, _ := newSampleService(repo)

	_, err := svc.Decide(context.Background(), studentClaims(), "s1", dto.DecideRequest{Action: "approve"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestEditOwnPendingSample(t *testing.T) {
	repo := newMockSampleRepo()
	repo.samples["s1"] = &models.RockSample{ID: "s1", UserID: "student-1", RockID: "AGT-0001", Status: models.SampleStatusPending}
	svc, _ := newSampleService(repo)

	updated, err := svc.Edit(context.Background(), studentClaims(), "s1", dto.UpdateSampleRequest{
		RockID: "AGT-0001-B", RockType: "Andesite", LocationName: "Agusan",
	})
	require.NoError(t, err)
	assert.Equal(t, "AGT-0001-B", updated.RockID)
}

func TestEditDecidedSampleForbiddenForOwner(t *testing.T) {
	repo := newMockSampleRepo()
	repo.samples["s1"] = &models.RockSample{ID: "s1", UserID: "student-1", RockID: "AGT-0001", Status: models.SampleStatusVerified}
	svc, _ := newSampleService(repo)

	_, err := svc.Edit(context.Background(), studentClaims(), "s1", dto.UpdateSampleRequest{
		RockID: "AGT-0001", RockType: "Basalt", LocationName: "Agusan",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestForeignPendingSampleReadsAsNotFound(t *testing.T) {
	repo := newMockSampleRepo()
	repo.samples["s1"] = &models.RockSample{ID: "s1", UserID: "other-student", Status: models.SampleStatusPending}
	svc, _ := newSampleService(repo)

	err := svc.Delete(context.Background(), studentClaims(), "s1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestArchiveTwiceConflicts(t *testing.T) {
	repo := newMockSampleRepo()
	repo.samples["s1"] = &models.RockSample{ID: "s1", UserID: "student-1", RockID: "AGT-0001", Status: models.SampleStatusVerified}
	svc, _ := newSampleService(repo)

	require.NoError(t, svc.Archive(context.Background(), personnelClaims(), "s1", dto.ArchiveRequest{Reason: "duplicate"}))

	err := svc.Archive(context.Background(), personnelClaims(), "s1", dto.ArchiveRequest{Reason: "again"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyArchived.Code, appErrors.FromError(err).Code)
}

func TestUnarchiveIsAdminOnly(t *testing.T) {
	repo := newMockSampleRepo()
	repo.samples["s1"] = &models.RockSample{ID: "s1", UserID: "student-1", RockID: "AGT-0001", Status: models.SampleStatusVerified}
	repo.archived["s1"] = true
	svc, _ := newSampleService(repo)

	err := svc.Unarchive(context.Background(), personnelClaims(), "s1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Unarchive(context.Background(), adminClaims(), "s1"))
	assert.False(t, repo.archived["s1"])
}

func TestDeleteKeepsActivityHistory(t *testing.T) {
	repo := newMockSampleRepo()
	repo.samples["s1"] = &models.RockSample{ID: "s1", UserID: "student-1", RockID: "AGT-0001", Status: models.SampleStatusPending}
	svc, _ := newSampleService(repo)

	require.NoError(t, svc.Delete(context.Background(), studentClaims(), "s1"))
	_, ok := repo.samples["s1"]
	assert.False(t, ok)
	require.Len(t, repo.activities, 1)
	assert.Equal(t, models.ActivityDeleted, repo.activities[0].ActivityType)
}

func TestDeleteVerifiedSampleForbiddenForOwner(t *testing.T) {
	repo := newMockSampleRepo()
	repo.samples["s1"] = &models.RockSample{ID: "s1", UserID: "student-1", RockID: "AGT-0001", Status: models.SampleStatusVerified}
	svc, _ := newSampleService(repo)

	err := svc.Delete(context.Background(), studentClaims(), "s1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	_, ok := repo.samples["s1"]
	assert.True(t, ok)
}

func TestDeleteVerifiedSampleAllowedForAdmin(t *testing.T) {
	repo := newMockSampleRepo()
	repo.samples["s1"] = &models.RockSample{ID: "s1", UserID: "student-1", RockID: "AGT-0001", Status: models.SampleStatusVerified}
	svc, _ := newSampleService(repo)

	require.NoError(t, svc.Delete(context.Background(), adminClaims(), "s1"))
	_, ok := repo.samples["s1"]
	assert.False(t, ok)
}

func TestMutationsCountLifecycleEvents(t *testing.T) {
	repo := newMockSampleRepo()
	metrics := NewMetricsService()
	svc := NewSampleService(repo, nil, metrics, validator.New(), zap.NewNop())

	sample, err := svc.Submit(context.Background(), studentClaims(), dto.CreateSampleRequest{
		RockID: "AGT-0010", RockType: "Basalt", LocationName: "Agusan",
	})
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), personnelClaims(), sample.ID, dto.DecideRequest{Action: "reject", Remarks: "blurry"})
	require.NoError(t, err)

	require.NoError(t, svc.Archive(context.Background(), adminClaims(), sample.ID, dto.ArchiveRequest{Reason: "rejected"}))
	require.NoError(t, svc.Unarchive(context.Background(), adminClaims(), sample.ID))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.lifecycleTotal.WithLabelValues(models.ActivitySubmitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.lifecycleTotal.WithLabelValues(models.ActivityRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.lifecycleTotal.WithLabelValues(models.ActivityArchived)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.lifecycleTotal.WithLabelValues(models.ActivityUnarchived)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.lifecycleTotal.WithLabelValues(models.ActivityApproved)))
}
