package service

import (
	"context"
	"database/sql"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/litholog/rock-registry-api/internal/dto"
	"github.com/litholog/rock-registry-api/internal/models"
	appErrors "github.com/litholog/rock-registry-api/pkg/errors"
)

type mockExportStorage struct {
	saved map[string][]byte
}

func (m *mockExportStorage) Save(filename string, data []byte) (string, error) {
	if m.saved == nil {
		m.saved = make(map[string][]byte)
	}
	m.saved[filename] = data
	return filename, nil
}

type mockExportSigner struct{}

func (m *mockExportSigner) Generate(exportID, relPath string) (string, time.Time, error) {
	return "signed-" + exportID, time.Now().Add(30 * time.Minute), nil
}

type mockExportImages struct{}

func (m *mockExportImages) GetBySampleAndType(ctx context.Context, sampleID string, imageType models.ImageType) (*models.Image, error) {
	return nil, sql.ErrNoRows
}

func newExportService(repo *mockCatalogRepo) (*ExportService, *mockExportStorage) {
	storage := &mockExportStorage{}
	svc := NewExportService(repo, &mockExportImages{}, storage, &mockExportSigner{}, zap.NewNop())
	return svc, storage
}

func TestExportCSVColumnOrder(t *testing.T) {
	repo := catalogFixture()
	repo.flags = map[string]map[models.ImageType]bool{
		"s2": {models.ImageTypeSpecimen: true},
	}
	svc, storage := newExportService(repo)

	res, err := svc.Generate(context.Background(), personnelClaims(), dto.ExportQuery{Format: "csv"})
	require.NoError(t, err)
	assert.Equal(t, "csv", res.Format)
	assert.True(t, strings.HasSuffix(res.FileName, ".csv"))
	assert.NotEmpty(t, res.Token)

	payload := storage.saved[res.FileName]
	require.NotEmpty(t, payload)

	records, err := csv.NewReader(strings.NewReader(string(payload))).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, []string{
		"rock_index", "rock_id", "rock_type", "description", "formation",
		"location_name", "barangay", "province", "latitude", "longitude",
		"has_specimen_image", "has_outcrop_image",
		"submitted_by", "verified_by", "status", "created_at", "updated_at",
	}, records[0])
	assert.Equal(t, res.RowCount, len(records)-1)
}

func TestExportAdminGetsSchoolIDColumn(t *testing.T) {
	repo := catalogFixture()
	svc, storage := newExportService(repo)

	res, err := svc.Generate(context.Background(), adminClaims(), dto.ExportQuery{Format: "csv", Scope: "all"})
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(storage.saved[res.FileName]))).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, "school_id", records[0][len(records[0])-1])
}

func TestExportScopeIsAuthorized(t *testing.T) {
	repo := catalogFixture()
	svc, _ := newExportService(repo)

	_, err := svc.Generate(context.Background(), studentClaims(), dto.ExportQuery{Format: "csv", Scope: "all"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	repo := catalogFixture()
	svc, _ := newExportService(repo)

	_, err := svc.Generate(context.Background(), adminClaims(), dto.ExportQuery{Format: "xlsx"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportRejectsUnknownStatus(t *testing.T) {
	repo := catalogFixture()
	svc, _ := newExportService(repo)

	_, err := svc.Generate(context.Background(), adminClaims(), dto.ExportQuery{Format: "csv", Scope: "all", Status: "draft"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportFiltersByStatus(t *testing.T) {
	repo := catalogFixture()
	svc, _ := newExportService(repo)

	res, err := svc.Generate(context.Background(), adminClaims(), dto.ExportQuery{Format: "csv", Scope: "all", Status: "REJECTED"})
	require.NoError(t, err)
	assert.Equal(t, models.SampleStatusRejected, repo.lastFilter.Status)
	assert.Equal(t, 2, res.RowCount)
}

func TestExportPDFRenders(t *testing.T) {
	repo := catalogFixture()
	svc, storage := newExportService(repo)

	res, err := svc.Generate(context.Background(), personnelClaims(), dto.ExportQuery{Format: "pdf"})
	require.NoError(t, err)
	payload := storage.saved[res.FileName]
	require.NotEmpty(t, payload)
	assert.True(t, strings.HasPrefix(string(payload), "%PDF"))
}
