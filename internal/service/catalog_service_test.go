package service

import (
	"context"
	"database/sql"
	"encoding/json"
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

type mockCatalogRepo struct {
	fixture    []models.SampleRow
	archived   map[string]bool
	lastFilter models.SampleFilter
	rockTypes  []string
	locations  []string
	stats      models.SampleStats
	statsOwner string
	flags      map[string]map[models.ImageType]bool
}

// matches mirrors the SQL predicate the repository builds, so scope and
// filter behaviour can be exercised against an in-memory fixture.
func (m *mockCatalogRepo) matches(row models.SampleRow, f models.SampleFilter) bool {
	if f.OwnerID != "" && row.UserID != f.OwnerID {
		return false
	}
	if f.OwnerOrVerified != "" && row.UserID != f.OwnerOrVerified && row.Status != models.SampleStatusVerified {
		return false
	}
	if f.Status != "" && row.Status != f.Status {
		return false
	}
	if f.ExcludeArchived && m.archived[row.ID] {
		return false
	}
	if f.RockType != "" && row.RockType != f.RockType {
		return false
	}
	if f.Location != "" && !strings.Contains(strings.ToLower(row.LocationName), strings.ToLower(f.Location)) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		hay := strings.ToLower(row.RockID + " " + row.RockType + " " + row.LocationName + " " + row.Description)
		if !strings.Contains(hay, needle) {
			return false
		}
	}
	if f.DateFrom != nil && row.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && row.CreatedAt.After(f.DateTo.Add(24*time.Hour)) {
		return false
	}
	return true
}

func (m *mockCatalogRepo) GetRowByID(ctx context.Context, id string) (*models.SampleRow, error) {
	for _, row := range m.fixture {
		if row.ID == id {
			copied := row
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockCatalogRepo) List(ctx context.Context, filter models.SampleFilter) ([]models.SampleRow, error) {
	m.lastFilter = filter
	var out []models.SampleRow
	for _, row := range m.fixture {
		if m.matches(row, filter) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *mockCatalogRepo) Count(ctx context.Context, filter models.SampleFilter) (int, error) {
	rows, _ := m.List(ctx, filter)
	return len(rows), nil
}

func (m *mockCatalogRepo) ImageFlags(ctx context.Context, sampleIDs []string) (map[string]map[models.ImageType]bool, error) {
	return m.flags, nil
}

func (m *mockCatalogRepo) Stats(ctx context.Context, ownerID string) (*models.SampleStats, error) {
	m.statsOwner = ownerID
	stats := m.stats
	return &stats, nil
}

func (m *mockCatalogRepo) MapPoints(ctx context.Context, filter models.SampleFilter) ([]models.MapPoint, error) {
	m.lastFilter = filter
	var points []models.MapPoint
	for _, row := range m.fixture {
		if row.Latitude != nil && row.Longitude != nil && m.matches(row, filter) {
			points = append(points, models.MapPoint{SampleID: row.ID, Latitude: *row.Latitude, Longitude: *row.Longitude, Status: row.Status})
		}
	}
	return points, nil
}

func (m *mockCatalogRepo) DistinctRockTypes(ctx context.Context, status models.SampleStatus) ([]string, error) {
	return m.rockTypes, nil
}

func (m *mockCatalogRepo) DistinctLocations(ctx context.Context, status models.SampleStatus) ([]string, error) {
	return m.locations, nil
}

type mockImageMeta struct {
	metas []models.ImageMeta
}

func (m *mockImageMeta) ListMetaBySample(ctx context.Context, sampleID string) ([]models.ImageMeta, error) {
	return m.metas, nil
}

type mockApprovals struct {
	rows []models.ApprovalRow
}

func (m *mockApprovals) ListApprovalsBySample(ctx context.Context, sampleID string) ([]models.ApprovalRow, error) {
	return m.rows, nil
}

type memoryCache struct {
	store map[string][]byte
	gets  int
	sets  int
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.gets++
	raw, ok := m.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.sets++
	if m.store == nil {
		m.store = make(map[string][]byte)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.store[key] = raw
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.store = nil
	return nil
}

func catalogFixture() *mockCatalogRepo {
	day := func(d int) time.Time { return time.Date(2025, 5, d, 12, 0, 0, 0, time.UTC) }
	row := func(id, owner, rockType, location string, status models.SampleStatus, d int) models.SampleRow {
		return models.SampleRow{RockSample: models.RockSample{
			ID: id, UserID: owner, RockID: "R-" + id, RockType: rockType,
			LocationName: location, Status: status, CreatedAt: day(d),
		}}
	}
	return &mockCatalogRepo{
		fixture: []models.SampleRow{
			row("s1", "student-1", "Basalt", "Agusan", models.SampleStatusPending, 1),
			row("s2", "student-1", "Granite", "Butuan", models.SampleStatusVerified, 2),
			row("s3", "student-1", "Basalt", "Agusan", models.SampleStatusRejected, 3),
			row("s4", "student-2", "Andesite", "Butuan", models.SampleStatusVerified, 4),
			row("s5", "student-2", "Basalt", "Cabadbaran", models.SampleStatusPending, 5),
			row("s6", "student-2", "Shale", "Agusan", models.SampleStatusRejected, 6),
			row("s7", "personnel-1", "Granite", "Butuan", models.SampleStatusVerified, 7),
			row("s8", "student-3", "Limestone", "Nasipit", models.SampleStatusVerified, 8),
			row("s9", "student-3", "Basalt", "Agusan", models.SampleStatusPending, 9),
			row("s10", "student-3", "Marble", "Butuan", models.SampleStatusVerified, 10),
		},
		archived: map[string]bool{"s10": true},
	}
}

func newCatalogService(repo *mockCatalogRepo, cache *CacheService) *CatalogService {
	return NewCatalogService(repo, &mockImageMeta{}, &mockApprovals{}, cache, zap.NewNop())
}

func TestCatalogListStudentSeesOwnPlusVerified(t *testing.T) {
	repo := catalogFixture()
	svc := newCatalogService(repo, nil)

	rows, page, err := svc.List(context.Background(), studentClaims(), dto.SampleQuery{})
	require.NoError(t, err)

	ids := make(map[string]bool)
	for _, row := range rows {
		ids[row.ID] = true
	}
	// Own rows in any status, other users' verified rows, archived excluded.
	assert.True(t, ids["s1"] && ids["s2"] && ids["s3"])
	assert.True(t, ids["s4"] && ids["s7"] && ids["s8"])
	assert.False(t, ids["s5"], "foreign pending must stay hidden")
	assert.False(t, ids["s6"], "foreign rejected must stay hidden")
	assert.False(t, ids["s10"], "archived rows are excluded by default")
	assert.Equal(t, len(rows), page.TotalCount)
}

func TestCatalogListMineScope(t *testing.T) {
	repo := catalogFixture()
	svc := newCatalogService(repo, nil)

	rows, _, err := svc.List(context.Background(), studentClaims(), dto.SampleQuery{Scope: "mine"})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, "student-1", row.UserID)
	}
}

func TestCatalogListReviewScopeForbiddenForStudents(t *testing.T) {
	repo := catalogFixture()
	svc := newCatalogService(repo, nil)

	_, _, err := svc.List(context.Background(), studentClaims(), dto.SampleQuery{Scope: "review"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCatalogListReviewScopeIsOldestFirst(t *testing.T) {
	repo := catalogFixture()
	svc := newCatalogService(repo, nil)

	_, _, err := svc.List(context.Background(), personnelClaims(), dto.SampleQuery{Scope: "review"})
	require.NoError(t, err)
	assert.Equal(t, models.SampleStatusPending, repo.lastFilter.Status)
	assert.True(t, repo.lastFilter.OldestFirst)
}

func TestCatalogListCombinedFilters(t *testing.T) {
	repo := catalogFixture()
	svc := newCatalogService(repo, nil)

	rows, _, err := svc.List(context.Background(), adminClaims(), dto.SampleQuery{
		Scope:    "all",
		RockType: "Basalt",
		Location: "Agusan",
		DateFrom: "2025-05-01",
		DateTo:   "2025-05-05",
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "s1", rows[0].ID)
	assert.Equal(t, "s3", rows[1].ID)
}

func TestCatalogListRejectsBadDate(t *testing.T) {
	repo := catalogFixture()
	svc := newCatalogService(repo, nil)

	_, _, err := svc.List(context.Background(), adminClaims(), dto.SampleQuery{Scope: "all", DateFrom: "05/01/2025"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCatalogListAdminIncludesArchived(t *testing.T) {
	repo := catalogFixture()
	svc := newCatalogService(repo, nil)

	rows, _, err := svc.List(context.Background(), adminClaims(), dto.SampleQuery{Scope: "all", IncludeArchived: true})
	require.NoError(t, err)
	ids := make(map[string]bool)
	for _, row := range rows {
		ids[row.ID] = true
	}
	assert.True(t, ids["s10"])
}

func TestCatalogDetailMasksForeignPending(t *testing.T) {
	repo := catalogFixture()
	svc := newCatalogService(repo, nil)

	_, err := svc.Detail(context.Background(), studentClaims(), "s5")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	detail, err := svc.Detail(context.Background(), personnelClaims(), "s5")
	require.NoError(t, err)
	assert.Equal(t, "s5", detail.Sample.ID)
}

func TestCatalogFacetsUsesCache(t *testing.T) {
	repo := catalogFixture()
	repo.rockTypes = []string{"Basalt", "Granite"}
	repo.locations = []string{"Agusan", "Butuan"}
	cache := &memoryCache{}
	svc := newCatalogService(repo, NewCacheService(cache, nil, time.Minute, nil, true))

	first, err := svc.Facets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Basalt", "Granite"}, first.RockTypes)
	assert.Equal(t, 1, cache.sets)

	repo.rockTypes = []string{"changed"}
	second, err := svc.Facets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Basalt", "Granite"}, second.RockTypes, "second read served from cache")
}

func TestDashboardStatsScoping(t *testing.T) {
	repo := catalogFixture()
	repo.stats = models.SampleStats{Total: 3, Verified: 1, Pending: 1, Rejected: 1}
	svc := newCatalogService(repo, nil)

	_, err := svc.DashboardStats(context.Background(), studentClaims())
	require.NoError(t, err)
	assert.Equal(t, "student-1", repo.statsOwner)

	_, err = svc.DashboardStats(context.Background(), adminClaims())
	require.NoError(t, err)
	assert.Equal(t, "", repo.statsOwner)
}

func TestMapPointsRespectScope(t *testing.T) {
	repo := catalogFixture()
	lat, lng := 8.95, 125.54
	repo.fixture[4].Latitude = &lat // s5, foreign pending
	repo.fixture[4].Longitude = &lng
	repo.fixture[1].Latitude = &lat // s2, own verified
	repo.fixture[1].Longitude = &lng
	svc := newCatalogService(repo, nil)

	points, err := svc.MapPoints(context.Background(), studentClaims(), dto.SampleQuery{})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "s2", points[0].SampleID)
}
