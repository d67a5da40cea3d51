package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/litholog/rock-registry-api/internal/authz"
	"github.com/litholog/rock-registry-api/internal/dto"
	"github.com/litholog/rock-registry-api/internal/models"
	appErrors "github.com/litholog/rock-registry-api/pkg/errors"
)

type sampleQueryRepository interface {
	GetRowByID(ctx context.Context, id string) (*models.SampleRow, error)
	List(ctx context.Context, filter models.SampleFilter) ([]models.SampleRow, error)
	Count(ctx context.Context, filter models.SampleFilter) (int, error)
	ImageFlags(ctx context.Context, sampleIDs []string) (map[string]map[models.ImageType]bool, error)
	Stats(ctx context.Context, ownerID string) (*models.SampleStats, error)
	MapPoints(ctx context.Context, filter models.SampleFilter) ([]models.MapPoint, error)
	DistinctRockTypes(ctx context.Context, status models.SampleStatus) ([]string, error)
	DistinctLocations(ctx context.Context, status models.SampleStatus) ([]string, error)
}

type imageMetaLister interface {
	ListMetaBySample(ctx context.Context, sampleID string) ([]models.ImageMeta, error)
}

type approvalLister interface {
	ListApprovalsBySample(ctx context.Context, sampleID string) ([]models.ApprovalRow, error)
}

// CatalogFacets lists the distinct filter values of the verified catalog.
type CatalogFacets struct {
	RockTypes []string `json:"rock_types"`
	Locations []string `json:"locations"`
}

// CatalogService serves the role-scoped read side: lists, detail views,
// facets, dashboard stats and map points. Facets and stats are cached in
// Redis when available; a cache failure falls through to the database.
type CatalogService struct {
	samples   sampleQueryRepository
	images    imageMetaLister
	approvals approvalLister
	cache     *CacheService
	logger    *zap.Logger
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(samples sampleQueryRepository, images imageMetaLister, approvals approvalLister, cache *CacheService, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{samples: samples, images: images, approvals: approvals, cache: cache, logger: logger}
}

// List returns the samples visible to the actor under the requested scope,
// with user filters applied on top of the scope precondition.
func (s *CatalogService) List(ctx context.Context, actor *models.JWTClaims, query dto.SampleQuery) ([]models.SampleRow, *models.Pagination, error) {
	filter, err := s.resolveFilter(actor, query)
	if err != nil {
		return nil, nil, err
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	pageSize := query.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	total, err := s.samples.Count(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count samples")
	}

	rows, err := s.samples.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list samples")
	}

	if err := s.attachImageFlags(ctx, rows); err != nil {
		s.logger.Warn("failed to load image flags", zap.Error(err))
	}

	return rows, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Detail returns one sample with its image metadata and decision history.
func (s *CatalogService) Detail(ctx context.Context, actor *models.JWTClaims, sampleID string) (*dto.SampleDetail, error) {
	row, err := s.samples.GetRowByID(ctx, sampleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "sample not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sample")
	}
	if !authz.CanRead(actor, row.UserID, row.Status) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "sample not found")
	}

	metas, err := s.images.ListMetaBySample(ctx, sampleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sample images")
	}
	for _, meta := range metas {
		switch meta.ImageType {
		case models.ImageTypeSpecimen:
			row.HasSpecimenImage = true
		case models.ImageTypeOutcrop:
			row.HasOutcropImage = true
		}
	}

	approvals, err := s.approvals.ListApprovalsBySample(ctx, sampleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load decision history")
	}

	return &dto.SampleDetail{Sample: *row, Images: metas, Approvals: approvals}, nil
}

// Facets returns the distinct rock types and locations of the verified
// catalog, cached between sample mutations.
func (s *CatalogService) Facets(ctx context.Context) (*CatalogFacets, error) {
	const cacheKey = "catalog:facets"

	var cached CatalogFacets
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	rockTypes, err := s.samples.DistinctRockTypes(ctx, models.SampleStatusVerified)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rock types")
	}
	locations, err := s.samples.DistinctLocations(ctx, models.SampleStatusVerified)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list locations")
	}

	facets := &CatalogFacets{RockTypes: rockTypes, Locations: locations}
	_ = s.cache.Set(ctx, cacheKey, facets, 0)
	return facets, nil
}

// DashboardStats aggregates submission counters: students see their own
// numbers, elevated roles see the whole registry.
func (s *CatalogService) DashboardStats(ctx context.Context, actor *models.JWTClaims) (*models.SampleStats, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}

	ownerID := ""
	if actor.Role == models.RoleStudent {
		ownerID = actor.UserID
	}
	cacheKey := fmt.Sprintf("stats:%s", ownerID)
	if ownerID == "" {
		cacheKey = "stats:global"
	}

	var cached models.SampleStats
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	stats, err := s.samples.Stats(ctx, ownerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate stats")
	}

	_ = s.cache.Set(ctx, cacheKey, stats, 0)
	return stats, nil
}

// MapPoints returns the coordinate-bearing samples visible to the actor.
func (s *CatalogService) MapPoints(ctx context.Context, actor *models.JWTClaims, query dto.SampleQuery) ([]models.MapPoint, error) {
	filter, err := s.resolveFilter(actor, query)
	if err != nil {
		return nil, err
	}

	points, err := s.samples.MapPoints(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list map points")
	}
	return points, nil
}

// resolveFilter maps the requested scope through the authorization gate, then
// layers the user-selected filters on top.
func (s *CatalogService) resolveFilter(actor *models.JWTClaims, query dto.SampleQuery) (models.SampleFilter, error) {
	scope := authz.Scope(query.Scope)
	if scope == "" {
		scope = authz.ScopeCatalog
	}

	filter, ok := authz.ScopeFilter(actor, scope)
	if !ok {
		return models.SampleFilter{}, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("scope %q not permitted", scope))
	}

	filter.Search = query.Search
	filter.RockType = query.RockType
	filter.Location = query.Location

	// Status is a user filter only where the scope leaves it open.
	if query.Status != "" && filter.Status == "" && filter.OwnerOrVerified == "" {
		status := models.SampleStatus(query.Status)
		switch status {
		case models.SampleStatusPending, models.SampleStatusVerified, models.SampleStatusRejected:
			filter.Status = status
		default:
			return models.SampleFilter{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", query.Status))
		}
	}

	if query.DateFrom != "" {
		from, err := time.Parse("2006-01-02", query.DateFrom)
		if err != nil {
			return models.SampleFilter{}, appErrors.Clone(appErrors.ErrValidation, "date_from must be YYYY-MM-DD")
		}
		filter.DateFrom = &from
	}
	if query.DateTo != "" {
		to, err := time.Parse("2006-01-02", query.DateTo)
		if err != nil {
			return models.SampleFilter{}, appErrors.Clone(appErrors.ErrValidation, "date_to must be YYYY-MM-DD")
		}
		filter.DateTo = &to
	}

	if query.IncludeArchived && actor != nil && actor.Role == models.RoleAdmin {
		filter.ExcludeArchived = false
	}

	return filter, nil
}

func (s *CatalogService) attachImageFlags(ctx context.Context, rows []models.SampleRow) error {
	if len(rows) == 0 {
		return nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	flags, err := s.samples.ImageFlags(ctx, ids)
	if err != nil {
		return err
	}
	for i := range rows {
		rows[i].HasSpecimenImage = flags[rows[i].ID][models.ImageTypeSpecimen]
		rows[i].HasOutcropImage = flags[rows[i].ID][models.ImageTypeOutcrop]
	}
	return nil
}
