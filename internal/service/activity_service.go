package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/litholog/rock-registry-api/internal/authz"
	"github.com/litholog/rock-registry-api/internal/dto"
	"github.com/litholog/rock-registry-api/internal/models"
	appErrors "github.com/litholog/rock-registry-api/pkg/errors"
)

type activityLogRepository interface {
	ListActivity(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityRow, int, error)
}

type archiveListRepository interface {
	List(ctx context.Context, filter models.ArchiveFilter) ([]models.ArchiveRow, int, error)
}

// ActivityService serves the read side of the audit trail: the activity log
// and the archive record listings, both scoped by role.
type ActivityService struct {
	logs     activityLogRepository
	archives archiveListRepository
	logger   *zap.Logger
}

// NewActivityService constructs an ActivityService.
func NewActivityService(logs activityLogRepository, archives archiveListRepository, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{logs: logs, archives: archives, logger: logger}
}

// ListActivity returns activity rows visible to the actor. Students see only
// their own trail.
func (s *ActivityService) ListActivity(ctx context.Context, actor *models.JWTClaims, query dto.ActivityQuery) ([]models.ActivityRow, *models.Pagination, error) {
	filter, ok := authz.ActivityListFilter(actor)
	if !ok {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "activity log not available")
	}

	filter.ActivityType = query.Type
	filter.Search = query.Search
	if query.DateFrom != "" {
		from, err := time.Parse("2006-01-02", query.DateFrom)
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "date_from must be YYYY-MM-DD")
		}
		filter.DateFrom = &from
	}
	if query.DateTo != "" {
		to, err := time.Parse("2006-01-02", query.DateTo)
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "date_to must be YYYY-MM-DD")
		}
		filter.DateTo = &to
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	pageSize := query.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	rows, total, err := s.logs.ListActivity(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activity")
	}
	return rows, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// ListArchives returns archive records: personnel see their own archive
// actions, admins everything.
func (s *ActivityService) ListArchives(ctx context.Context, actor *models.JWTClaims, page, pageSize int) ([]models.ArchiveRow, *models.Pagination, error) {
	filter, ok := authz.ArchiveListFilter(actor)
	if !ok {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "archive list not available")
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	rows, total, err := s.archives.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list archives")
	}
	return rows, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}
