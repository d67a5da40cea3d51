package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/litholog/rock-registry-api/internal/models"
)

// ArchiveRepository reads archive records. Archive and unarchive writes run
// inside SampleRepository transactions.
type ArchiveRepository struct {
	db *sqlx.DB
}

// NewArchiveRepository constructs the repository.
func NewArchiveRepository(db *sqlx.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// GetBySampleID returns the archive record for a sample.
func (r *ArchiveRepository) GetBySampleID(ctx context.Context, sampleID string) (*models.Archive, error) {
	const query = `SELECT id, sample_id, archived_by, reason, status, archived_at FROM archives WHERE sample_id = $1 LIMIT 1`
	var archive models.Archive
	if err := r.db.GetContext(ctx, &archive, query, sampleID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find archive by sample: %w", err)
	}
	return &archive, nil
}

// List returns archive records joined with sample and user context.
func (r *ArchiveRepository) List(ctx context.Context, filter models.ArchiveFilter) ([]models.ArchiveRow, int, error) {
	baseQuery := `FROM archives ar
	JOIN rock_samples rs ON ar.sample_id = rs.id
	JOIN users au ON ar.archived_by = au.id
	JOIN users su ON rs.user_id = su.id`

	var conditions []string
	var args []interface{}
	if filter.ArchivedBy != "" {
		args = append(args, filter.ArchivedBy)
		conditions = append(conditions, fmt.Sprintf("ar.archived_by = $%d", len(args)))
	}
	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) `+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count archives: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	listQuery := fmt.Sprintf(`SELECT ar.id, ar.sample_id, ar.archived_by, ar.reason, ar.status, ar.archived_at,
	rs.rock_id, rs.rock_type, rs.location_name,
	au.full_name AS archived_by_name, su.full_name AS submitter_name
	%s ORDER BY ar.archived_at DESC LIMIT %d OFFSET %d`, baseQuery, limit, offset)

	var rows []models.ArchiveRow
	if err := r.db.SelectContext(ctx, &rows, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list archives: %w", err)
	}
	return rows, total, nil
}
