package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/litholog/rock-registry-api/internal/models"
)

// LogRepository serves the append-only activity and approval trails. Entries
// tied to a sample mutation are written inside that mutation's transaction by
// SampleRepository; Append covers standalone events such as logins.
type LogRepository struct {
	db *sqlx.DB
}

// NewLogRepository constructs the repository.
func NewLogRepository(db *sqlx.DB) *LogRepository {
	return &LogRepository{db: db}
}

// Append records a standalone activity entry outside any sample transaction.
func (r *LogRepository) Append(ctx context.Context, activity *models.ActivityLog) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO activity_logs (id, user_id, sample_id, activity_type, description, created_at)
	VALUES (:id, :user_id, :sample_id, :activity_type, :description, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, activity); err != nil {
		return fmt.Errorf("create activity log: %w", err)
	}
	return nil
}

// ListActivity returns activity rows matching the filter, newest first.
func (r *LogRepository) ListActivity(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityRow, int, error) {
	baseQuery := `FROM activity_logs al JOIN users u ON al.user_id = u.id`

	var conditions []string
	var args []interface{}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("al.user_id = $%d", len(args)))
	}
	if filter.ActivityType != "" {
		args = append(args, filter.ActivityType)
		conditions = append(conditions, fmt.Sprintf("al.activity_type = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(al.description ILIKE $%d OR u.full_name ILIKE $%d)", n, n))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		conditions = append(conditions, fmt.Sprintf("al.created_at::date >= $%d::date", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		conditions = append(conditions, fmt.Sprintf("al.created_at::date <= $%d::date", len(args)))
	}
	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) `+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count activity logs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	listQuery := fmt.Sprintf(`SELECT al.id, al.user_id, al.sample_id, al.activity_type, al.description, al.created_at,
	u.full_name AS user_name %s ORDER BY al.created_at DESC LIMIT %d OFFSET %d`, baseQuery, limit, offset)

	var rows []models.ActivityRow
	if err := r.db.SelectContext(ctx, &rows, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list activity logs: %w", err)
	}
	return rows, total, nil
}

// ListApprovalsBySample returns the decision trail for one sample, oldest
// decision first.
func (r *LogRepository) ListApprovalsBySample(ctx context.Context, sampleID string) ([]models.ApprovalRow, error) {
	const query = `SELECT ap.id, ap.user_id, ap.sample_id, ap.action, ap.remarks, ap.created_at,
	u.full_name AS user_name
	FROM approval_logs ap JOIN users u ON ap.user_id = u.id
	WHERE ap.sample_id = $1 ORDER BY ap.created_at ASC`
	var rows []models.ApprovalRow
	if err := r.db.SelectContext(ctx, &rows, query, sampleID); err != nil {
		return nil, fmt.Errorf("list approval logs: %w", err)
	}
	return rows, nil
}
