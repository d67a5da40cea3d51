package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/litholog/rock-registry-api/internal/models"
)

const sampleColumns = `id, user_id, rock_index, rock_id, rock_type, description, formation, outcrop_id,
       location_name, barangay, province, latitude, longitude, status, verified_by, created_at, updated_at`

// SampleRepository owns rock sample persistence. Every lifecycle mutation is a
// single transaction so the audit trail can never diverge from entity state.
type SampleRepository struct {
	db *sqlx.DB
}

// NewSampleRepository constructs the repository.
func NewSampleRepository(db *sqlx.DB) *SampleRepository {
	return &SampleRepository{db: db}
}

// GetByID returns one sample row.
func (r *SampleRepository) GetByID(ctx context.Context, id string) (*models.RockSample, error) {
	query := `SELECT ` + sampleColumns + ` FROM rock_samples WHERE id = $1 LIMIT 1`
	var sample models.RockSample
	if err := r.db.GetContext(ctx, &sample, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find sample by id: %w", err)
	}
	return &sample, nil
}

// GetRowByID returns one sample joined with submitter and verifier names.
func (r *SampleRepository) GetRowByID(ctx context.Context, id string) (*models.SampleRow, error) {
	const query = `SELECT rs.id, rs.user_id, rs.rock_index, rs.rock_id, rs.rock_type, rs.description,
       rs.formation, rs.outcrop_id, rs.location_name, rs.barangay, rs.province, rs.latitude, rs.longitude,
       rs.status, rs.verified_by, rs.created_at, rs.updated_at,
       s.full_name AS submitted_by_name, s.school_id AS school_id, v.full_name AS verified_by_name
	FROM rock_samples rs
	JOIN users s ON rs.user_id = s.id
	LEFT JOIN users v ON rs.verified_by = v.id
	WHERE rs.id = $1 LIMIT 1`
	var row models.SampleRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find sample row by id: %w", err)
	}
	return &row, nil
}

// Create inserts the sample, its image slots and one activity row atomically.
func (r *SampleRepository) Create(ctx context.Context, sample *models.RockSample, images []models.Image, activity *models.ActivityLog) error {
	if sample.ID == "" {
		sample.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if sample.CreatedAt.IsZero() {
		sample.CreatedAt = now
	}
	sample.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create sample: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `INSERT INTO rock_samples
	(id, user_id, rock_index, rock_id, rock_type, description, formation, outcrop_id,
	 location_name, barangay, province, latitude, longitude, status, verified_by, created_at, updated_at)
	VALUES (:id, :user_id, :rock_index, :rock_id, :rock_type, :description, :formation, :outcrop_id,
	 :location_name, :barangay, :province, :latitude, :longitude, :status, :verified_by, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, sample); err != nil {
		return fmt.Errorf("create sample: %w", err)
	}

	for i := range images {
		images[i].SampleID = sample.ID
		if err := insertImageTx(ctx, tx, &images[i]); err != nil {
			return err
		}
	}

	if err := insertActivityTx(ctx, tx, activity); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create sample: %w", err)
	}
	return nil
}

// Update replaces scalar fields, swaps any provided image slots
// (delete-then-insert keeps the one-image-per-type invariant) and appends one
// activity row, all in one transaction.
func (r *SampleRepository) Update(ctx context.Context, sample *models.RockSample, images []models.Image, activity *models.ActivityLog) error {
	sample.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update sample: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `UPDATE rock_samples SET
	rock_index = :rock_index, rock_id = :rock_id, rock_type = :rock_type, description = :description,
	formation = :formation, outcrop_id = :outcrop_id, location_name = :location_name,
	barangay = :barangay, province = :province, latitude = :latitude, longitude = :longitude,
	updated_at = :updated_at
	WHERE id = :id`
	res, err := tx.NamedExecContext(ctx, query, sample)
	if err != nil {
		return fmt.Errorf("update sample: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check sample update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	for i := range images {
		images[i].SampleID = sample.ID
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM images WHERE sample_id = $1 AND image_type = $2`,
			sample.ID, images[i].ImageType); err != nil {
			return fmt.Errorf("replace sample image: %w", err)
		}
		if err := insertImageTx(ctx, tx, &images[i]); err != nil {
			return err
		}
	}

	if err := insertActivityTx(ctx, tx, activity); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update sample: %w", err)
	}
	return nil
}

// Delete removes the sample and its images. The activity row is written first
// and survives because activity_logs does not cascade-delete.
func (r *SampleRepository) Delete(ctx context.Context, sampleID string, activity *models.ActivityLog) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete sample: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := insertActivityTx(ctx, tx, activity); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM images WHERE sample_id = $1`, sampleID); err != nil {
		return fmt.Errorf("delete sample images: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM rock_samples WHERE id = $1`, sampleID)
	if err != nil {
		return fmt.Errorf("delete sample: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check sample delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete sample: %w", err)
	}
	return nil
}

// DecideParams carries a verifier decision into the transaction.
type DecideParams struct {
	SampleID   string
	VerifierID string
	Status     models.SampleStatus
	Action     models.ApprovalAction
	Remarks    string
	DecidedAt  time.Time
}

// Decide flips a pending sample to its decided status and appends the
// approval and activity rows in the same transaction. The status precondition
// lives in the UPDATE itself: a sample that is no longer pending affects zero
// rows and the whole operation fails with sql.ErrNoRows, so two racing
// verifiers cannot both win.
func (r *SampleRepository) Decide(ctx context.Context, params DecideParams) error {
	if params.DecidedAt.IsZero() {
		params.DecidedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin decide sample: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE rock_samples SET status = $2, verified_by = $3, updated_at = $4 WHERE id = $1 AND status = $5`,
		params.SampleID, params.Status, params.VerifierID, params.DecidedAt, models.SampleStatusPending)
	if err != nil {
		return fmt.Errorf("decide sample: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check decide rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	approval := &models.ApprovalLog{
		ID:        uuid.NewString(),
		UserID:    params.VerifierID,
		SampleID:  params.SampleID,
		Action:    params.Action,
		Remarks:   params.Remarks,
		CreatedAt: params.DecidedAt,
	}
	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO approval_logs (id, user_id, sample_id, action, remarks, created_at)
		 VALUES (:id, :user_id, :sample_id, :action, :remarks, :created_at)`, approval); err != nil {
		return fmt.Errorf("create approval log: %w", err)
	}

	activity := &models.ActivityLog{
		UserID:       params.VerifierID,
		SampleID:     &params.SampleID,
		ActivityType: string(params.Action),
		Description:  fmt.Sprintf("Rock sample %s", params.Action),
	}
	if params.Action == models.ApprovalActionRejected && params.Remarks != "" {
		activity.Description = fmt.Sprintf("Rock sample rejected: %s", params.Remarks)
	}
	if err := insertActivityTx(ctx, tx, activity); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit decide sample: %w", err)
	}
	return nil
}

// Archive inserts the soft-delete side record plus its activity row. The
// existence check runs inside the transaction; a second archive attempt
// reports ErrDuplicateArchive and inserts nothing.
func (r *SampleRepository) Archive(ctx context.Context, archive *models.Archive, activity *models.ActivityLog) error {
	if archive.ID == "" {
		archive.ID = uuid.NewString()
	}
	if archive.ArchivedAt.IsZero() {
		archive.ArchivedAt = time.Now().UTC()
	}
	if archive.Status == "" {
		archive.Status = "archived"
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive sample: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists bool
	if err := tx.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM archives WHERE sample_id = $1)`, archive.SampleID); err != nil {
		return fmt.Errorf("check existing archive: %w", err)
	}
	if exists {
		return ErrDuplicateArchive
	}

	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO archives (id, sample_id, archived_by, reason, status, archived_at)
		 VALUES (:id, :sample_id, :archived_by, :reason, :status, :archived_at)`, archive); err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	if err := insertActivityTx(ctx, tx, activity); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive sample: %w", err)
	}
	return nil
}

// Unarchive drops the archive row and appends the activity entry.
func (r *SampleRepository) Unarchive(ctx context.Context, sampleID string, activity *models.ActivityLog) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin unarchive sample: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM archives WHERE sample_id = $1`, sampleID)
	if err != nil {
		return fmt.Errorf("unarchive sample: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check unarchive rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if err := insertActivityTx(ctx, tx, activity); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit unarchive sample: %w", err)
	}
	return nil
}

// IsArchived reports whether the sample currently has an archive record.
func (r *SampleRepository) IsArchived(ctx context.Context, sampleID string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM archives WHERE sample_id = $1)`, sampleID); err != nil {
		return false, fmt.Errorf("check sample archived: %w", err)
	}
	return exists, nil
}

// List returns sample view rows for the given scope precondition and filters.
func (r *SampleRepository) List(ctx context.Context, filter models.SampleFilter) ([]models.SampleRow, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT rs.id, rs.user_id, rs.rock_index, rs.rock_id, rs.rock_type, rs.description,
       rs.formation, rs.outcrop_id, rs.location_name, rs.barangay, rs.province, rs.latitude, rs.longitude,
       rs.status, rs.verified_by, rs.created_at, rs.updated_at,
       s.full_name AS submitted_by_name, s.school_id AS school_id, v.full_name AS verified_by_name
	FROM rock_samples rs
	JOIN users s ON rs.user_id = s.id
	LEFT JOIN users v ON rs.verified_by = v.id`)

	conditions, args := buildSampleConditions(filter)
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}

	if filter.OldestFirst {
		builder.WriteString(" ORDER BY rs.created_at ASC")
	} else {
		builder.WriteString(" ORDER BY rs.created_at DESC")
	}

	if filter.Limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, offset))
	}

	var rows []models.SampleRow
	if err := r.db.SelectContext(ctx, &rows, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	return rows, nil
}

// Count returns the number of rows matching the filter, ignoring pagination.
func (r *SampleRepository) Count(ctx context.Context, filter models.SampleFilter) (int, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT COUNT(*) FROM rock_samples rs JOIN users s ON rs.user_id = s.id`)
	conditions, args := buildSampleConditions(filter)
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	var total int
	if err := r.db.GetContext(ctx, &total, builder.String(), args...); err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return total, nil
}

// ImageFlags returns the image slots present for each of the given samples in
// one batched query.
func (r *SampleRepository) ImageFlags(ctx context.Context, sampleIDs []string) (map[string]map[models.ImageType]bool, error) {
	flags := make(map[string]map[models.ImageType]bool, len(sampleIDs))
	if len(sampleIDs) == 0 {
		return flags, nil
	}

	var rows []struct {
		SampleID  string           `db:"sample_id"`
		ImageType models.ImageType `db:"image_type"`
	}
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT sample_id, image_type FROM images WHERE sample_id = ANY($1)`,
		pq.Array(sampleIDs)); err != nil {
		return nil, fmt.Errorf("load image flags: %w", err)
	}

	for _, row := range rows {
		if flags[row.SampleID] == nil {
			flags[row.SampleID] = make(map[models.ImageType]bool, 2)
		}
		flags[row.SampleID][row.ImageType] = true
	}
	return flags, nil
}

// Stats aggregates submission counters, optionally scoped to one owner.
func (r *SampleRepository) Stats(ctx context.Context, ownerID string) (*models.SampleStats, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT COUNT(*) AS total,
       COALESCE(SUM(CASE WHEN status = 'VERIFIED' THEN 1 ELSE 0 END), 0) AS verified,
       COALESCE(SUM(CASE WHEN status = 'PENDING' THEN 1 ELSE 0 END), 0) AS pending,
       COALESCE(SUM(CASE WHEN status = 'REJECTED' THEN 1 ELSE 0 END), 0) AS rejected,
       COUNT(DISTINCT rock_type) AS unique_rock_types,
       COUNT(DISTINCT location_name) AS unique_locations
	FROM rock_samples`)

	var args []interface{}
	if ownerID != "" {
		builder.WriteString(" WHERE user_id = $1")
		args = append(args, ownerID)
	}

	var stats models.SampleStats
	if err := r.db.GetContext(ctx, &stats, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("sample stats: %w", err)
	}
	return &stats, nil
}

// MapPoints returns coordinate-bearing samples within the scope filter.
func (r *SampleRepository) MapPoints(ctx context.Context, filter models.SampleFilter) ([]models.MapPoint, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT rs.id, rs.rock_id, rs.rock_type, rs.location_name, rs.latitude, rs.longitude, rs.status
	FROM rock_samples rs
	JOIN users s ON rs.user_id = s.id`)

	conditions, args := buildSampleConditions(filter)
	conditions = append(conditions, "rs.latitude IS NOT NULL", "rs.longitude IS NOT NULL")
	builder.WriteString(" WHERE ")
	builder.WriteString(strings.Join(conditions, " AND "))
	builder.WriteString(" ORDER BY rs.created_at DESC")

	var points []models.MapPoint
	if err := r.db.SelectContext(ctx, &points, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list map points: %w", err)
	}
	return points, nil
}

// DistinctRockTypes lists facet values for the given status scope.
func (r *SampleRepository) DistinctRockTypes(ctx context.Context, status models.SampleStatus) ([]string, error) {
	query := `SELECT DISTINCT rock_type FROM rock_samples WHERE rock_type <> ''`
	args := []interface{}{}
	if status != "" {
		query += ` AND status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY rock_type`

	var types []string
	if err := r.db.SelectContext(ctx, &types, query, args...); err != nil {
		return nil, fmt.Errorf("list rock types: %w", err)
	}
	return types, nil
}

// DistinctLocations lists facet values for the given status scope.
func (r *SampleRepository) DistinctLocations(ctx context.Context, status models.SampleStatus) ([]string, error) {
	query := `SELECT DISTINCT location_name FROM rock_samples WHERE location_name <> ''`
	args := []interface{}{}
	if status != "" {
		query += ` AND status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY location_name`

	var locations []string
	if err := r.db.SelectContext(ctx, &locations, query, args...); err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return locations, nil
}

// buildSampleConditions translates the scope precondition plus user filters
// into positional WHERE fragments.
func buildSampleConditions(filter models.SampleFilter) ([]string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("rs.user_id = $%d", len(args)))
	}
	if filter.OwnerOrVerified != "" {
		args = append(args, filter.OwnerOrVerified)
		conditions = append(conditions, fmt.Sprintf("(rs.user_id = $%d OR rs.status = 'VERIFIED')", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("rs.status = $%d", len(args)))
	}
	if filter.ExcludeArchived {
		conditions = append(conditions, "NOT EXISTS (SELECT 1 FROM archives a WHERE a.sample_id = rs.id)")
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf(
			"(rs.rock_id ILIKE $%d OR rs.rock_index ILIKE $%d OR rs.rock_type ILIKE $%d OR rs.location_name ILIKE $%d OR rs.description ILIKE $%d)",
			n, n, n, n, n))
	}
	if filter.RockType != "" {
		args = append(args, filter.RockType)
		conditions = append(conditions, fmt.Sprintf("rs.rock_type = $%d", len(args)))
	}
	if filter.Location != "" {
		args = append(args, "%"+filter.Location+"%")
		conditions = append(conditions, fmt.Sprintf("rs.location_name ILIKE $%d", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		conditions = append(conditions, fmt.Sprintf("rs.created_at::date >= $%d::date", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		conditions = append(conditions, fmt.Sprintf("rs.created_at::date <= $%d::date", len(args)))
	}

	return conditions, args
}

func insertImageTx(ctx context.Context, tx *sqlx.Tx, image *models.Image) error {
	if image.ID == "" {
		image.ID = uuid.NewString()
	}
	if image.CreatedAt.IsZero() {
		image.CreatedAt = time.Now().UTC()
	}
	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO images (id, sample_id, image_type, data, file_name, file_size, mime_type, created_at)
		 VALUES (:id, :sample_id, :image_type, :data, :file_name, :file_size, :mime_type, :created_at)`, image); err != nil {
		return fmt.Errorf("create sample image: %w", err)
	}
	return nil
}

func insertActivityTx(ctx context.Context, tx *sqlx.Tx, activity *models.ActivityLog) error {
	if activity == nil {
		return nil
	}
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO activity_logs (id, user_id, sample_id, activity_type, description, created_at)
		 VALUES (:id, :user_id, :sample_id, :activity_type, :description, :created_at)`, activity); err != nil {
		return fmt.Errorf("create activity log: %w", err)
	}
	return nil
}
