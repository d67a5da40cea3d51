package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litholog/rock-registry-api/internal/models"
)

func TestCreateSampleWritesImagesAndActivityInOneTx(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSampleRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO rock_samples").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO images").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO activity_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	sample := &models.RockSample{
		UserID:       "u1",
		RockID:       "AGT-0001",
		RockType:     "Basalt",
		LocationName: "Agusan",
		Status:       models.SampleStatusPending,
	}
	images := []models.Image{{ImageType: models.ImageTypeSpecimen, Data: []byte{1}, FileName: "rock.jpg", FileSize: 1, MimeType: "image/jpeg"}}
	activity := &models.ActivityLog{UserID: "u1", ActivityType: models.ActivitySubmitted, Description: "Rock sample submitted"}

	err := repo.Create(context.Background(), sample, images, activity)
	require.NoError(t, err)
	assert.NotEmpty(t, sample.ID)
	assert.Equal(t, sample.ID, images[0].SampleID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSampleRollsBackOnActivityFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSampleRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO rock_samples").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO activity_logs").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	sample := &models.RockSample{UserID: "u1", RockID: "AGT-0001", Status: models.SampleStatusPending}
	activity := &models.ActivityLog{UserID: "u1", ActivityType: models.ActivitySubmitted}

	err := repo.Create(context.Background(), sample, nil, activity)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSampleReplacesImageSlot(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSampleRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE rock_samples SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM images WHERE sample_id = $1 AND image_type = $2")).
		WithArgs("s1", models.ImageTypeOutcrop).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO images").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO activity_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	sample := &models.RockSample{ID: "s1", UserID: "u1", RockID: "AGT-0001"}
	images := []models.Image{{ImageType: models.ImageTypeOutcrop, Data: []byte{2}, FileName: "outcrop.jpg", FileSize: 1, MimeType: "image/jpeg"}}
	activity := &models.ActivityLog{UserID: "u1", ActivityType: models.ActivityUpdated}

	err := repo.Update(context.Background(), sample, images, activity)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMissingSample(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSampleRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE rock_samples SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Update(context.Background(), &models.RockSample{ID: "missing"}, nil, &models.ActivityLog{UserID: "u1"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSampleKeepsActivityTrail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSampleRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO activity_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM images WHERE sample_id = $1")).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM rock_samples WHERE id = $1")).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Delete(context.Background(), "s1", &models.ActivityLog{UserID: "u1", ActivityType: models.ActivityDeleted})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecideApprovePendingSample(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSampleRepository(db)

	decidedAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE rock_samples SET status = $2, verified_by = $3, updated_at = $4 WHERE id = $1 AND status = $5")).
		WithArgs("s1", models.SampleStatusVerified, "p1", decidedAt, models.SampleStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO approval_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO activity_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Decide(context.Background(), DecideParams{
		SampleID:   "s1",
		VerifierID: "p1",
		Status:     models.SampleStatusVerified,
		Action:     models.ApprovalActionApproved,
		Remarks:    "ok",
		DecidedAt:  decidedAt,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecideAlreadyDecidedSample(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSampleRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE rock_samples SET status").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Decide(context.Background(), DecideParams{
		SampleID:   "s1",
		VerifierID: "p2",
		Status:     models.SampleStatusRejected,
		Action:     models.ApprovalActionRejected,
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveSample(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSampleRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM archives WHERE sample_id = $1)")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO archives").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO activity_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	archive := &models.Archive{SampleID: "s1", ArchivedBy: "a1", Reason: "duplicate entry"}
	activity := &models.ActivityLog{UserID: "a1", ActivityType: models.ActivityArchived}

	err := repo.Archive(context.Background(), archive, activity)
	require.NoError(t, err)
	assert.NotEmpty(t, archive.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveSampleTwice(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSampleRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM archives WHERE sample_id = $1)")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.Archive(context.Background(), &models.Archive{SampleID: "s1", ArchivedBy: "a1"}, &models.ActivityLog{UserID: "a1"})
	assert.ErrorIs(t, err, ErrDuplicateArchive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnarchiveSample(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSampleRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM archives WHERE sample_id = $1")).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO activity_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Unarchive(context.Background(), "s1", &models.ActivityLog{UserID: "a1", ActivityType: models.ActivityUnarchived})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSamplesOwnerScope(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSampleRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "rock_index", "rock_id", "rock_type", "description",
		"formation", "outcrop_id", "location_name", "barangay", "province", "latitude", "longitude",
		"status", "verified_by", "created_at", "updated_at",
		"submitted_by_name", "school_id", "verified_by_name",
	}).AddRow("s1", "u1", "1", "AGT-0001", "Basalt", "", "", "", "Agusan", "", "", nil, nil,
		string(models.SampleStatusPending), nil, now, now, "Student One", "2021-00123", nil)

	mock.ExpectQuery(`WHERE rs\.user_id = \$1 ORDER BY rs\.created_at DESC`).
		WithArgs("u1").
		WillReturnRows(rows)

	samples, err := repo.List(context.Background(), models.SampleFilter{OwnerID: "u1"})
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "Student One", samples[0].SubmittedByName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSamplesReviewQueueOldestFirst(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSampleRepository(db)

	mock.ExpectQuery(`WHERE rs\.status = \$1 AND NOT EXISTS \(SELECT 1 FROM archives a WHERE a\.sample_id = rs\.id\) ORDER BY rs\.created_at ASC`).
		WithArgs(models.SampleStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.List(context.Background(), models.SampleFilter{
		Status:          models.SampleStatusPending,
		ExcludeArchived: true,
		OldestFirst:     true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSamplesStudentCatalogPredicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSampleRepository(db)

	mock.ExpectQuery(`WHERE \(rs\.user_id = \$1 OR rs\.status = 'VERIFIED'\) AND NOT EXISTS`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.List(context.Background(), models.SampleFilter{
		OwnerOrVerified: "u1",
		ExcludeArchived: true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImageFlags(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSampleRepository(db)

	rows := sqlmock.NewRows([]string{"sample_id", "image_type"}).
		AddRow("s1", string(models.ImageTypeSpecimen)).
		AddRow("s1", string(models.ImageTypeOutcrop)).
		AddRow("s2", string(models.ImageTypeSpecimen))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT sample_id, image_type FROM images WHERE sample_id = ANY($1)")).
		WillReturnRows(rows)

	flags, err := repo.ImageFlags(context.Background(), []string{"s1", "s2"})
	require.NoError(t, err)
	assert.True(t, flags["s1"][models.ImageTypeSpecimen])
	assert.True(t, flags["s1"][models.ImageTypeOutcrop])
	assert.True(t, flags["s2"][models.ImageTypeSpecimen])
	assert.False(t, flags["s2"][models.ImageTypeOutcrop])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImageFlagsEmptyInput(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewSampleRepository(db)

	flags, err := repo.ImageFlags(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, flags)
}

func TestSampleStatsScopedToOwner(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSampleRepository(db)

	rows := sqlmock.NewRows([]string{"total", "verified", "pending", "rejected", "unique_rock_types", "unique_locations"}).
		AddRow(5, 2, 2, 1, 3, 4)
	mock.ExpectQuery(`FROM rock_samples WHERE user_id = \$1`).
		WithArgs("u1").
		WillReturnRows(rows)

	stats, err := repo.Stats(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 2, stats.Verified)
	assert.Equal(t, 1, stats.Rejected)
	assert.NoError(t, mock.ExpectationsWereMet())
}
