package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/litholog/rock-registry-api/internal/authz"
	"github.com/litholog/rock-registry-api/internal/dto"
	"github.com/litholog/rock-registry-api/internal/models"
	"github.com/litholog/rock-registry-api/internal/repository"
	appErrors "github.com/litholog/rock-registry-api/pkg/errors"
)

type sampleLifecycleRepository interface {
	GetByID(ctx context.Context, id string) (*models.RockSample, error)
	Create(ctx context.Context, sample *models.RockSample, images []models.Image, activity *models.ActivityLog) error
	Update(ctx context.Context, sample *models.RockSample, images []models.Image, activity *models.ActivityLog) error
	Delete(ctx context.Context, sampleID string, activity *models.ActivityLog) error
	Decide(ctx context.Context, params repository.DecideParams) error
	Archive(ctx context.Context, archive *models.Archive, activity *models.ActivityLog) error
	Unarchive(ctx context.Context, sampleID string, activity *models.ActivityLog) error
}

// SampleService drives the sample lifecycle: submit, edit, delete, decide,
// archive and unarchive. Authorization verdicts come from the authz package;
// the repository guarantees each mutation and its audit rows land atomically.
type SampleService struct {
	repo      sampleLifecycleRepository
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSampleService constructs a SampleService.
func NewSampleService(repo sampleLifecycleRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *SampleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SampleService{repo: repo, cache: cache, metrics: metrics, validator: validate, logger: logger}
}

// Submit creates a new sample for the actor. Students enter the pending
// queue; personnel and admin submissions are recorded verified immediately
// with the submitter as verifier.
func (s *SampleService) Submit(ctx context.Context, actor *models.JWTClaims, req dto.CreateSampleRequest) (*models.RockSample, error) {
	if actor == nil || !authz.CanSubmit(actor.Role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role may not submit samples")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sample payload")
	}

	images, err := buildImages(req.Images)
	if err != nil {
		return nil, err
	}

	sample := &models.RockSample{
		UserID:       actor.UserID,
		RockIndex:    req.RockIndex,
		RockID:       req.RockID,
		RockType:     req.RockType,
		Description:  req.Description,
		Formation:    req.Formation,
		OutcropID:    req.OutcropID,
		LocationName: req.LocationName,
		Barangay:     req.Barangay,
		Province:     req.Province,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		Status:       models.SampleStatusPending,
	}
	if authz.SubmitsPreVerified(actor.Role) {
		sample.Status = models.SampleStatusVerified
		verifier := actor.UserID
		sample.VerifiedBy = &verifier
	}

	activity := &models.ActivityLog{
		UserID:       actor.UserID,
		ActivityType: models.ActivitySubmitted,
		Description:  fmt.Sprintf("Rock sample %s submitted", req.RockID),
	}

	if err := s.repo.Create(ctx, sample, images, activity); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create sample")
	}
	activity.SampleID = &sample.ID

	s.metrics.RecordLifecycleEvent(models.ActivitySubmitted)
	s.invalidateCaches(ctx)
	return sample, nil
}

// Edit updates a sample's fields and replaces any provided image slots.
func (s *SampleService) Edit(ctx context.Context, actor *models.JWTClaims, sampleID string, req dto.UpdateSampleRequest) (*models.RockSample, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sample payload")
	}

	sample, err := s.loadVisible(ctx, actor, sampleID)
	if err != nil {
		return nil, err
	}
	if !authz.CanEdit(actor, sample.UserID, sample.Status) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "sample may not be edited")
	}

	images, err := buildImages(req.Images)
	if err != nil {
		return nil, err
	}

	sample.RockIndex = req.RockIndex
	sample.RockID = req.RockID
	sample.RockType = req.RockType
	sample.Description = req.Description
	sample.Formation = req.Formation
	sample.OutcropID = req.OutcropID
	sample.LocationName = req.LocationName
	sample.Barangay = req.Barangay
	sample.Province = req.Province
	sample.Latitude = req.Latitude
	sample.Longitude = req.Longitude

	activity := &models.ActivityLog{
		UserID:       actor.UserID,
		SampleID:     &sample.ID,
		ActivityType: models.ActivityUpdated,
		Description:  fmt.Sprintf("Rock sample %s updated", sample.RockID),
	}

	if err := s.repo.Update(ctx, sample, images, activity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "sample not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update sample")
	}

	s.metrics.RecordLifecycleEvent(models.ActivityUpdated)
	s.invalidateCaches(ctx)
	return sample, nil
}

// Delete removes a sample with its images; its activity history stays.
func (s *SampleService) Delete(ctx context.Context, actor *models.JWTClaims, sampleID string) error {
	sample, err := s.loadVisible(ctx, actor, sampleID)
	if err != nil {
		return err
	}
	if !authz.CanDelete(actor, sample.UserID, sample.Status) {
		return appErrors.Clone(appErrors.ErrForbidden, "sample may not be deleted")
	}

	activity := &models.ActivityLog{
		UserID:       actor.UserID,
		ActivityType: models.ActivityDeleted,
		Description:  fmt.Sprintf("Rock sample %s deleted", sample.RockID),
	}

	if err := s.repo.Delete(ctx, sampleID, activity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "sample not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete sample")
	}

	s.metrics.RecordLifecycleEvent(models.ActivityDeleted)
	s.invalidateCaches(ctx)
	return nil
}

// Decide approves or rejects a pending sample. A sample that has already
// been decided reports a conflict; re-decision requires no path here, the
// first verdict stands.
func (s *SampleService) Decide(ctx context.Context, actor *models.JWTClaims, sampleID string, req dto.DecideRequest) (*models.RockSample, error) {
	if actor == nil || !authz.CanDecide(actor.Role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role may not verify samples")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}

	sample, err := s.loadVisible(ctx, actor, sampleID)
	if err != nil {
		return nil, err
	}
	if sample.Status != models.SampleStatusPending {
		return nil, appErrors.Clone(appErrors.ErrAlreadyDecided, "")
	}

	status := models.SampleStatusVerified
	action := models.ApprovalActionApproved
	if req.Action == "reject" {
		status = models.SampleStatusRejected
		action = models.ApprovalActionRejected
	}

	params := repository.DecideParams{
		SampleID:   sampleID,
		VerifierID: actor.UserID,
		Status:     status,
		Action:     action,
		Remarks:    req.Remarks,
	}
	if err := s.repo.Decide(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost the race: someone else decided between our read and the
			// guarded update.
			return nil, appErrors.Clone(appErrors.ErrAlreadyDecided, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}

	sample.Status = status
	verifier := actor.UserID
	sample.VerifiedBy = &verifier

	event := models.ActivityApproved
	if action == models.ApprovalActionRejected {
		event = models.ActivityRejected
	}
	s.metrics.RecordLifecycleEvent(event)
	s.invalidateCaches(ctx)
	return sample, nil
}

// Archive records the soft-delete side record for a sample.
func (s *SampleService) Archive(ctx context.Context, actor *models.JWTClaims, sampleID string, req dto.ArchiveRequest) error {
	if actor == nil || !authz.CanArchive(actor.Role) {
		return appErrors.Clone(appErrors.ErrForbidden, "role may not archive samples")
	}

	sample, err := s.loadVisible(ctx, actor, sampleID)
	if err != nil {
		return err
	}

	archive := &models.Archive{
		SampleID:   sample.ID,
		ArchivedBy: actor.UserID,
		Reason:     req.Reason,
	}
	activity := &models.ActivityLog{
		UserID:       actor.UserID,
		SampleID:     &sample.ID,
		ActivityType: models.ActivityArchived,
		Description:  fmt.Sprintf("Rock sample %s archived", sample.RockID),
	}

	if err := s.repo.Archive(ctx, archive, activity); err != nil {
		if errors.Is(err, repository.ErrDuplicateArchive) {
			return appErrors.Clone(appErrors.ErrAlreadyArchived, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive sample")
	}

	s.metrics.RecordLifecycleEvent(models.ActivityArchived)
	s.invalidateCaches(ctx)
	return nil
}

// Unarchive restores an archived sample to the active views. Admin only.
func (s *SampleService) Unarchive(ctx context.Context, actor *models.JWTClaims, sampleID string) error {
	if actor == nil || !authz.CanUnarchive(actor.Role) {
		return appErrors.Clone(appErrors.ErrForbidden, "role may not unarchive samples")
	}

	sample, err := s.loadVisible(ctx, actor, sampleID)
	if err != nil {
		return err
	}

	activity := &models.ActivityLog{
		UserID:       actor.UserID,
		SampleID:     &sample.ID,
		ActivityType: models.ActivityUnarchived,
		Description:  fmt.Sprintf("Rock sample %s unarchived", sample.RockID),
	}

	if err := s.repo.Unarchive(ctx, sampleID, activity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "sample is not archived")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unarchive sample")
	}

	s.metrics.RecordLifecycleEvent(models.ActivityUnarchived)
	s.invalidateCaches(ctx)
	return nil
}

// loadVisible fetches a sample, reporting not-found both when the row is
// missing and when the actor may not see it. The two cases must stay
// indistinguishable to callers.
func (s *SampleService) loadVisible(ctx context.Context, actor *models.JWTClaims, sampleID string) (*models.RockSample, error) {
	sample, err := s.repo.GetByID(ctx, sampleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "sample not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sample")
	}
	if !authz.CanRead(actor, sample.UserID, sample.Status) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "sample not found")
	}
	return sample, nil
}

func (s *SampleService) invalidateCaches(ctx context.Context) {
	for _, pattern := range []string{"catalog:*", "stats:*"} {
		_ = s.cache.Invalidate(ctx, pattern)
	}
}

func buildImages(uploads []dto.ImageUpload) ([]models.Image, error) {
	if len(uploads) == 0 {
		return nil, nil
	}
	images := make([]models.Image, 0, len(uploads))
	seen := make(map[models.ImageType]bool, len(uploads))
	for _, upload := range uploads {
		if !models.ValidImageType(upload.Type) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown image type %q", upload.Type))
		}
		if seen[upload.Type] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate image type %q", upload.Type))
		}
		seen[upload.Type] = true
		images = append(images, models.Image{
			ImageType: upload.Type,
			Data:      upload.Data,
			FileName:  upload.FileName,
			FileSize:  int64(len(upload.Data)),
			MimeType:  upload.MimeType,
		})
	}
	return images, nil
}
