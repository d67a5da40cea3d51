package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/litholog/rock-registry-api/internal/authz"
	"github.com/litholog/rock-registry-api/internal/models"
	appErrors "github.com/litholog/rock-registry-api/pkg/errors"
)

type imageBlobRepository interface {
	GetByID(ctx context.Context, id string) (*models.Image, error)
	GetBySampleAndType(ctx context.Context, sampleID string, imageType models.ImageType) (*models.Image, error)
}

type sampleLookup interface {
	GetByID(ctx context.Context, id string) (*models.RockSample, error)
}

// ImageService serves sample image blobs with the same visibility masking as
// the sample itself: an image of an invisible sample is a 404.
type ImageService struct {
	images  imageBlobRepository
	samples sampleLookup
	logger  *zap.Logger
}

// NewImageService constructs an ImageService.
func NewImageService(images imageBlobRepository, samples sampleLookup, logger *zap.Logger) *ImageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageService{images: images, samples: samples, logger: logger}
}

// Get returns an image blob by id, enforcing sample visibility.
func (s *ImageService) Get(ctx context.Context, actor *models.JWTClaims, imageID string) (*models.Image, error) {
	image, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "image not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load image")
	}
	if err := s.checkSampleVisible(ctx, actor, image.SampleID); err != nil {
		return nil, err
	}
	return image, nil
}

// GetSlot returns one of a sample's image slots, enforcing sample visibility.
func (s *ImageService) GetSlot(ctx context.Context, actor *models.JWTClaims, sampleID string, imageType models.ImageType) (*models.Image, error) {
	if !models.ValidImageType(imageType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown image type")
	}
	if err := s.checkSampleVisible(ctx, actor, sampleID); err != nil {
		return nil, err
	}

	image, err := s.images.GetBySampleAndType(ctx, sampleID, imageType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "image not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load image")
	}
	return image, nil
}

func (s *ImageService) checkSampleVisible(ctx context.Context, actor *models.JWTClaims, sampleID string) error {
	sample, err := s.samples.GetByID(ctx, sampleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "image not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sample")
	}
	if !authz.CanRead(actor, sample.UserID, sample.Status) {
		return appErrors.Clone(appErrors.ErrNotFound, "image not found")
	}
	return nil
}
