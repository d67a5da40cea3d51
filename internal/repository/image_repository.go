package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/litholog/rock-registry-api/internal/models"
)

// ImageRepository reads sample image rows. Writes go through the sample
// lifecycle transactions in SampleRepository.
type ImageRepository struct {
	db *sqlx.DB
}

// NewImageRepository constructs the repository.
func NewImageRepository(db *sqlx.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// GetByID returns an image with its blob.
func (r *ImageRepository) GetByID(ctx context.Context, id string) (*models.Image, error) {
	const query = `SELECT id, sample_id, image_type, data, file_name, file_size, mime_type, created_at FROM images WHERE id = $1 LIMIT 1`
	var image models.Image
	if err := r.db.GetContext(ctx, &image, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find image by id: %w", err)
	}
	return &image, nil
}

// GetBySampleAndType returns one image slot with its blob.
func (r *ImageRepository) GetBySampleAndType(ctx context.Context, sampleID string, imageType models.ImageType) (*models.Image, error) {
	const query = `SELECT id, sample_id, image_type, data, file_name, file_size, mime_type, created_at FROM images WHERE sample_id = $1 AND image_type = $2 LIMIT 1`
	var image models.Image
	if err := r.db.GetContext(ctx, &image, query, sampleID, imageType); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find image by sample and type: %w", err)
	}
	return &image, nil
}

// ListMetaBySample returns blob-free image metadata for a sample.
func (r *ImageRepository) ListMetaBySample(ctx context.Context, sampleID string) ([]models.ImageMeta, error) {
	const query = `SELECT id, sample_id, image_type, file_name, file_size, mime_type, created_at FROM images WHERE sample_id = $1 ORDER BY image_type`
	var metas []models.ImageMeta
	if err := r.db.SelectContext(ctx, &metas, query, sampleID); err != nil {
		return nil, fmt.Errorf("list image meta: %w", err)
	}
	return metas, nil
}
