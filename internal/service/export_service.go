package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/litholog/rock-registry-api/internal/authz"
	"github.com/litholog/rock-registry-api/internal/dto"
	"github.com/litholog/rock-registry-api/internal/models"
	appErrors "github.com/litholog/rock-registry-api/pkg/errors"
	"github.com/litholog/rock-registry-api/pkg/export"
)

type exportStorage interface {
	Save(filename string, data []byte) (string, error)
}

type exportSigner interface {
	Generate(exportID, relPath string) (string, time.Time, error)
}

type exportImageLoader interface {
	GetBySampleAndType(ctx context.Context, sampleID string, imageType models.ImageType) (*models.Image, error)
}

// ExportService renders the actor's visible catalog into CSV tables or PDF
// field sheets and hands back a signed download token. Exports run in the
// request; the result file lives under the export storage dir until cleanup.
type ExportService struct {
	samples sampleQueryRepository
	images  exportImageLoader
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	storage exportStorage
	signer  exportSigner
	logger  *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(samples sampleQueryRepository, images exportImageLoader, storage exportStorage, signer exportSigner, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		samples: samples,
		images:  images,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		storage: storage,
		signer:  signer,
		logger:  logger,
	}
}

// exportColumns is the fixed column order of every export. The school_id
// column is appended for admin exports only.
var exportColumns = []string{
	"rock_index", "rock_id", "rock_type", "description", "formation",
	"location_name", "barangay", "province", "latitude", "longitude",
	"has_specimen_image", "has_outcrop_image",
	"submitted_by", "verified_by", "status", "created_at", "updated_at",
}

// Generate renders the export for the actor's scope and filters.
func (s *ExportService) Generate(ctx context.Context, actor *models.JWTClaims, query dto.ExportQuery) (*dto.ExportResponse, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}

	format := query.Format
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "pdf" {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown export format %q", format))
	}

	scope := authz.Scope(query.Scope)
	if scope == "" {
		scope = authz.ScopeCatalog
	}
	filter, ok := authz.ScopeFilter(actor, scope)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("scope %q not permitted", scope))
	}
	filter.Search = query.Search
	filter.RockType = query.RockType
	filter.Location = query.Location
	if query.DateFrom != "" {
		from, err := time.Parse("2006-01-02", query.DateFrom)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "date_from must be YYYY-MM-DD")
		}
		filter.DateFrom = &from
	}
	if query.DateTo != "" {
		to, err := time.Parse("2006-01-02", query.DateTo)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "date_to must be YYYY-MM-DD")
		}
		filter.DateTo = &to
	}
	if query.Status != "" && filter.Status == "" && filter.OwnerOrVerified == "" {
		switch status := models.SampleStatus(query.Status); status {
		case models.SampleStatusPending, models.SampleStatusVerified, models.SampleStatusRejected:
			filter.Status = status
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", query.Status))
		}
	}

	rows, err := s.samples.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export rows")
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	flags, err := s.samples.ImageFlags(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load image flags")
	}

	dataset := s.buildDataset(ctx, actor, rows, flags, format == "pdf")

	var payload []byte
	switch format {
	case "csv":
		payload, err = s.csv.Render(dataset)
	case "pdf":
		payload, err = s.pdf.Render(dataset, "Rock Sample Field Sheet")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	exportID := uuid.NewString()
	fileName := fmt.Sprintf("rock-samples-%s-%s.%s", time.Now().UTC().Format("20060102-150405"), exportID[:8], format)
	relPath, err := s.storage.Save(fileName, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}

	return &dto.ExportResponse{
		ExportID:  exportID,
		Format:    format,
		FileName:  fileName,
		Token:     token,
		URL:       fmt.Sprintf("/api/v1/exports/download?token=%s", token),
		RowCount:  len(rows),
		ExpiresAt: expiresAt,
	}, nil
}

func (s *ExportService) buildDataset(ctx context.Context, actor *models.JWTClaims, rows []models.SampleRow, flags map[string]map[models.ImageType]bool, withImages bool) export.Dataset {
	headers := append([]string{}, exportColumns...)
	isAdmin := actor.Role == models.RoleAdmin
	if isAdmin {
		headers = append(headers, "school_id")
	}

	dataset := export.Dataset{Headers: headers}
	for _, row := range rows {
		hasSpecimen := flags[row.ID][models.ImageTypeSpecimen]
		hasOutcrop := flags[row.ID][models.ImageTypeOutcrop]

		cells := map[string]string{
			"rock_index":         row.RockIndex,
			"rock_id":            row.RockID,
			"rock_type":          row.RockType,
			"description":        row.Description,
			"formation":          row.Formation,
			"location_name":      row.LocationName,
			"barangay":           row.Barangay,
			"province":           row.Province,
			"latitude":           formatCoord(row.Latitude),
			"longitude":          formatCoord(row.Longitude),
			"has_specimen_image": strconv.FormatBool(hasSpecimen),
			"has_outcrop_image":  strconv.FormatBool(hasOutcrop),
			"submitted_by":       row.SubmittedByName,
			"verified_by":        derefString(row.VerifiedByName),
			"status":             string(row.Status),
			"created_at":         row.CreatedAt.UTC().Format(time.RFC3339),
			"updated_at":         row.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if isAdmin {
			cells["school_id"] = derefString(row.SchoolID)
		}
		dataset.Rows = append(dataset.Rows, cells)

		images := map[string][]byte{}
		if withImages && hasSpecimen {
			if img, err := s.images.GetBySampleAndType(ctx, row.ID, models.ImageTypeSpecimen); err == nil {
				images["has_specimen_image"] = img.Data
			} else {
				s.logger.Warn("failed to load specimen image for export", zap.String("sample_id", row.ID), zap.Error(err))
			}
		}
		if withImages && hasOutcrop {
			if img, err := s.images.GetBySampleAndType(ctx, row.ID, models.ImageTypeOutcrop); err == nil {
				images["has_outcrop_image"] = img.Data
			} else {
				s.logger.Warn("failed to load outcrop image for export", zap.String("sample_id", row.ID), zap.Error(err))
			}
		}
		dataset.Images = append(dataset.Images, images)
	}
	return dataset
}

func formatCoord(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
