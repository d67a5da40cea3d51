package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/litholog/rock-registry-api/internal/dto"
	"github.com/litholog/rock-registry-api/internal/models"
	"github.com/litholog/rock-registry-api/internal/service"
	appErrors "github.com/litholog/rock-registry-api/pkg/errors"
	"github.com/litholog/rock-registry-api/pkg/response"
)

// UploadLimits bounds the multipart image slots.
type UploadLimits struct {
	MaxImageBytes int64
	AllowedMIMEs  map[string]bool
}

// SampleHandler wires the sample lifecycle and catalog endpoints.
type SampleHandler struct {
	samples *service.SampleService
	catalog *service.CatalogService
	limits  UploadLimits
}

// NewSampleHandler creates a new handler.
func NewSampleHandler(samples *service.SampleService, catalog *service.CatalogService, limits UploadLimits) *SampleHandler {
	if limits.MaxImageBytes <= 0 {
		limits.MaxImageBytes = 16 << 20
	}
	if len(limits.AllowedMIMEs) == 0 {
		limits.AllowedMIMEs = map[string]bool{"image/jpeg": true, "image/png": true}
	}
	return &SampleHandler{samples: samples, catalog: catalog, limits: limits}
}

// imageFormFields maps multipart field names to image slots.
var imageFormFields = map[string]models.ImageType{
	"specimen_image": models.ImageTypeSpecimen,
	"outcrop_image":  models.ImageTypeOutcrop,
}

// Create godoc
// @Summary Submit a rock sample
// @Description Students enter the pending queue; personnel and admin submissions are verified immediately
// @Tags Samples
// @Accept mpfd
// @Produce json
// @Param rock_id formData string true "Rock identifier"
// @Param rock_type formData string true "Rock type"
// @Param location_name formData string true "Location name"
// @Param specimen_image formData file false "Specimen photo"
// @Param outcrop_image formData file false "Outcrop photo"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /samples [post]
func (h *SampleHandler) Create(c *gin.Context) {
	var req dto.CreateSampleRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid sample payload"))
		return
	}

	images, err := h.parseImageUploads(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	req.Images = images

	sample, err := h.samples.Submit(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, sample)
}

// List godoc
// @Summary List samples for a scope
// @Tags Samples
// @Produce json
// @Param scope query string false "mine|catalog|review|all"
// @Param search query string false "Free text search"
// @Param rock_type query string false "Rock type filter"
// @Param location query string false "Location filter"
// @Param status query string false "Status filter where the scope allows it"
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /samples [get]
func (h *SampleHandler) List(c *gin.Context) {
	var query dto.SampleQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}

	rows, pagination, err := h.catalog.List(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, rows, pagination)
}

// Detail godoc
// @Summary Get one sample with images and decision history
// @Tags Samples
// @Produce json
// @Param id path string true "Sample ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /samples/{id} [get]
func (h *SampleHandler) Detail(c *gin.Context) {
	detail, err := h.catalog.Detail(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Update godoc
// @Summary Edit a sample
// @Tags Samples
// @Accept mpfd
// @Produce json
// @Param id path string true "Sample ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /samples/{id} [put]
func (h *SampleHandler) Update(c *gin.Context) {
	var req dto.UpdateSampleRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid sample payload"))
		return
	}

	images, err := h.parseImageUploads(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	req.Images = images

	sample, err := h.samples.Edit(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, sample, nil)
}

// Delete godoc
// @Summary Delete a sample
// @Tags Samples
// @Produce json
// @Param id path string true "Sample ID"
// @Success 204 "No Content"
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /samples/{id} [delete]
func (h *SampleHandler) Delete(c *gin.Context) {
	if err := h.samples.Delete(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Decide godoc
// @Summary Approve or reject a pending sample
// @Tags Samples
// @Accept json
// @Produce json
// @Param id path string true "Sample ID"
// @Param payload body dto.DecideRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /samples/{id}/decision [post]
func (h *SampleHandler) Decide(c *gin.Context) {
	var req dto.DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}

	sample, err := h.samples.Decide(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, sample, nil)
}

// Archive godoc
// @Summary Archive a sample
// @Tags Samples
// @Accept json
// @Produce json
// @Param id path string true "Sample ID"
// @Param payload body dto.ArchiveRequest true "Archive payload"
// @Success 204 "No Content"
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /samples/{id}/archive [post]
func (h *SampleHandler) Archive(c *gin.Context) {
	var req dto.ArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid archive payload"))
		return
	}

	if err := h.samples.Archive(c.Request.Context(), claimsFromContext(c), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Unarchive godoc
// @Summary Restore an archived sample
// @Tags Samples
// @Produce json
// @Param id path string true "Sample ID"
// @Success 204 "No Content"
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /samples/{id}/archive [delete]
func (h *SampleHandler) Unarchive(c *gin.Context) {
	if err := h.samples.Unarchive(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Facets godoc
// @Summary Distinct rock types and locations of the verified catalog
// @Tags Samples
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /samples/facets [get]
func (h *SampleHandler) Facets(c *gin.Context) {
	facets, err := h.catalog.Facets(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, facets, nil)
}

// Stats godoc
// @Summary Dashboard submission counters
// @Tags Samples
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /dashboard/stats [get]
func (h *SampleHandler) Stats(c *gin.Context) {
	stats, err := h.catalog.DashboardStats(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// MapPoints godoc
// @Summary Coordinate-bearing samples for map views
// @Tags Samples
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /samples/map [get]
func (h *SampleHandler) MapPoints(c *gin.Context) {
	var query dto.SampleQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}

	points, err := h.catalog.MapPoints(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, points, nil)
}

// parseImageUploads reads the optional multipart image slots, enforcing the
// size cap and MIME allow-list before anything reaches the service layer.
func (h *SampleHandler) parseImageUploads(c *gin.Context) ([]dto.ImageUpload, error) {
	if c.ContentType() != "multipart/form-data" {
		return nil, nil
	}

	var uploads []dto.ImageUpload
	for field, imageType := range imageFormFields {
		fileHeader, err := c.FormFile(field)
		if err != nil {
			continue
		}
		upload, err := h.readUpload(fileHeader, imageType)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, *upload)
	}
	return uploads, nil
}

func (h *SampleHandler) readUpload(fileHeader *multipart.FileHeader, imageType models.ImageType) (*dto.ImageUpload, error) {
	if fileHeader.Size > h.limits.MaxImageBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("%s exceeds the %d byte limit", fileHeader.Filename, h.limits.MaxImageBytes))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read uploaded file")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.limits.MaxImageBytes+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read uploaded file")
	}
	if int64(len(data)) > h.limits.MaxImageBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("%s exceeds the %d byte limit", fileHeader.Filename, h.limits.MaxImageBytes))
	}

	mimeType := http.DetectContentType(data)
	if idx := strings.Index(mimeType, ";"); idx > 0 {
		mimeType = mimeType[:idx]
	}
	if !h.limits.AllowedMIMEs[mimeType] {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported image type %s", mimeType))
	}

	return &dto.ImageUpload{
		Type:     imageType,
		FileName: fileHeader.Filename,
		MimeType: mimeType,
		Data:     data,
	}, nil
}
