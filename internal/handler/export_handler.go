package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/litholog/rock-registry-api/internal/dto"
	"github.com/litholog/rock-registry-api/internal/service"
	appErrors "github.com/litholog/rock-registry-api/pkg/errors"
	"github.com/litholog/rock-registry-api/pkg/response"
	"github.com/litholog/rock-registry-api/pkg/storage"
)

// ExportHandler wires the export generation and signed download endpoints.
type ExportHandler struct {
	service *service.ExportService
	storage *storage.LocalStorage
	signer  *storage.SignedURLSigner
}

// NewExportHandler creates a new handler.
func NewExportHandler(svc *service.ExportService, store *storage.LocalStorage, signer *storage.SignedURLSigner) *ExportHandler {
	return &ExportHandler{service: svc, storage: store, signer: signer}
}

// Generate godoc
// @Summary Export samples to CSV or PDF
// @Tags Exports
// @Produce json
// @Param format query string false "csv or pdf"
// @Param scope query string false "mine|catalog|review|all"
// @Param search query string false "Free text search"
// @Param rock_type query string false "Rock type filter"
// @Param location query string false "Location filter"
// @Param status query string false "Status filter where the scope allows it"
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /exports [post]
func (h *ExportHandler) Generate(c *gin.Context) {
	var query dto.ExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}

	result, err := h.service.Generate(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// Download godoc
// @Summary Download a generated export by its signed token
// @Description The token authenticates on its own, no bearer token needed
// @Tags Exports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	_, relPath, _, err := h.signer.Parse(token, false)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrForbidden.Code, http.StatusForbidden, "invalid or expired download token"))
		return
	}

	file, err := h.storage.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "export file no longer exists"))
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to stat export file"))
		return
	}

	contentType := "application/octet-stream"
	switch strings.ToLower(filepath.Ext(relPath)) {
	case ".csv":
		contentType = "text/csv"
	case ".pdf":
		contentType = "application/pdf"
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(relPath)))
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}
