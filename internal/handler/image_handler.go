package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/litholog/rock-registry-api/internal/models"
	"github.com/litholog/rock-registry-api/internal/service"
	"github.com/litholog/rock-registry-api/pkg/response"
)

// ImageHandler serves stored sample image blobs.
type ImageHandler struct {
	service *service.ImageService
}

// NewImageHandler creates a new handler.
func NewImageHandler(svc *service.ImageService) *ImageHandler {
	return &ImageHandler{service: svc}
}

// Get godoc
// @Summary Serve an image by ID
// @Tags Images
// @Produce octet-stream
// @Param id path string true "Image ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /images/{id} [get]
func (h *ImageHandler) Get(c *gin.Context) {
	image, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveImage(c, image)
}

// GetSlot godoc
// @Summary Serve a sample's image for one slot
// @Tags Images
// @Produce octet-stream
// @Param id path string true "Sample ID"
// @Param type path string true "SPECIMEN or OUTCROP"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /samples/{id}/images/{type} [get]
func (h *ImageHandler) GetSlot(c *gin.Context) {
	image, err := h.service.GetSlot(c.Request.Context(), claimsFromContext(c),
		c.Param("id"), models.ImageType(c.Param("type")))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveImage(c, image)
}

func serveImage(c *gin.Context, image *models.Image) {
	contentType := image.MimeType
	if contentType == "" {
		contentType = http.DetectContentType(image.Data)
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", image.FileName))
	c.Data(http.StatusOK, contentType, image.Data)
}
