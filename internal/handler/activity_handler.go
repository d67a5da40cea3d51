package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/litholog/rock-registry-api/internal/dto"
	"github.com/litholog/rock-registry-api/internal/service"
	appErrors "github.com/litholog/rock-registry-api/pkg/errors"
	"github.com/litholog/rock-registry-api/pkg/response"
)

// ActivityHandler wires the activity trail and archive listing endpoints.
type ActivityHandler struct {
	service *service.ActivityService
}

// NewActivityHandler creates a new handler.
func NewActivityHandler(svc *service.ActivityService) *ActivityHandler {
	return &ActivityHandler{service: svc}
}

// ListActivity godoc
// @Summary List activity log entries
// @Description Students see their own trail, staff see everyone's
// @Tags Activity
// @Produce json
// @Param type query string false "Activity type filter"
// @Param search query string false "Description or actor name search"
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /activity [get]
func (h *ActivityHandler) ListActivity(c *gin.Context) {
	var query dto.ActivityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}

	rows, pagination, err := h.service.ListActivity(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, rows, pagination)
}

// ListArchives godoc
// @Summary List archived samples
// @Tags Activity
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Rows per page"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /archives [get]
func (h *ActivityHandler) ListArchives(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	rows, pagination, err := h.service.ListArchives(c.Request.Context(), claimsFromContext(c), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, rows, pagination)
}
