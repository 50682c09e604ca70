package dashboard

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"tierguard/internal/audit"
	"tierguard/internal/constants"
	"tierguard/internal/logger"
	"tierguard/pkg/errors"
)

type Handler struct {
	service *Service
	logger  logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	} else {
		h.logger.WarnwCtx(c.Request.Context(), "Request rejected", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, errors.ToErrorResponse(err))
}

func (h *Handler) bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
			errors.ErrValidation.WithDetail("reason", err.Error()),
		))
		return false
	}
	return true
}

// moderator names who made a change; the dashboard sits behind a shared token.
func moderator(c *gin.Context) string {
	if m := strings.TrimSpace(c.GetHeader(constants.ModeratorHeader)); m != "" {
		return m
	}
	return constants.DefaultModerator
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/api/v1")
	{
		actions := v1.Group("/actions")
		{
			actions.GET("", h.ListActions)
			actions.GET("/recent", h.RecentActions)
			actions.GET("/export", h.ExportActions)
		}

		v1.GET("/stats", h.Stats)

		notes := v1.Group("/notes")
		{
			notes.GET("", h.ListNotes)
			notes.POST("", h.SaveNote)
			notes.GET("/:username", h.GetNote)
			notes.DELETE("/:username", h.DeleteNote)
		}

		cfg := v1.Group("/config")
		{
			cfg.GET("/:file", h.GetDocument)
			cfg.PUT("/:file", h.UpdateDocument)
			cfg.POST("/:file/restore", h.RestoreDocument)
		}

		v1.POST("/bans", h.Ban)

		items := v1.Group("/items")
		{
			items.POST("/bulk", h.BulkAction)
			items.POST("/:id/approve", h.ApproveItem)
			items.POST("/:id/remove", h.RemoveItem)
			items.POST("/:id/ignore-reports", h.IgnoreReports)
		}
	}
}

// ListActions godoc
// @Summary      List moderation actions
// @Description  Page through the audit log, newest first. search matches username or action type.
// @Tags         actions
// @Produce      json
// @Param        page    query     int     false  "Page number (from 1)"
// @Param        search  query     string  false  "Case-insensitive substring"
// @Success      200     {object}  ActionsPage
// @Failure      500     {object}  errors.ErrorResponse
// @Router       /actions [get]
func (h *Handler) ListActions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))

	result, err := h.service.ListActions(c.Request.Context(), page, c.Query("search"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RecentActions godoc
// @Summary      Latest moderation actions
// @Tags         actions
// @Produce      json
// @Success      200  {array}   audit.Record
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /actions/recent [get]
func (h *Handler) RecentActions(c *gin.Context) {
	records, err := h.service.RecentActions(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// ExportActions godoc
// @Summary      Export the audit log as CSV
// @Tags         actions
// @Produce      text/csv
// @Param        search  query  string  false  "Case-insensitive substring"
// @Success      200
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /actions/export [get]
func (h *Handler) ExportActions(c *gin.Context) {
	data, err := h.service.ExportActions(c.Request.Context(), c.Query("search"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+audit.ExportFilename)
	c.Data(http.StatusOK, "text/csv", data)
}

// Stats godoc
// @Summary      Action statistics
// @Description  Counts by type, by day and top users. Without both dates the daily series covers the last 30 days.
// @Tags         actions
// @Produce      json
// @Param        start_date  query     string  false  "YYYY-MM-DD"
// @Param        end_date    query     string  false  "YYYY-MM-DD, inclusive"
// @Success      200         {object}  StatsResponse
// @Failure      400         {object}  errors.ErrorResponse
// @Failure      500         {object}  errors.ErrorResponse
// @Router       /stats [get]
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListNotes godoc
// @Summary      List user notes
// @Tags         notes
// @Produce      json
// @Success      200  {array}   notes.Note
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /notes [get]
func (h *Handler) ListNotes(c *gin.Context) {
	list, err := h.service.ListNotes(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetNote godoc
// @Summary      Get the note for a user
// @Tags         notes
// @Produce      json
// @Param        username  path      string  true  "Username"
// @Success      200       {object}  notes.Note
// @Failure      404       {object}  errors.ErrorResponse
// @Router       /notes/{username} [get]
func (h *Handler) GetNote(c *gin.Context) {
	note, err := h.service.GetNote(c.Request.Context(), c.Param("username"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

// SaveNote godoc
// @Summary      Create or replace the note for a user
// @Tags         notes
// @Accept       json
// @Produce      json
// @Param        X-Moderator  header    string           false  "Acting moderator"
// @Param        note         body      SaveNoteRequest  true   "Note"
// @Success      200          {object}  notes.Note
// @Failure      400          {object}  errors.ErrorResponse
// @Router       /notes [post]
func (h *Handler) SaveNote(c *gin.Context) {
	var req SaveNoteRequest
	if !h.bindJSON(c, &req) {
		return
	}

	note, err := h.service.SaveNote(c.Request.Context(), req, moderator(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

// DeleteNote godoc
// @Summary      Delete the note for a user
// @Tags         notes
// @Param        username  path  string  true  "Username"
// @Success      204
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /notes/{username} [delete]
func (h *Handler) DeleteNote(c *gin.Context) {
	if err := h.service.DeleteNote(c.Request.Context(), c.Param("username"), moderator(c)); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetDocument godoc
// @Summary      Read a config document
// @Tags         config
// @Produce      json
// @Param        file  path      string  true  "automod or tiers"
// @Success      200   {object}  Document
// @Failure      404   {object}  errors.ErrorResponse
// @Router       /config/{file} [get]
func (h *Handler) GetDocument(c *gin.Context) {
	doc, err := h.service.GetDocument(c.Request.Context(), c.Param("file"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// UpdateDocument godoc
// @Summary      Replace a config document
// @Description  The content is validated first; the previous version is kept as the backup.
// @Tags         config
// @Accept       json
// @Produce      json
// @Param        file      path      string                 true  "automod or tiers"
// @Param        document  body      UpdateDocumentRequest  true  "YAML content"
// @Success      200       {object}  Document
// @Failure      400       {object}  errors.ErrorResponse
// @Failure      404       {object}  errors.ErrorResponse
// @Router       /config/{file} [put]
func (h *Handler) UpdateDocument(c *gin.Context) {
	var req UpdateDocumentRequest
	if !h.bindJSON(c, &req) {
		return
	}

	doc, err := h.service.UpdateDocument(c.Request.Context(), c.Param("file"), req.Content, moderator(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// RestoreDocument godoc
// @Summary      Restore a config document from its backup
// @Tags         config
// @Produce      json
// @Param        file  path      string  true  "automod or tiers"
// @Success      200   {object}  Document
// @Failure      404   {object}  errors.ErrorResponse
// @Router       /config/{file}/restore [post]
func (h *Handler) RestoreDocument(c *gin.Context) {
	doc, err := h.service.RestoreDocument(c.Request.Context(), c.Param("file"), moderator(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Ban godoc
// @Summary      Ban a user
// @Description  duration is 1-999 days; omit it for a permanent ban.
// @Tags         moderation
// @Accept       json
// @Produce      json
// @Param        X-Moderator  header    string      false  "Acting moderator"
// @Param        ban          body      BanRequest  true   "Ban"
// @Success      201          {object}  audit.Record
// @Failure      400          {object}  errors.ErrorResponse
// @Failure      502          {object}  errors.ErrorResponse
// @Router       /bans [post]
func (h *Handler) Ban(c *gin.Context) {
	var req BanRequest
	if !h.bindJSON(c, &req) {
		return
	}

	rec, err := h.service.Ban(c.Request.Context(), req, moderator(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// ApproveItem godoc
// @Summary      Approve a submission or comment
// @Tags         moderation
// @Param        id  path  string  true  "Item id or fullname"
// @Success      204
// @Failure      502  {object}  errors.ErrorResponse
// @Router       /items/{id}/approve [post]
func (h *Handler) ApproveItem(c *gin.Context) {
	if err := h.service.Approve(c.Request.Context(), c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveItem godoc
// @Summary      Remove a submission or comment
// @Tags         moderation
// @Accept       json
// @Param        id      path  string             true   "Item id or fullname"
// @Param        remove  body  RemoveItemRequest  false  "Removal options"
// @Success      204
// @Failure      502  {object}  errors.ErrorResponse
// @Router       /items/{id}/remove [post]
func (h *Handler) RemoveItem(c *gin.Context) {
	var req RemoveItemRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}

	if err := h.service.RemoveItem(c.Request.Context(), c.Param("id"), req); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// IgnoreReports godoc
// @Summary      Approve an item and ignore further reports
// @Tags         moderation
// @Param        id  path  string  true  "Item id or fullname"
// @Success      204
// @Failure      502  {object}  errors.ErrorResponse
// @Router       /items/{id}/ignore-reports [post]
func (h *Handler) IgnoreReports(c *gin.Context) {
	if err := h.service.IgnoreReports(c.Request.Context(), c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// BulkAction godoc
// @Summary      Apply one action to many items
// @Tags         moderation
// @Accept       json
// @Produce      json
// @Param        bulk  body      BulkRequest  true  "approve, remove or ignore_reports"
// @Success      200   {object}  BulkResponse
// @Failure      400   {object}  errors.ErrorResponse
// @Router       /items/bulk [post]
func (h *Handler) BulkAction(c *gin.Context) {
	var req BulkRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.service.Bulk(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
