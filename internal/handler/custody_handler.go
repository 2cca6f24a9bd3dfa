package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fleetdesk/custody-api/internal/dto"
	"github.com/fleetdesk/custody-api/internal/models"
	"github.com/fleetdesk/custody-api/internal/service"
	appErrors "github.com/fleetdesk/custody-api/pkg/errors"
	"github.com/fleetdesk/custody-api/pkg/response"
)

// CustodyHandler exposes the custody transaction workflow endpoints.
type CustodyHandler struct {
	service *service.CustodyService
	exports *service.ExportService
}

// NewCustodyHandler constructs a custody handler.
func NewCustodyHandler(svc *service.CustodyService, exports *service.ExportService) *CustodyHandler {
	return &CustodyHandler{service: svc, exports: exports}
}

// Create godoc
// @Summary Open a draft custody transaction
// @Tags Custody
// @Accept json
// @Produce json
// @Param payload body dto.CreateCustodyRequest true "Custody payload"
// @Success 201 {object} response.Envelope
// @Router /custodies [post]
func (h *CustodyHandler) Create(c *gin.Context) {
	var req dto.CreateCustodyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	tx, err := h.service.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, tx)
}

// List godoc
// @Summary List custody transactions
// @Tags Custody
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param reasonCode query string false "Reason code"
// @Param branchCode query string false "Branch code"
// @Param customerId query string false "Customer ID"
// @Param search query string false "Search keyword"
// @Param from query string false "Created from (RFC3339)"
// @Param to query string false "Created to (RFC3339)"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /custodies [get]
func (h *CustodyHandler) List(c *gin.Context) {
	filter, err := bindCustodyFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	transactions, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transactions, pagination)
}

// Get godoc
// @Summary Get custody transaction detail
// @Tags Custody
// @Produce json
// @Param id path string true "Custody ID"
// @Success 200 {object} response.Envelope
// @Router /custodies/{id} [get]
func (h *CustodyHandler) Get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Delete godoc
// @Summary Delete a draft custody transaction
// @Tags Custody
// @Produce json
// @Param id path string true "Custody ID"
// @Success 204
// @Router /custodies/{id} [delete]
func (h *CustodyHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Submit godoc
// @Summary Submit a draft for approval
// @Tags Custody
// @Produce json
// @Param id path string true "Custody ID"
// @Success 200 {object} response.Envelope
// @Router /custodies/{id}/submit [post]
func (h *CustodyHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	tx, err := h.service.Submit(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tx, nil)
}

// Approve godoc
// @Summary Record an approval verdict
// @Tags Custody
// @Accept json
// @Produce json
// @Param id path string true "Custody ID"
// @Param payload body dto.DecisionRequest false "Approval notes"
// @Success 200 {object} response.Envelope
// @Router /custodies/{id}/approve [post]
func (h *CustodyHandler) Approve(c *gin.Context) {
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	tx, err := h.service.Approve(c.Request.Context(), c.Param("id"), claims.UserID, req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tx, nil)
}

// Reject godoc
// @Summary Record a rejection verdict
// @Tags Custody
// @Accept json
// @Produce json
// @Param id path string true "Custody ID"
// @Param payload body dto.RejectRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /custodies/{id}/reject [post]
func (h *CustodyHandler) Reject(c *gin.Context) {
	var req dto.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	tx, err := h.service.Reject(c.Request.Context(), c.Param("id"), claims.UserID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tx, nil)
}

// Activate godoc
// @Summary Record replacement vehicle handover
// @Tags Custody
// @Accept json
// @Produce json
// @Param id path string true "Custody ID"
// @Param payload body dto.ActivateRequest false "Handover payload"
// @Success 200 {object} response.Envelope
// @Router /custodies/{id}/activate [post]
func (h *CustodyHandler) Activate(c *gin.Context) {
	var req dto.ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	tx, err := h.service.Activate(c.Request.Context(), c.Param("id"), claims.UserID, req.ReplacementVehicleID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tx, nil)
}

// RecordReturn godoc
// @Summary Record the vehicle return date
// @Tags Custody
// @Accept json
// @Produce json
// @Param id path string true "Custody ID"
// @Param payload body dto.ReturnRequest true "Return payload"
// @Success 200 {object} response.Envelope
// @Router /custodies/{id}/return [post]
func (h *CustodyHandler) RecordReturn(c *gin.Context) {
	var req dto.ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	tx, err := h.service.RecordReturn(c.Request.Context(), c.Param("id"), req.ActualReturnDate, req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tx, nil)
}

// Close godoc
// @Summary Close an active custody transaction
// @Tags Custody
// @Accept json
// @Produce json
// @Param id path string true "Custody ID"
// @Param payload body dto.CloseRequest false "Close payload"
// @Success 200 {object} response.Envelope
// @Router /custodies/{id}/close [post]
func (h *CustodyHandler) Close(c *gin.Context) {
	var req dto.CloseRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	tx, err := h.service.Close(c.Request.Context(), c.Param("id"), claims.UserID, req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tx, nil)
}

// Void godoc
// @Summary Void a custody transaction
// @Tags Custody
// @Accept json
// @Produce json
// @Param id path string true "Custody ID"
// @Param payload body dto.VoidRequest true "Void reason"
// @Success 200 {object} response.Envelope
// @Router /custodies/{id}/void [post]
func (h *CustodyHandler) Void(c *gin.Context) {
	var req dto.VoidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	tx, err := h.service.Void(c.Request.Context(), c.Param("id"), req.Reason, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tx, nil)
}

// AttachDocument godoc
// @Summary Attach paperwork to a custody transaction
// @Tags Custody
// @Accept json
// @Produce json
// @Param id path string true "Custody ID"
// @Param payload body dto.AttachDocumentRequest true "Document payload"
// @Success 201 {object} response.Envelope
// @Router /custodies/{id}/documents [post]
func (h *CustodyHandler) AttachDocument(c *gin.Context) {
	var req dto.AttachDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	doc, err := h.service.AttachDocument(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// ListDocuments godoc
// @Summary List documents on a custody transaction
// @Tags Custody
// @Produce json
// @Param id path string true "Custody ID"
// @Success 200 {object} response.Envelope
// @Router /custodies/{id}/documents [get]
func (h *CustodyHandler) ListDocuments(c *gin.Context) {
	docs, err := h.service.Documents(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// Stats godoc
// @Summary Aggregate custody statistics for a period
// @Tags Custody
// @Produce json
// @Param from query string false "Period start (RFC3339)"
// @Param to query string false "Period end (RFC3339)"
// @Success 200 {object} response.Envelope
// @Router /custodies/stats [get]
func (h *CustodyHandler) Stats(c *gin.Context) {
	var query dto.StatsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	now := time.Now().UTC()
	from := now.AddDate(0, -1, 0)
	to := now
	if query.From != "" {
		parsed, err := parseTimeParam(query.From)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid from timestamp"))
			return
		}
		from = parsed
	}
	if query.To != "" {
		parsed, err := parseTimeParam(query.To)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid to timestamp"))
			return
		}
		to = parsed
	}
	stats, err := h.service.Stats(c.Request.Context(), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Export godoc
// @Summary Export custody transactions as CSV or PDF
// @Tags Custody
// @Produce octet-stream
// @Param format query string false "csv or pdf (default csv)"
// @Param status query string false "Comma separated statuses"
// @Param from query string false "Created from (RFC3339)"
// @Param to query string false "Created to (RFC3339)"
// @Success 200 {file} binary
// @Router /custodies/export [get]
func (h *CustodyHandler) Export(c *gin.Context) {
	filter, err := bindCustodyFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := service.ExportFormat(strings.ToLower(c.DefaultQuery("format", "csv")))
	file, err := h.exports.Generate(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
	c.Data(http.StatusOK, file.ContentType, file.Payload)
}

func bindCustodyFilter(c *gin.Context) (models.CustodyFilter, error) {
	var query dto.CustodyQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		return models.CustodyFilter{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query")
	}

	filter := models.CustodyFilter{
		ReasonCode: models.ReasonCode(query.ReasonCode),
		BranchCode: query.BranchCode,
		CustomerID: query.CustomerID,
		Search:     strings.TrimSpace(query.Search),
		Page:       query.Page,
		PageSize:   query.PageSize,
	}
	for _, raw := range strings.Split(query.Status, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		filter.Status = append(filter.Status, models.CustodyStatus(strings.ToUpper(raw)))
	}
	if query.From != "" {
		from, err := parseTimeParam(query.From)
		if err != nil {
			return models.CustodyFilter{}, appErrors.Clone(appErrors.ErrValidation, "invalid from timestamp")
		}
		filter.From = &from
	}
	if query.To != "" {
		to, err := parseTimeParam(query.To)
		if err != nil {
			return models.CustodyFilter{}, appErrors.Clone(appErrors.ErrValidation, "invalid to timestamp")
		}
		filter.To = &to
	}
	return filter, nil
}

func parseTimeParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
