package http

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-sql/civil"
	"github.com/samber/lo"

	"github.com/garyjia/expense-attest/internal/domain/entity"
	"github.com/garyjia/expense-attest/internal/export"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// CreateReportRequest is the body of POST /api/expenses
type CreateReportRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Amount      *entity.Amount `json:"amount"`
	Date        civil.Date     `json:"date"`
	Receipts    []string       `json:"receipts"`

	// Submit creates and submits in one step; otherwise a draft is stored
	Submit            bool              `json:"submit"`
	EmployeeSignature *entity.Signature `json:"employeeSignature,omitempty"`
}

// SignatureRequest is the optional body of the signing transitions
type SignatureRequest struct {
	Signature *entity.Signature `json:"signature,omitempty"`
}

// RejectRequest is the body of POST /api/expenses/:id/reject
type RejectRequest struct {
	Reason string `json:"reason"`
}

// ListReportsRequest represents query parameters for listing reports
type ListReportsRequest struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// PayloadResponse carries the exact bytes a client signs for a step
type PayloadResponse struct {
	Step          string `json:"step"`
	SignedAt      string `json:"signedAt"`
	Payload       string `json:"payload"`
	PayloadBase64 string `json:"payloadBase64"`
}

// HistoryResponse represents one approval history entry
type HistoryResponse struct {
	ID             int64  `json:"id"`
	Actor          string `json:"actor"`
	Role           string `json:"role"`
	Action         string `json:"action"`
	PreviousStatus string `json:"previousStatus"`
	NewStatus      string `json:"newStatus"`
	Detail         string `json:"detail,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	status := http.StatusOK
	if h.services.Health != nil {
		healthy, details := h.services.Health(c.Request.Context())
		response.Components = details
		if !healthy {
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{
		Success: status == http.StatusOK,
		Data:    response,
	})
}

// ListReports handles GET /api/expenses
func (h *Handlers) ListReports(c *gin.Context) {
	var req ListReportsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: invalid query parameters: %v", entity.ErrInvalidReport, err))
		return
	}

	filter := entity.ReportFilter{
		Status: entity.Status(req.Status),
		Limit:  req.Limit,
		Offset: req.Offset,
	}
	if req.Status != "" && !filter.Status.IsValid() {
		h.fail(c, fmt.Errorf("%w: unknown status %q", entity.ErrInvalidReport, req.Status))
		return
	}
	if req.Offset < 0 {
		filter.Offset = 0
	}

	reports, err := h.services.Approval.List(c.Request.Context(), actorFrom(c), filter)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    lo.Ternary(reports == nil, []*entity.ExpenseReport{}, reports),
	})
}

// CreateReport handles POST /api/expenses
func (h *Handlers) CreateReport(c *gin.Context) {
	var req CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: invalid request body: %v", entity.ErrInvalidReport, err))
		return
	}

	if req.Amount == nil {
		h.fail(c, fmt.Errorf("%w: amount is required", entity.ErrInvalidReport))
		return
	}

	in := entity.ReportInput{
		Title:       req.Title,
		Description: req.Description,
		Amount:      *req.Amount,
		Date:        req.Date,
		Receipts:    req.Receipts,
	}

	var (
		report *entity.ExpenseReport
		err    error
	)
	if req.Submit {
		report, err = h.services.Approval.Submit(c.Request.Context(), actorFrom(c), in, req.EmployeeSignature)
	} else {
		if req.EmployeeSignature != nil {
			h.fail(c, fmt.Errorf("%w: drafts carry no signature", entity.ErrInvalidReport))
			return
		}
		report, err = h.services.Approval.CreateDraft(c.Request.Context(), actorFrom(c), in)
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: report})
}

// GetReport handles GET /api/expenses/:id
func (h *Handlers) GetReport(c *gin.Context) {
	report, err := h.services.Approval.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: report})
}

// GetHistory handles GET /api/expenses/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	records, err := h.services.Approval.History(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: lo.Map(records, func(r *entity.ApprovalHistory, _ int) HistoryResponse {
			return toHistoryResponse(r)
		}),
	})
}

// GetPayload handles GET /api/expenses/:id/payload?step=&signedAt=
func (h *Handlers) GetPayload(c *gin.Context) {
	step := c.Query("step")
	if step == "" {
		h.fail(c, fmt.Errorf("%w: step is required", entity.ErrInvalidReport))
		return
	}

	signedAt := time.Now()
	if raw := c.Query("signedAt"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			h.fail(c, fmt.Errorf("%w: signedAt must be RFC 3339", entity.ErrInvalidReport))
			return
		}
		signedAt = parsed
	}
	signedAt = entity.NormalizeTimestamp(signedAt)

	payload, err := h.services.Approval.CanonicalPayload(c.Request.Context(), actorFrom(c), c.Param("id"), step, signedAt)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: PayloadResponse{
			Step:          step,
			SignedAt:      entity.FormatTimestamp(signedAt),
			Payload:       string(payload),
			PayloadBase64: base64.StdEncoding.EncodeToString(payload),
		},
	})
}

// VerifyReport handles GET /api/expenses/:id/verify
func (h *Handlers) VerifyReport(c *gin.Context) {
	result, err := h.services.Verification.VerifyReport(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// SubmitDraft handles POST /api/expenses/:id/submit
func (h *Handlers) SubmitDraft(c *gin.Context) {
	req, ok := h.bindSignature(c)
	if !ok {
		return
	}
	h.respond(c)(h.services.Approval.SubmitDraft(c.Request.Context(), actorFrom(c), c.Param("id"), req.Signature))
}

// Validate handles POST /api/expenses/:id/validate
func (h *Handlers) Validate(c *gin.Context) {
	req, ok := h.bindSignature(c)
	if !ok {
		return
	}
	h.respond(c)(h.services.Approval.Validate(c.Request.Context(), actorFrom(c), c.Param("id"), req.Signature))
}

// Sign handles POST /api/expenses/:id/sign
func (h *Handlers) Sign(c *gin.Context) {
	req, ok := h.bindSignature(c)
	if !ok {
		return
	}
	h.respond(c)(h.services.Approval.Sign(c.Request.Context(), actorFrom(c), c.Param("id"), req.Signature))
}

// Confirm handles POST /api/expenses/:id/confirm
func (h *Handlers) Confirm(c *gin.Context) {
	h.respond(c)(h.services.Approval.Confirm(c.Request.Context(), actorFrom(c), c.Param("id")))
}

// Reject handles POST /api/expenses/:id/reject
func (h *Handlers) Reject(c *gin.Context) {
	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: invalid request body: %v", entity.ErrInvalidReport, err))
		return
	}
	h.respond(c)(h.services.Approval.Reject(c.Request.Context(), actorFrom(c), c.Param("id"), req.Reason))
}

// ExportAudit handles GET /api/audit/export
func (h *Handlers) ExportAudit(c *gin.Context) {
	filter := entity.ReportFilter{Status: entity.Status(c.Query("status"))}
	if filter.Status != "" && !filter.Status.IsValid() {
		h.fail(c, fmt.Errorf("%w: unknown status %q", entity.ErrInvalidReport, filter.Status))
		return
	}

	// rendered to memory first so a failure still produces a JSON error
	var buf bytes.Buffer
	summary, err := h.services.Exporter.WriteTo(c.Request.Context(), actorFrom(c), filter, &buf)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.FileName(time.Now())))
	c.Header("X-Report-Count", strconv.Itoa(summary.Reports))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// bindSignature reads the optional signature body. An empty body is allowed.
func (h *Handlers) bindSignature(c *gin.Context) (SignatureRequest, bool) {
	var req SignatureRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		// chunked requests report an unknown length and may still be empty
		if errors.Is(err, io.EOF) {
			return SignatureRequest{}, true
		}
		h.fail(c, fmt.Errorf("%w: invalid request body: %v", entity.ErrInvalidReport, err))
		return req, false
	}
	return req, true
}

// respond writes a transition result
func (h *Handlers) respond(c *gin.Context) func(*entity.ExpenseReport, error) {
	return func(report *entity.ExpenseReport, err error) {
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, Response{Success: true, Data: report})
	}
}

// fail maps err onto its status code and writes the error body
func (h *Handlers) fail(c *gin.Context, err error) {
	code := entity.ErrorCode(err)
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.FullPath(), "code", code, "error", err)
	}

	message := err.Error()
	if code == "internal" {
		message = "internal error"
	}
	c.JSON(status, Response{Success: false, Error: message, Code: code})
}

// StatusFor maps an error kind to its HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrInvalidState),
		errors.Is(err, entity.ErrAlreadySigned),
		errors.Is(err, entity.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, entity.ErrSignatureInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entity.ErrMalformedSignature),
		errors.Is(err, entity.ErrInvalidReport):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrCryptoUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func toHistoryResponse(r *entity.ApprovalHistory) HistoryResponse {
	return HistoryResponse{
		ID:             r.ID,
		Actor:          r.ActorIdentity,
		Role:           r.ActorRole.String(),
		Action:         r.Action,
		PreviousStatus: r.PreviousStatus.String(),
		NewStatus:      r.NewStatus.String(),
		Detail:         r.Detail,
		Timestamp:      entity.FormatTimestamp(r.Timestamp),
	}
}
