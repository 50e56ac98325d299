package analysis

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gmarmat/jotrack/internal/shared/server/respond"
	"github.com/gmarmat/jotrack/internal/variants"
)

// Handler wires HTTP handlers to the staleness engine, dependency tracker,
// and analysis runner.
type Handler struct {
	Engine  *Engine
	Tracker *Tracker
	Runner  *Runner
}

func NewHandler(engine *Engine, tracker *Tracker, runner *Runner) *Handler {
	return &Handler{Engine: engine, Tracker: tracker, Runner: runner}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/jobs/:id/staleness", h.checkStaleness)
	rg.POST("/jobs/:id/fresh", h.commitFresh)
	rg.POST("/jobs/:id/stale", h.markStale)
	rg.POST("/jobs/:id/dependencies", h.recordDependencies)
	rg.GET("/jobs/:id/dependencies/:type", h.dependencyValidity)
	rg.POST("/jobs/:id/analyses/:type", h.runAnalysis)
	rg.POST("/invalidate", h.invalidate)
}

func (h *Handler) checkStaleness(c *gin.Context) {
	jobID := c.Param("id")
	if jobID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "job id is required", nil)
		return
	}
	c.Set("jobId", jobID)

	report, err := h.Engine.CheckStaleness(c.Request.Context(), jobID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to check staleness", nil)
		return
	}
	respond.OK(c, report)
}

type typeRequest struct {
	AnalysisType string `json:"analysisType" binding:"required"`
}

func (h *Handler) commitFresh(c *gin.Context) {
	jobID := c.Param("id")
	var req typeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "analysisType is required", nil)
		return
	}
	typ := Type(req.AnalysisType)
	c.Set("jobId", jobID)
	c.Set("analysisType", req.AnalysisType)

	if err := h.Engine.CommitFresh(c.Request.Context(), jobID, typ); err != nil {
		switch {
		case errors.Is(err, ErrUnknownType):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to commit fresh state", nil)
		}
		return
	}
	respond.OK(c, gin.H{"jobId": jobID, "state": StateFresh})
}

func (h *Handler) markStale(c *gin.Context) {
	jobID := c.Param("id")
	if jobID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "job id is required", nil)
		return
	}
	c.Set("jobId", jobID)

	if err := h.Engine.MarkStale(c.Request.Context(), jobID); err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to mark stale", nil)
		return
	}
	respond.OK(c, gin.H{"jobId": jobID, "state": StateStale})
}

type recordDepsRequest struct {
	AnalysisType string       `json:"analysisType" binding:"required"`
	UsedVariants []VariantRef `json:"usedVariants" binding:"required"`
}

func (h *Handler) recordDependencies(c *gin.Context) {
	jobID := c.Param("id")
	var req recordDepsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "analysisType and usedVariants are required", nil)
		return
	}
	c.Set("jobId", jobID)
	c.Set("analysisType", req.AnalysisType)

	if err := h.Tracker.Record(c.Request.Context(), jobID, Type(req.AnalysisType), req.UsedVariants); err != nil {
		switch {
		case errors.Is(err, ErrUnknownType):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to record dependencies", nil)
		}
		return
	}
	respond.Created(c, gin.H{"jobId": jobID, "analysisType": req.AnalysisType})
}

func (h *Handler) dependencyValidity(c *gin.Context) {
	jobID := c.Param("id")
	typ := Type(c.Param("type"))
	if !typ.Valid() {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unknown analysis type", nil)
		return
	}

	valid, err := h.Tracker.IsValid(c.Request.Context(), jobID, typ)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to check dependency validity", nil)
		return
	}
	respond.OK(c, gin.H{"jobId": jobID, "analysisType": typ, "isValid": valid})
}

type invalidateRequest struct {
	SourceID   string `json:"sourceId" binding:"required"`
	SourceType string `json:"sourceType" binding:"required"`
}

func (h *Handler) invalidate(c *gin.Context) {
	var req invalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "sourceId and sourceType are required", nil)
		return
	}
	sourceType := variants.SourceType(req.SourceType)
	if !sourceType.Valid() {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unknown source type", nil)
		return
	}
	c.Set("sourceId", req.SourceID)

	if err := h.Tracker.Invalidate(c.Request.Context(), req.SourceID, sourceType); err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to invalidate dependencies", nil)
		return
	}
	respond.OK(c, gin.H{"sourceId": req.SourceID, "sourceType": req.SourceType})
}

type runRequest struct {
	Model string `json:"model"`
}

func (h *Handler) runAnalysis(c *gin.Context) {
	jobID := c.Param("id")
	typ := Type(c.Param("type"))
	if !typ.Valid() {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unknown analysis type", nil)
		return
	}
	var req runRequest
	// Body is optional; an empty model falls through to the gate's rejection
	// unless the caller configured a default upstream.
	_ = c.ShouldBindJSON(&req)
	c.Set("jobId", jobID)
	c.Set("analysisType", string(typ))

	result, err := h.Runner.Run(c.Request.Context(), jobID, typ, req.Model)
	if err != nil {
		var cooldown *CooldownError
		var failure *RunFailure
		switch {
		case errors.As(err, &cooldown):
			c.Header("Retry-After", strconv.Itoa(cooldown.RetryAfterSeconds))
			respond.Error(c, http.StatusTooManyRequests, "cooldown", err.Error(), gin.H{"retryAfterSeconds": cooldown.RetryAfterSeconds})
		case errors.As(err, &failure):
			respond.Error(c, failureStatus(failure.Code), failure.Code, failure.Message, gin.H{"retryable": failure.Retryable})
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "analysis failed", nil)
		}
		return
	}
	respond.OK(c, result)
}

func failureStatus(code string) int {
	switch code {
	case ErrorCodeInvalidModel:
		return http.StatusBadRequest
	case ErrorCodeExtraction:
		return http.StatusConflict
	case ErrorCodeUpstream:
		return http.StatusBadGateway
	case ErrorCodeMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
