package guardrails

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gmarmat/jotrack/internal/shared/server/respond"
)

// Handler exposes the prompt sanitizer over HTTP.
type Handler struct {
	Sanitizer *Sanitizer
}

func NewHandler(s *Sanitizer) *Handler {
	return &Handler{Sanitizer: s}
}

// RegisterRoutes attaches guardrail routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sanitize", h.sanitize)
}

type sanitizeRequest struct {
	Inputs map[string]string `json:"inputs" binding:"required"`
}

func (h *Handler) sanitize(c *gin.Context) {
	var req sanitizeRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Inputs) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "inputs map is required", nil)
		return
	}
	respond.OK(c, h.Sanitizer.SanitizeForPrompt(req.Inputs))
}
