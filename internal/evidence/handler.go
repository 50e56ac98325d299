package evidence

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gmarmat/jotrack/internal/shared/server/respond"
)

// Handler exposes the scorer and the keyword heatmap over HTTP.
type Handler struct {
	Taxonomy *Taxonomy
}

func NewHandler(tax *Taxonomy) *Handler {
	if tax == nil {
		tax = DefaultTaxonomy()
	}
	return &Handler{Taxonomy: tax}
}

// RegisterRoutes attaches scoring routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/score", h.score)
	rg.POST("/heatmap", h.heatmap)
}

type documentsRequest struct {
	JobDescription string `json:"jobDescription" binding:"required"`
	Resume         string `json:"resume" binding:"required"`
}

func (h *Handler) score(c *gin.Context) {
	var req documentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "jobDescription and resume are required", nil)
		return
	}
	respond.OK(c, ScoreParameters(req.JobDescription, req.Resume, h.Taxonomy))
}

func (h *Handler) heatmap(c *gin.Context) {
	var req documentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "jobDescription and resume are required", nil)
		return
	}
	respond.OK(c, gin.H{"entries": KeywordHeatmap(req.JobDescription, req.Resume)})
}
