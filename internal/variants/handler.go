package variants

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gmarmat/jotrack/internal/extract"
	"github.com/gmarmat/jotrack/internal/shared/server/respond"
)

const maxUploadBytes = 5 << 20

var allowedUploadTypes = map[string]struct{}{
	"application/pdf": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"text/plain":    {},
	"text/markdown": {},
	// Archive and generic types are resolved by the extractor from content
	// and file extension.
	"application/zip":          {},
	"application/octet-stream": {},
}

// Handler wires HTTP handlers to the variant store service.
type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches variant routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sources/:sourceType/:sourceId/variants", h.extractVariants)
	rg.POST("/sources/:sourceType/:sourceId/variants/file", h.uploadFile)
	rg.GET("/sources/:sourceType/:sourceId/variants", h.getAllVariants)
	rg.GET("/sources/:sourceType/:sourceId/variants/:kind", h.getVariant)
}

type extractRequest struct {
	JobID   string `json:"jobId" binding:"required"`
	RawText string `json:"rawText" binding:"required"`
}

func (h *Handler) extractVariants(c *gin.Context) {
	sourceID, sourceType, ok := sourceParams(c)
	if !ok {
		return
	}
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "jobId and rawText are required", nil)
		return
	}
	c.Set("jobId", req.JobID)
	c.Set("sourceId", sourceID)

	ids, err := h.Svc.ExtractVariants(c.Request.Context(), req.JobID, sourceID, sourceType, req.RawText)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to extract variants", nil)
		}
		return
	}
	respond.Created(c, gin.H{"variantIds": ids})
}

// uploadFile accepts a multipart document upload, extracts its text, and
// stores the raw variant.
func (h *Handler) uploadFile(c *gin.Context) {
	sourceID, sourceType, ok := sourceParams(c)
	if !ok {
		return
	}
	jobID := strings.TrimSpace(c.PostForm("jobId"))
	if jobID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "jobId is required", nil)
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	if header.Size > maxUploadBytes {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file exceeds the upload size limit", nil)
		return
	}
	contentType := header.Header.Get("Content-Type")
	if base := normalizeContentType(contentType); base != "" {
		if _, ok := allowedUploadTypes[base]; !ok {
			respond.Error(c, http.StatusBadRequest, "validation_error", "contentType is not allowed", nil)
			return
		}
	}
	c.Set("jobId", jobID)
	c.Set("sourceId", sourceID)

	file, err := header.Open()
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to read upload", nil)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to read upload", nil)
		return
	}

	ids, err := h.Svc.ExtractFromFile(c.Request.Context(), jobID, sourceID, sourceType, data, contentType, header.Filename)
	if err != nil {
		switch {
		case errors.Is(err, extract.ErrUnsupportedType):
			respond.Error(c, http.StatusBadRequest, "validation_error", "unsupported document type", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		case errors.Is(err, ErrExtraction):
			respond.Error(c, http.StatusBadRequest, "extraction_failure", "could not extract text from the uploaded file", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to store variants", nil)
		}
		return
	}
	respond.Created(c, gin.H{"variantIds": ids})
}

func normalizeContentType(raw string) string {
	return strings.ToLower(strings.TrimSpace(strings.Split(raw, ";")[0]))
}

func (h *Handler) getVariant(c *gin.Context) {
	sourceID, sourceType, ok := sourceParams(c)
	if !ok {
		return
	}
	kind := Kind(c.Param("kind"))
	if !kind.Valid() {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unknown variant kind", nil)
		return
	}

	v, err := h.Svc.Get(c.Request.Context(), sourceID, sourceType, kind)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "variant not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch variant", nil)
		}
		return
	}
	respond.OK(c, v)
}

func (h *Handler) getAllVariants(c *gin.Context) {
	sourceID, sourceType, ok := sourceParams(c)
	if !ok {
		return
	}

	all, err := h.Svc.GetAll(c.Request.Context(), sourceID, sourceType)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch variants", nil)
		return
	}
	respond.OK(c, gin.H{"variants": all})
}

func sourceParams(c *gin.Context) (string, SourceType, bool) {
	sourceID := c.Param("sourceId")
	sourceType := SourceType(c.Param("sourceType"))
	if sourceID == "" || !sourceType.Valid() {
		respond.Error(c, http.StatusBadRequest, "validation_error", "valid sourceType and sourceId are required", nil)
		return "", "", false
	}
	return sourceID, sourceType, true
}
