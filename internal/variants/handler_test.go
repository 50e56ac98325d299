package variants

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func setupVariantsRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := &Service{Repo: NewMemoryRepo(), Sources: NewMemorySourcesRepo()}
	router := gin.New()
	NewHandler(svc).RegisterRoutes(router.Group("/api/v1"))
	return router, svc
}

func postExtract(t *testing.T, router *gin.Engine, sourceType, sourceID, jobID, text string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]string{"jobId": jobID, "rawText": text})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sources/"+sourceType+"/"+sourceID+"/variants", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestExtractVariantsEndpoint(t *testing.T) {
	router, _ := setupVariantsRouter(t)

	resp := postExtract(t, router, "resume", "resume-1", "job-1", "Go engineer, eight years.")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var created struct {
		VariantIDs []string `json:"variantIds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(created.VariantIDs) == 0 {
		t.Fatal("expected at least one variant id")
	}

	// Idempotent on identical content: re-extracting returns the same id.
	resp2 := postExtract(t, router, "resume", "resume-1", "job-1", "Go engineer, eight years.")
	if resp2.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp2.Code)
	}
	var again struct {
		VariantIDs []string `json:"variantIds"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&again); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if again.VariantIDs[0] != created.VariantIDs[0] {
		t.Errorf("identical content produced a new variant: %s != %s", again.VariantIDs[0], created.VariantIDs[0])
	}
}

func postUpload(t *testing.T, router *gin.Engine, sourceType, sourceID, jobID, fileName, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if jobID != "" {
		if err := mw.WriteField("jobId", jobID); err != nil {
			t.Fatalf("write jobId field: %v", err)
		}
	}
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	if contentType != "" {
		hdr.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create file part: %v", err)
	}
	if _, err := part.Write([]byte(body)); err != nil {
		t.Fatalf("write file body: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sources/"+sourceType+"/"+sourceID+"/variants/file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestUploadFileStoresRawVariant(t *testing.T) {
	router, svc := setupVariantsRouter(t)

	resp := postUpload(t, router, "resume", "resume-1", "job-1", "resume.txt", "text/plain",
		"Go engineer with Kubernetes experience.")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var created struct {
		VariantIDs []string `json:"variantIds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(created.VariantIDs) == 0 {
		t.Fatal("expected at least one variant id")
	}

	v, err := svc.Get(context.Background(), "resume-1", SourceResume, KindRaw)
	if err != nil {
		t.Fatalf("Get raw variant: %v", err)
	}
	if !strings.Contains(v.Payload.Text(), "Kubernetes") {
		t.Errorf("stored text = %q, want extracted upload text", v.Payload.Text())
	}
}

func TestUploadFileRequiresJobID(t *testing.T) {
	router, _ := setupVariantsRouter(t)

	resp := postUpload(t, router, "resume", "resume-1", "", "resume.txt", "text/plain", "text")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestUploadFileRejectsDisallowedContentType(t *testing.T) {
	router, _ := setupVariantsRouter(t)

	resp := postUpload(t, router, "resume", "resume-1", "job-1", "photo.png", "image/png", "not a document")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestUploadFileRejectsUnreadableDocument(t *testing.T) {
	router, _ := setupVariantsRouter(t)

	// Claims to be a PDF but is not parseable as one.
	resp := postUpload(t, router, "resume", "resume-1", "job-1", "resume.pdf", "application/pdf", "plainly not a pdf")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Code != "extraction_failure" {
		t.Errorf("error code = %q, want extraction_failure", envelope.Error.Code)
	}
}

func TestExtractVariantsRejectsUnknownSourceType(t *testing.T) {
	router, _ := setupVariantsRouter(t)

	resp := postExtract(t, router, "diary", "d-1", "job-1", "text")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestGetVariantFallsBackToRaw(t *testing.T) {
	router, _ := setupVariantsRouter(t)
	postExtract(t, router, "resume", "resume-1", "job-1", "raw resume text")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sources/resume/resume-1/variants/ai_optimized", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 via raw fallback, got %d", resp.Code)
	}
	var v Variant
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if v.Kind != KindRaw {
		t.Errorf("kind = %s, want raw fallback", v.Kind)
	}
}

func TestGetVariantNotFound(t *testing.T) {
	router, _ := setupVariantsRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sources/resume/missing/variants/raw", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestGetAllVariantsEndpoint(t *testing.T) {
	router, _ := setupVariantsRouter(t)
	postExtract(t, router, "job_description", "jd-1", "job-1", "Hiring a Go engineer")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sources/job_description/jd-1/variants", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var payload struct {
		Variants map[Kind]Variant `json:"variants"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := payload.Variants[KindRaw]; !ok {
		t.Errorf("expected raw variant in map, got %v", payload.Variants)
	}
}
