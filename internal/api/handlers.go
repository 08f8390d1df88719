package api

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ragbase/internal/rag/pipeline"
	"ragbase/internal/rag/ragerr"
	"ragbase/internal/rag/schema"
	"ragbase/internal/rag/vectorstore"
	"ragbase/pkg/logger"
)

// Ingestor is the slice of the ingestion pipeline the handlers need.
type Ingestor interface {
	Ingest(ctx context.Context, fileName string, data []byte) (pipeline.IngestReport, error)
}

// Asker is the slice of the retrieval pipeline the handlers need.
type Asker interface {
	Ask(ctx context.Context, question string, topK int) (*schema.Answer, error)
}

// Handlers exposes the document QA pipelines over HTTP.
type Handlers struct {
	ingestor    Ingestor
	asker       Asker
	store       vectorstore.VectorStore
	maxFileSize int64
	log         *logger.Logger
}

// NewHandlers creates the HTTP handler set.
func NewHandlers(ingestor Ingestor, asker Asker, store vectorstore.VectorStore, maxFileSize int64, log *logger.Logger) *Handlers {
	return &Handlers{
		ingestor:    ingestor,
		asker:       asker,
		store:       store,
		maxFileSize: maxFileSize,
		log:         log,
	}
}

// Root answers with a service banner.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "ragbase document QA API"})
}

// Upload ingests one multipart document.
func (h *Handlers) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}
	// Reject oversized uploads before buffering them.
	if fileHeader.Size > h.maxFileSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "file too large (max " + byteLimitLabel(h.maxFileSize) + ")",
		})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read uploaded file"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read uploaded file"})
		return
	}

	report, err := h.ingestor.Ingest(c.Request.Context(), fileHeader.Filename, data)
	if err != nil {
		// chunks_added stays in the error body: batches committed
		// before the failure are not rolled back.
		h.respondError(c, err, gin.H{"chunks_added": report.ChunksAdded})
		return
	}

	resp := gin.H{
		"message":      "File processed successfully",
		"chunks_added": report.ChunksAdded,
		"filename":     report.FileName,
	}
	if report.Warning != "" {
		resp["warning"] = report.Warning
	}
	c.JSON(http.StatusOK, resp)
}

type queryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

// Query answers a natural-language question grounded in stored chunks.
func (h *Handlers) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	answer, err := h.asker.Ask(c.Request.Context(), req.Question, req.TopK)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"answer":  answer.Text,
		"sources": answer.Sources,
	})
}

// Health reads the vector store size as a liveness signal.
func (h *Handlers) Health(c *gin.Context) {
	total, err := h.store.Count(c.Request.Context())
	if err != nil {
		h.log.Error("Health check failed: " + err.Error())
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "vector store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"total_vectors": total,
		"message":       "",
	})
}

// Clear deletes every stored vector. The router puts this behind a much
// stricter rate limit given that it is irreversible.
func (h *Handlers) Clear(c *gin.Context) {
	if err := h.store.ClearAll(c.Request.Context()); err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Database cleared"})
}

// respondError maps the error taxonomy onto HTTP status codes. Responses
// carry a single human-readable message; internal detail is logged, not
// leaked.
func (h *Handlers) respondError(c *gin.Context, err error, extra gin.H) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case ragerr.IsUserError(err):
		status = http.StatusBadRequest
		message = err.Error()
	case ragerr.IsTimeout(err):
		status = http.StatusGatewayTimeout
		message = err.Error()
	default:
		h.log.Error("Request failed: " + err.Error())
	}

	body := gin.H{"error": message}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

func byteLimitLabel(limit int64) string {
	if mb := limit / (1024 * 1024); mb > 0 {
		return strconv.FormatInt(mb, 10) + "MB"
	}
	return strconv.FormatInt(limit, 10) + " bytes"
}
