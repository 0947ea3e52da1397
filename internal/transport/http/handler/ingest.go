package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"bookrag/internal/app"
	"bookrag/internal/domain"
	"bookrag/internal/ingest"
	"bookrag/internal/pkg/pdfextract"
	"bookrag/internal/transport/http/response"
)

const defaultMaxUpload = 50 << 20

type IngestHandler struct {
	ingestService *app.IngestService
	maxUpload     int64
}

func NewIngestHandler(ingestService *app.IngestService, maxUpload int64) *IngestHandler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &IngestHandler{ingestService: ingestService, maxUpload: maxUpload}
}

// Stream ingests the uploaded document and reports progress as server-sent
// events: one JSON progress event per data line, then "event: done" with
// the final report.
func (h *IngestHandler) Stream(c *gin.Context) {
	input, ok := h.readUpload(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "streaming unsupported")
		return
	}
	c.Status(http.StatusOK)

	events := make(chan domain.ProgressEvent, 8)
	var report *ingest.Report
	go func() {
		defer close(events)
		report, _ = h.ingestService.Ingest(c.Request.Context(), input, events)
	}()

	writeFailed := false
	for ev := range events {
		if writeFailed {
			continue
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if _, err := c.Writer.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
			writeFailed = true
			continue
		}
		flusher.Flush()
	}
	if writeFailed {
		return
	}

	done, err := json.Marshal(report)
	if err != nil {
		done = []byte(fmt.Sprintf(`{"error":"%s"}`, sanitizeSSE(err.Error())))
	}
	if _, writeErr := c.Writer.Write([]byte("event: done\ndata: " + string(done) + "\n\n")); writeErr == nil {
		flusher.Flush()
	}
}

// Enqueue queues the uploaded document for the ingestion worker.
func (h *IngestHandler) Enqueue(c *gin.Context) {
	input, ok := h.readUpload(c)
	if !ok {
		return
	}
	id, err := h.ingestService.Enqueue(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Accepted(c, gin.H{"job_id": id})
}

func (h *IngestHandler) JobStatus(c *gin.Context) {
	ev, err := h.ingestService.JobStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, ev)
}

func (h *IngestHandler) JobEvents(c *gin.Context) {
	events, err := h.ingestService.JobEvents(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, events)
}

// readUpload turns the multipart form into an ingestion input, writing an
// error response and returning false when it cannot.
func (h *IngestHandler) readUpload(c *gin.Context) (app.IngestInput, bool) {
	limit := h.maxUpload + (1 << 20)
	if c.Request.ContentLength > limit {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge,
			fmt.Sprintf("file too large (max %d MB)", h.maxUpload>>20))
		return app.IngestInput{}, false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge, "file too large")
			return app.IngestInput{}, false
		}
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return app.IngestInput{}, false
	}
	if file.Size > h.maxUpload {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge,
			fmt.Sprintf("file too large (max %d MB)", h.maxUpload>>20))
		return app.IngestInput{}, false
	}

	subject := strings.TrimSpace(c.PostForm("subject"))
	if err := domain.ValidateSubject(subject); err != nil {
		writeError(c, err)
		return app.IngestInput{}, false
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return app.IngestInput{}, false
	}
	defer f.Close()

	text, err := extractText(f)
	if err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, response.CodeBadRequest, "failed to extract text", err.Error())
		return app.IngestInput{}, false
	}
	if strings.TrimSpace(text) == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "document contains no extractable text")
		return app.IngestInput{}, false
	}

	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		name = strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))
		if name == "" {
			name = "untitled"
		}
	}

	return app.IngestInput{
		Name:      name,
		Subject:   subject,
		Namespace: c.PostForm("namespace"),
		Source:    file.Filename,
		Text:      text,
	}, true
}

func extractText(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return pdfextract.DocumentText(data)
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
