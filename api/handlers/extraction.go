package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/service/document"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
)

type ExtractionHandler struct {
	service document.ExtractionService
	logger  logger.Logger
}

type BatchRequest struct {
	Requests []models.ExtractionRequest `json:"requests"`
	Priority int                        `json:"priority"`
}

type LabelRequest struct {
	Schema models.Schema `json:"schema"`
	Text   string        `json:"text"`
}

func NewExtractionHandler(service document.ExtractionService, log logger.Logger) *ExtractionHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ExtractionHandler{service: service, logger: log.Named("handlers")}
}

// Extract runs the pipeline on JSON text.
func (h *ExtractionHandler) Extract(c *gin.Context) {
	var req models.ExtractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "INVALID_JSON", "request body must be a JSON extraction request")
		return
	}

	result, err := h.service.ExtractText(c.Request.Context(), &req)
	if err != nil {
		handleError(c, h.logger, "Extraction failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ExtractFile reads a multipart upload: file, schema (JSON), label and
// optional options (JSON).
func (h *ExtractionHandler) ExtractFile(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		badRequest(c, h.logger, "MISSING_FILE", "multipart field 'file' is required")
		return
	}
	defer file.Close()

	req := models.ExtractionRequest{Label: c.PostForm("label")}
	if err := json.Unmarshal([]byte(c.PostForm("schema")), &req.Schema); err != nil {
		badRequest(c, h.logger, "INVALID_SCHEMA", "form field 'schema' must be a JSON object")
		return
	}
	if raw := c.PostForm("options"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Options); err != nil {
			badRequest(c, h.logger, "INVALID_OPTIONS", "form field 'options' must be a JSON object")
			return
		}
	}

	upload := document.Upload{Name: header.Filename, Size: header.Size, Reader: file}
	out, err := h.service.ExtractFile(c.Request.Context(), upload, &req)
	if err != nil {
		handleError(c, h.logger, "File extraction failed", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *ExtractionHandler) SubmitBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "INVALID_JSON", "request body must be a JSON batch request")
		return
	}
	if req.Priority == 0 {
		req.Priority = 2
	}

	jobs, err := h.service.SubmitBatch(c.Request.Context(), req.Requests, req.Priority)
	if err != nil {
		handleError(c, h.logger, "Batch submission failed", err)
		return
	}

	resp := make([]gin.H, len(jobs))
	for i, job := range jobs {
		resp[i] = gin.H{"jobId": job.ID, "status": job.Status, "traceId": job.TraceID}
	}
	c.JSON(http.StatusAccepted, gin.H{"jobs": resp})
}

func (h *ExtractionHandler) GetJob(c *gin.Context) {
	job, err := h.service.GetJobStatus(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		handleError(c, h.logger, "Failed to get job status", err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *ExtractionHandler) CancelJob(c *gin.Context) {
	jobID := c.Param("jobId")
	if err := h.service.CancelJob(c.Request.Context(), jobID); err != nil {
		handleError(c, h.logger, "Failed to cancel job", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobId": jobID, "status": models.StatusCancelled})
}

// GetResult returns an archived result; ?download=1 serves it as a file.
func (h *ExtractionHandler) GetResult(c *gin.Context) {
	traceID := c.Param("traceId")
	result, err := h.service.GetResult(c.Request.Context(), traceID)
	if err != nil {
		handleError(c, h.logger, "Failed to get result", err)
		return
	}
	if download, _ := strconv.ParseBool(c.Query("download")); download {
		c.Header("Content-Disposition", "attachment; filename=result_"+traceID+".json")
	}
	c.JSON(http.StatusOK, result)
}

func (h *ExtractionHandler) DetectLabels(c *gin.Context) {
	var req LabelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "INVALID_JSON", "request body must be a JSON label request")
		return
	}

	out, err := h.service.DetectLabels(c.Request.Context(), req.Schema, req.Text)
	if err != nil {
		handleError(c, h.logger, "Label detection failed", err)
		return
	}
	c.JSON(http.StatusOK, out)
}
