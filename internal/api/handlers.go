package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"court-intake-service/internal/db"
	"court-intake-service/internal/logging"
	"court-intake-service/internal/models"
	"court-intake-service/internal/pipeline"
)

// Pipeline is the part of the processor the API exposes.
type Pipeline interface {
	Submit(ctx context.Context, content string, receivedAt *time.Time) (string, error)
	Get(ctx context.Context, id string) (*models.Record, error)
	AssignCase(ctx context.Context, id string, caseID int64) error
	Retry(ctx context.Context, id string) error
	HandleDownloadEvent(ctx context.Context, ev models.DownloadEvent) error
}

type Store interface {
	ListRecords(ctx context.Context, f db.RecordFilter) ([]models.Record, error)
	CompleteDownloadTask(ctx context.Context, ev models.DownloadEvent) error
	Ping(ctx context.Context) error
}

type Handler struct {
	pipeline Pipeline
	store    Store
	hub      *Hub
	logger   *logging.Logger
}

func NewHandler(p Pipeline, store Store, hub *Hub, logger *logging.Logger) *Handler {
	return &Handler{pipeline: p, store: store, hub: hub, logger: logger}
}

type submitRequest struct {
	Content    string     `json:"content"`
	ReceivedAt *time.Time `json:"received_at"`
}

type assignRequest struct {
	CaseID int64 `json:"case_id" binding:"required"`
}

func (h *Handler) SubmitMessage(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	id, err := h.pipeline.Submit(c.Request.Context(), req.Content, req.ReceivedAt)
	if err != nil {
		h.fail(c, "Failed to submit message", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": models.StatusPending})
}

func (h *Handler) ListMessages(c *gin.Context) {
	var f db.RecordFilter
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st := models.Status(strings.ToUpper(strings.TrimSpace(s)))
			if !st.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status " + s})
				return
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	var err error
	if f.Limit, err = intQuery(c, "limit", 50); err != nil || f.Limit < 1 || f.Limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}
	if f.Offset, err = intQuery(c, "offset", 0); err != nil || f.Offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset"})
		return
	}

	list, err := h.store.ListRecords(c.Request.Context(), f)
	if err != nil {
		h.fail(c, "Failed to list messages", err)
		return
	}
	if list == nil {
		list = []models.Record{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetMessage(c *gin.Context) {
	rec, err := h.pipeline.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to get message", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) AssignCase(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "case_id is required"})
		return
	}
	id := c.Param("id")
	if err := h.pipeline.AssignCase(c.Request.Context(), id, req.CaseID); err != nil {
		h.fail(c, "Failed to assign case", err)
		return
	}
	h.logger.ForRecord(id).Infof("Assigned case %d via API", req.CaseID)
	h.respondRecord(c, id)
}

func (h *Handler) RetryMessage(c *gin.Context) {
	id := c.Param("id")
	if err := h.pipeline.Retry(c.Request.Context(), id); err != nil {
		h.fail(c, "Failed to retry message", err)
		return
	}
	h.respondRecord(c, id)
}

// DownloadEvent accepts completion callbacks from downloaders that cannot
// publish to Kafka.
func (h *Handler) DownloadEvent(c *gin.Context) {
	var ev models.DownloadEvent
	if err := c.ShouldBindJSON(&ev); err != nil || ev.JobID == "" ||
		(ev.Outcome != models.DownloadSuccess && ev.Outcome != models.DownloadFailure) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid download event"})
		return
	}
	if err := h.store.CompleteDownloadTask(c.Request.Context(), ev); err != nil {
		h.fail(c, "Failed to record download event", err)
		return
	}
	if err := h.pipeline.HandleDownloadEvent(c.Request.Context(), ev); err != nil {
		h.fail(c, "Failed to apply download event", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": ev.JobID})
}

func (h *Handler) Watch(c *gin.Context) {
	h.hub.Serve(c.Writer, c.Request, c.Query("record_id"))
}

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) respondRecord(c *gin.Context, id string) {
	rec, err := h.pipeline.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get message", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// fail maps domain errors onto HTTP status codes.
func (h *Handler) fail(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pipeline.ErrEmptyContent):
		status = http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound), errors.Is(err, pipeline.ErrCaseNotFound):
		status = http.StatusNotFound
	case errors.Is(err, pipeline.ErrInvalidState), errors.Is(err, db.ErrStateConflict):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.logger.Errorf("%s: %v", msg, err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	h.logger.Debugf("%s: %v", msg, err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
