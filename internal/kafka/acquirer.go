package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"court-intake-service/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TaskStore tracks download jobs so their status survives a lost event.
type TaskStore interface {
	CreateDownloadTask(ctx context.Context, t models.DownloadTask) error
	GetDownloadTask(ctx context.Context, jobID string) (models.DownloadTask, error)
}

// Acquirer publishes download jobs for the external downloader and answers
// status queries from the task table.
type Acquirer struct {
	writer messageWriter
	tasks  TaskStore
}

// downloadJob is the wire shape of a job request.
type downloadJob struct {
	JobID    string    `json:"job_id"`
	RecordID string    `json:"record_id"`
	Link     string    `json:"link"`
	IssuedAt time.Time `json:"issued_at"`
}

func NewAcquirer(brokers []string, topic string, tasks TaskStore) *Acquirer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Acquirer{writer: w, tasks: tasks}
}

func (a *Acquirer) CreateJob(ctx context.Context, recordID, link string) (string, error) {
	now := time.Now()
	task := models.DownloadTask{
		JobID:     uuid.NewString(),
		RecordID:  recordID,
		Link:      link,
		Outcome:   models.DownloadPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.tasks.CreateDownloadTask(ctx, task); err != nil {
		return "", err
	}
	payload, err := json.Marshal(downloadJob{JobID: task.JobID, RecordID: recordID, Link: link, IssuedAt: now})
	if err != nil {
		return "", fmt.Errorf("marshal download job: %w", err)
	}
	if err := a.writer.WriteMessages(ctx, kafka.Message{Key: []byte(recordID), Value: payload}); err != nil {
		return "", fmt.Errorf("publish download job %s: %w", task.JobID, err)
	}
	return task.JobID, nil
}

func (a *Acquirer) Status(ctx context.Context, jobID string) (models.DownloadTask, error) {
	return a.tasks.GetDownloadTask(ctx, jobID)
}

func (a *Acquirer) Close() error {
	return a.writer.Close()
}
