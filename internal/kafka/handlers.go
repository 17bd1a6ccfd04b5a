package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"court-intake-service/internal/db"
	"court-intake-service/internal/models"
	"court-intake-service/internal/pipeline"
	"court-intake-service/internal/utils"
)

// Submitter accepts raw court messages.
type Submitter interface {
	Submit(ctx context.Context, content string, receivedAt *time.Time) (string, error)
}

// DownloadTaskStore records download outcomes.
type DownloadTaskStore interface {
	CompleteDownloadTask(ctx context.Context, ev models.DownloadEvent) error
}

// DownloadEventSink resumes records waiting on a download.
type DownloadEventSink interface {
	HandleDownloadEvent(ctx context.Context, ev models.DownloadEvent) error
}

// InboundHandler submits court messages. Values are either an InboundMessage
// JSON object or the raw message text.
func InboundHandler(sub Submitter) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		in, err := DecodeInbound(msg.Value)
		if err != nil {
			return utils.Permanent{Err: err}
		}
		if in.ReceivedAt == nil && !msg.Time.IsZero() {
			t := msg.Time
			in.ReceivedAt = &t
		}
		if _, err := sub.Submit(ctx, in.Content, in.ReceivedAt); err != nil {
			if errors.Is(err, pipeline.ErrEmptyContent) {
				return utils.Permanent{Err: err}
			}
			return err
		}
		return nil
	}
}

// DownloadEventHandler stores a download outcome and hands it to the pipeline.
func DownloadEventHandler(tasks DownloadTaskStore, sink DownloadEventSink) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		ev, err := DecodeDownloadEvent(msg.Value)
		if err != nil {
			return utils.Permanent{Err: err}
		}
		if err := tasks.CompleteDownloadTask(ctx, ev); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return utils.Permanent{Err: err}
			}
			return err
		}
		if err := sink.HandleDownloadEvent(ctx, ev); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return utils.Permanent{Err: err}
			}
			return err
		}
		return nil
	}
}

func DecodeInbound(value []byte) (models.InboundMessage, error) {
	var in models.InboundMessage
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &in); err != nil {
			return in, fmt.Errorf("unmarshal inbound message: %w", err)
		}
		return in, nil
	}
	in.Content = string(trimmed)
	return in, nil
}

func DecodeDownloadEvent(value []byte) (models.DownloadEvent, error) {
	var ev models.DownloadEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return ev, fmt.Errorf("unmarshal download event: %w", err)
	}
	if ev.JobID == "" {
		return ev, errors.New("download event without job_id")
	}
	switch ev.Outcome {
	case models.DownloadSuccess, models.DownloadFailure:
	default:
		return ev, fmt.Errorf("download event %s has invalid outcome %q", ev.JobID, ev.Outcome)
	}
	return ev, nil
}
