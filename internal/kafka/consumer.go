package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"court-intake-service/internal/logging"
	"court-intake-service/internal/utils"
)

// Handler processes one message. Returning a utils.Permanent error skips
// the message without retrying.
type Handler func(ctx context.Context, msg kafka.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic in a consumer group and commits each message once
// its handler has run.
type Consumer struct {
	reader     messageReader
	handle     Handler
	logger     *logging.Logger
	topic      string
	attempts   int
	retryDelay time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, handle Handler, logger *logging.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return newConsumer(r, topic, handle, logger)
}

func newConsumer(r messageReader, topic string, handle Handler, logger *logging.Logger) *Consumer {
	return &Consumer{
		reader:     r,
		handle:     handle,
		logger:     logger,
		topic:      topic,
		attempts:   3,
		retryDelay: time.Second,
	}
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Infof("Kafka consumer started on topic %s", c.topic)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Infof("Kafka consumer on %s stopped", c.topic)
				return nil
			}
			c.logger.Errorf("Read message from %s failed: %v", c.topic, err)
			continue
		}

		log := c.logger.WithFields(logrus.Fields{"topic": msg.Topic, "partition": msg.Partition, "offset": msg.Offset})
		err = utils.Retry(ctx, log, c.attempts, c.retryDelay, func() error {
			return c.handle(ctx, msg)
		})
		var perm utils.Permanent
		switch {
		case errors.As(err, &perm):
			log.Warnf("Skipping message: %v", err)
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			log.Errorf("Dropping message: %v", err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Errorf("Commit failed: %v", err)
		}
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Warnf("Close kafka reader for %s: %v", c.topic, err)
	}
}
