package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/retry"

	"github.com/backmassage/autoencode/internal/config"
	"github.com/backmassage/autoencode/internal/logging"
)

// ErrHandlerFailed is returned by Consume when a job still fails after the
// configured retries. The message is left uncommitted.
var ErrHandlerFailed = errors.New("handler failed")

// Handler processes one decoded job. A returned error is retried; a job
// that keeps failing stops the consumer before its offset is committed.
type Handler interface {
	Handle(ctx context.Context, job RenderJob) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job RenderJob) error

func (f HandlerFunc) Handle(ctx context.Context, job RenderJob) error { return f(ctx, job) }

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads render-completion events from Kafka.
type Consumer struct {
	reader   MessageReader
	handler  Handler
	strategy retry.Strategy
	log      *logging.Logger
	topic    string
}

// Strategy converts the configured retry policy. At least one attempt is
// always made.
func Strategy(r config.Retry) retry.Strategy {
	return retry.Strategy{Attempts: max(r.Attempts, 1), Delay: r.Delay, Backoff: r.Backoff}
}

// NewConsumer returns a consumer reading cfg.Kafka.EventTopic in the
// configured consumer group.
func NewConsumer(cfg *config.Config, h Handler, log *logging.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.EventTopic,
		GroupID:  cfg.Kafka.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewConsumerWithReader(r, cfg.Kafka.EventTopic, Strategy(cfg.Retry), h, log)
}

// NewConsumerWithReader wires an existing reader, typically a fake in tests.
func NewConsumerWithReader(r MessageReader, topic string, s retry.Strategy, h Handler, log *logging.Logger) *Consumer {
	if log == nil {
		log = logging.Discard()
	}
	s.Attempts = max(s.Attempts, 1)
	return &Consumer{reader: r, handler: h, strategy: s, log: log, topic: topic}
}

// Consume fetches, handles and commits messages until ctx is cancelled.
// Undecodable messages are committed and dropped. A job whose handler
// still fails after the retry strategy is exhausted stops Consume with
// ErrHandlerFailed; its offset and every later one stay uncommitted, so
// the consumer group redelivers it on the next start.
func (c *Consumer) Consume(ctx context.Context) error {
	c.log.Info("Listening on %s", c.topic)
	for {
		if ctx.Err() != nil {
			return nil
		}

		var msg kafka.Message
		err := retry.Do(func() error {
			var fetchErr error
			msg, fetchErr = c.reader.FetchMessage(ctx)
			return fetchErr
		}, c.strategy)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.log.Error("Fetch failed: %v", err)
			sleep(ctx, 500*time.Millisecond)
			continue
		}

		job, err := Decode(msg.Value)
		if err != nil {
			c.log.Warn("Dropping message at offset %d: %v", msg.Offset, err)
		} else {
			err := c.handle(ctx, job)
			if ctx.Err() != nil {
				// Interrupted work is redelivered.
				return nil
			}
			if err != nil {
				c.log.Error("Job %s: %v", job.ID, err)
				return fmt.Errorf("%w: job %s at offset %d: %w", ErrHandlerFailed, job.ID, msg.Offset, err)
			}
		}

		err = retry.Do(func() error {
			return c.reader.CommitMessages(ctx, msg)
		}, c.strategy)
		if err != nil {
			c.log.Error("Commit of offset %d failed: %v", msg.Offset, err)
			continue
		}
		c.log.Debug("committed offset %d", msg.Offset)
	}
}

// handle runs the handler under the retry strategy. Cancellation ends the
// retries early.
func (c *Consumer) handle(ctx context.Context, job RenderJob) error {
	attempt := 0
	return retry.Do(func() error {
		if err := ctx.Err(); err != nil {
			return nil
		}
		attempt++
		err := c.handler.Handle(ctx, job)
		if err != nil && attempt < c.strategy.Attempts {
			c.log.Warn("Job %s failed (attempt %d), retrying: %v", job.ID, attempt, err)
		}
		return err
	}, c.strategy)
}

// Close closes the underlying reader.
func (c *Consumer) Close() error { return c.reader.Close() }

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
