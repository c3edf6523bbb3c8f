// Package consumer reads sync batches from Kafka and applies them through the
// merge resolver.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/dailymenu/internal/outbox"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is the decoded representation of a Confluent framed Kafka record.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	UserID        string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithFetchBackoff sets the pause after a failed fetch.
func WithFetchBackoff(d time.Duration) Option {
	return func(p *Processor) {
		p.backoff = d
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *log.Logger
	backoff time.Duration
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		backoff: time.Second,
		logger:  log.New(log.Writer(), "[consumer] ", log.LstdFlags|log.LUTC),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run fetches records until ctx is cancelled or the reader returns io.EOF.
// Records that cannot be decoded are committed and dropped. Records whose
// handler fails stay uncommitted so the group redelivers them after a
// rebalance or restart.
func (p *Processor) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		record, err := p.reader.FetchMessage(ctx)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, io.EOF):
			return err
		case err != nil:
			p.logger.Printf("fetch: %v", err)
			if err := sleepContext(ctx, p.backoff); err != nil {
				return err
			}
			continue
		}

		if p.process(ctx, record) {
			if err := p.reader.CommitMessages(ctx, record); err != nil {
				p.logger.Printf("commit %s/%d@%d: %v", record.Topic, record.Partition, record.Offset, err)
			}
		}
	}
	return ctx.Err()
}

// process reports whether record's offset may be committed.
func (p *Processor) process(ctx context.Context, record kafka.Message) bool {
	msg, err := decodeMessage(record)
	if err != nil {
		p.logger.Printf("dropping %s/%d@%d: %v", record.Topic, record.Partition, record.Offset, err)
		syncRecords.WithLabelValues(record.Topic, "", resultUndecodable).Inc()
		return true
	}

	if err := p.handler.Handle(ctx, msg); err != nil {
		p.logger.Printf("apply %s for %s (offset %d): %v", msg.EventType, msg.UserID, msg.Offset, err)
		recordResult(msg, resultHandlerError)
		return false
	}
	recordResult(msg, resultApplied)
	return true
}

func decodeMessage(record kafka.Message) (Message, error) {
	schemaID, payload, err := outbox.DecodeWireFormat(record.Value)
	if err != nil {
		return Message{}, fmt.Errorf("%w (%d bytes)", err, len(record.Value))
	}

	headers := make(map[string]string, len(record.Headers))
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	eventType, ok := headers[outbox.HeaderEventType]
	if !ok {
		return Message{}, errors.New("missing event_type header")
	}
	if headers[outbox.HeaderUserID] == "" {
		return Message{}, errors.New("missing user_id header")
	}

	return Message{
		Topic:         record.Topic,
		Partition:     record.Partition,
		Offset:        record.Offset,
		Timestamp:     record.Time,
		EventType:     eventType,
		UserID:        headers[outbox.HeaderUserID],
		SchemaSubject: headers[outbox.HeaderSchemaSubject],
		SchemaID:      schemaID,
		Payload:       json.RawMessage(append([]byte(nil), payload...)),
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
