package consumer

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditHandler applies sync batches and records each applied batch, with its
// merge counts, in the sync_batch_log table.
type AuditHandler struct {
	pool   *pgxpool.Pool
	next   Applier
	logger *log.Logger
}

// NewAuditHandler wraps next so every successful merge is logged to Postgres.
func NewAuditHandler(pool *pgxpool.Pool, next Applier, logger *log.Logger) *AuditHandler {
	if logger == nil {
		logger = log.New(log.Writer(), "[consumer] ", log.LstdFlags|log.LUTC)
	}
	return &AuditHandler{pool: pool, next: next, logger: logger}
}

// Handle applies msg and then writes the audit row. A failed audit write is
// logged and counted but does not fail the record, since the merge already
// committed.
func (h *AuditHandler) Handle(ctx context.Context, msg Message) error {
	result, err := h.next.Apply(ctx, msg)
	if err != nil {
		return err
	}

	receivedAt := msg.Timestamp
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	_, err = h.pool.Exec(ctx,
		`INSERT INTO sync_batch_log (event_type, user_id, schema_id, topic, partition, record_offset, payload, created, updated, conflicts, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		msg.EventType,
		msg.UserID,
		msg.SchemaID,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.Payload,
		result.Created,
		result.Updated,
		result.Conflicts,
		receivedAt,
	)
	if err != nil {
		h.logger.Printf("audit write failed (event_type=%s, user=%s, offset=%d): %v", msg.EventType, msg.UserID, msg.Offset, err)
		auditFailures.WithLabelValues(msg.EventType).Inc()
	}
	return nil
}
