package db

import (
	"context"

	"signalpipe/internal/types"
)

// NotificationQueueRepository writes the pipeline's output artifacts to the
// notification_queue table. The delivery subsystem drains this table and
// owns every status transition after PENDING.
type NotificationQueueRepository struct {
	db DBTX
}

// NewNotificationQueueRepository creates a NotificationQueueRepository
// backed by the given database connection.
func NewNotificationQueueRepository(db DBTX) *NotificationQueueRepository {
	return &NotificationQueueRepository{db: db}
}

// UpsertQueueEntry performs an idempotent insert using INSERT ... ON
// CONFLICT DO NOTHING. The entry ID is deterministic per (signal, hook), so
// a reprocessed signal collides with its earlier entry instead of creating a
// duplicate. Returns whether the entry was newly created.
func (r *NotificationQueueRepository) UpsertQueueEntry(ctx context.Context, entry *types.NotificationQueueEntry) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO notification_queue
		 (id, event_type, signal_event_id, template_id, status, priority,
		  channels, recipient_ids, payload, retry_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, NOW()))
		 ON CONFLICT (id) DO NOTHING`,
		entry.ID,
		string(entry.EventType),
		entry.SignalEventID,
		entry.TemplateID,
		string(entry.Status),
		string(entry.Priority),
		entry.Channels,
		entry.RecipientIDs,
		entry.Payload,
		entry.RetryCount,
		nilIfZeroTime(entry.CreatedAt),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to write queue entry", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListPending returns up to limit PENDING entries, highest priority first
// then oldest first. The delivery subsystem consumes this; the pipeline
// exposes it for operational inspection only.
func (r *NotificationQueueRepository) ListPending(ctx context.Context, limit int) ([]*types.NotificationQueueEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, event_type, signal_event_id, template_id, status, priority,
		        channels, recipient_ids, payload, retry_count, created_at
		 FROM notification_queue
		 WHERE status = $1
		 ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END,
		          created_at
		 LIMIT $2`,
		string(types.StatusPending),
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list pending entries", err)
	}
	defer rows.Close()

	var out []*types.NotificationQueueEntry
	for rows.Next() {
		e := &types.NotificationQueueEntry{}
		if err := rows.Scan(&e.ID, &e.EventType, &e.SignalEventID, &e.TemplateID,
			&e.Status, &e.Priority, &e.Channels, &e.RecipientIDs, &e.Payload,
			&e.RetryCount, &e.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan queue entry", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read queue entries", err)
	}
	return out, nil
}
