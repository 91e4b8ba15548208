package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"signalpipe/internal/types"
)

// SignalEventRepository provides data access for the signal_events table:
// the durable append-only log of emitted signals.
//
// The claim flow implements the conditional-write discipline that makes
// processing safe under concurrent processor instances: a signal transitions
// to "claimed" only when it carries no live claim, and a claim left behind
// by a crashed run expires after the lease so the signal is retried whole.
type SignalEventRepository struct {
	db DBTX
}

// NewSignalEventRepository creates a SignalEventRepository backed by the
// given database connection (pool or transaction).
func NewSignalEventRepository(db DBTX) *SignalEventRepository {
	return &SignalEventRepository{db: db}
}

// AppendSignalEvent inserts a new signal event. The caller sets the ID and
// all fields; the row is born with processed = false and no claim.
func (r *SignalEventRepository) AppendSignalEvent(ctx context.Context, e *types.SignalEvent) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO signal_events
		 (id, signal_type, payload, emitted_at, emitted_by, source, processed)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE)`,
		e.ID,
		string(e.SignalType),
		e.Payload,
		e.EmittedAt,
		e.EmittedBy,
		e.Source,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append signal event", err)
	}
	return nil
}

// ClaimUnprocessed atomically claims up to limit claimable signals, oldest
// first, and returns them. SKIP LOCKED keeps two concurrent claim queries
// from blocking on each other's rows; the claimed_at predicate keeps them
// from selecting the same rows.
func (r *SignalEventRepository) ClaimUnprocessed(ctx context.Context, limit int, lease time.Duration) ([]*types.SignalEvent, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE signal_events SET claimed_at = NOW()
		 WHERE id IN (
		   SELECT id FROM signal_events
		   WHERE processed = FALSE
		     AND (claimed_at IS NULL OR claimed_at < NOW() - make_interval(secs => $2))
		   ORDER BY emitted_at
		   LIMIT $1
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, signal_type, payload, emitted_at, emitted_by, source, processed, claimed_at`,
		limit,
		lease.Seconds(),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to claim unprocessed signals", err)
	}
	defer rows.Close()

	var out []*types.SignalEvent
	for rows.Next() {
		e := &types.SignalEvent{}
		if err := rows.Scan(&e.ID, &e.SignalType, &e.Payload, &e.EmittedAt,
			&e.EmittedBy, &e.Source, &e.Processed, &e.ClaimedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan signal event", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read claimed signals", err)
	}
	return out, nil
}

// MarkProcessed flips the processed flag and clears the claim. The processed
// guard makes the transition one-way: a processed signal can never revert.
func (r *SignalEventRepository) MarkProcessed(ctx context.Context, signalID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE signal_events SET processed = TRUE, claimed_at = NULL
		 WHERE id = $1 AND processed = FALSE`,
		signalID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark signal processed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSignal,
			fmt.Sprintf("signal %s not found or already processed", signalID), nil)
	}
	return nil
}

// ReleaseClaim abandons a claim without processing, returning the signal to
// the claimable pool immediately instead of waiting for lease expiry.
func (r *SignalEventRepository) ReleaseClaim(ctx context.Context, signalID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE signal_events SET claimed_at = NULL
		 WHERE id = $1 AND processed = FALSE`,
		signalID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to release claim", err)
	}
	return nil
}

// GetSignalEvent fetches a single signal event by ID.
func (r *SignalEventRepository) GetSignalEvent(ctx context.Context, signalID string) (*types.SignalEvent, error) {
	e := &types.SignalEvent{}
	err := r.db.QueryRow(ctx,
		`SELECT id, signal_type, payload, emitted_at, emitted_by, source, processed, claimed_at
		 FROM signal_events WHERE id = $1`,
		signalID,
	).Scan(&e.ID, &e.SignalType, &e.Payload, &e.EmittedAt, &e.EmittedBy, &e.Source, &e.Processed, &e.ClaimedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundSignal,
			fmt.Sprintf("signal %s not found", signalID), err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get signal event", err)
	}
	return e, nil
}

// CountUnprocessed returns how many signals are waiting for a processing
// run. Exposed for operational visibility.
func (r *SignalEventRepository) CountUnprocessed(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM signal_events WHERE processed = FALSE`,
	).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count unprocessed signals", err)
	}
	return n, nil
}
