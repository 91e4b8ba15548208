package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"signalpipe/internal/types"
)

// HookRegistryRepository provides read access to the notification_hooks
// table. Hooks are created and edited by administrators out of band; the
// pipeline itself only reads them.
type HookRegistryRepository struct {
	db DBTX
}

// NewHookRegistryRepository creates a HookRegistryRepository backed by the
// given database connection.
func NewHookRegistryRepository(db DBTX) *HookRegistryRepository {
	return &HookRegistryRepository{db: db}
}

const hookColumns = `id, signal_type, template_id, enabled, priority, channels,
	recipient_emails, recipient_roles, recipient_dynamic, conditions,
	created_at, updated_at`

func scanHook(row pgx.Row) (*types.NotificationHook, error) {
	h := &types.NotificationHook{}
	err := row.Scan(&h.ID, &h.SignalType, &h.TemplateID, &h.Enabled, &h.Priority,
		&h.Channels, &h.RecipientEmails, &h.RecipientRoles, &h.RecipientDynamic,
		&h.Conditions, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// EnabledHooksForSignalType returns every enabled hook bound to the signal
// type, in creation order. This is the data-driven dispatch table: adding a
// notification policy is a new row here, never a code change. Each loaded
// hook is validated, so a malformed row fails the load instead of being
// dispatched with missing configuration.
func (r *HookRegistryRepository) EnabledHooksForSignalType(ctx context.Context, signalType types.SignalType) ([]*types.NotificationHook, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+hookColumns+`
		 FROM notification_hooks
		 WHERE signal_type = $1 AND enabled = TRUE
		 ORDER BY created_at`,
		string(signalType),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch hooks", err)
	}
	defer rows.Close()

	var out []*types.NotificationHook
	for rows.Next() {
		h, err := scanHook(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan hook", err)
		}
		if err := h.Validate(); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read hooks", err)
	}
	return out, nil
}

// GetHook fetches a single hook by ID.
func (r *HookRegistryRepository) GetHook(ctx context.Context, hookID string) (*types.NotificationHook, error) {
	h, err := scanHook(r.db.QueryRow(ctx,
		`SELECT `+hookColumns+` FROM notification_hooks WHERE id = $1`,
		hookID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundHook,
			fmt.Sprintf("hook %s not found", hookID), err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get hook", err)
	}
	return h, nil
}

// ListHooks returns every hook regardless of enabled state, for operational
// inspection.
func (r *HookRegistryRepository) ListHooks(ctx context.Context) ([]*types.NotificationHook, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+hookColumns+` FROM notification_hooks ORDER BY signal_type, created_at`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list hooks", err)
	}
	defer rows.Close()

	var out []*types.NotificationHook
	for rows.Next() {
		h, err := scanHook(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan hook", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read hooks", err)
	}
	return out, nil
}
