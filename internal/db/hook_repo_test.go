package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalpipe/internal/types"
)

// hookRows plays back NotificationHooks as pgx.Rows for scan-path tests.
type hookRows struct {
	hooks []*types.NotificationHook
	i     int
}

func (r *hookRows) Close()                                       {}
func (r *hookRows) Err() error                                   { return nil }
func (r *hookRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *hookRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *hookRows) Next() bool                                   { r.i++; return r.i <= len(r.hooks) }
func (r *hookRows) Values() ([]any, error)                       { return nil, nil }
func (r *hookRows) RawValues() [][]byte                          { return nil }
func (r *hookRows) Conn() *pgx.Conn                              { return nil }

func (r *hookRows) Scan(dest ...any) error {
	h := r.hooks[r.i-1]
	*(dest[0].(*string)) = h.ID
	*(dest[1].(*types.SignalType)) = h.SignalType
	*(dest[2].(*string)) = h.TemplateID
	*(dest[3].(*bool)) = h.Enabled
	*(dest[4].(*types.HookPriority)) = h.Priority
	*(dest[5].(*types.ChannelList)) = h.Channels
	*(dest[6].(*types.StringList)) = h.RecipientEmails
	*(dest[7].(*types.StringList)) = h.RecipientRoles
	*(dest[8].(*types.StringList)) = h.RecipientDynamic
	*(dest[9].(*types.HookConditions)) = h.Conditions
	*(dest[10].(*time.Time)) = h.CreatedAt
	*(dest[11].(*time.Time)) = h.UpdatedAt
	return nil
}

func validHook(id string) *types.NotificationHook {
	return &types.NotificationHook{
		ID:              id,
		SignalType:      types.SignalContactFormSubmitted,
		TemplateID:      "tpl_contact",
		Enabled:         true,
		Priority:        types.PriorityMedium,
		Channels:        types.ChannelList{types.ChannelEmail},
		RecipientEmails: types.StringList{"ops@example.com"},
	}
}

func TestEnabledHooksForSignalType(t *testing.T) {
	mock := &mockDBTX{
		queryFn: func(context.Context, string, ...any) (pgx.Rows, error) {
			return &hookRows{hooks: []*types.NotificationHook{validHook("hook_1"), validHook("hook_2")}}, nil
		},
	}
	repo := NewHookRegistryRepository(mock)

	hooks, err := repo.EnabledHooksForSignalType(context.Background(), types.SignalContactFormSubmitted)
	require.NoError(t, err)
	require.Len(t, hooks, 2)
	assert.Equal(t, "hook_1", hooks[0].ID)
	assert.Equal(t, "CONTACT_FORM_SUBMITTED", mock.lastArgs[0])
}

func TestEnabledHooksForSignalType_MalformedRowFailsLoad(t *testing.T) {
	// A hook without a template cannot be dispatched; loading it must
	// surface the bad row instead of handing it to the processor.
	bad := validHook("hook_bad")
	bad.TemplateID = ""

	mock := &mockDBTX{
		queryFn: func(context.Context, string, ...any) (pgx.Rows, error) {
			return &hookRows{hooks: []*types.NotificationHook{bad}}, nil
		},
	}
	repo := NewHookRegistryRepository(mock)

	_, err := repo.EnabledHooksForSignalType(context.Background(), types.SignalContactFormSubmitted)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeValidationMissingField, types.CodeOf(err))
	assert.Contains(t, err.Error(), "hook_bad")
}
