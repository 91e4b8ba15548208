package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalpipe/internal/types"
)

// mockDBTX implements DBTX with overridable behavior per test.
type mockDBTX struct {
	execFn     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	queryFn    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	queryRowFn func(ctx context.Context, sql string, args ...any) pgx.Row

	lastSQL  string
	lastArgs []any
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.lastSQL = sql
	m.lastArgs = args
	if m.execFn != nil {
		return m.execFn(ctx, sql, args...)
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (m *mockDBTX) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	m.lastSQL = sql
	m.lastArgs = args
	if m.queryFn != nil {
		return m.queryFn(ctx, sql, args...)
	}
	return nil, errors.New("query not mocked")
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.lastSQL = sql
	m.lastArgs = args
	return m.queryRowFn(ctx, sql, args...)
}

func sampleEntry() *types.NotificationQueueEntry {
	return &types.NotificationQueueEntry{
		ID:            types.QueueEntryID("sig_1", "hook_1"),
		EventType:     types.SignalGetEstimateFormSubmitted,
		SignalEventID: "sig_1",
		TemplateID:    "tpl_1",
		Status:        types.StatusPending,
		Priority:      types.PriorityMedium,
		Channels: types.ChannelMap{
			types.ChannelEmail: {Enabled: true, Recipients: []string{"a@b.com"}, Status: types.StatusPending},
		},
		RecipientIDs: types.StringList{"a@b.com"},
		Payload:      types.Payload{"customerEmail": "a@b.com"},
	}
}

func TestUpsertQueueEntry_Created(t *testing.T) {
	mock := &mockDBTX{}
	repo := NewNotificationQueueRepository(mock)

	created, err := repo.UpsertQueueEntry(context.Background(), sampleEntry())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Contains(t, mock.lastSQL, "ON CONFLICT (id) DO NOTHING")
	assert.Equal(t, "nq_sig_1_hook_1", mock.lastArgs[0])
}

func TestUpsertQueueEntry_ConflictIsNotCreated(t *testing.T) {
	mock := &mockDBTX{
		execFn: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("INSERT 0 0"), nil
		},
	}
	repo := NewNotificationQueueRepository(mock)

	created, err := repo.UpsertQueueEntry(context.Background(), sampleEntry())
	require.NoError(t, err)
	assert.False(t, created)
}

func TestUpsertQueueEntry_DBErrorIsWrapped(t *testing.T) {
	mock := &mockDBTX{
		execFn: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, errors.New("connection reset")
		},
	}
	repo := NewNotificationQueueRepository(mock)

	_, err := repo.UpsertQueueEntry(context.Background(), sampleEntry())
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}

func TestMarkProcessed_GuardsProcessedFlag(t *testing.T) {
	mock := &mockDBTX{
		execFn: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}
	repo := NewSignalEventRepository(mock)

	err := repo.MarkProcessed(context.Background(), "sig_1")
	require.NoError(t, err)
	assert.Contains(t, mock.lastSQL, "processed = FALSE")
	assert.Contains(t, mock.lastSQL, "claimed_at = NULL")
}

func TestMarkProcessed_AlreadyProcessedIsNotFound(t *testing.T) {
	mock := &mockDBTX{
		execFn: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
	}
	repo := NewSignalEventRepository(mock)

	err := repo.MarkProcessed(context.Background(), "sig_1")
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeNotFoundSignal, types.CodeOf(err))
}

func TestClaimUnprocessed_QueryShape(t *testing.T) {
	mock := &mockDBTX{
		queryFn: func(context.Context, string, ...any) (pgx.Rows, error) {
			return nil, errors.New("no rows needed for this test")
		},
	}
	repo := NewSignalEventRepository(mock)

	_, err := repo.ClaimUnprocessed(context.Background(), 50, 0)
	require.Error(t, err)

	// The claim must be conditional and non-blocking across instances.
	assert.Contains(t, mock.lastSQL, "claimed_at IS NULL OR claimed_at <")
	assert.Contains(t, mock.lastSQL, "FOR UPDATE SKIP LOCKED")
	assert.Equal(t, 50, mock.lastArgs[0])
}
