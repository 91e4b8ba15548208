package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalpipe/internal/config"
	"signalpipe/internal/emitter"
	"signalpipe/internal/processor"
	"signalpipe/internal/types"
)

// --- fakes ---

type fakeEmitter struct {
	lastType    types.SignalType
	lastPayload types.Payload
	lastOpts    *emitter.Options
	formKind    string
	result      emitter.Result
}

func (f *fakeEmitter) Emit(_ context.Context, signalType types.SignalType, payload types.Payload, opts *emitter.Options) emitter.Result {
	f.lastType = signalType
	f.lastPayload = payload
	f.lastOpts = opts
	return f.result
}

func (f *fakeEmitter) EmitFormSubmission(_ context.Context, formKind string, _ map[string]any, _ emitter.FormOptions) emitter.Result {
	f.formKind = formKind
	return f.result
}

func (f *fakeEmitter) EmitStatusChange(_ context.Context, entityType, _, _, _ string, _ map[string]any) emitter.Result {
	f.lastType, _ = types.StatusChangeSignal(entityType)
	return f.result
}

type fakeRunner struct {
	result processor.BatchResult
	err    error
	runs   int
}

func (f *fakeRunner) ProcessPending(context.Context) (processor.BatchResult, error) {
	f.runs++
	return f.result, f.err
}

type fakeSignalReader struct {
	signal *types.SignalEvent
	count  int
	err    error
}

func (f *fakeSignalReader) GetSignalEvent(_ context.Context, _ string) (*types.SignalEvent, error) {
	return f.signal, f.err
}

func (f *fakeSignalReader) CountUnprocessed(context.Context) (int, error) {
	return f.count, f.err
}

type fakeQueueReader struct {
	entries   []*types.NotificationQueueEntry
	err       error
	lastLimit int
}

func (f *fakeQueueReader) ListPending(_ context.Context, limit int) ([]*types.NotificationQueueEntry, error) {
	f.lastLimit = limit
	return f.entries, f.err
}

type fakeHookReader struct {
	hooks []*types.NotificationHook
	hook  *types.NotificationHook
	err   error
}

func (f *fakeHookReader) ListHooks(context.Context) ([]*types.NotificationHook, error) {
	return f.hooks, f.err
}

func (f *fakeHookReader) GetHook(_ context.Context, _ string) (*types.NotificationHook, error) {
	return f.hook, f.err
}

func newTestServer(t *testing.T, h *SignalHandler) *Server {
	t.Helper()

	cfg := &config.Config{Environment: "local"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := NewServer(cfg, logger)
	require.NoError(t, err)
	srv.MountRoutes(h)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// --- tests ---

func TestEmitSignal(t *testing.T) {
	em := &fakeEmitter{result: emitter.Result{Success: true, SignalID: "sig_123", Timestamp: time.Now()}}
	srv := newTestServer(t, NewSignalHandler(em, &fakeRunner{}, &fakeSignalReader{}, &fakeQueueReader{}, &fakeHookReader{}))

	rec := doJSON(t, srv, http.MethodPost, "/v1/signals", EmitSignalRequest{
		SignalType: "CONTACT_FORM_SUBMITTED",
		Payload:    map[string]any{"email": "a@b.com"},
		Source:     "website_form",
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, types.SignalContactFormSubmitted, em.lastType)
	assert.Equal(t, "website_form", em.lastOpts.Source)

	var resp struct {
		Data emitter.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Success)
	assert.Equal(t, "sig_123", resp.Data.SignalID)
}

func TestEmitSignalUnknownType(t *testing.T) {
	em := &fakeEmitter{}
	srv := newTestServer(t, NewSignalHandler(em, &fakeRunner{}, &fakeSignalReader{}, &fakeQueueReader{}, &fakeHookReader{}))

	rec := doJSON(t, srv, http.MethodPost, "/v1/signals", EmitSignalRequest{
		SignalType: "NOT_A_SIGNAL",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeValidationUnknownSignalType), resp.Error.Code)
	assert.NotEmpty(t, resp.Error.RequestID)
}

func TestEmitSignalMalformedBody(t *testing.T) {
	srv := newTestServer(t, NewSignalHandler(&fakeEmitter{}, &fakeRunner{}, &fakeSignalReader{}, &fakeQueueReader{}, &fakeHookReader{}))

	req := httptest.NewRequest(http.MethodPost, "/v1/signals", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmitForm(t *testing.T) {
	em := &fakeEmitter{result: emitter.Result{Success: true, SignalID: "sig_form"}}
	srv := newTestServer(t, NewSignalHandler(em, &fakeRunner{}, &fakeSignalReader{}, &fakeQueueReader{}, &fakeHookReader{}))

	rec := doJSON(t, srv, http.MethodPost, "/v1/signals/forms", EmitFormRequest{
		FormKind: "get_estimate",
		FormData: map[string]any{"email": "a@b.com", "service": "gutter"},
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "get_estimate", em.formKind)
}

func TestEmitFormUnknownKind(t *testing.T) {
	em := &fakeEmitter{}
	srv := newTestServer(t, NewSignalHandler(em, &fakeRunner{}, &fakeSignalReader{}, &fakeQueueReader{}, &fakeHookReader{}))

	rec := doJSON(t, srv, http.MethodPost, "/v1/signals/forms", EmitFormRequest{
		FormKind: "raffle",
		FormData: map[string]any{},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	// Rejected before reaching the emitter.
	assert.Empty(t, em.formKind)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeValidationUnknownFormKind), resp.Error.Code)
}

func TestEmitFormEmitterFailureIsStillAccepted(t *testing.T) {
	// A store outage during emission is not the producer's mistake: the
	// request is accepted and the failure is reported in the result body.
	em := &fakeEmitter{result: emitter.Result{Success: false, Error: "internal_database_error: failed to append signal event"}}
	srv := newTestServer(t, NewSignalHandler(em, &fakeRunner{}, &fakeSignalReader{}, &fakeQueueReader{}, &fakeHookReader{}))

	rec := doJSON(t, srv, http.MethodPost, "/v1/signals/forms", EmitFormRequest{
		FormKind: "contact",
		FormData: map[string]any{"email": "a@b.com"},
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "contact", em.formKind)

	var resp struct {
		Data emitter.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Data.Success)
	assert.NotEmpty(t, resp.Data.Error)
}

func TestEmitStatusChange(t *testing.T) {
	em := &fakeEmitter{result: emitter.Result{Success: true, SignalID: "sig_sc"}}
	srv := newTestServer(t, NewSignalHandler(em, &fakeRunner{}, &fakeSignalReader{}, &fakeQueueReader{}, &fakeHookReader{}))

	rec := doJSON(t, srv, http.MethodPost, "/v1/signals/status-changes", EmitStatusChangeRequest{
		EntityType: "service_request",
		EntityID:   "sr_42",
		OldStatus:  "pending",
		NewStatus:  "scheduled",
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, types.SignalStatusChangeServiceRequest, em.lastType)
}

func TestEmitStatusChangeUnknownEntity(t *testing.T) {
	srv := newTestServer(t, NewSignalHandler(&fakeEmitter{}, &fakeRunner{}, &fakeSignalReader{}, &fakeQueueReader{}, &fakeHookReader{}))

	rec := doJSON(t, srv, http.MethodPost, "/v1/signals/status-changes", EmitStatusChangeRequest{
		EntityType: "spaceship",
		EntityID:   "x",
		NewStatus:  "launched",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSignal(t *testing.T) {
	reader := &fakeSignalReader{signal: &types.SignalEvent{
		ID:         "sig_abc",
		SignalType: types.SignalContactFormSubmitted,
		Payload:    types.Payload{"email": "a@b.com"},
	}}
	srv := newTestServer(t, NewSignalHandler(&fakeEmitter{}, &fakeRunner{}, reader, &fakeQueueReader{}, &fakeHookReader{}))

	rec := doJSON(t, srv, http.MethodGet, "/v1/signals/sig_abc", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data types.SignalEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sig_abc", resp.Data.ID)
}

func TestGetSignalNotFound(t *testing.T) {
	reader := &fakeSignalReader{err: types.NewAppError(types.ErrCodeNotFoundSignal, "signal not found", nil)}
	srv := newTestServer(t, NewSignalHandler(&fakeEmitter{}, &fakeRunner{}, reader, &fakeQueueReader{}, &fakeHookReader{}))

	rec := doJSON(t, srv, http.MethodGet, "/v1/signals/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeNotFoundSignal), resp.Error.Code)
}

func TestUnprocessedCount(t *testing.T) {
	reader := &fakeSignalReader{count: 7}
	srv := newTestServer(t, NewSignalHandler(&fakeEmitter{}, &fakeRunner{}, reader, &fakeQueueReader{}, &fakeHookReader{}))

	rec := doJSON(t, srv, http.MethodGet, "/v1/signals/unprocessed-count", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unprocessed":7`)
}

func TestProcess(t *testing.T) {
	runner := &fakeRunner{result: processor.BatchResult{
		SignalsClaimed:       2,
		SignalsProcessed:     2,
		NotificationsCreated: 3,
	}}
	srv := newTestServer(t, NewSignalHandler(&fakeEmitter{}, runner, &fakeSignalReader{}, &fakeQueueReader{}, &fakeHookReader{}))

	rec := doJSON(t, srv, http.MethodPost, "/v1/process", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, runner.runs)

	var resp struct {
		Data processor.BatchResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Data.NotificationsCreated)
}

func TestProcessClaimFailure(t *testing.T) {
	runner := &fakeRunner{err: types.NewAppError(types.ErrCodeInternalDB, "claim query failed", nil)}
	srv := newTestServer(t, NewSignalHandler(&fakeEmitter{}, runner, &fakeSignalReader{}, &fakeQueueReader{}, &fakeHookReader{}))

	rec := doJSON(t, srv, http.MethodPost, "/v1/process", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPendingQueue(t *testing.T) {
	queue := &fakeQueueReader{entries: []*types.NotificationQueueEntry{
		{ID: "nq_sig_1_hook_1", EventType: types.SignalContactFormSubmitted},
	}}
	srv := newTestServer(t, NewSignalHandler(&fakeEmitter{}, &fakeRunner{}, &fakeSignalReader{}, queue, &fakeHookReader{}))

	rec := doJSON(t, srv, http.MethodGet, "/v1/queue/pending?limit=10", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, queue.lastLimit)
	assert.Contains(t, rec.Body.String(), "nq_sig_1_hook_1")
}

func TestPendingQueueDefaultLimit(t *testing.T) {
	queue := &fakeQueueReader{}
	srv := newTestServer(t, NewSignalHandler(&fakeEmitter{}, &fakeRunner{}, &fakeSignalReader{}, queue, &fakeHookReader{}))

	rec := doJSON(t, srv, http.MethodGet, "/v1/queue/pending", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultPendingLimit, queue.lastLimit)
}

func TestPendingQueueBadLimit(t *testing.T) {
	srv := newTestServer(t, NewSignalHandler(&fakeEmitter{}, &fakeRunner{}, &fakeSignalReader{}, &fakeQueueReader{}, &fakeHookReader{}))

	rec := doJSON(t, srv, http.MethodGet, "/v1/queue/pending?limit=nope", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListHooks(t *testing.T) {
	hooks := &fakeHookReader{hooks: []*types.NotificationHook{
		{ID: "hook_1", SignalType: types.SignalContactFormSubmitted, Enabled: true},
	}}
	srv := newTestServer(t, NewSignalHandler(&fakeEmitter{}, &fakeRunner{}, &fakeSignalReader{}, &fakeQueueReader{}, hooks))

	rec := doJSON(t, srv, http.MethodGet, "/v1/hooks", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hook_1")
}

func TestGetHookNotFound(t *testing.T) {
	hooks := &fakeHookReader{err: types.NewAppError(types.ErrCodeNotFoundHook, "hook not found", nil)}
	srv := newTestServer(t, NewSignalHandler(&fakeEmitter{}, &fakeRunner{}, &fakeSignalReader{}, &fakeQueueReader{}, hooks))

	rec := doJSON(t, srv, http.MethodGet, "/v1/hooks/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthNoProbes(t *testing.T) {
	srv := newTestServer(t, NewSignalHandler(&fakeEmitter{}, &fakeRunner{}, &fakeSignalReader{}, &fakeQueueReader{}, &fakeHookReader{}))

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

type probeFunc struct {
	name string
	err  error
}

func (p probeFunc) Name() string                { return p.name }
func (p probeFunc) Check(context.Context) error { return p.err }

func TestHealthUnhealthyProbe(t *testing.T) {
	srv := newTestServer(t, NewSignalHandler(&fakeEmitter{}, &fakeRunner{}, &fakeSignalReader{}, &fakeQueueReader{}, &fakeHookReader{}))
	srv.HealthProbes = []HealthProbe{
		probeFunc{name: "database"},
		probeFunc{name: "queue", err: assert.AnError},
	}

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"queue":{"status":"unhealthy"`)
}
