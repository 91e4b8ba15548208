// Package api implements the HTTP surface of the signal pipeline: signal
// emission endpoints for producers, a manual processing trigger for
// operators, and read-only inspection of the event log and notification
// queue.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"signalpipe/internal/emitter"
	"signalpipe/internal/processor"
	"signalpipe/internal/types"
)

// SignalEmitter covers the emission entry points the handler exposes. The
// concrete implementation is emitter.Emitter; the contract is that these
// calls never fail with an error, only with a Result carrying one.
type SignalEmitter interface {
	Emit(ctx context.Context, signalType types.SignalType, payload types.Payload, opts *emitter.Options) emitter.Result
	EmitFormSubmission(ctx context.Context, formKind string, formData map[string]any, opts emitter.FormOptions) emitter.Result
	EmitStatusChange(ctx context.Context, entityType, entityID, oldStatus, newStatus string, metadata map[string]any) emitter.Result
}

// BatchRunner triggers one processing run. Implemented by processor.Processor.
type BatchRunner interface {
	ProcessPending(ctx context.Context) (processor.BatchResult, error)
}

// SignalReader provides read access to the event log for inspection
// endpoints.
type SignalReader interface {
	GetSignalEvent(ctx context.Context, signalID string) (*types.SignalEvent, error)
	CountUnprocessed(ctx context.Context) (int, error)
}

// QueueReader lists pending notification queue entries.
type QueueReader interface {
	ListPending(ctx context.Context, limit int) ([]*types.NotificationQueueEntry, error)
}

// HookReader provides read access to the hook registry for inspection
// endpoints. Hook mutation happens out of band, so the API surface is
// read-only.
type HookReader interface {
	ListHooks(ctx context.Context) ([]*types.NotificationHook, error)
	GetHook(ctx context.Context, hookID string) (*types.NotificationHook, error)
}

// EmitSignalRequest is the request body for POST /v1/signals.
type EmitSignalRequest struct {
	SignalType string         `json:"signal_type" validate:"required"`
	Payload    map[string]any `json:"payload"`
	EmittedBy  string         `json:"emitted_by,omitempty"`
	Source     string         `json:"source,omitempty"`
}

// EmitFormRequest is the request body for POST /v1/signals/forms.
type EmitFormRequest struct {
	FormKind  string         `json:"form_kind" validate:"required"`
	FormData  map[string]any `json:"form_data" validate:"required"`
	Urgency   string         `json:"urgency,omitempty"`
	TestMode  bool           `json:"test_mode,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}

// EmitStatusChangeRequest is the request body for POST /v1/signals/status-changes.
type EmitStatusChangeRequest struct {
	EntityType string         `json:"entity_type" validate:"required"`
	EntityID   string         `json:"entity_id" validate:"required"`
	OldStatus  string         `json:"old_status"`
	NewStatus  string         `json:"new_status" validate:"required"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SignalHandler exposes signal emission, processing, and inspection routes.
type SignalHandler struct {
	emitter SignalEmitter
	runner  BatchRunner
	signals SignalReader
	queue   QueueReader
	hooks   HookReader
}

// NewSignalHandler creates a SignalHandler with the provided dependencies.
func NewSignalHandler(em SignalEmitter, runner BatchRunner, signals SignalReader, queue QueueReader, hooks HookReader) *SignalHandler {
	return &SignalHandler{
		emitter: em,
		runner:  runner,
		signals: signals,
		queue:   queue,
		hooks:   hooks,
	}
}

// RegisterRoutes mounts signal routes on the provided chi.Router.
func (h *SignalHandler) RegisterRoutes(r chi.Router) {
	r.Route("/signals", func(r chi.Router) {
		r.Post("/", h.Emit)
		r.Post("/forms", h.EmitForm)
		r.Post("/status-changes", h.EmitStatusChange)
		r.Get("/unprocessed-count", h.UnprocessedCount)
		r.Get("/{id}", h.Get)
	})
	r.Route("/hooks", func(r chi.Router) {
		r.Get("/", h.ListHooks)
		r.Get("/{id}", h.GetHook)
	})
	r.Post("/process", h.Process)
	r.Get("/queue/pending", h.PendingQueue)
}

// Emit handles POST /v1/signals. The emitter itself never fails; a Result
// with Success=false is still a 202 because the producer's request was
// accepted and the failure is recorded in the result body. The one exception
// is an unknown signal type, which is the caller's mistake and returns 400.
func (h *SignalHandler) Emit(w http.ResponseWriter, r *http.Request) {
	var req EmitSignalRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}

	signalType := types.SignalType(req.SignalType)
	if !signalType.IsValid() {
		Error(w, r, types.NewAppError(
			types.ErrCodeValidationUnknownSignalType,
			"unknown signal type: "+req.SignalType,
			nil,
		))
		return
	}

	result := h.emitter.Emit(r.Context(), signalType, types.Payload(req.Payload), &emitter.Options{
		EmittedBy: req.EmittedBy,
		Source:    req.Source,
	})

	JSON(w, r, http.StatusAccepted, APIResponse{Data: result})
}

// EmitForm handles POST /v1/signals/forms. An unknown form kind is the
// caller's mistake and returns 400; any other emission failure is recorded
// in the 202 result body, same as the generic Emit endpoint.
func (h *SignalHandler) EmitForm(w http.ResponseWriter, r *http.Request) {
	var req EmitFormRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}

	if _, ok := emitter.FormSignalType(req.FormKind); !ok {
		Error(w, r, types.NewAppError(
			types.ErrCodeValidationUnknownFormKind,
			"unknown form kind: "+req.FormKind,
			nil,
		))
		return
	}

	result := h.emitter.EmitFormSubmission(r.Context(), req.FormKind, req.FormData, emitter.FormOptions{
		Urgency:   req.Urgency,
		TestMode:  req.TestMode,
		SessionID: req.SessionID,
	})

	JSON(w, r, http.StatusAccepted, APIResponse{Data: result})
}

// EmitStatusChange handles POST /v1/signals/status-changes.
func (h *SignalHandler) EmitStatusChange(w http.ResponseWriter, r *http.Request) {
	var req EmitStatusChangeRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}

	if _, ok := types.StatusChangeSignal(req.EntityType); !ok {
		Error(w, r, types.NewAppError(
			types.ErrCodeValidationUnknownEntityType,
			"unknown entity type: "+req.EntityType,
			nil,
		))
		return
	}

	result := h.emitter.EmitStatusChange(
		r.Context(),
		req.EntityType,
		req.EntityID,
		req.OldStatus,
		req.NewStatus,
		req.Metadata,
	)

	JSON(w, r, http.StatusAccepted, APIResponse{Data: result})
}

// Get handles GET /v1/signals/{id}.
func (h *SignalHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	signal, err := h.signals.GetSignalEvent(r.Context(), id)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: signal})
}

// UnprocessedCount handles GET /v1/signals/unprocessed-count.
func (h *SignalHandler) UnprocessedCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.signals.CountUnprocessed(r.Context())
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: map[string]int{"unprocessed": count}})
}

// ListHooks handles GET /v1/hooks.
func (h *SignalHandler) ListHooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := h.hooks.ListHooks(r.Context())
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: hooks})
}

// GetHook handles GET /v1/hooks/{id}.
func (h *SignalHandler) GetHook(w http.ResponseWriter, r *http.Request) {
	hook, err := h.hooks.GetHook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: hook})
}

// Process handles POST /v1/process. It runs one synchronous processing batch
// and returns the per-signal results. Intended for operators and for local
// development; production runs are driven by the scheduled worker.
func (h *SignalHandler) Process(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.ProcessPending(r.Context())
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: result})
}

// defaultPendingLimit caps the queue inspection page size.
const defaultPendingLimit = 50

// PendingQueue handles GET /v1/queue/pending?limit=N.
func (h *SignalHandler) PendingQueue(w http.ResponseWriter, r *http.Request) {
	limit := defaultPendingLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidPayload,
				"limit must be an integer between 1 and 500",
				nil,
			))
			return
		}
		limit = parsed
	}

	entries, err := h.queue.ListPending(r.Context(), limit)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: entries})
}
