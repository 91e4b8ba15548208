// Package emitter is the public entry point producers use to announce domain
// events. Emission is fire-and-forget by contract: Emit reports failures in
// its result value and never propagates them, so notification infrastructure
// being down can never abort the business transaction that raised the event.
package emitter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"signalpipe/internal/types"
)

// EventAppender is the narrow slice of the event store the emitter needs.
type EventAppender interface {
	AppendSignalEvent(ctx context.Context, event *types.SignalEvent) error
}

// Result reports the outcome of an emission attempt to the producer. A
// failed emission carries the error message; producers typically log it and
// move on.
type Result struct {
	Success   bool      `json:"success"`
	SignalID  string    `json:"signal_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Options carries optional emission metadata.
type Options struct {
	// EmittedBy is the already-resolved acting identity. When empty, the
	// emitter falls back to an actor found in the payload, then "anonymous".
	EmittedBy string
	// Source is a free-text origin tag ("website_form", "admin_panel").
	Source string
}

// FormOptions carries the extra metadata stamped onto form-submission
// payloads.
type FormOptions struct {
	Urgency   string
	TestMode  bool
	SessionID string
}

// formKinds maps the closed set of public form kinds to their signal types.
var formKinds = map[string]types.SignalType{
	"get_estimate":     types.SignalGetEstimateFormSubmitted,
	"contact":          types.SignalContactFormSubmitted,
	"service_request":  types.SignalServiceRequestFormSubmitted,
	"callback_request": types.SignalCallbackRequestFormSubmitted,
}

// FormSignalType maps a public form kind to its signal type, reporting
// whether the kind is in the closed set. Callers that need to reject an
// unknown kind up front (the HTTP surface) use this instead of inferring it
// from a failed emission result.
func FormSignalType(formKind string) (types.SignalType, bool) {
	signalType, ok := formKinds[formKind]
	return signalType, ok
}

// payloadActorKeys are checked in order when deriving EmittedBy from the
// payload.
var payloadActorKeys = []string{"emittedBy", "userId", "userEmail", "customerEmail"}

// Emitter validates and appends signal events. Construct one per process
// with its store dependency injected; there is no package-level singleton.
type Emitter struct {
	store  EventAppender
	clock  types.Clock
	logger types.Logger
}

// New creates an Emitter writing to the given event store.
func New(store EventAppender, clock types.Clock, logger types.Logger) *Emitter {
	return &Emitter{
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// Emit validates the signal type, stamps metadata, and appends exactly one
// unprocessed SignalEvent. It never returns or panics an error to the
// caller: every failure, including a panicking store, is converted into a
// failed Result.
//
// Two calls with identical arguments produce two distinct events. Signals
// are append-only facts, not deduplicated messages.
func (e *Emitter) Emit(ctx context.Context, signalType types.SignalType, payload types.Payload, opts *Options) (result Result) {
	now := e.clock.Now()
	result = Result{Timestamp: now}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic during signal emission",
				"signal_type", string(signalType),
				"panic", fmt.Sprint(r),
			)
			result = Result{Error: fmt.Sprintf("panic: %v", r), Timestamp: now}
		}
	}()

	if opts == nil {
		opts = &Options{}
	}

	event := &types.SignalEvent{
		ID:         "sig_" + uuid.New().String(),
		SignalType: signalType,
		Payload:    payload,
		EmittedAt:  now,
		EmittedBy:  e.resolveActor(opts.EmittedBy, payload),
		Source:     opts.Source,
		Processed:  false,
	}

	if err := event.Validate(); err != nil {
		e.logger.Warn("signal emission rejected",
			"signal_type", string(signalType),
			"error", err.Error(),
		)
		result.Error = err.Error()
		return result
	}

	if err := e.store.AppendSignalEvent(ctx, event); err != nil {
		e.logger.Error("signal emission failed",
			"signal_type", string(signalType),
			"signal_id", event.ID,
			"error", err.Error(),
		)
		result.Error = err.Error()
		return result
	}

	e.logger.Info("signal emitted",
		"signal_type", string(signalType),
		"signal_id", event.ID,
		"emitted_by", event.EmittedBy,
		"source", event.Source,
	)

	result.Success = true
	result.SignalID = event.ID
	return result
}

// EmitFormSubmission maps a form kind from the closed set to its canonical
// signal type, stamps submission metadata into the payload, and delegates to
// Emit. An unknown form kind is an emission failure, not a panic.
func (e *Emitter) EmitFormSubmission(ctx context.Context, formKind string, formData map[string]any, opts FormOptions) Result {
	signalType, ok := formKinds[formKind]
	if !ok {
		err := types.NewAppError(types.ErrCodeValidationUnknownFormKind,
			fmt.Sprintf("unknown form kind %q", formKind), nil)
		e.logger.Warn("form submission emission rejected", "form_kind", formKind)
		return Result{Error: err.Error(), Timestamp: e.clock.Now()}
	}

	now := e.clock.Now()
	payload := make(types.Payload, len(formData)+5)
	for k, v := range formData {
		payload[k] = v
	}
	payload["source"] = "website_form"
	payload["timestamp"] = now.Format(time.RFC3339)
	payload["urgency"] = urgencyOrDefault(opts.Urgency)
	payload["testMode"] = opts.TestMode
	if opts.SessionID != "" {
		payload["sessionId"] = opts.SessionID
	}

	return e.Emit(ctx, signalType, payload, &Options{Source: "website_form"})
}

// EmitStatusChange emits the entity-specific status-change signal for a
// record transition. Metadata entries are merged into the payload but never
// overwrite the canonical fields.
func (e *Emitter) EmitStatusChange(ctx context.Context, entityType, entityID, oldStatus, newStatus string, metadata map[string]any) Result {
	signalType, ok := types.StatusChangeSignal(entityType)
	if !ok {
		err := types.NewAppError(types.ErrCodeValidationUnknownEntityType,
			fmt.Sprintf("no status-change signal for entity type %q", entityType), nil)
		e.logger.Warn("status change emission rejected", "entity_type", entityType)
		return Result{Error: err.Error(), Timestamp: e.clock.Now()}
	}

	payload := make(types.Payload, len(metadata)+4)
	for k, v := range metadata {
		payload[k] = v
	}
	payload["entityType"] = entityType
	payload["entityId"] = entityID
	payload["oldStatus"] = oldStatus
	payload["newStatus"] = newStatus

	return e.Emit(ctx, signalType, payload, &Options{Source: "status_change"})
}

// resolveActor picks the attribution identity: explicit option first, then
// well-known payload keys, then "anonymous".
func (e *Emitter) resolveActor(explicit string, payload types.Payload) string {
	if explicit != "" {
		return explicit
	}
	for _, key := range payloadActorKeys {
		if v, ok := payload[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return "anonymous"
}

func urgencyOrDefault(u string) string {
	if u == "" {
		return "normal"
	}
	return u
}
