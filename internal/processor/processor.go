// Package processor drains unprocessed signal events and turns each into
// zero or more notification queue entries. It is the pipeline's only
// orchestrator: per run it claims a batch of signals, matches each against
// the enabled hooks for its type, and drives condition evaluation, recipient
// resolution, template rendering, and idempotent queue writes.
//
// Failure isolation is the core design constraint: one hook failing never
// blocks the signal's other hooks, one signal failing never blocks the rest
// of the batch, and a crashed run leaves its claims to expire so the next
// run retries the whole signal (at-least-once, made safe downstream by
// deterministic queue-entry IDs).
package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"signalpipe/internal/recipients"
	"signalpipe/internal/render"
	"signalpipe/internal/rules"
	"signalpipe/internal/types"
)

// EventStore is the slice of the signal event store the processor needs.
type EventStore interface {
	// ClaimUnprocessed atomically claims up to limit unprocessed signals
	// for this processor instance. A signal is claimable when processed is
	// false and it carries no live claim (no claim, or a claim older than
	// the lease). Claiming is the conditional write that keeps concurrent
	// processor instances from double-processing a signal.
	ClaimUnprocessed(ctx context.Context, limit int, lease time.Duration) ([]*types.SignalEvent, error)

	// MarkProcessed flips the processed flag exactly once and clears the claim.
	MarkProcessed(ctx context.Context, signalID string) error

	// ReleaseClaim abandons a claim so the signal is retried on the next run.
	ReleaseClaim(ctx context.Context, signalID string) error
}

// HookRegistry is the read-only hook configuration source.
type HookRegistry interface {
	EnabledHooksForSignalType(ctx context.Context, signalType types.SignalType) ([]*types.NotificationHook, error)
}

// TemplateStore is the read-only template library.
type TemplateStore interface {
	GetTemplate(ctx context.Context, id string) (*types.NotificationTemplate, error)
}

// QueueWriter persists queue entries. Upsert semantics: writing an entry
// whose deterministic ID already exists is a no-op reporting created=false.
type QueueWriter interface {
	UpsertQueueEntry(ctx context.Context, entry *types.NotificationQueueEntry) (created bool, err error)
}

// WakeupPublisher announces that new queue entries are waiting, so the
// delivery subsystem can drain promptly instead of polling. Optional.
type WakeupPublisher interface {
	AnnouncePending(ctx context.Context, entriesCreated int) error
}

// Metrics records run-level telemetry. Optional.
type Metrics interface {
	RecordRun(ctx context.Context, result BatchResult)
}

// SignalResult reports what happened to one signal during a run.
type SignalResult struct {
	SignalID             string           `json:"signal_id"`
	SignalType           types.SignalType `json:"signal_type"`
	HooksProcessed       int              `json:"hooks_processed"`
	NotificationsCreated int              `json:"notifications_created"`
	Errors               []string         `json:"errors,omitempty"`
}

// BatchResult aggregates one processing run.
type BatchResult struct {
	SignalsClaimed       int            `json:"signals_claimed"`
	SignalsProcessed     int            `json:"signals_processed"`
	NotificationsCreated int            `json:"notifications_created"`
	Results              []SignalResult `json:"results"`
	Duration             time.Duration  `json:"duration"`
}

// Config tunes a Processor.
type Config struct {
	// BatchSize caps how many signals one run claims. Zero means the
	// default of 100.
	BatchSize int
	// ClaimLease is how long a claim lasts before another instance may
	// steal the signal. Must comfortably exceed a worst-case run.
	ClaimLease time.Duration
	// HookTimeout bounds the work done for a single hook (directory
	// lookups included). A timed-out hook is a hook-level error.
	HookTimeout time.Duration
	// HookConcurrency is the number of hooks for one signal processed in
	// parallel. Zero means sequential.
	HookConcurrency int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.ClaimLease <= 0 {
		c.ClaimLease = 5 * time.Minute
	}
	if c.HookTimeout <= 0 {
		c.HookTimeout = 10 * time.Second
	}
	if c.HookConcurrency <= 0 {
		c.HookConcurrency = 1
	}
	return c
}

// Processor is the batch orchestrator. Construct one per worker process with
// its dependencies injected.
type Processor struct {
	events    EventStore
	hooks     HookRegistry
	templates TemplateStore
	queue     QueueWriter
	evaluator *rules.Evaluator
	resolver  *recipients.Resolver
	wakeup    WakeupPublisher
	metrics   Metrics
	clock     types.Clock
	logger    types.Logger
	cfg       Config
}

// Deps bundles the constructor dependencies for a Processor. Wakeup and
// Metrics may be nil.
type Deps struct {
	Events    EventStore
	Hooks     HookRegistry
	Templates TemplateStore
	Queue     QueueWriter
	Resolver  *recipients.Resolver
	Wakeup    WakeupPublisher
	Metrics   Metrics
	Clock     types.Clock
	Logger    types.Logger
}

// New creates a Processor.
func New(deps Deps, cfg Config) *Processor {
	clock := deps.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Processor{
		events:    deps.Events,
		hooks:     deps.Hooks,
		templates: deps.Templates,
		queue:     deps.Queue,
		evaluator: rules.NewEvaluator(deps.Logger),
		resolver:  deps.Resolver,
		wakeup:    deps.Wakeup,
		metrics:   deps.Metrics,
		clock:     clock,
		logger:    deps.Logger,
		cfg:       cfg.withDefaults(),
	}
}

// ProcessPending runs one batch: claim, process each signal independently,
// mark processed. It returns a non-nil error only for batch-level failures
// (the claim query itself failing); per-signal and per-hook failures are
// folded into the BatchResult.
func (p *Processor) ProcessPending(ctx context.Context) (BatchResult, error) {
	start := p.clock.Now()
	result := BatchResult{}

	signals, err := p.events.ClaimUnprocessed(ctx, p.cfg.BatchSize, p.cfg.ClaimLease)
	if err != nil {
		p.logger.Error("failed to claim unprocessed signals", "error", err.Error())
		return result, fmt.Errorf("ProcessPending: claim unprocessed: %w", err)
	}
	result.SignalsClaimed = len(signals)

	for _, signal := range signals {
		sigResult, completed := p.processSignal(ctx, signal)
		result.Results = append(result.Results, sigResult)
		result.NotificationsCreated += sigResult.NotificationsCreated
		if completed {
			result.SignalsProcessed++
		}
	}

	result.Duration = p.clock.Now().Sub(start)

	p.logger.Info("processing run complete",
		"signals_claimed", result.SignalsClaimed,
		"signals_processed", result.SignalsProcessed,
		"notifications_created", result.NotificationsCreated,
		"duration_ms", result.Duration.Milliseconds(),
	)

	if p.metrics != nil {
		p.metrics.RecordRun(ctx, result)
	}
	if p.wakeup != nil && result.NotificationsCreated > 0 {
		if err := p.wakeup.AnnouncePending(ctx, result.NotificationsCreated); err != nil {
			// Delivery also polls the queue table, so a lost wake-up only
			// delays draining.
			p.logger.Warn("failed to announce pending queue entries", "error", err.Error())
		}
	}

	return result, nil
}

// processSignal handles one claimed signal end to end. The signal is marked
// processed once every hook has been attempted, even when some hooks failed;
// only a failure to fetch hooks at all leaves it unprocessed for the next run.
// The returned flag reports whether the signal completed processing; a signal
// whose claim was released does not count toward SignalsProcessed.
func (p *Processor) processSignal(ctx context.Context, signal *types.SignalEvent) (SignalResult, bool) {
	sigResult := SignalResult{
		SignalID:   signal.ID,
		SignalType: signal.SignalType,
	}

	hooks, err := p.hooks.EnabledHooksForSignalType(ctx, signal.SignalType)
	if err != nil {
		p.logger.Error("failed to fetch hooks, leaving signal unprocessed",
			"signal_id", signal.ID,
			"signal_type", string(signal.SignalType),
			"error", err.Error(),
		)
		sigResult.Errors = append(sigResult.Errors, fmt.Sprintf("fetch hooks: %v", err))
		p.releaseClaim(ctx, signal.ID)
		return sigResult, false
	}

	if len(hooks) == 0 {
		// Signals with no interested party are legitimate.
		p.markProcessed(ctx, signal, &sigResult)
		return sigResult, true
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.HookConcurrency)

	for _, hook := range hooks {
		hook := hook
		g.Go(func() error {
			created, err := p.processHook(gctx, signal, hook)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				sigResult.Errors = append(sigResult.Errors, fmt.Sprintf("hook %s: %v", hook.ID, err))
				p.logger.Error("hook processing failed",
					"signal_id", signal.ID,
					"hook_id", hook.ID,
					"error", err.Error(),
				)
				// Never propagate: siblings must keep running.
				return nil
			}
			sigResult.HooksProcessed++
			if created {
				sigResult.NotificationsCreated++
			}
			return nil
		})
	}
	_ = g.Wait()

	p.markProcessed(ctx, signal, &sigResult)
	return sigResult, true
}

// processHook evaluates one hook against one signal and, on a match with
// recipients, upserts a queue entry. Returns whether an entry was newly
// created. Panics inside hook processing are converted to errors so a
// misbehaving hook stays a hook-level failure.
func (p *Processor) processHook(ctx context.Context, signal *types.SignalEvent, hook *types.NotificationHook) (created bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			created = false
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	hctx, cancel := context.WithTimeout(ctx, p.cfg.HookTimeout)
	defer cancel()

	if !p.evaluator.Matches(hook.Conditions, signal.Payload) {
		return false, nil
	}

	recs, err := p.resolver.Resolve(hctx, hook, signal.Payload)
	if err != nil {
		return false, fmt.Errorf("resolve recipients: %w", err)
	}
	if len(recs) == 0 {
		p.logger.Warn("hook matched but resolved no recipients, skipping",
			"signal_id", signal.ID,
			"hook_id", hook.ID,
		)
		return false, nil
	}

	template, err := p.templates.GetTemplate(hctx, hook.TemplateID)
	if err != nil {
		return false, fmt.Errorf("fetch template %s: %w", hook.TemplateID, err)
	}

	entry := render.BuildQueueEntry(signal, hook, template, recipients.Addresses(recs), p.clock.Now())
	created, err = p.queue.UpsertQueueEntry(hctx, entry)
	if err != nil {
		return false, fmt.Errorf("write queue entry: %w", err)
	}
	if !created {
		p.logger.Info("queue entry already exists, skipping duplicate",
			"entry_id", entry.ID,
		)
	}
	return created, nil
}

// markProcessed flips the processed flag. If the write fails the claim is
// left in place to expire, and the signal is reprocessed whole on a later
// run; idempotent queue writes make that safe.
func (p *Processor) markProcessed(ctx context.Context, signal *types.SignalEvent, sigResult *SignalResult) {
	if err := p.events.MarkProcessed(ctx, signal.ID); err != nil {
		p.logger.Error("failed to mark signal processed",
			"signal_id", signal.ID,
			"error", err.Error(),
		)
		sigResult.Errors = append(sigResult.Errors, fmt.Sprintf("mark processed: %v", err))
	}
}

// releaseClaim abandons the claim so the next run retries the signal.
func (p *Processor) releaseClaim(ctx context.Context, signalID string) {
	if err := p.events.ReleaseClaim(ctx, signalID); err != nil {
		// The lease will expire on its own; this only delays the retry.
		p.logger.Warn("failed to release claim",
			"signal_id", signalID,
			"error", err.Error(),
		)
	}
}
