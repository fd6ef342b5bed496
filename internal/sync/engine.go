// Package sync orchestrates upload-then-download cycles against the portal.
package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/curamed/medisync/internal/bus"
	"github.com/curamed/medisync/internal/remote"
	"github.com/curamed/medisync/internal/status"
	"github.com/curamed/medisync/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrSyncInProgress is returned when a trigger arrives while a cycle
	// is running. The redundant trigger is dropped, never queued.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrOffline is returned when the reachability probe fails at the
	// start of a cycle.
	ErrOffline = errors.New("portal unreachable, cannot sync")
)

// Trigger identifies what started a sync cycle.
type Trigger string

const (
	TriggerPeriodic Trigger = "periodic"
	TriggerOnline   Trigger = "online"
	TriggerManual   Trigger = "manual"
)

// Summary reports what one completed cycle did.
type Summary struct {
	Trigger    Trigger   `json:"trigger"`
	Uploaded   int       `json:"uploaded"`
	Failed     int       `json:"failed"`
	Abandoned  int       `json:"abandoned"`
	Merged     int       `json:"merged"`
	Skipped    int       `json:"skipped"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Status is the synchronizer's externally visible state.
type Status struct {
	IsSyncing    bool         `json:"isSyncing"`
	LastSyncTime *time.Time   `json:"lastSyncTime"`
	HasLastSync  bool         `json:"hasLastSync"`
	Phase        status.Phase `json:"phase"`
	PendingOps   int          `json:"pendingOps"`
}

// Options tune the engine's scheduling and retry policy.
type Options struct {
	Interval     time.Duration // periodic trigger interval
	OnlineSettle time.Duration // debounce after an offline-to-online edge
	MaxRetries   int           // upload attempts before abandonment
}

func (o *Options) applyDefaults() {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Minute
	}
	if o.OnlineSettle <= 0 {
		o.OnlineSettle = 2 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
}

// Engine runs sync cycles: drain the pending queue, download server
// changes, merge, advance the watermark. Cycles never overlap; a trigger
// arriving mid-cycle is dropped.
type Engine struct {
	db      *store.DB
	client  *remote.Client
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	opts    Options

	running stdsync.Mutex // cycle guard; TryLock drops redundant triggers
	syncing atomic.Bool

	triggers chan Trigger
	cancel   context.CancelFunc
}

// NewEngine creates a synchronizer.
func NewEngine(db *store.DB, client *remote.Client, b *bus.Bus, machine *status.Machine, logger *zap.Logger, opts Options) *Engine {
	opts.applyDefaults()
	return &Engine{
		db:       db,
		client:   client,
		bus:      b,
		machine:  machine,
		logger:   logger,
		opts:     opts,
		triggers: make(chan Trigger, 1),
	}
}

// Start launches the trigger consumer, the periodic ticker, and the
// online-edge listener.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	go e.consume(ctx)
	go e.tick(ctx)
	go e.watchOnline(ctx)
}

// Stop stops the engine. A cycle already in flight runs to completion.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// Sync requests a cycle without waiting for it. If a cycle is already
// running or queued the request is dropped.
func (e *Engine) Sync() {
	select {
	case e.triggers <- TriggerManual:
	default:
	}
}

// ForceSync runs a cycle now and reports the outcome. Unlike Sync it
// surfaces ErrSyncInProgress and ErrOffline so a user-facing caller can
// show "already syncing" / "offline" notices.
func (e *Engine) ForceSync(ctx context.Context) (*Summary, error) {
	return e.runCycle(ctx, TriggerManual)
}

// Status reports whether a cycle is running and the current watermark.
func (e *Engine) Status() (*Status, error) {
	last, err := e.db.LastSyncTime()
	if err != nil {
		return nil, fmt.Errorf("read watermark: %w", err)
	}
	pending, err := e.db.CountPendingOperations()
	if err != nil {
		return nil, fmt.Errorf("count pending: %w", err)
	}
	return &Status{
		IsSyncing:    e.syncing.Load(),
		LastSyncTime: last,
		HasLastSync:  last != nil,
		Phase:        e.machine.Current(),
		PendingOps:   pending,
	}, nil
}

func (e *Engine) consume(ctx context.Context) {
	for {
		select {
		case trigger := <-e.triggers:
			if _, err := e.runCycle(ctx, trigger); err != nil {
				switch {
				case errors.Is(err, ErrSyncInProgress):
					e.logger.Info("sync trigger dropped, cycle in progress", zap.String("trigger", string(trigger)))
				case errors.Is(err, ErrOffline):
					e.logger.Info("sync skipped, portal unreachable", zap.String("trigger", string(trigger)))
				default:
					e.logger.Error("sync cycle failed", zap.String("trigger", string(trigger)), zap.Error(err))
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case e.triggers <- TriggerPeriodic:
			default:
			}
		case <-ctx.Done():
			return
		}
	}
}

// watchOnline feeds offline-to-online edges into the trigger channel after
// a settle delay, so a flapping link does not start a cycle immediately.
func (e *Engine) watchOnline(ctx context.Context) {
	ch, unsub := e.bus.Subscribe(bus.KindNetOnline, 16)
	defer unsub()

	for {
		select {
		case <-ch:
			select {
			case <-time.After(e.opts.OnlineSettle):
			case <-ctx.Done():
				return
			}
			select {
			case e.triggers <- TriggerOnline:
			default:
			}
		case <-ctx.Done():
			return
		}
	}
}

// runCycle executes one complete sync cycle. The guard is a non-blocking
// try-acquire: concurrent callers get ErrSyncInProgress instead of queuing.
func (e *Engine) runCycle(ctx context.Context, trigger Trigger) (*Summary, error) {
	if !e.running.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer e.running.Unlock()

	e.syncing.Store(true)
	defer e.syncing.Store(false)

	_ = e.machine.Transition(status.Probing)

	if err := e.client.Health(ctx); err != nil {
		// Offline is not a failed cycle: nothing was attempted. The cycle
		// returns to Idle and subscribers see a skip, not sync.failed.
		offlineErr := fmt.Errorf("%w: %v", ErrOffline, err)
		_ = e.machine.Transition(status.Failed)
		_ = e.machine.Transition(status.Idle)
		e.bus.Publish(bus.Event{
			Kind:      bus.KindSyncSkippedOffline,
			Timestamp: time.Now(),
			Payload:   map[string]string{"trigger": string(trigger)},
		})
		return nil, offlineErr
	}

	_ = e.machine.Transition(status.Uploading)

	sum := &Summary{Trigger: trigger}
	if err := e.drainQueue(ctx, sum); err != nil {
		e.failCycle(trigger, err)
		return nil, err
	}

	_ = e.machine.Transition(status.Merging)

	since, err := e.db.LastSyncTime()
	if err != nil {
		e.failCycle(trigger, err)
		return nil, fmt.Errorf("read watermark: %w", err)
	}
	cs, err := e.client.DownloadChanges(ctx, since)
	if err != nil {
		if errors.Is(err, remote.ErrUnauthorized) {
			e.bus.Publish(bus.Event{Kind: bus.KindAuthRequired, Timestamp: time.Now()})
		}
		e.failCycle(trigger, err)
		return nil, fmt.Errorf("download changes: %w", err)
	}
	stats, err := e.db.MergeChangeSet(cs)
	if err != nil {
		e.failCycle(trigger, err)
		return nil, fmt.Errorf("merge changes: %w", err)
	}
	sum.Merged = stats.Merged
	sum.Skipped = stats.Skipped

	now := time.Now().UTC()
	if err := e.db.SetLastSyncTime(now); err != nil {
		e.failCycle(trigger, err)
		return nil, fmt.Errorf("advance watermark: %w", err)
	}
	sum.FinishedAt = now

	_ = e.machine.Transition(status.Completed)
	_ = e.machine.Transition(status.Idle)

	e.logger.Info("sync cycle completed",
		zap.String("trigger", string(trigger)),
		zap.Int("uploaded", sum.Uploaded),
		zap.Int("failed", sum.Failed),
		zap.Int("abandoned", sum.Abandoned),
		zap.Int("merged", sum.Merged),
		zap.Int("skipped", sum.Skipped))
	e.bus.Publish(bus.Event{Kind: bus.KindSyncCompleted, Timestamp: now, Payload: sum})

	return sum, nil
}

func (e *Engine) failCycle(trigger Trigger, err error) {
	_ = e.machine.Transition(status.Failed)
	_ = e.machine.Transition(status.Idle)
	e.bus.Publish(bus.Event{
		Kind:      bus.KindSyncFailed,
		Timestamp: time.Now(),
		Payload:   map[string]string{"trigger": string(trigger), "error": err.Error()},
	})
}
