// Package netwatch answers "can we actually reach the portal", which is
// distinct from link-level connectivity.
package netwatch

import (
	"context"
	"sync"
	"time"

	"github.com/curamed/medisync/internal/bus"
	"go.uber.org/zap"
)

// Prober performs one reachability probe. Satisfied by the remote client's
// Health method.
type Prober interface {
	Health(ctx context.Context) error
}

// Watcher polls the portal's health endpoint and publishes net.online /
// net.offline edges on the bus. The synchronizer consumes the online edge
// as a trigger; for gating it probes once per cycle itself.
type Watcher struct {
	prober   Prober
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration

	mu     sync.RWMutex
	online bool
	known  bool

	cancel context.CancelFunc
}

// NewWatcher creates a watcher polling at the given interval.
func NewWatcher(prober Prober, b *bus.Bus, logger *zap.Logger, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Watcher{
		prober:   prober,
		bus:      b,
		logger:   logger,
		interval: interval,
	}
}

// Online returns the last observed reachability. Before the first probe
// completes it reports false.
func (w *Watcher) Online() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.online
}

// Start begins polling in the background.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	go w.loop(ctx)
}

// Stop stops the polling loop.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *Watcher) loop(ctx context.Context) {
	// Probe once immediately so the flag is meaningful at startup.
	w.check(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) check(ctx context.Context) {
	err := w.prober.Health(ctx)
	nowOnline := err == nil

	w.mu.Lock()
	wasOnline, known := w.online, w.known
	w.online, w.known = nowOnline, true
	w.mu.Unlock()

	if known && wasOnline == nowOnline {
		return
	}

	if nowOnline {
		w.logger.Info("portal reachable")
		w.bus.Publish(bus.Event{Kind: bus.KindNetOnline, Timestamp: time.Now()})
	} else {
		w.logger.Warn("portal unreachable", zap.Error(err))
		w.bus.Publish(bus.Event{Kind: bus.KindNetOffline, Timestamp: time.Now()})
	}
}
