package poller

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Soochol/F2X-NeuroHub-sub000/internal/clock"
	"github.com/Soochol/F2X-NeuroHub-sub000/internal/model"
)

// Fallback tracks the push channel's health and decides the snapshot poll
// interval. It activates only after a session has been connected at least
// once: a session that never connects keeps the default interval.
type Fallback struct {
	cfg    Config
	clk    clock.Clock
	logger *slog.Logger

	// refresh pokes the poll loop for an immediate snapshot pass.
	refresh chan struct{}

	mu            sync.Mutex
	active        bool
	connectedOnce bool
	lastStatus    model.TransportStatus
	graceTimer    clock.Timer
}

// NewFallback creates the controller. Pass clock.System() outside tests.
func NewFallback(cfg Config, clk clock.Clock, logger *slog.Logger) *Fallback {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{
		cfg:        cfg,
		clk:        clk,
		logger:     logger,
		refresh:    make(chan struct{}, 1),
		lastStatus: model.TransportDisconnected,
	}
}

// Active reports whether fallback polling is engaged.
func (f *Fallback) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Interval returns the current snapshot poll interval.
func (f *Fallback) Interval() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active {
		return f.cfg.FallbackInterval
	}
	return f.cfg.Interval
}

// HandleTransition folds one transport status transition into the
// controller state.
func (f *Fallback) HandleTransition(status model.TransportStatus) {
	f.mu.Lock()
	f.lastStatus = status

	if status == model.TransportConnected {
		f.connectedOnce = true
		if f.graceTimer != nil {
			f.graceTimer.Stop()
			f.graceTimer = nil
		}
		wasActive := f.active
		f.active = false
		f.mu.Unlock()

		if wasActive {
			// Unknown changes may have landed while degraded.
			f.logger.Info("push channel restored, leaving polling fallback")
			f.RequestRefresh()
		}
		return
	}

	if !f.connectedOnce || f.active || f.graceTimer != nil {
		f.mu.Unlock()
		return
	}
	f.graceTimer = f.clk.AfterFunc(f.cfg.GracePeriod, f.graceExpired)
	f.mu.Unlock()
}

// graceExpired fires when a disconnect has outlasted the grace period.
func (f *Fallback) graceExpired() {
	f.mu.Lock()
	f.graceTimer = nil
	if f.lastStatus == model.TransportConnected {
		f.mu.Unlock()
		return
	}
	f.active = true
	f.mu.Unlock()

	f.logger.Warn("sustained disconnection, entering polling fallback",
		"interval", f.cfg.FallbackInterval,
	)
	f.RequestRefresh()
}

// Stop cancels a pending grace timer.
func (f *Fallback) Stop() {
	f.mu.Lock()
	if f.graceTimer != nil {
		f.graceTimer.Stop()
		f.graceTimer = nil
	}
	f.mu.Unlock()
}

// RequestRefresh pokes the poll loop without blocking; a pass already
// pending absorbs the request.
func (f *Fallback) RequestRefresh() {
	select {
	case f.refresh <- struct{}{}:
	default:
	}
}

// Refreshes exposes the poke channel to the poll loop.
func (f *Fallback) Refreshes() <-chan struct{} {
	return f.refresh
}
