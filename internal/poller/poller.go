package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Soochol/F2X-NeuroHub-sub000/internal/model"
)

// SnapshotClient is the request/response collaborator serving authoritative
// snapshots. Responses are one-shot, never a stream.
type SnapshotClient interface {
	ListBatches(ctx context.Context) ([]model.Batch, error)
	GetBatch(ctx context.Context, id string) (model.Batch, error)
}

// SubscriptionSource provides the ids currently of interest; those get
// per-batch detail fetches on top of the list snapshot.
type SubscriptionSource interface {
	ActiveIDs() []string
}

// Merger folds snapshot batches into the store under its precedence policy.
type Merger interface {
	MergeSnapshot(model.Batch)
}

// StateSource exposes the supervisor's transport status transitions.
type StateSource interface {
	StateChanges() <-chan model.TransportStatus
}

// Config holds poller and fallback settings.
type Config struct {
	Interval         time.Duration // default snapshot poll interval
	FallbackInterval time.Duration // raised frequency while degraded
	GracePeriod      time.Duration // disconnect tolerance before fallback
	Concurrency      int           // max concurrent detail fetches
	Timeout          time.Duration // per-pass fetch deadline
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:         30 * time.Second,
		FallbackInterval: 3 * time.Second,
		GracePeriod:      10 * time.Second,
		Concurrency:      4,
		Timeout:          10 * time.Second,
	}
}

// Poller runs the snapshot poll loop at the fallback controller's current
// interval.
type Poller struct {
	cfg      Config
	client   SnapshotClient
	merger   Merger
	subs     SubscriptionSource
	fallback *Fallback
	states   StateSource
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Poller driving fallback from the supervisor's transitions.
func New(cfg Config, client SnapshotClient, merger Merger, subs SubscriptionSource, fallback *Fallback, states StateSource, logger *slog.Logger) *Poller {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:      cfg,
		client:   client,
		merger:   merger,
		subs:     subs,
		fallback: fallback,
		states:   states,
		logger:   logger,
	}
}

// Start begins the state watcher and the poll loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	if p.states != nil {
		p.wg.Add(1)
		go p.stateLoop()
	}

	p.wg.Add(1)
	go p.run()

	p.logger.Info("snapshot poller started",
		"interval", p.cfg.Interval,
		"fallback_interval", p.cfg.FallbackInterval,
		"grace_period", p.cfg.GracePeriod,
	)

	return nil
}

// Stop shuts the poller down, cancelling in-flight fetches.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.fallback.Stop()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("snapshot poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stateLoop feeds transport transitions into the fallback controller.
func (p *Poller) stateLoop() {
	defer p.wg.Done()

	changes := p.states.StateChanges()
	for {
		select {
		case <-p.ctx.Done():
			return
		case status, ok := <-changes:
			if !ok {
				return
			}
			p.fallback.HandleTransition(status)
		}
	}
}

// run is the poll loop. Initial data arrives via the first default-
// frequency pass whether or not the push channel ever comes up.
func (p *Poller) run() {
	defer p.wg.Done()

	p.pollOnce()

	timer := time.NewTimer(p.fallback.Interval())
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-timer.C:
			p.pollOnce()
		case <-p.fallback.Refreshes():
			p.pollOnce()
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		timer.Reset(p.fallback.Interval())
	}
}

// pollOnce fetches the list snapshot plus subscribed batch details and
// merges everything into the store.
func (p *Poller) pollOnce() {
	start := time.Now()

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	merged := 0
	batches, err := p.client.ListBatches(ctx)
	if err != nil {
		p.logger.Warn("batch list snapshot failed", "error", err)
	} else {
		for _, b := range batches {
			p.merger.MergeSnapshot(b)
		}
		merged = len(batches)
	}

	var ids []string
	if p.subs != nil {
		ids = p.subs.ActiveIDs()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			b, err := p.client.GetBatch(gctx, id)
			if err != nil {
				p.logger.Warn("batch snapshot failed",
					"batch_id", id,
					"error", err,
				)
				return nil
			}
			p.merger.MergeSnapshot(b)
			return nil
		})
	}
	g.Wait()

	p.logger.Debug("snapshot pass complete",
		"listed", merged,
		"detailed", len(ids),
		"fallback", p.fallback.Active(),
		"duration", time.Since(start),
	)
}
