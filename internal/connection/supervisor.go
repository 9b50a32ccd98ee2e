package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Soochol/F2X-NeuroHub-sub000/internal/clock"
	"github.com/Soochol/F2X-NeuroHub-sub000/internal/model"
)

// Dialer builds a fresh Transport for one connection attempt.
type Dialer func() Transport

// Announcer re-sends the full subscription set after a reconnect.
type Announcer interface {
	Reannounce()
}

// MessageHandler consumes inbound frames. The supervisor invokes it from
// one dispatch goroutine, so no two frames are handled concurrently.
type MessageHandler func(Inbound)

// phase is the backoff state machine position.
type phase int

const (
	phaseIdle       phase = iota // never connected or explicitly closed
	phaseConnecting              // one attempt in flight
	phaseConnected               // transport up, dispatch loop running
	phaseWaiting                 // reconnect timer pending
)

// stateBufferSize bounds the status transition channel.
const stateBufferSize = 16

// Supervisor wraps a Transport with reconnection, heartbeat bookkeeping and
// post-reconnect re-announcement. Errors are non-fatal: backoff delay is
// capped, attempts are unbounded.
type Supervisor struct {
	cfg    SupervisorConfig
	dial   Dialer
	clk    clock.Clock
	logger *slog.Logger

	mu            sync.Mutex
	phase         phase
	transport     Transport
	attempts      int
	lastHeartbeat time.Time
	closed        bool
	retryTimer    clock.Timer
	handler       MessageHandler
	announcer     Announcer
	status        model.TransportStatus

	stateCh chan model.TransportStatus

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSupervisor creates a Supervisor. Pass clock.System() outside tests.
func NewSupervisor(cfg SupervisorConfig, dial Dialer, clk clock.Clock, logger *slog.Logger) *Supervisor {
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = DefaultSupervisorConfig().ReconnectBaseDelay
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = DefaultSupervisorConfig().ReconnectMaxDelay
	}
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Supervisor{
		cfg:     cfg,
		dial:    dial,
		clk:     clk,
		logger:  logger,
		status:  model.TransportDisconnected,
		stateCh: make(chan model.TransportStatus, stateBufferSize),
	}
}

// OnMessage registers the sole downstream consumer of inbound frames.
func (s *Supervisor) OnMessage(h MessageHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// SetAnnouncer registers the subscription registry for post-reconnect
// re-announcement. Set after construction: the registry itself sends
// through this supervisor.
func (s *Supervisor) SetAnnouncer(a Announcer) {
	s.mu.Lock()
	s.announcer = a
	s.mu.Unlock()
}

// Connect idempotently ensures one outstanding connection attempt. Calls
// while an attempt is in flight, a retry is scheduled, or the transport is
// up are no-ops.
func (s *Supervisor) Connect(ctx context.Context) {
	s.mu.Lock()
	if s.closed || s.phase != phaseIdle {
		s.mu.Unlock()
		return
	}
	if s.ctx == nil {
		s.ctx, s.cancel = context.WithCancel(ctx)
	}
	s.phase = phaseConnecting
	s.mu.Unlock()

	go s.attempt()
}

// Send writes one frame, best-effort. Returns ErrNotConnected while the
// transport is down; callers rely on reconnect re-announcement instead of
// retries.
func (s *Supervisor) Send(data []byte) error {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()

	if t == nil {
		return ErrNotConnected
	}
	return t.Send(data)
}

// IsConnected reports whether the transport is currently up.
func (s *Supervisor) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == phaseConnected
}

// State returns a snapshot of the session connection state. The polling
// fallback flag is owned by the fallback controller, not the supervisor.
func (s *Supervisor) State() model.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return model.ConnectionState{
		TransportStatus:   s.status,
		LastHeartbeat:     s.lastHeartbeat,
		ReconnectAttempts: s.attempts,
	}
}

// StateChanges returns the transport status transition stream consumed by
// the polling fallback controller.
func (s *Supervisor) StateChanges() <-chan model.TransportStatus {
	return s.stateCh
}

// Close cancels any pending reconnect timer and suppresses further
// attempts. Intentional teardown must call this to avoid a zombie
// reconnect.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.phase = phaseIdle
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	t := s.transport
	s.transport = nil
	cancel := s.cancel
	s.setStatusLocked(model.TransportDisconnected)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if t != nil {
		t.Close()
	}

	s.logger.Info("connection supervisor closed")
	return nil
}

// attempt runs one connection attempt end to end.
func (s *Supervisor) attempt() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.phase = phaseConnecting
	s.retryTimer = nil
	s.setStatusLocked(model.TransportConnecting)
	ctx := s.ctx
	s.mu.Unlock()

	t := s.dial()
	if err := t.Connect(ctx); err != nil {
		s.logger.Warn("connect failed", "error", err)
		t.Close()
		s.scheduleRetry()
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		t.Close()
		return
	}
	s.transport = t
	s.phase = phaseConnected
	s.attempts = 0
	s.lastHeartbeat = s.clk.Now()
	s.setStatusLocked(model.TransportConnected)
	announcer := s.announcer
	s.mu.Unlock()

	s.logger.Info("push channel connected")

	// Subscribe is idempotent server-side, so replaying the full interest
	// set after every connect is safe.
	if announcer != nil {
		announcer.Reannounce()
	}

	go s.dispatchLoop(t)
}

// dispatchLoop is the single inbound path for one transport generation.
// It exits on transport error, at which point a retry is scheduled; the
// next generation's loop starts only after that retry connects, so frame
// handling stays serialized.
func (s *Supervisor) dispatchLoop(t Transport) {
	for {
		select {
		case <-s.ctx.Done():
			return

		case err := <-t.Errors():
			s.logger.Warn("push channel lost", "error", err)
			t.Close()

			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			s.transport = nil
			s.setStatusLocked(model.TransportError)
			s.mu.Unlock()

			s.scheduleRetry()
			return

		case msg, ok := <-t.Messages():
			if !ok {
				t.Close()

				s.mu.Lock()
				if s.closed {
					s.mu.Unlock()
					return
				}
				s.transport = nil
				s.setStatusLocked(model.TransportDisconnected)
				s.mu.Unlock()

				s.scheduleRetry()
				return
			}

			s.mu.Lock()
			s.lastHeartbeat = msg.ReceivedAt
			handler := s.handler
			s.mu.Unlock()

			if handler != nil {
				handler(msg)
			}
		}
	}
}

// scheduleRetry arms the backoff timer for the next attempt.
func (s *Supervisor) scheduleRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	delay := s.backoffLocked()
	s.attempts++
	s.phase = phaseWaiting
	s.retryTimer = s.clk.AfterFunc(delay, s.attempt)

	s.logger.Info("reconnect scheduled",
		"delay", delay,
		"attempts", s.attempts,
	)
}

// backoffLocked computes min(base * 2^attempts, max).
func (s *Supervisor) backoffLocked() time.Duration {
	if s.attempts >= 30 {
		return s.cfg.ReconnectMaxDelay
	}
	delay := s.cfg.ReconnectBaseDelay << uint(s.attempts)
	if delay > s.cfg.ReconnectMaxDelay || delay <= 0 {
		delay = s.cfg.ReconnectMaxDelay
	}
	return delay
}

// setStatusLocked records a status transition and publishes it without
// blocking the caller.
func (s *Supervisor) setStatusLocked(status model.TransportStatus) {
	if s.status == status {
		return
	}
	s.status = status

	select {
	case s.stateCh <- status:
	default:
		s.logger.Debug("state change buffer full, dropping transition",
			"status", status,
		)
	}
}
