package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Soochol/F2X-NeuroHub-sub000/internal/clock"
	"github.com/Soochol/F2X-NeuroHub-sub000/internal/model"
)

// fakeTransport is a scriptable in-memory Transport.
type fakeTransport struct {
	connectErr error

	mu        sync.Mutex
	connected bool
	sent      [][]byte

	messages chan Inbound
	errors   chan error
}

func newFakeTransport(connectErr error) *fakeTransport {
	return &fakeTransport{
		connectErr: connectErr,
		messages:   make(chan Inbound, 16),
		errors:     make(chan error, 1),
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeTransport) Messages() <-chan Inbound { return f.messages }
func (f *fakeTransport) Errors() <-chan error     { return f.errors }

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// fakeDialer hands out transports in order, repeating the last one.
type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
	dials      int
}

func (d *fakeDialer) dial() Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.dials
	if i >= len(d.transports) {
		i = len(d.transports) - 1
	}
	d.dials++
	return d.transports[i]
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type countingAnnouncer struct {
	mu    sync.Mutex
	calls int
}

func (a *countingAnnouncer) Reannounce() {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
}

func (a *countingAnnouncer) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func testSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		ReconnectBaseDelay: time.Second,
		ReconnectMaxDelay:  30 * time.Second,
	}
}

func TestSupervisor_ConnectAndReannounce(t *testing.T) {
	dialer := &fakeDialer{transports: []*fakeTransport{newFakeTransport(nil)}}
	clk := clock.NewFake()
	s := NewSupervisor(testSupervisorConfig(), dialer.dial, clk, nil)
	defer s.Close()

	announcer := &countingAnnouncer{}
	s.SetAnnouncer(announcer)

	s.Connect(context.Background())
	waitUntil(t, s.IsConnected, "supervisor never connected")

	if got := announcer.count(); got != 1 {
		t.Errorf("reannounce calls = %d, want 1", got)
	}
	if st := s.State(); st.TransportStatus != model.TransportConnected || st.ReconnectAttempts != 0 {
		t.Errorf("state = %+v", st)
	}
}

func TestSupervisor_ConnectIdempotent(t *testing.T) {
	dialer := &fakeDialer{transports: []*fakeTransport{newFakeTransport(nil)}}
	s := NewSupervisor(testSupervisorConfig(), dialer.dial, clock.NewFake(), nil)
	defer s.Close()

	ctx := context.Background()
	s.Connect(ctx)
	waitUntil(t, s.IsConnected, "supervisor never connected")
	s.Connect(ctx)
	s.Connect(ctx)

	if got := dialer.dialCount(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
}

func TestSupervisor_BackoffDoublingAndReset(t *testing.T) {
	failing := newFakeTransport(errors.New("refused"))
	dialer := &fakeDialer{transports: []*fakeTransport{
		failing, failing, failing, newFakeTransport(nil),
	}}
	clk := clock.NewFake()
	s := NewSupervisor(testSupervisorConfig(), dialer.dial, clk, nil)
	defer s.Close()

	s.Connect(context.Background())

	// First attempt fails, retry waits base delay.
	waitUntil(t, func() bool { return clk.PendingCount() == 1 }, "no retry scheduled")
	if got := s.State().ReconnectAttempts; got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}

	clk.Advance(time.Second) // fires attempt 2, fails, waits 2s
	waitUntil(t, func() bool { return s.State().ReconnectAttempts == 2 }, "second attempt missing")

	clk.Advance(time.Second)
	if dialer.dialCount() != 2 {
		t.Errorf("retry fired before its doubled delay: dials = %d", dialer.dialCount())
	}
	clk.Advance(time.Second) // total 2s since second failure
	waitUntil(t, func() bool { return s.State().ReconnectAttempts == 3 }, "third attempt missing")

	clk.Advance(4 * time.Second) // fires attempt 4, succeeds
	waitUntil(t, s.IsConnected, "never recovered")

	if got := s.State().ReconnectAttempts; got != 0 {
		t.Errorf("attempts after success = %d, want 0 (reset)", got)
	}
}

func TestSupervisor_ReconnectOnTransportError(t *testing.T) {
	first := newFakeTransport(nil)
	second := newFakeTransport(nil)
	dialer := &fakeDialer{transports: []*fakeTransport{first, second}}
	clk := clock.NewFake()
	s := NewSupervisor(testSupervisorConfig(), dialer.dial, clk, nil)
	defer s.Close()

	announcer := &countingAnnouncer{}
	s.SetAnnouncer(announcer)

	s.Connect(context.Background())
	waitUntil(t, s.IsConnected, "never connected")

	first.errors <- errors.New("reset by peer")
	waitUntil(t, func() bool { return clk.PendingCount() == 1 }, "no retry scheduled after error")

	clk.Advance(time.Second)
	waitUntil(t, func() bool { return announcer.count() == 2 }, "no reannounce after reconnect")

	if !s.IsConnected() {
		t.Error("supervisor should be connected on the second transport")
	}
	if dialer.dialCount() != 2 {
		t.Errorf("dials = %d, want 2", dialer.dialCount())
	}
}

func TestSupervisor_CloseCancelsPendingRetry(t *testing.T) {
	dialer := &fakeDialer{transports: []*fakeTransport{newFakeTransport(errors.New("refused"))}}
	clk := clock.NewFake()
	s := NewSupervisor(testSupervisorConfig(), dialer.dial, clk, nil)

	s.Connect(context.Background())
	waitUntil(t, func() bool { return clk.PendingCount() == 1 }, "no retry scheduled")

	s.Close()
	if got := clk.PendingCount(); got != 0 {
		t.Errorf("pending timers after Close = %d, want 0", got)
	}

	dials := dialer.dialCount()
	clk.Advance(time.Minute)
	if dialer.dialCount() != dials {
		t.Error("zombie reconnect after Close")
	}
}

func TestSupervisor_InboundUpdatesHeartbeatAndHandler(t *testing.T) {
	transport := newFakeTransport(nil)
	dialer := &fakeDialer{transports: []*fakeTransport{transport}}
	s := NewSupervisor(testSupervisorConfig(), dialer.dial, clock.NewFake(), nil)
	defer s.Close()

	var mu sync.Mutex
	var frames [][]byte
	s.OnMessage(func(msg Inbound) {
		mu.Lock()
		frames = append(frames, msg.Data)
		mu.Unlock()
	})

	s.Connect(context.Background())
	waitUntil(t, s.IsConnected, "never connected")

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	transport.messages <- Inbound{Data: []byte(`{"type":"log"}`), ReceivedAt: at}

	waitUntil(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(frames) == 1
	}, "handler never invoked")

	if hb := s.State().LastHeartbeat; !hb.Equal(at) {
		t.Errorf("lastHeartbeat = %v, want %v", hb, at)
	}
}

func TestSupervisor_SendWhileDown(t *testing.T) {
	dialer := &fakeDialer{transports: []*fakeTransport{newFakeTransport(nil)}}
	s := NewSupervisor(testSupervisorConfig(), dialer.dial, clock.NewFake(), nil)
	defer s.Close()

	if err := s.Send([]byte(`{}`)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send before connect = %v, want ErrNotConnected", err)
	}
}

func TestSupervisor_StateChangesPublished(t *testing.T) {
	dialer := &fakeDialer{transports: []*fakeTransport{newFakeTransport(nil)}}
	s := NewSupervisor(testSupervisorConfig(), dialer.dial, clock.NewFake(), nil)
	defer s.Close()

	changes := s.StateChanges()
	s.Connect(context.Background())
	waitUntil(t, s.IsConnected, "never connected")

	var seen []model.TransportStatus
	for len(seen) < 2 {
		select {
		case st := <-changes:
			seen = append(seen, st)
		case <-time.After(2 * time.Second):
			t.Fatalf("transitions seen so far: %v", seen)
		}
	}

	if seen[0] != model.TransportConnecting || seen[1] != model.TransportConnected {
		t.Errorf("transitions = %v, want [connecting connected]", seen)
	}
}
