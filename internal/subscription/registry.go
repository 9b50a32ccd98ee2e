// Package subscription tracks ref-counted per-batch interest.
//
// Independent views (a list and a detail pane) may hold interest in the
// same batch; wire subscribe/unsubscribe calls are emitted only when an
// id's marginal interest crosses zero, so one view unmounting never
// cancels delivery another view still needs.
package subscription

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/Soochol/F2X-NeuroHub-sub000/internal/wire"
)

// Sender carries outbound frames to the push channel. Sends are
// best-effort: a failure while disconnected is recovered by the full
// re-announce on reconnect.
type Sender interface {
	Send(data []byte) error
}

// Registry is the ref-counted interest table.
type Registry struct {
	sender Sender
	logger *slog.Logger

	mu     sync.Mutex
	counts map[string]int
}

// NewRegistry creates an empty registry emitting through sender.
func NewRegistry(sender Sender, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sender: sender,
		logger: logger,
		counts: make(map[string]int),
	}
}

// Subscribe increments interest for each id. Ids crossing 0→1 are sent in
// one batched subscribe frame.
func (r *Registry) Subscribe(ids []string) {
	r.mu.Lock()
	var fresh []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if r.counts[id] == 0 {
			fresh = append(fresh, id)
		}
		r.counts[id]++
	}
	r.mu.Unlock()

	if len(fresh) > 0 {
		r.emitSubscribe(fresh)
	}
}

// Unsubscribe decrements interest for each id. Ids crossing 1→0 are sent
// in one batched unsubscribe frame and pruned. Absent or zero ids are
// no-ops.
func (r *Registry) Unsubscribe(ids []string) {
	r.mu.Lock()
	var released []string
	for _, id := range ids {
		count, ok := r.counts[id]
		if !ok {
			continue
		}
		count--
		if count <= 0 {
			delete(r.counts, id)
			released = append(released, id)
		} else {
			r.counts[id] = count
		}
	}
	r.mu.Unlock()

	if len(released) > 0 {
		r.emitUnsubscribe(released)
	}
}

// ActiveIDs returns every id with nonzero interest, sorted, counts ignored.
func (r *Registry) ActiveIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.counts))
	for id := range r.counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the current refcount for one id.
func (r *Registry) Count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[id]
}

// Reannounce re-sends the full current id set in one subscribe frame.
// Subscribe is idempotent server-side, so the supervisor calls this after
// every reconnect.
func (r *Registry) Reannounce() {
	ids := r.ActiveIDs()
	if len(ids) == 0 {
		return
	}
	r.emitSubscribe(ids)
}

func (r *Registry) emitSubscribe(ids []string) {
	data, err := wire.EncodeSubscribe(ids)
	if err != nil {
		r.logger.Error("encode subscribe", "error", err)
		return
	}
	if err := r.sender.Send(data); err != nil {
		r.logger.Debug("subscribe send deferred until reconnect",
			"ids", ids,
			"error", err,
		)
	}
}

func (r *Registry) emitUnsubscribe(ids []string) {
	data, err := wire.EncodeUnsubscribe(ids)
	if err != nil {
		r.logger.Error("encode unsubscribe", "error", err)
		return
	}
	if err := r.sender.Send(data); err != nil {
		r.logger.Debug("unsubscribe send dropped while disconnected",
			"ids", ids,
			"error", err,
		)
	}
}
