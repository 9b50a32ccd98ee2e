// Package store holds the canonical observable table of Batch entities.
//
// The table has a single logical writer: the event reconciler plus snapshot
// merge. Everything else reads copies. Watchers receive change
// notifications so independent views can track updates for the same batch
// without polling the table.
package store

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Soochol/F2X-NeuroHub-sub000/internal/model"
)

// ChangeKind classifies a store mutation.
type ChangeKind string

const (
	ChangeUpserted ChangeKind = "upserted"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeReset    ChangeKind = "reset"
)

// Change is one store mutation notification.
type Change struct {
	BatchID string
	Kind    ChangeKind
}

// ChangeBufferSize is the per-watcher notification buffer.
const ChangeBufferSize = 256

// Store is the canonical id-indexed batch table.
type Store struct {
	logger *slog.Logger

	mu       sync.RWMutex
	batches  map[string]*model.Batch
	watchers []chan Change
}

// New creates an empty store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:  logger,
		batches: make(map[string]*model.Batch),
	}
}

// Get returns a copy of one batch.
func (s *Store) Get(id string) (model.Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[id]
	if !ok {
		return model.Batch{}, false
	}
	return b.Clone(), true
}

// List returns copies of all batches, ordered by id.
func (s *Store) List() []model.Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Batch, 0, len(s.batches))
	for _, b := range s.batches {
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns all known batch ids, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.batches))
	for id := range s.batches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Apply mutates one batch under the write lock, creating a placeholder for
// an unseen id first. fn receives the live entry; the store stamps
// UpdatedAt and notifies watchers after fn returns.
func (s *Store) Apply(id string, fn func(*model.Batch)) {
	s.mu.Lock()
	b, ok := s.batches[id]
	if !ok {
		nb := model.NewBatch(id)
		b = &nb
		s.batches[id] = b
	}
	fn(b)
	b.UpdatedAt = time.Now()
	s.mu.Unlock()

	s.notify(Change{BatchID: id, Kind: ChangeUpserted})
}

// Update is Apply for conditional mutations: fn reports whether it changed
// the batch. Discarded events leave watchers quiet, but a placeholder
// created for an unseen id still counts as a change.
func (s *Store) Update(id string, fn func(*model.Batch) bool) {
	s.mu.Lock()
	b, ok := s.batches[id]
	created := false
	if !ok {
		nb := model.NewBatch(id)
		b = &nb
		s.batches[id] = b
		created = true
	}
	changed := fn(b)
	if changed || created {
		b.UpdatedAt = time.Now()
	}
	s.mu.Unlock()

	if changed || created {
		s.notify(Change{BatchID: id, Kind: ChangeUpserted})
	}
}

// Delete removes a batch. No-op for unknown ids.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	_, ok := s.batches[id]
	if ok {
		delete(s.batches, id)
	}
	s.mu.Unlock()

	if ok {
		s.notify(Change{BatchID: id, Kind: ChangeDeleted})
	}
}

// Reset drops the whole table.
func (s *Store) Reset() {
	s.mu.Lock()
	s.batches = make(map[string]*model.Batch)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeReset})
}

// MergeSnapshot folds one snapshot batch into the table.
//
// While the local batch is mid-run (starting/running/stopping), push-derived
// fields keep precedence over the snapshot: status, cursor, progress,
// execution id and steps stay as pushed, and only snapshot metadata is
// adopted. Once the batch has settled, the snapshot is authoritative.
func (s *Store) MergeSnapshot(snap model.Batch) {
	if snap.ID == "" {
		return
	}

	s.mu.Lock()
	local, ok := s.batches[snap.ID]
	if !ok {
		nb := snap.Clone()
		if !nb.Status.IsValid() {
			nb.Status = model.StatusIdle
		}
		nb.UpdatedAt = time.Now()
		s.batches[snap.ID] = &nb
		s.mu.Unlock()
		s.notify(Change{BatchID: snap.ID, Kind: ChangeUpserted})
		return
	}

	if local.Status.IsActive() {
		// Push channel wins while a run is in flight.
		if snap.Name != "" {
			local.Name = snap.Name
		}
		if local.LastRunPassed == nil && snap.LastRunPassed != nil {
			v := *snap.LastRunPassed
			local.LastRunPassed = &v
		}
	} else {
		logs := local.Logs
		merged := snap.Clone()
		if !merged.Status.IsValid() {
			merged.Status = model.StatusIdle
		}
		merged.Logs = logs
		*local = merged
	}
	local.UpdatedAt = time.Now()
	s.mu.Unlock()

	s.notify(Change{BatchID: snap.ID, Kind: ChangeUpserted})
}

// Watch registers a change listener. The returned cancel func releases it.
func (s *Store) Watch() (<-chan Change, func()) {
	ch := make(chan Change, ChangeBufferSize)

	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		for i, w := range s.watchers {
			if w == ch {
				s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// notify fans a change out to all watchers without blocking the writer.
func (s *Store) notify(c Change) {
	s.mu.RLock()
	watchers := make([]chan Change, len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.RUnlock()

	for _, ch := range watchers {
		select {
		case ch <- c:
		default:
			s.logger.Debug("watcher buffer full, dropping change",
				"batch_id", c.BatchID,
				"kind", c.Kind,
			)
		}
	}
}
