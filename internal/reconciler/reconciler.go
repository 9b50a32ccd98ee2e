// Package reconciler folds inbound push events into the batch store.
//
// Every handler is a total function over (state, event): identity guards
// and monotonicity guards discard expected races silently, malformed
// payloads are dropped, unknown event types are ignored. Nothing on this
// path panics or fails the connection.
package reconciler

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Soochol/F2X-NeuroHub-sub000/internal/connection"
	"github.com/Soochol/F2X-NeuroHub-sub000/internal/model"
	"github.com/Soochol/F2X-NeuroHub-sub000/internal/store"
	"github.com/Soochol/F2X-NeuroHub-sub000/internal/wire"
)

// Notifier surfaces explicit server-reported errors to the user.
type Notifier interface {
	Notify(batchID, code, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(batchID, code, message string)

func (f NotifierFunc) Notify(batchID, code, message string) { f(batchID, code, message) }

// Reconciler applies decoded wire messages to the store.
type Reconciler struct {
	store    *store.Store
	notifier Notifier
	logger   *slog.Logger

	mu sync.Mutex
	// initialPush marks batches whose next run-scoped event is exempt from
	// the execution-id mismatch guard. Set by the subscribed ack, consumed
	// once; a re-subscribe before consumption simply re-arms it
	// (last-subscribe-wins).
	initialPush map[string]bool
}

// New creates a Reconciler writing into st.
func New(st *store.Store, notifier Notifier, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:       st,
		notifier:    notifier,
		logger:      logger,
		initialPush: make(map[string]bool),
	}
}

// HandleFrame decodes and applies one raw frame. Wired as the supervisor's
// message handler.
func (r *Reconciler) HandleFrame(msg connection.Inbound) {
	m, err := wire.Decode(msg.Data)
	if err != nil {
		if errors.Is(err, wire.ErrUnknownType) {
			r.logger.Debug("ignoring unknown event type", "error", err)
			return
		}
		r.logger.Warn("malformed frame dropped", "error", err)
		return
	}
	r.Handle(m)
}

// Handle applies one decoded message. The switch covers the full wire
// message set; adding a type to the wire package means adding its case
// here.
func (r *Reconciler) Handle(m wire.Message) {
	switch msg := m.(type) {
	case wire.BatchStatusMsg:
		r.handleBatchStatus(msg)
	case wire.StepStartMsg:
		r.handleStepStart(msg)
	case wire.StepCompleteMsg:
		r.handleStepComplete(msg)
	case wire.SequenceCompleteMsg:
		r.handleSequenceComplete(msg)
	case wire.LogMsg:
		r.handleLog(msg)
	case wire.ServerErrorMsg:
		r.handleServerError(msg)
	case wire.SubscribedMsg:
		r.handleSubscribed(msg)
	case wire.UnsubscribedMsg:
		r.logger.Debug("unsubscribe acknowledged", "batch_ids", msg.BatchIDs)
	case wire.BatchCreatedMsg:
		r.handleBatchCreated(msg)
	case wire.BatchDeletedMsg:
		r.handleBatchDeleted(msg)
	}
}

// allowTransition applies the status state machine guards. Everything not
// explicitly discarded is applied; completed and error may re-enter
// starting (re-run), so no state is terminal.
func allowTransition(cur, next model.BatchStatus) bool {
	switch {
	case cur == model.StatusCompleted &&
		next != model.StatusCompleted && next != model.StatusError && next != model.StatusStarting:
		// A completed batch only moves by an error report or a re-run.
		return false
	case cur == model.StatusStarting && next == model.StatusIdle:
		// Optimistic start must not be rolled back by a stale idle.
		return false
	case cur == model.StatusStopping && next == model.StatusRunning:
		// A stop in flight must not be overtaken by a stale running.
		return false
	}
	return true
}

// takeInitialPush consumes the one-shot exemption for a batch.
func (r *Reconciler) takeInitialPush(batchID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialPush[batchID] {
		delete(r.initialPush, batchID)
		return true
	}
	return false
}

// applyRunScoped runs fn under the execution-id mismatch guard. An absent
// event execution id means "unconditionally apply". The guard itself is an
// expected race, logged at debug only.
func (r *Reconciler) applyRunScoped(batchID, execID string, fn func(*model.Batch) bool) {
	if batchID == "" {
		return
	}

	var exempt bool
	if execID != "" {
		exempt = r.takeInitialPush(batchID)
	}

	r.store.Update(batchID, func(b *model.Batch) bool {
		if execID != "" && b.ExecutionID != "" && execID != b.ExecutionID && !exempt {
			r.logger.Debug("discarding event from stale run",
				"batch_id", batchID,
				"event_execution_id", execID,
				"current_execution_id", b.ExecutionID,
			)
			return false
		}
		return fn(b)
	})
}

func (r *Reconciler) handleBatchStatus(msg wire.BatchStatusMsg) {
	next := model.BatchStatus(msg.Status)
	if !next.IsValid() {
		r.logger.Debug("ignoring unknown batch status", "status", msg.Status)
		return
	}

	r.applyRunScoped(msg.BatchID, msg.ExecutionID, func(b *model.Batch) bool {
		if !allowTransition(b.Status, next) {
			r.logger.Debug("discarding status transition",
				"batch_id", msg.BatchID,
				"from", b.Status,
				"to", next,
			)
			return false
		}

		prev := b.Status
		b.Status = next
		if msg.ExecutionID != "" {
			b.ExecutionID = msg.ExecutionID
		}
		if msg.TotalSteps > 0 {
			b.TotalSteps = msg.TotalSteps
		}

		// A fresh run starts from zero.
		if (next == model.StatusStarting || next == model.StatusRunning) && !prev.IsActive() {
			b.Progress = 0
			b.Elapsed = 0
			b.StepIndex = 0
			b.CurrentStep = ""
		}

		// The cursor never moves backwards within a run.
		if msg.StepIndex >= b.StepIndex {
			b.StepIndex = msg.StepIndex
			if msg.CurrentStep != "" {
				b.CurrentStep = msg.CurrentStep
			}
		}
		if msg.HasProgress && msg.Progress > b.Progress {
			b.Progress = msg.Progress
		}
		if next == model.StatusCompleted {
			b.Progress = 1
		}
		return true
	})
}

func (r *Reconciler) handleStepStart(msg wire.StepStartMsg) {
	r.applyRunScoped(msg.BatchID, msg.ExecutionID, func(b *model.Batch) bool {
		if !allowTransition(b.Status, model.StatusRunning) {
			r.logger.Debug("discarding step start",
				"batch_id", msg.BatchID,
				"step", msg.Step,
				"status", b.Status,
			)
			return false
		}

		prev := b.Status
		b.Status = model.StatusRunning
		if msg.ExecutionID != "" {
			b.ExecutionID = msg.ExecutionID
		}
		if !prev.IsActive() {
			b.Progress = 0
			b.Elapsed = 0
			b.StepIndex = 0
			b.CurrentStep = ""
		}

		order := msg.Index + 1
		if i := b.StepAt(msg.Step, order); i >= 0 {
			b.Steps[i].Status = model.StepRunning
		} else {
			b.Steps = append(b.Steps, model.Step{
				Order:  order,
				Name:   msg.Step,
				Status: model.StepRunning,
			})
		}

		// A duplicate or reordered start for an earlier index may rewind
		// its step entry, but never the cursor.
		if msg.Index >= b.StepIndex {
			b.StepIndex = msg.Index
			b.CurrentStep = msg.Step
		}
		if msg.Total > 0 {
			b.TotalSteps = msg.Total
		}
		return true
	})
}

func (r *Reconciler) handleStepComplete(msg wire.StepCompleteMsg) {
	r.applyRunScoped(msg.BatchID, msg.ExecutionID, func(b *model.Batch) bool {
		status := model.StepCompleted
		if !msg.Pass {
			status = model.StepFailed
		}
		pass := msg.Pass

		order := msg.Index + 1
		redelivered := false
		if i := b.StepAt(msg.Step, order); i >= 0 {
			st := &b.Steps[i]
			redelivered = (st.Status == model.StepCompleted || st.Status == model.StepFailed) &&
				st.Duration == msg.Duration
			st.Status = status
			st.Pass = &pass
			st.Duration = msg.Duration
			st.Result = msg.Result
		} else {
			b.Steps = append(b.Steps, model.Step{
				Order:    order,
				Name:     msg.Step,
				Status:   status,
				Pass:     &pass,
				Duration: msg.Duration,
				Result:   msg.Result,
			})
		}

		total := msg.Total
		if total == 0 {
			total = b.TotalSteps
		}
		if total > 0 {
			// Never regress, even when a duplicate or reordered delivery
			// passes the identity guard.
			if p := float64(msg.Index+1) / float64(total); p > b.Progress {
				b.Progress = p
			}
		}
		// The step upsert is idempotent; the accumulator must be too.
		if !redelivered {
			b.Elapsed += msg.Duration
		}
		return true
	})
}

func (r *Reconciler) handleSequenceComplete(msg wire.SequenceCompleteMsg) {
	r.applyRunScoped(msg.BatchID, msg.ExecutionID, func(b *model.Batch) bool {
		if !allowTransition(b.Status, model.StatusCompleted) {
			return false
		}

		b.Status = model.StatusCompleted
		b.Progress = 1
		passed := msg.Passed
		b.LastRunPassed = &passed
		return true
	})
}

func (r *Reconciler) handleLog(msg wire.LogMsg) {
	if msg.BatchID == "" {
		return
	}
	r.applyRunScoped(msg.BatchID, msg.ExecutionID, func(b *model.Batch) bool {
		b.AppendLog(model.LogEntry{
			Level:   msg.Level,
			Message: msg.Message,
			Time:    time.Now(),
		})
		return true
	})
}

// handleServerError surfaces the error and records it against the batch.
// Status never changes here; only a separate status event moves it.
func (r *Reconciler) handleServerError(msg wire.ServerErrorMsg) {
	if r.notifier != nil {
		r.notifier.Notify(msg.BatchID, msg.Code, msg.Message)
	}
	if msg.BatchID == "" {
		return
	}
	r.store.Update(msg.BatchID, func(b *model.Batch) bool {
		b.AppendLog(model.LogEntry{
			Level:   "error",
			Message: msg.Message,
			Time:    time.Now(),
		})
		return true
	})
}

// handleSubscribed arms the one-shot initial-push exemption for each acked
// id and makes sure the batch exists, so the first push after subscribing
// lands even when it belongs to a run started before we were listening.
func (r *Reconciler) handleSubscribed(msg wire.SubscribedMsg) {
	r.mu.Lock()
	for _, id := range msg.BatchIDs {
		if id != "" {
			r.initialPush[id] = true
		}
	}
	r.mu.Unlock()

	for _, id := range msg.BatchIDs {
		if id == "" {
			continue
		}
		r.store.Update(id, func(b *model.Batch) bool { return false })
	}
}

func (r *Reconciler) handleBatchCreated(msg wire.BatchCreatedMsg) {
	if msg.BatchID == "" {
		return
	}
	r.store.Update(msg.BatchID, func(b *model.Batch) bool {
		if msg.Name != "" {
			b.Name = msg.Name
		}
		return true
	})
}

func (r *Reconciler) handleBatchDeleted(msg wire.BatchDeletedMsg) {
	if msg.BatchID == "" {
		return
	}
	r.mu.Lock()
	delete(r.initialPush, msg.BatchID)
	r.mu.Unlock()

	r.store.Delete(msg.BatchID)
}
