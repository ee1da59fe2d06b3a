package session

import (
	"sync"

	"classwire/internal/dispatch"
	"classwire/internal/history"
	"classwire/pkg/types"
)

// Execution tracks code runs: one current execution plus an append-only
// history, most recent first. Records are keyed by the server-assigned
// execution id; output chunks for an unknown or finished id are ignored
// so late or duplicate delivery cannot corrupt a finished record.
type Execution struct {
	notifier
	sender Sender
	store  *history.Store

	mu      sync.RWMutex
	current *types.ExecutionRecord
	history []types.ExecutionRecord
}

// NewExecution creates the code execution session.
func NewExecution(sender Sender, router *dispatch.Router, store *history.Store) *Execution {
	e := &Execution{sender: sender, store: store}

	router.Subscribe(e.reduce,
		types.MessageTypeExecutionStart,
		types.MessageTypeExecutionOutput,
		types.MessageTypeExecutionComplete,
		types.MessageTypeExecutionError,
	)
	router.SubscribeLifecycle(e.onLifecycle)

	return e
}

type executionOut struct {
	Type string                 `json:"type"`
	Data types.ExecutionRequest `json:"data"`
}

// ExecuteCode submits a run. Execution cannot be queued client-side, so
// while disconnected this rejects with a user-visible error and no
// transport interaction.
func (e *Execution) ExecuteCode(req types.ExecutionRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if !e.sender.IsConnected() {
		e.notify(NoticeError, "cannot execute code: not connected")
		return ErrNotConnected
	}

	return e.sender.Send(executionOut{
		Type: types.MessageTypeCodeExecution,
		Data: req,
	})
}

// Current returns a copy of the in-flight (or most recently finished)
// execution, or nil.
func (e *Execution) Current() *types.ExecutionRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.current == nil {
		return nil
	}
	rec := *e.current
	return &rec
}

// History returns a copy of finished executions, most recent first.
func (e *Execution) History() []types.ExecutionRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]types.ExecutionRecord(nil), e.history...)
}

func (e *Execution) reduce(env *types.Envelope) {
	var body types.ExecutionRecord
	if err := env.Payload(&body); err != nil || body.ID == "" {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch env.Type {
	case types.MessageTypeExecutionStart:
		if e.seenLocked(body.ID) {
			return // duplicate start for a known id
		}
		e.current = &types.ExecutionRecord{
			ID:     body.ID,
			Status: types.ExecutionStatusPending,
		}

	case types.MessageTypeExecutionOutput:
		rec := e.current
		if rec == nil || rec.ID != body.ID || rec.Terminal() {
			return // late or unmatched chunk
		}
		rec.Status = types.ExecutionStatusRunning
		rec.Output += body.Output

	case types.MessageTypeExecutionComplete:
		rec := e.current
		if rec == nil || rec.ID != body.ID || rec.Terminal() {
			return // duplicate or unmatched completion
		}
		rec.Status = body.Status
		if rec.Status == "" {
			rec.Status = types.ExecutionStatusSuccess
		}
		if rec.Output == "" {
			rec.Output = body.Output
		}
		rec.Stdout = body.Stdout
		rec.Stderr = body.Stderr
		rec.ExecutionTime = body.ExecutionTime
		e.finishLocked(rec)

	case types.MessageTypeExecutionError:
		rec := e.current
		if rec == nil || rec.ID != body.ID || rec.Terminal() {
			return
		}
		rec.Status = types.ExecutionStatusError
		rec.Error = body.Error
		e.finishLocked(rec)
	}
}

// finishLocked pushes the terminal record onto history and persists it.
// The record also stays as current for the editor panel. Caller holds mu.
func (e *Execution) finishLocked(rec *types.ExecutionRecord) {
	e.history = append([]types.ExecutionRecord{*rec}, e.history...)
	if e.store != nil {
		e.store.SaveExecution(*rec)
	}
}

// seenLocked reports whether an execution id already has a record.
func (e *Execution) seenLocked(id string) bool {
	if e.current != nil && e.current.ID == id {
		return true
	}
	for i := range e.history {
		if e.history[i].ID == id {
			return true
		}
	}
	return false
}

// onLifecycle marks a non-terminal run as interrupted when the
// connection drops. The server contract for resuming an in-flight id is
// unknown, so the caller must re-issue.
func (e *Execution) onLifecycle(ev dispatch.Event) {
	if ev.Kind != dispatch.EventClose && ev.Kind != dispatch.EventError {
		return
	}

	e.mu.Lock()
	if e.current != nil && !e.current.Terminal() {
		e.current.Status = types.ExecutionStatusInterrupted
	}
	e.mu.Unlock()
}
