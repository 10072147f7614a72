package history

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/slidewire/slidewire/internal/document"
)

// Common errors for history operations.
var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")

	// ErrUnhandledKind marks a command kind outside the dispatch table.
	// The engine treats such commands as no-ops: nothing is executed and
	// nothing enters the stacks.
	ErrUnhandledKind = errors.New("unhandled command kind")
)

// DefaultMaxEntries bounds the past stack when no option overrides it.
const DefaultMaxEntries = 100

// Engine manages undo/redo state for one editing session.
// The document model is injected at construction so independent sessions
// can coexist, each with its own engine and its own stacks.
type Engine struct {
	mu sync.Mutex

	model document.Model
	log   *slog.Logger

	past   []Command
	future []Command // tail is the next redo

	// Batch state
	batching  bool
	batchCmds []Command

	// Re-entrancy guards: an undo/redo arriving while one is in flight
	// is dropped, not queued.
	isUndoing bool
	isRedoing bool

	maxEntries int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxEntries bounds the past stack. Oldest entries are silently
// dropped once the bound is exceeded.
func WithMaxEntries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxEntries = n
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine creates a history engine bound to a document model.
func NewEngine(model document.Model, opts ...Option) *Engine {
	e := &Engine{
		model:      model,
		log:        slog.Default(),
		maxEntries: DefaultMaxEntries,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute synthesizes a command from the spec, applies it to the document,
// and records it. While a batch is open the command buffers instead of
// entering the past stack. A spec with an unknown kind is logged and
// dropped without touching the document.
func (e *Engine) Execute(spec CommandSpec) error {
	if !spec.Kind.Valid() {
		e.log.Warn("dropping command with unhandled kind",
			"kind", string(spec.Kind),
			"slide", spec.Target.SlideID,
		)
		return ErrUnhandledKind
	}

	cmd := newAction(spec, time.Now())
	if err := cmd.Apply(e.model); err != nil {
		return err
	}

	e.push(cmd)
	return nil
}

// push records an applied command, buffering it if a batch is open.
func (e *Engine) push(cmd Command) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.batching {
		e.batchCmds = append(e.batchCmds, cmd)
		return
	}
	e.pushLocked(cmd)
}

// pushLocked appends to past, clears future, and enforces the bound.
func (e *Engine) pushLocked(cmd Command) {
	e.past = append(e.past, cmd)
	e.future = nil

	if len(e.past) > e.maxEntries {
		excess := len(e.past) - e.maxEntries
		e.past = e.past[excess:]
	}
}

// Undo reverses the most recent command.
// The lock is released during command execution; on failure the popped
// entry is restored so the stacks are unchanged.
func (e *Engine) Undo() error {
	e.mu.Lock()
	if e.isUndoing || e.isRedoing {
		e.mu.Unlock()
		return nil
	}
	if len(e.past) == 0 {
		e.mu.Unlock()
		return ErrNothingToUndo
	}
	e.isUndoing = true
	cmd := e.past[len(e.past)-1]
	e.past = e.past[:len(e.past)-1]
	e.mu.Unlock()

	err := cmd.Revert(e.model)

	e.mu.Lock()
	e.isUndoing = false
	if err != nil {
		e.past = append(e.past, cmd)
		e.mu.Unlock()
		e.log.Error("undo failed, history preserved",
			"command", cmd.Description(),
			"error", err,
		)
		return err
	}
	e.future = append(e.future, cmd)
	e.mu.Unlock()
	return nil
}

// Redo re-applies the most recently undone command.
// Mirror of Undo, including restore-on-failure.
func (e *Engine) Redo() error {
	e.mu.Lock()
	if e.isUndoing || e.isRedoing {
		e.mu.Unlock()
		return nil
	}
	if len(e.future) == 0 {
		e.mu.Unlock()
		return ErrNothingToRedo
	}
	e.isRedoing = true
	cmd := e.future[len(e.future)-1]
	e.future = e.future[:len(e.future)-1]
	e.mu.Unlock()

	err := cmd.Apply(e.model)

	e.mu.Lock()
	e.isRedoing = false
	if err != nil {
		e.future = append(e.future, cmd)
		e.mu.Unlock()
		e.log.Error("redo failed, history preserved",
			"command", cmd.Description(),
			"error", err,
		)
		return err
	}
	e.past = append(e.past, cmd)
	e.mu.Unlock()
	return nil
}

// CanUndo returns true if undo is available.
func (e *Engine) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.past) > 0 && !e.isUndoing && !e.isRedoing
}

// CanRedo returns true if redo is available.
func (e *Engine) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.future) > 0 && !e.isUndoing && !e.isRedoing
}

// UndoCount returns the number of commands on the past stack.
func (e *Engine) UndoCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.past)
}

// RedoCount returns the number of commands on the future stack.
func (e *Engine) RedoCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.future)
}

// StartBatch opens a batch. Commands executed while the batch is open
// apply to the document immediately but buffer instead of entering the
// past stack. Calling StartBatch while a batch is already open flattens
// into the open batch; the earlier buffer is kept.
func (e *Engine) StartBatch() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.batching {
		return
	}
	e.batching = true
	e.batchCmds = nil
}

// EndBatch closes the open batch, collapsing buffered commands into one
// composite command on the past stack. Closing with nothing buffered
// pushes nothing. No-op when no batch is open.
func (e *Engine) EndBatch(description string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.batching {
		return
	}
	e.batching = false

	if len(e.batchCmds) == 0 {
		e.batchCmds = nil
		return
	}

	e.pushLocked(newComposite(description, e.batchCmds, time.Now()))
	e.batchCmds = nil
}

// CancelBatch discards the open batch without recording it.
// Commands already executed still affect the document.
func (e *Engine) CancelBatch() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.batching = false
	e.batchCmds = nil
}

// IsBatching returns true while a batch is open.
func (e *Engine) IsBatching() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.batching
}

// JumpTo time-travels to the command with the given id. An id in the past
// stack undoes every later command; an id in the future stack redoes up to
// and including it. An unknown id is a no-op.
func (e *Engine) JumpTo(id string) error {
	e.mu.Lock()
	steps := 0
	redo := false
	found := false

	for i := len(e.past) - 1; i >= 0; i-- {
		if e.past[i].ID() == id {
			steps = len(e.past) - 1 - i
			found = true
			break
		}
	}
	if !found {
		// Tail of future is the next redo.
		for i := len(e.future) - 1; i >= 0; i-- {
			if e.future[i].ID() == id {
				steps = len(e.future) - i
				redo = true
				found = true
				break
			}
		}
	}
	e.mu.Unlock()

	if !found {
		return nil
	}

	for i := 0; i < steps; i++ {
		var err error
		if redo {
			err = e.Redo()
		} else {
			err = e.Undo()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Clear empties both stacks and resets transient state.
// Used when switching documents.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.past = nil
	e.future = nil
	e.batching = false
	e.batchCmds = nil
	e.isUndoing = false
	e.isRedoing = false
}

// CommandInfo provides read-only info about a recorded command.
// Used for displaying history to users.
type CommandInfo struct {
	ID          string
	Description string
	Timestamp   time.Time
}

// UndoInfo returns info for the past stack, oldest first.
func (e *Engine) UndoInfo() []CommandInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := make([]CommandInfo, len(e.past))
	for i, cmd := range e.past {
		result[i] = CommandInfo{ID: cmd.ID(), Description: cmd.Description(), Timestamp: cmd.Timestamp()}
	}
	return result
}

// RedoInfo returns info for the future stack, next redo first.
func (e *Engine) RedoInfo() []CommandInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := make([]CommandInfo, 0, len(e.future))
	for i := len(e.future) - 1; i >= 0; i-- {
		cmd := e.future[i]
		result = append(result, CommandInfo{ID: cmd.ID(), Description: cmd.Description(), Timestamp: cmd.Timestamp()})
	}
	return result
}

// PeekUndo returns info about the next undo without removing it.
func (e *Engine) PeekUndo() (CommandInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.past) == 0 {
		return CommandInfo{}, false
	}
	cmd := e.past[len(e.past)-1]
	return CommandInfo{ID: cmd.ID(), Description: cmd.Description(), Timestamp: cmd.Timestamp()}, true
}

// PeekRedo returns info about the next redo without removing it.
func (e *Engine) PeekRedo() (CommandInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.future) == 0 {
		return CommandInfo{}, false
	}
	cmd := e.future[len(e.future)-1]
	return CommandInfo{ID: cmd.ID(), Description: cmd.Description(), Timestamp: cmd.Timestamp()}, true
}

// SetMaxEntries changes the past stack bound, trimming oldest entries
// if the current stack is larger.
func (e *Engine) SetMaxEntries(max int) {
	if max <= 0 {
		max = DefaultMaxEntries
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.maxEntries = max
	if len(e.past) > max {
		excess := len(e.past) - max
		e.past = e.past[excess:]
	}
}

// MaxEntries returns the past stack bound.
func (e *Engine) MaxEntries() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxEntries
}
