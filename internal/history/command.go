package history

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/slidewire/slidewire/internal/document"
)

// Kind identifies the editing operation a command performs.
type Kind string

// Command kinds recognized by the dispatch table.
const (
	KindCreate  Kind = "create"
	KindUpdate  Kind = "update"
	KindDelete  Kind = "delete"
	KindMove    Kind = "move"
	KindResize  Kind = "resize"
	KindRotate  Kind = "rotate"
	KindStyle   Kind = "style"
	KindReorder Kind = "reorder"
	KindGroup   Kind = "group"
	KindUngroup Kind = "ungroup"
)

// Valid reports whether the kind is in the dispatch table.
func (k Kind) Valid() bool {
	switch k {
	case KindCreate, KindUpdate, KindDelete, KindMove, KindResize,
		KindRotate, KindStyle, KindReorder, KindGroup, KindUngroup:
		return true
	}
	return false
}

// Target identifies the scope a command mutates: a slide plus either one
// element or a set of elements. Slide-level kinds (reorder, group, ungroup)
// leave the element fields empty.
type Target struct {
	SlideID    string
	ElementID  string
	ElementIDs []string
}

// multi reports whether the target addresses an element set.
func (t Target) multi() bool {
	return t.ElementID == "" && len(t.ElementIDs) > 0
}

// Payload carries the before/after state snapshots for a command.
// Before is nil for creation, After is nil for deletion. For element-set
// targets each snapshot is a JSON object keyed by element ID.
type Payload struct {
	Before json.RawMessage
	After  json.RawMessage
}

// CommandSpec describes a command as issued by the editor: everything but
// the executable behavior, which the engine synthesizes from Kind.
type CommandSpec struct {
	Kind        Kind
	Description string
	Target      Target
	Payload     Payload
}

// Command is an executable unit on the history stacks.
type Command interface {
	// ID returns the command's unique identifier within the session.
	ID() string

	// Description returns a human-readable label for history UIs.
	Description() string

	// Timestamp returns the command's creation time.
	Timestamp() time.Time

	// Apply performs the command's forward effect (execute and redo).
	Apply(m document.Model) error

	// Revert reverses the command's effect (undo).
	Revert(m document.Model) error
}

// Action is a single reversible edit synthesized from a CommandSpec.
type Action struct {
	id        string
	kind      Kind
	desc      string
	timestamp time.Time
	target    Target
	payload   Payload
}

// newAction builds an Action from a spec, stamping ID and timestamp.
func newAction(spec CommandSpec, now time.Time) *Action {
	desc := spec.Description
	if desc == "" {
		desc = string(spec.Kind)
	}
	return &Action{
		id:        newCommandID(now),
		kind:      spec.Kind,
		desc:      desc,
		timestamp: now,
		target:    spec.Target,
		payload:   spec.Payload,
	}
}

// ID returns the command's unique identifier.
func (a *Action) ID() string { return a.id }

// Kind returns the command's kind.
func (a *Action) Kind() Kind { return a.kind }

// Description returns a human-readable label.
func (a *Action) Description() string { return a.desc }

// Timestamp returns the command's creation time.
func (a *Action) Timestamp() time.Time { return a.timestamp }

// Apply performs the forward effect from the dispatch table.
func (a *Action) Apply(m document.Model) error {
	switch a.kind {
	case KindCreate:
		return a.insert(m, a.payload.After)
	case KindDelete:
		return a.remove(m)
	case KindUpdate, KindMove, KindResize, KindRotate, KindStyle:
		return a.setState(m, a.payload.After)
	case KindReorder, KindGroup, KindUngroup:
		return m.UpdateSlide(a.target.SlideID, a.payload.After)
	default:
		return fmt.Errorf("%w: %q", ErrUnhandledKind, a.kind)
	}
}

// Revert reverses the forward effect.
func (a *Action) Revert(m document.Model) error {
	switch a.kind {
	case KindCreate:
		return a.remove(m)
	case KindDelete:
		return a.insert(m, a.payload.Before)
	case KindUpdate, KindMove, KindResize, KindRotate, KindStyle:
		return a.setState(m, a.payload.Before)
	case KindReorder, KindGroup, KindUngroup:
		return m.UpdateSlide(a.target.SlideID, a.payload.Before)
	default:
		return fmt.Errorf("%w: %q", ErrUnhandledKind, a.kind)
	}
}

// insert adds the target element(s) with the given snapshot.
func (a *Action) insert(m document.Model, snapshot json.RawMessage) error {
	if !a.target.multi() {
		return m.AddElement(a.target.SlideID, a.target.ElementID, snapshot)
	}
	return a.eachElement(snapshot, func(elementID string, state json.RawMessage) error {
		return m.AddElement(a.target.SlideID, elementID, state)
	})
}

// remove deletes the target element(s).
func (a *Action) remove(m document.Model) error {
	if !a.target.multi() {
		return m.DeleteElement(a.target.SlideID, a.target.ElementID)
	}
	for _, elementID := range a.target.ElementIDs {
		if err := m.DeleteElement(a.target.SlideID, elementID); err != nil {
			return err
		}
	}
	return nil
}

// setState replaces the target element(s) mutable state with a snapshot.
func (a *Action) setState(m document.Model, snapshot json.RawMessage) error {
	if !a.target.multi() {
		return m.UpdateElement(a.target.SlideID, a.target.ElementID, snapshot)
	}
	return a.eachElement(snapshot, func(elementID string, state json.RawMessage) error {
		return m.UpdateElement(a.target.SlideID, elementID, state)
	})
}

// eachElement walks a set snapshot (object keyed by element ID) in the
// target's declared order so apply and revert visit elements the same way.
func (a *Action) eachElement(snapshot json.RawMessage, fn func(string, json.RawMessage) error) error {
	parsed := gjson.ParseBytes(snapshot)
	if !parsed.IsObject() {
		return fmt.Errorf("element-set snapshot must be a JSON object, got %q", parsed.Type)
	}
	for _, elementID := range a.target.ElementIDs {
		state := parsed.Get(elementID)
		if !state.Exists() {
			return fmt.Errorf("snapshot missing element %q", elementID)
		}
		if err := fn(elementID, json.RawMessage(state.Raw)); err != nil {
			return err
		}
	}
	return nil
}

// Composite groups multiple commands as one undo unit.
type Composite struct {
	id        string
	name      string
	timestamp time.Time
	commands  []Command
}

// newComposite wraps buffered batch commands into a single command.
func newComposite(name string, commands []Command, now time.Time) *Composite {
	return &Composite{
		id:        newCommandID(now),
		name:      name,
		timestamp: now,
		commands:  commands,
	}
}

// ID returns the composite's identifier.
func (c *Composite) ID() string { return c.id }

// Description returns the composite's label.
func (c *Composite) Description() string {
	if c.name != "" {
		return c.name
	}
	if len(c.commands) == 1 {
		return c.commands[0].Description()
	}
	return fmt.Sprintf("%d operations", len(c.commands))
}

// Timestamp returns the composite's creation time.
func (c *Composite) Timestamp() time.Time { return c.timestamp }

// Len returns the number of grouped commands.
func (c *Composite) Len() int { return len(c.commands) }

// Apply replays all grouped commands in original order.
// On failure, commands already applied are reverted.
func (c *Composite) Apply(m document.Model) error {
	for i, cmd := range c.commands {
		if err := cmd.Apply(m); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = c.commands[j].Revert(m)
			}
			return fmt.Errorf("batch %q step %d: %w", c.Description(), i, err)
		}
	}
	return nil
}

// Revert reverses all grouped commands in strict reverse order.
func (c *Composite) Revert(m document.Model) error {
	for i := len(c.commands) - 1; i >= 0; i-- {
		if err := c.commands[i].Revert(m); err != nil {
			return fmt.Errorf("undo batch %q step %d: %w", c.Description(), i, err)
		}
	}
	return nil
}

// newCommandID returns a session-unique identifier: creation time plus a
// random hex suffix.
func newCommandID(now time.Time) string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%d-%s", now.UnixMilli(), hex.EncodeToString(b))
}
