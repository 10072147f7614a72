// Package keys implements the editor's keyboard contract for history
// navigation: Ctrl/Cmd+Z undoes, Ctrl/Cmd+Shift+Z or Ctrl/Cmd+Y redoes,
// and both are suppressed while focus sits inside an editable text field.
package keys

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Modifier represents keyboard modifier keys.
type Modifier uint8

const (
	// ModNone indicates no modifiers.
	ModNone Modifier = 0

	// ModShift indicates the Shift key.
	ModShift Modifier = 1 << iota

	// ModCtrl indicates the Control key.
	ModCtrl

	// ModMeta indicates the Meta key (Cmd on macOS, Win on Windows).
	ModMeta
)

// Has returns true if m contains the specified modifier.
func (m Modifier) Has(mod Modifier) bool {
	return m&mod != 0
}

// With returns a new Modifier with the specified modifier added.
func (m Modifier) With(mod Modifier) Modifier {
	return m | mod
}

// Chord is one key press with its modifiers.
type Chord struct {
	Rune rune
	Mods Modifier
}

// Parse errors.
var (
	ErrEmptySpec   = errors.New("empty key specification")
	ErrInvalidSpec = errors.New("invalid key specification")
)

// Parse parses a chord specification like "ctrl+z", "cmd+shift+z" or
// "ctrl+y". The final segment must be a single character; everything
// before it is a modifier.
func Parse(spec string) (Chord, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Chord{}, ErrEmptySpec
	}

	parts := strings.Split(spec, "+")
	keyPart := strings.TrimSpace(parts[len(parts)-1])

	var mods Modifier
	for _, p := range parts[:len(parts)-1] {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "ctrl", "control":
			mods = mods.With(ModCtrl)
		case "cmd", "meta", "win":
			mods = mods.With(ModMeta)
		case "shift":
			mods = mods.With(ModShift)
		default:
			return Chord{}, fmt.Errorf("%w: unknown modifier %q", ErrInvalidSpec, p)
		}
	}

	runes := []rune(keyPart)
	if len(runes) != 1 {
		return Chord{}, fmt.Errorf("%w: key must be a single character, got %q", ErrInvalidSpec, keyPart)
	}

	return Chord{Rune: unicode.ToLower(runes[0]), Mods: mods}, nil
}

// Action is what a matched chord triggers.
type Action int

const (
	// ActionNone means the chord is unbound.
	ActionNone Action = iota
	// ActionUndo reverses the most recent command.
	ActionUndo
	// ActionRedo re-applies the most recently undone command.
	ActionRedo
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionUndo:
		return "undo"
	case ActionRedo:
		return "redo"
	default:
		return "none"
	}
}

// FocusKind describes where keyboard focus currently sits.
type FocusKind int

const (
	// FocusCanvas is the slide canvas; history shortcuts are active.
	FocusCanvas FocusKind = iota
	// FocusTextInput is a text input or textarea.
	FocusTextInput
	// FocusContentEditable is a contenteditable region.
	FocusContentEditable
)

// Editable reports whether the focus target owns its own undo behavior,
// which suppresses the editor-level shortcuts.
func (f FocusKind) Editable() bool {
	return f == FocusTextInput || f == FocusContentEditable
}

// Shortcuts resolves chords to history actions.
type Shortcuts struct {
	bindings map[Chord]Action
}

// NewShortcuts returns the default undo/redo map. Both Ctrl and Cmd
// variants are bound so one map serves every platform.
func NewShortcuts() *Shortcuts {
	s := &Shortcuts{bindings: make(map[Chord]Action)}
	for _, mod := range []Modifier{ModCtrl, ModMeta} {
		s.bind(Chord{Rune: 'z', Mods: mod}, ActionUndo)
		s.bind(Chord{Rune: 'z', Mods: mod.With(ModShift)}, ActionRedo)
		s.bind(Chord{Rune: 'y', Mods: mod}, ActionRedo)
	}
	return s
}

func (s *Shortcuts) bind(c Chord, a Action) {
	s.bindings[c] = a
}

// Resolve maps a chord to its action given the current focus. Chords
// inside editable fields resolve to ActionNone so native text editing
// keeps its own undo stack.
func (s *Shortcuts) Resolve(c Chord, focus FocusKind) Action {
	if focus.Editable() {
		return ActionNone
	}
	c.Rune = unicode.ToLower(c.Rune)
	if a, ok := s.bindings[c]; ok {
		return a
	}
	return ActionNone
}
