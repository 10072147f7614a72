package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Common errors for document operations.
var (
	ErrSlideNotFound   = errors.New("slide not found")
	ErrElementNotFound = errors.New("element not found")
)

// slide holds one slide's elements and metadata.
type slide struct {
	meta     []byte
	elements map[string][]byte
	order    []string
}

// Store is an in-memory document model.
// It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	slides map[string]*slide
}

// NewStore creates an empty document store.
func NewStore() *Store {
	return &Store{
		slides: make(map[string]*slide),
	}
}

// AddSlide registers an empty slide. Adding an existing slide is a no-op.
func (s *Store) AddSlide(slideID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slideLocked(slideID)
}

// slideLocked returns the slide, creating it lazily.
func (s *Store) slideLocked(slideID string) *slide {
	sl, ok := s.slides[slideID]
	if !ok {
		sl = &slide{
			meta:     []byte(`{}`),
			elements: make(map[string][]byte),
		}
		s.slides[slideID] = sl
	}
	return sl
}

// AddElement inserts an element with the given state.
// Re-adding an existing element replaces its state without duplicating it
// in the slide order, so replaying a create is idempotent.
func (s *Store) AddElement(slideID, elementID string, state json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl := s.slideLocked(slideID)
	if _, exists := sl.elements[elementID]; !exists {
		sl.order = append(sl.order, elementID)
	}
	sl.elements[elementID] = cloneJSON(state)
	return nil
}

// UpdateElement merges updates into an element's state key-by-key.
// A full snapshot therefore acts as a replace of every key it carries.
func (s *Store) UpdateElement(slideID, elementID string, updates json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slides[slideID]
	if !ok {
		return fmt.Errorf("update element %s: %w", elementID, ErrSlideNotFound)
	}
	state, ok := sl.elements[elementID]
	if !ok {
		return fmt.Errorf("update element %s: %w", elementID, ErrElementNotFound)
	}

	merged, err := mergeJSON(state, updates)
	if err != nil {
		return fmt.Errorf("update element %s: %w", elementID, err)
	}
	sl.elements[elementID] = merged
	return nil
}

// DeleteElement removes an element. Deleting a missing element is a no-op
// so replaying a delete is idempotent.
func (s *Store) DeleteElement(slideID, elementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slides[slideID]
	if !ok {
		return nil
	}
	if _, exists := sl.elements[elementID]; !exists {
		return nil
	}
	delete(sl.elements, elementID)
	for i, id := range sl.order {
		if id == elementID {
			sl.order = append(sl.order[:i], sl.order[i+1:]...)
			break
		}
	}
	return nil
}

// UpdateSlide merges updates into slide-level metadata.
func (s *Store) UpdateSlide(slideID string, updates json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl := s.slideLocked(slideID)
	merged, err := mergeJSON(sl.meta, updates)
	if err != nil {
		return fmt.Errorf("update slide %s: %w", slideID, err)
	}
	sl.meta = merged
	return nil
}

// Element returns a copy of an element's state.
func (s *Store) Element(slideID, elementID string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sl, ok := s.slides[slideID]
	if !ok {
		return nil, false
	}
	state, ok := sl.elements[elementID]
	if !ok {
		return nil, false
	}
	return cloneJSON(state), true
}

// ElementOrder returns the element IDs on a slide in insertion order.
func (s *Store) ElementOrder(slideID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sl, ok := s.slides[slideID]
	if !ok {
		return nil
	}
	order := make([]string, len(sl.order))
	copy(order, sl.order)
	return order
}

// SlideMeta returns a copy of a slide's metadata.
func (s *Store) SlideMeta(slideID string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sl, ok := s.slides[slideID]
	if !ok {
		return nil, false
	}
	return cloneJSON(sl.meta), true
}

// ElementCount returns the number of elements on a slide.
func (s *Store) ElementCount(slideID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sl, ok := s.slides[slideID]
	if !ok {
		return 0
	}
	return len(sl.elements)
}

// mergeJSON merges the top-level keys of updates into base.
func mergeJSON(base, updates []byte) ([]byte, error) {
	if len(updates) == 0 {
		return base, nil
	}
	parsed := gjson.ParseBytes(updates)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("updates must be a JSON object, got %q", parsed.Type)
	}

	merged := base
	var mergeErr error
	parsed.ForEach(func(key, value gjson.Result) bool {
		merged, mergeErr = sjson.SetRawBytes(merged, escapePath(key.String()), []byte(value.Raw))
		return mergeErr == nil
	})
	if mergeErr != nil {
		return nil, mergeErr
	}
	return merged, nil
}

// escapePath escapes sjson path metacharacters so an update key like
// "data.url" addresses the literal top-level key instead of a nested
// path.
func escapePath(key string) string {
	if !strings.ContainsAny(key, `.*?|#@\`) {
		return key
	}
	var b strings.Builder
	b.Grow(len(key) + 4)
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func cloneJSON(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
