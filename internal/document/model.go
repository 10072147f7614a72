package document

import "encoding/json"

// Model is the mutation surface a document exposes to the history engine.
// Implementations must be safe for calls from a single goroutine at a time;
// the engine never calls concurrently.
type Model interface {
	// AddElement inserts an element with the given state on a slide.
	// Inserting an element that already exists replaces its state.
	AddElement(slideID, elementID string, state json.RawMessage) error

	// UpdateElement merges the given updates into an element's state.
	UpdateElement(slideID, elementID string, updates json.RawMessage) error

	// DeleteElement removes an element from a slide.
	DeleteElement(slideID, elementID string) error

	// UpdateSlide merges the given updates into slide-level metadata
	// (element ordering, grouping, background, transitions).
	UpdateSlide(slideID string, updates json.RawMessage) error
}
