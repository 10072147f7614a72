// Package document provides the slide/element document model mutated by
// the history engine and by remote content deltas.
//
// Element state is held as raw JSON so the model stays agnostic of chart
// types, text boxes, images, or whatever else the editor renders. Partial
// updates merge key-by-key; full snapshots replace every key they carry,
// which makes re-applying a snapshot a no-op.
package document
