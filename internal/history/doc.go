// Package history provides undo/redo for a presentation editing session.
//
// The history system uses the Command pattern: every mutating edit is
// recorded as a reversible command with before/after state snapshots. Key
// concepts:
//
// # Commands
//
// An Action records one atomic edit (create, update, delete, move, resize,
// rotate, style, reorder, group, ungroup) against a slide or element. The
// engine synthesizes apply/revert behavior from the action's kind and its
// payload snapshots, so callers only describe what changed.
//
// # History Stacks
//
// The Engine keeps a bounded past stack and a future stack:
//
//	eng := history.NewEngine(model)
//
//	eng.Execute(history.CommandSpec{...})
//
//	eng.Undo()
//	eng.Redo()
//	eng.JumpTo(id) // time-travel to any recorded command
//
// History is strictly linear: executing a new command clears the future
// stack, so there is never a branching timeline.
//
// # Batching
//
// Multiple commands can collapse into a single undo unit:
//
//	eng.StartBatch()
//	// ... multiple edits, applied live ...
//	eng.EndBatch("Align selection")
//
// Now all edits undo together with one Ctrl+Z.
//
// Each editing session owns its engine exclusively. Undo is a local
// concept: remote collaborators' deltas are applied to the document
// directly and never enter the local stacks.
package history
