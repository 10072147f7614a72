// Package collab manages real-time collaboration sessions: per-document
// rooms of connected participants, presence broadcast (cursors and
// selections), content-delta relay, and threaded comment stores.
//
// The Manager is the single relay point for each room. Comment mutations
// therefore reach every participant in one global order, while presence
// and content deltas are fire-and-forget and unordered across
// participants; simultaneous edits to the same element resolve
// last-write-wins at each receiving client (no operational transform or
// CRDT merging).
//
// Room lifecycle: created lazily on the first join, kept through a grace
// window after the last participant leaves so a page reload loses
// nothing, and reclaimed by an independent hourly sweep when idle.
package collab
