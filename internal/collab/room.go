package collab

import (
	"time"

	"github.com/slidewire/slidewire/internal/collab/wire"
	"github.com/slidewire/slidewire/internal/transport"
)

// participant is one connection's registration in a room.
type participant struct {
	conn     transport.Conn
	user     wire.User
	joinedAt time.Time
}

// room is one collaboration session scoped to a presentation.
// All access is serialized by the Manager's mutex; rooms carry no lock of
// their own.
type room struct {
	id           string
	participants map[string]*participant // keyed by connection ID
	comments     map[string]*wire.Comment
	commentOrder []string
	lastActivity time.Time

	// Pending grace-window deletion, armed when the room empties and
	// cancelled by the next join.
	deleteTimer *time.Timer
}

func newRoom(id string, now time.Time) *room {
	return &room{
		id:           id,
		participants: make(map[string]*participant),
		comments:     make(map[string]*wire.Comment),
		lastActivity: now,
	}
}

// users returns participant metadata, join order preserved, optionally
// excluding one connection.
func (r *room) users(exceptConnID string) []wire.User {
	type entry struct {
		joinedAt time.Time
		user     wire.User
	}
	entries := make([]entry, 0, len(r.participants))
	for connID, p := range r.participants {
		if connID == exceptConnID {
			continue
		}
		entries = append(entries, entry{p.joinedAt, p.user})
	}
	// Insertion sort: rooms are small and join order matters for color
	// stability in the UI.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].joinedAt.Before(entries[j-1].joinedAt); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	users := make([]wire.User, len(entries))
	for i, e := range entries {
		users[i] = e.user
	}
	return users
}

// commentList returns the comments in their authoritative order.
// Every participant receives mutations in this same order, so the list is
// identical on all clients.
func (r *room) commentList() []wire.Comment {
	list := make([]wire.Comment, 0, len(r.commentOrder))
	for _, id := range r.commentOrder {
		if c, ok := r.comments[id]; ok {
			list = append(list, *c)
		}
	}
	return list
}

// addComment appends a comment to the store and the order list.
func (r *room) addComment(c *wire.Comment) {
	r.comments[c.ID] = c
	r.commentOrder = append(r.commentOrder, c.ID)
}

// removeComment deletes a comment and its order entry.
func (r *room) removeComment(id string) bool {
	if _, ok := r.comments[id]; !ok {
		return false
	}
	delete(r.comments, id)
	for i, cid := range r.commentOrder {
		if cid == id {
			r.commentOrder = append(r.commentOrder[:i], r.commentOrder[i+1:]...)
			break
		}
	}
	return true
}

// conns returns the connections to broadcast to, optionally excluding one.
func (r *room) conns(exceptConnID string) []transport.Conn {
	out := make([]transport.Conn, 0, len(r.participants))
	for connID, p := range r.participants {
		if connID == exceptConnID {
			continue
		}
		out = append(out, p.conn)
	}
	return out
}

// touch records mutating activity for idle-sweep bookkeeping.
// Presence traffic (cursor/selection) is ephemeral and does not count.
func (r *room) touch(now time.Time) {
	r.lastActivity = now
}
