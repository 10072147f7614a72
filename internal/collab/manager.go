package collab

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slidewire/slidewire/internal/collab/archive"
	"github.com/slidewire/slidewire/internal/collab/wire"
	"github.com/slidewire/slidewire/internal/transport"
)

// DefaultGraceWindow is how long an empty room survives before deletion,
// so a page reload does not destroy session state.
const DefaultGraceWindow = 5 * time.Minute

// DefaultStaleAfter is the idle threshold for the periodic sweep.
const DefaultStaleAfter = time.Hour

// participantColors is the palette cycled through as users join.
var participantColors = []string{
	"#F87171", "#FB923C", "#FBBF24", "#4ADE80",
	"#2DD4BF", "#60A5FA", "#A78BFA", "#F472B6",
}

// Relay publishes room broadcasts to other server nodes.
// The Redis bridge implements this.
type Relay interface {
	Publish(ctx context.Context, roomID string, msg wire.Message) error
}

// Manager owns every collaboration room in the process. It is the single
// relay point for a room, which is what gives comment mutations their
// global ordering: all participants observe them in the order the manager
// processed them.
type Manager struct {
	mu       sync.Mutex
	rooms    map[string]*room
	sessions map[string]string // connID -> roomID

	graceWindow time.Duration
	staleAfter  time.Duration
	colorIndex  int

	log   *slog.Logger
	store archive.Store

	relay     Relay
	relayCh   chan relayItem
	relayDone chan struct{}
	relayWG   sync.WaitGroup
}

// relayQueueSize bounds the outbound relay queue. A relay that cannot
// drain it loses broadcasts rather than stalling the room.
const relayQueueSize = 256

type relayItem struct {
	roomID string
	msg    wire.Message
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithGraceWindow sets how long an empty room is retained.
func WithGraceWindow(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.graceWindow = d
		}
	}
}

// WithStaleAfter sets the idle threshold for SweepIdle.
func WithStaleAfter(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.staleAfter = d
		}
	}
}

// WithManagerLogger sets the manager's logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithArchive enables comment persistence across room teardowns.
func WithArchive(s archive.Store) ManagerOption {
	return func(m *Manager) { m.store = s }
}

// WithRelay enables cross-node broadcast relaying.
func WithRelay(r Relay) ManagerOption {
	return func(m *Manager) { m.relay = r }
}

// NewManager creates a session manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		rooms:       make(map[string]*room),
		sessions:    make(map[string]string),
		graceWindow: DefaultGraceWindow,
		staleAfter:  DefaultStaleAfter,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.relay != nil {
		m.relayCh = make(chan relayItem, relayQueueSize)
		m.relayDone = make(chan struct{})
		m.relayWG.Add(1)
		go m.publishLoop()
	}
	return m
}

// publishLoop serializes relay publishes so peer nodes observe this
// node's broadcasts in the order the manager processed them. Comment
// mutations rely on that ordering to converge.
func (m *Manager) publishLoop() {
	defer m.relayWG.Done()
	for {
		select {
		case <-m.relayDone:
			// Flush whatever is already queued, then stop.
			for {
				select {
				case it := <-m.relayCh:
					m.publish(it)
				default:
					return
				}
			}
		case it := <-m.relayCh:
			m.publish(it)
		}
	}
}

func (m *Manager) publish(it relayItem) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.relay.Publish(ctx, it.roomID, it.msg); err != nil {
		m.log.Warn("relay publish failed", "event", it.msg.Event, "room", it.roomID, "error", err)
	}
}

// Join registers a connection in a presentation's room. A connection that
// was in another room leaves it first. The joiner receives the current
// participant list and comment set; everyone else receives user-joined.
func (m *Manager) Join(conn transport.Conn, roomID string, user wire.User) {
	now := time.Now()

	m.mu.Lock()
	if prev, ok := m.sessions[conn.ID()]; ok && prev != roomID {
		m.leaveLocked(conn.ID(), prev, now)
	}

	r, ok := m.rooms[roomID]
	if !ok {
		r = newRoom(roomID, now)
		m.restoreCommentsLocked(r)
		m.rooms[roomID] = r
		m.log.Info("room created", "room", roomID)
	}
	if r.deleteTimer != nil {
		r.deleteTimer.Stop()
		r.deleteTimer = nil
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Color == "" {
		user.Color = participantColors[m.colorIndex%len(participantColors)]
		m.colorIndex++
	}

	r.participants[conn.ID()] = &participant{conn: conn, user: user, joinedAt: now}
	m.sessions[conn.ID()] = roomID
	r.touch(now)

	others := r.conns(conn.ID())
	users := r.users(conn.ID())
	comments := r.commentList()
	m.mu.Unlock()

	m.sendTo(conn, wire.EventCurrentUsers, wire.CurrentUsers{Users: users})
	m.sendTo(conn, wire.EventCurrentComments, wire.CurrentComments{Comments: comments})
	m.fanOut(roomID, others, wire.EventUserJoined, wire.UserJoined{User: user})

	m.log.Info("participant joined", "room", roomID, "conn", conn.ID(), "user", user.ID)
}

// Leave removes a connection from its room explicitly.
func (m *Manager) Leave(connID string) {
	now := time.Now()
	m.mu.Lock()
	roomID, ok := m.sessions[connID]
	if !ok {
		m.mu.Unlock()
		return
	}
	m.leaveLocked(connID, roomID, now)
	m.mu.Unlock()
}

// Disconnect is the implicit leave invoked by the transport when a
// connection drops. Part of the transport.Handler contract.
func (m *Manager) Disconnect(connID string) {
	m.Leave(connID)
}

// leaveLocked removes the participant, announces the departure, and arms
// the grace-window deletion when the room empties.
func (m *Manager) leaveLocked(connID, roomID string, now time.Time) {
	r, ok := m.rooms[roomID]
	if !ok {
		delete(m.sessions, connID)
		return
	}
	p, ok := r.participants[connID]
	if !ok {
		delete(m.sessions, connID)
		return
	}

	delete(r.participants, connID)
	delete(m.sessions, connID)
	r.touch(now)

	others := r.conns("")
	go m.fanOut(roomID, others, wire.EventUserLeft, wire.UserLeft{UserID: p.user.ID})

	m.log.Info("participant left", "room", roomID, "conn", connID, "user", p.user.ID)

	if len(r.participants) == 0 {
		// Deferred deletion tolerates transient disconnects such as a
		// page reload; a rejoin inside the window cancels it.
		r.deleteTimer = time.AfterFunc(m.graceWindow, func() {
			m.reapIfEmpty(roomID)
		})
	}
}

// reapIfEmpty deletes a room whose grace window elapsed with no rejoin.
func (m *Manager) reapIfEmpty(roomID string) {
	m.mu.Lock()
	r, ok := m.rooms[roomID]
	if !ok || len(r.participants) > 0 {
		m.mu.Unlock()
		return
	}
	comments := r.commentList()
	delete(m.rooms, roomID)
	m.mu.Unlock()

	m.archiveComments(roomID, comments)
	m.log.Info("room deleted after grace window", "room", roomID)
}

// UpdateCursor broadcasts a cursor position to the rest of the room.
// Fire-and-forget presence data: no acknowledgement, no persistence.
func (m *Manager) UpdateCursor(connID string, cur wire.Cursor) {
	m.mu.Lock()
	r, p := m.lookupLocked(connID)
	if r == nil {
		m.mu.Unlock()
		return
	}
	p.user.Cursor = &cur
	others := r.conns(connID)
	userID := p.user.ID
	roomID := r.id
	m.mu.Unlock()

	m.fanOut(roomID, others, wire.EventUserCursorUpdate, wire.UserCursorUpdate{UserID: userID, Cursor: cur})
}

// UpdateSelection broadcasts a selection to the rest of the room.
func (m *Manager) UpdateSelection(connID string, sel wire.Selection) {
	m.mu.Lock()
	r, p := m.lookupLocked(connID)
	if r == nil {
		m.mu.Unlock()
		return
	}
	p.user.Selection = &sel
	others := r.conns(connID)
	userID := p.user.ID
	roomID := r.id
	m.mu.Unlock()

	m.fanOut(roomID, others, wire.EventUserSelectionUpdate, wire.UserSelectionUpdate{UserID: userID, Selection: sel})
}

// UpdateSlide relays a slide content delta to the rest of the room. The
// manager neither applies nor validates the delta; receivers apply it as
// a non-undoable remote mutation. Concurrent deltas to the same element
// resolve last-write-wins at each receiver.
func (m *Manager) UpdateSlide(connID, slideID string, updates json.RawMessage) {
	m.mu.Lock()
	r, p := m.lookupLocked(connID)
	if r == nil {
		m.mu.Unlock()
		return
	}
	r.touch(time.Now())
	others := r.conns(connID)
	userID := p.user.ID
	roomID := r.id
	m.mu.Unlock()

	m.fanOut(roomID, others, wire.EventSlideUpdated, wire.SlideUpdated{UserID: userID, SlideID: slideID, Updates: updates})
}

// UpdatePresentation relays a presentation-level content delta.
func (m *Manager) UpdatePresentation(connID string, updates json.RawMessage) {
	m.mu.Lock()
	r, p := m.lookupLocked(connID)
	if r == nil {
		m.mu.Unlock()
		return
	}
	r.touch(time.Now())
	others := r.conns(connID)
	userID := p.user.ID
	roomID := r.id
	m.mu.Unlock()

	m.fanOut(roomID, others, wire.EventPresentationUpdated, wire.PresentationUpdated{UserID: userID, Updates: updates})
}

// AddComment stores a comment and broadcasts it to every participant,
// the originator included, so all UIs update from the one authoritative
// broadcast instead of optimistic local state.
func (m *Manager) AddComment(connID string, c wire.Comment) {
	m.mu.Lock()
	r, p := m.lookupLocked(connID)
	if r == nil {
		m.mu.Unlock()
		return
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.AuthorID == "" {
		c.AuthorID = p.user.ID
		c.Author = p.user.Name
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.Replies == nil {
		c.Replies = []wire.Reply{}
	}
	r.addComment(&c)
	r.touch(time.Now())
	all := r.conns("")
	roomID := r.id
	m.mu.Unlock()

	m.fanOut(roomID, all, wire.EventCommentAdded, wire.CommentAdded{Comment: c})
}

// ReplyToComment appends a threaded reply and broadcasts the updated
// comment to everyone. An unknown comment ID is logged and dropped.
func (m *Manager) ReplyToComment(connID, commentID string, reply wire.Reply) {
	m.mu.Lock()
	r, p := m.lookupLocked(connID)
	if r == nil {
		m.mu.Unlock()
		return
	}
	c, ok := r.comments[commentID]
	if !ok {
		m.mu.Unlock()
		m.log.Warn("reply to unknown comment", "room", r.id, "comment", commentID)
		return
	}
	if reply.ID == "" {
		reply.ID = uuid.NewString()
	}
	if reply.AuthorID == "" {
		reply.AuthorID = p.user.ID
		reply.Author = p.user.Name
	}
	if reply.CreatedAt.IsZero() {
		reply.CreatedAt = time.Now()
	}
	c.Replies = append(c.Replies, reply)
	updated := *c
	r.touch(time.Now())
	all := r.conns("")
	roomID := r.id
	m.mu.Unlock()

	m.fanOut(roomID, all, wire.EventCommentUpdated, wire.CommentUpdated{Comment: updated})
}

// ResolveComment marks a comment resolved and broadcasts it to everyone.
func (m *Manager) ResolveComment(connID, commentID string) {
	m.mu.Lock()
	r, _ := m.lookupLocked(connID)
	if r == nil {
		m.mu.Unlock()
		return
	}
	c, ok := r.comments[commentID]
	if !ok {
		m.mu.Unlock()
		m.log.Warn("resolve unknown comment", "room", r.id, "comment", commentID)
		return
	}
	c.Resolved = true
	updated := *c
	r.touch(time.Now())
	all := r.conns("")
	roomID := r.id
	m.mu.Unlock()

	m.fanOut(roomID, all, wire.EventCommentUpdated, wire.CommentUpdated{Comment: updated})
}

// DeleteComment removes a comment and broadcasts the deletion to everyone.
func (m *Manager) DeleteComment(connID, commentID string) {
	m.mu.Lock()
	r, _ := m.lookupLocked(connID)
	if r == nil {
		m.mu.Unlock()
		return
	}
	if !r.removeComment(commentID) {
		m.mu.Unlock()
		m.log.Warn("delete unknown comment", "room", r.id, "comment", commentID)
		return
	}
	r.touch(time.Now())
	all := r.conns("")
	roomID := r.id
	m.mu.Unlock()

	m.fanOut(roomID, all, wire.EventCommentDeleted, wire.CommentDeleted{CommentID: commentID})
}

// SweepIdle deletes rooms that are empty and idle past the staleness
// threshold. Runs on a slower cadence than the grace-window timer; the
// two mechanisms are independent. Returns the number of rooms removed.
func (m *Manager) SweepIdle(now time.Time) int {
	type reaped struct {
		id       string
		comments []wire.Comment
	}

	m.mu.Lock()
	var victims []reaped
	for id, r := range m.rooms {
		if len(r.participants) == 0 && now.Sub(r.lastActivity) > m.staleAfter {
			if r.deleteTimer != nil {
				r.deleteTimer.Stop()
			}
			victims = append(victims, reaped{id: id, comments: r.commentList()})
			delete(m.rooms, id)
		}
	}
	m.mu.Unlock()

	for _, v := range victims {
		m.archiveComments(v.id, v.comments)
		m.log.Info("room swept after idling", "room", v.id)
	}
	return len(victims)
}

// DeliverRemote applies a message relayed from another node to the local
// room state and fans it out to the local participants. Invoked by the
// Redis bridge. Comment mutations must land in the local comment store,
// not just on the wire: a later joiner on this node builds its
// current-comments snapshot from here.
func (m *Manager) DeliverRemote(roomID string, msg wire.Message) {
	m.mu.Lock()
	r, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return
	}
	m.applyRemoteLocked(r, msg)
	conns := r.conns("")
	m.mu.Unlock()

	for _, conn := range conns {
		if err := conn.Send(msg); err != nil {
			m.log.Warn("remote delivery failed", "room", roomID, "conn", conn.ID(), "error", err)
		}
	}
}

// applyRemoteLocked mirrors a relayed comment mutation into the local
// room. Ephemeral traffic (presence, content deltas) carries no room
// state and passes through untouched. Caller holds the mutex.
func (m *Manager) applyRemoteLocked(r *room, msg wire.Message) {
	switch msg.Event {
	case wire.EventCommentAdded:
		var p wire.CommentAdded
		if err := msg.Decode(&p); err != nil {
			m.log.Warn("dropping malformed relayed comment", "room", r.id, "event", msg.Event, "error", err)
			return
		}
		if _, exists := r.comments[p.Comment.ID]; !exists {
			c := p.Comment
			r.addComment(&c)
		}
		r.touch(time.Now())

	case wire.EventCommentUpdated:
		var p wire.CommentUpdated
		if err := msg.Decode(&p); err != nil {
			m.log.Warn("dropping malformed relayed comment", "room", r.id, "event", msg.Event, "error", err)
			return
		}
		if existing, exists := r.comments[p.Comment.ID]; exists {
			*existing = p.Comment
		} else {
			// The add may have raced this node's room creation.
			c := p.Comment
			r.addComment(&c)
		}
		r.touch(time.Now())

	case wire.EventCommentDeleted:
		var p wire.CommentDeleted
		if err := msg.Decode(&p); err != nil {
			m.log.Warn("dropping malformed relayed comment", "room", r.id, "event", msg.Event, "error", err)
			return
		}
		r.removeComment(p.CommentID)
		r.touch(time.Now())

	case wire.EventSlideUpdated, wire.EventPresentationUpdated:
		r.touch(time.Now())
	}
}

// SetGraceWindow updates the retention window for rooms that empty after
// the call. Already-armed timers keep their original window.
func (m *Manager) SetGraceWindow(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graceWindow = d
}

// SetStaleAfter updates the idle threshold used by the next sweep.
func (m *Manager) SetStaleAfter(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staleAfter = d
}

// RoomCount returns the number of live rooms.
func (m *Manager) RoomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// ParticipantCount returns the number of participants in a room, or 0
// when the room does not exist.
func (m *Manager) ParticipantCount(roomID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return 0
	}
	return len(r.participants)
}

// Close waits for in-flight relay publishes and archives every remaining
// room's comments.
func (m *Manager) Close() {
	m.mu.Lock()
	type pending struct {
		id       string
		comments []wire.Comment
	}
	var all []pending
	for id, r := range m.rooms {
		if r.deleteTimer != nil {
			r.deleteTimer.Stop()
		}
		all = append(all, pending{id: id, comments: r.commentList()})
	}
	m.rooms = make(map[string]*room)
	m.sessions = make(map[string]string)
	m.mu.Unlock()

	for _, p := range all {
		m.archiveComments(p.id, p.comments)
	}
	if m.relay != nil {
		close(m.relayDone)
	}
	m.relayWG.Wait()
}

// lookupLocked resolves a connection to its room and participant.
// Caller holds the mutex.
func (m *Manager) lookupLocked(connID string) (*room, *participant) {
	roomID, ok := m.sessions[connID]
	if !ok {
		return nil, nil
	}
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, nil
	}
	p, ok := r.participants[connID]
	if !ok {
		return nil, nil
	}
	return r, p
}

// sendTo delivers one event to one connection, logging failures.
func (m *Manager) sendTo(conn transport.Conn, event string, payload any) {
	msg, err := wire.NewMessage(event, payload)
	if err != nil {
		m.log.Error("encode event", "event", event, "error", err)
		return
	}
	if err := conn.Send(msg); err != nil {
		m.log.Warn("send failed", "event", event, "conn", conn.ID(), "error", err)
	}
}

// fanOut delivers an event to a set of connections and relays it to other
// nodes. A failure on one connection never blocks delivery to the rest.
func (m *Manager) fanOut(roomID string, conns []transport.Conn, event string, payload any) {
	msg, err := wire.NewMessage(event, payload)
	if err != nil {
		m.log.Error("encode event", "event", event, "error", err)
		return
	}
	for _, conn := range conns {
		if err := conn.Send(msg); err != nil {
			m.log.Warn("broadcast failed", "event", event, "room", roomID, "conn", conn.ID(), "error", err)
		}
	}
	if m.relay != nil {
		select {
		case m.relayCh <- relayItem{roomID: roomID, msg: msg}:
		default:
			m.log.Warn("relay queue full, dropping broadcast", "event", event, "room", roomID)
		}
	}
}

// restoreCommentsLocked seeds a fresh room with archived comments.
// Caller holds the mutex.
func (m *Manager) restoreCommentsLocked(r *room) {
	if m.store == nil {
		return
	}
	comments, err := m.store.LoadComments(r.id)
	if err != nil {
		m.log.Warn("comment restore failed", "room", r.id, "error", err)
		return
	}
	for i := range comments {
		c := comments[i]
		r.addComment(&c)
	}
	if len(comments) > 0 {
		m.log.Info("restored archived comments", "room", r.id, "count", len(comments))
	}
}

// archiveComments persists a torn-down room's comments.
func (m *Manager) archiveComments(roomID string, comments []wire.Comment) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveComments(roomID, comments); err != nil {
		m.log.Warn("comment archive failed", "room", roomID, "error", err)
	}
}
