package collab

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slidewire/slidewire/internal/collab/wire"
	"github.com/slidewire/slidewire/internal/transport"
)

func newTestManager(opts ...ManagerOption) *Manager {
	return NewManager(opts...)
}

func join(m *Manager, connID, roomID, userID, name string) *transport.MemoryConn {
	conn := transport.NewMemoryConnID(connID)
	m.Join(conn, roomID, wire.User{ID: userID, Name: name})
	return conn
}

func TestJoinCreatesRoomAndSendsSnapshot(t *testing.T) {
	m := newTestManager()
	conn := join(m, "c1", "doc1", "u1", "Alice")

	assert.Equal(t, 1, m.RoomCount())
	assert.Equal(t, 1, m.ParticipantCount("doc1"))

	users := conn.MessagesByEvent(wire.EventCurrentUsers)
	require.Len(t, users, 1)
	var snapshot wire.CurrentUsers
	require.NoError(t, users[0].Decode(&snapshot))
	assert.Empty(t, snapshot.Users, "first joiner sees an empty participant list")

	comments := conn.MessagesByEvent(wire.EventCurrentComments)
	require.Len(t, comments, 1)
}

func TestSecondJoinerSeesFirstAndFirstIsNotified(t *testing.T) {
	m := newTestManager()
	connA := join(m, "ca", "doc1", "ua", "Alice")
	connB := join(m, "cb", "doc1", "ub", "Bob")

	// B's snapshot lists A.
	var snapshot wire.CurrentUsers
	require.NoError(t, connB.MessagesByEvent(wire.EventCurrentUsers)[0].Decode(&snapshot))
	require.Len(t, snapshot.Users, 1)
	assert.Equal(t, "ua", snapshot.Users[0].ID)

	// A receives user-joined for B; B never receives its own join.
	joined := connA.MessagesByEvent(wire.EventUserJoined)
	require.Len(t, joined, 1)
	var payload wire.UserJoined
	require.NoError(t, joined[0].Decode(&payload))
	assert.Equal(t, "ub", payload.User.ID)
	assert.Empty(t, connB.MessagesByEvent(wire.EventUserJoined))
}

func TestJoinAssignsColor(t *testing.T) {
	m := newTestManager()
	connA := join(m, "ca", "doc1", "ua", "Alice")
	_ = connA
	connB := join(m, "cb", "doc1", "ub", "Bob")

	var snapshot wire.CurrentUsers
	require.NoError(t, connB.MessagesByEvent(wire.EventCurrentUsers)[0].Decode(&snapshot))
	require.Len(t, snapshot.Users, 1)
	assert.NotEmpty(t, snapshot.Users[0].Color)
}

func TestJoinLeavesPreviousRoom(t *testing.T) {
	m := newTestManager()
	conn := transport.NewMemoryConnID("c1")
	m.Join(conn, "doc1", wire.User{ID: "u1", Name: "Alice"})
	m.Join(conn, "doc2", wire.User{ID: "u1", Name: "Alice"})

	assert.Equal(t, 0, m.ParticipantCount("doc1"))
	assert.Equal(t, 1, m.ParticipantCount("doc2"))
}

func TestCommentBroadcastIncludesOriginator(t *testing.T) {
	m := newTestManager()
	connA := join(m, "ca", "doc1", "ua", "Alice")
	connB := join(m, "cb", "doc1", "ub", "Bob")

	m.AddComment("cb", wire.Comment{Body: "looks wrong", Anchor: wire.Anchor{SlideID: "s1"}})

	addedA := connA.MessagesByEvent(wire.EventCommentAdded)
	addedB := connB.MessagesByEvent(wire.EventCommentAdded)
	require.Len(t, addedA, 1)
	require.Len(t, addedB, 1)

	// Both participants receive the identical authoritative payload.
	assert.JSONEq(t, string(addedA[0].Data), string(addedB[0].Data))

	var payload wire.CommentAdded
	require.NoError(t, addedA[0].Decode(&payload))
	assert.NotEmpty(t, payload.Comment.ID)
	assert.Equal(t, "ub", payload.Comment.AuthorID)
	assert.Equal(t, "Bob", payload.Comment.Author)
}

func TestCommentThreading(t *testing.T) {
	m := newTestManager()
	connA := join(m, "ca", "doc1", "ua", "Alice")
	join(m, "cb", "doc1", "ub", "Bob")

	m.AddComment("ca", wire.Comment{ID: "cm1", Body: "first"})
	m.ReplyToComment("cb", "cm1", wire.Reply{Body: "agreed"})
	m.ResolveComment("ca", "cm1")

	updated := connA.MessagesByEvent(wire.EventCommentUpdated)
	require.Len(t, updated, 2)

	var last wire.CommentUpdated
	require.NoError(t, updated[1].Decode(&last))
	assert.True(t, last.Comment.Resolved)
	require.Len(t, last.Comment.Replies, 1)
	assert.Equal(t, "agreed", last.Comment.Replies[0].Body)
	assert.Equal(t, "ub", last.Comment.Replies[0].AuthorID)
}

func TestDeleteComment(t *testing.T) {
	m := newTestManager()
	connA := join(m, "ca", "doc1", "ua", "Alice")

	m.AddComment("ca", wire.Comment{ID: "cm1", Body: "temp"})
	m.DeleteComment("ca", "cm1")

	deleted := connA.MessagesByEvent(wire.EventCommentDeleted)
	require.Len(t, deleted, 1)

	// A later joiner sees no trace of the deleted comment.
	connC := join(m, "cc", "doc1", "uc", "Cara")
	var snapshot wire.CurrentComments
	require.NoError(t, connC.MessagesByEvent(wire.EventCurrentComments)[0].Decode(&snapshot))
	assert.Empty(t, snapshot.Comments)
}

func TestUnknownCommentOperationsDropped(t *testing.T) {
	m := newTestManager()
	connA := join(m, "ca", "doc1", "ua", "Alice")

	m.ReplyToComment("ca", "ghost", wire.Reply{Body: "?"})
	m.ResolveComment("ca", "ghost")
	m.DeleteComment("ca", "ghost")

	assert.Empty(t, connA.MessagesByEvent(wire.EventCommentUpdated))
	assert.Empty(t, connA.MessagesByEvent(wire.EventCommentDeleted))
}

func TestCommentOrderConvergence(t *testing.T) {
	m := newTestManager()
	join(m, "ca", "doc1", "ua", "Alice")

	m.AddComment("ca", wire.Comment{ID: "cm1", Body: "one"})
	m.AddComment("ca", wire.Comment{ID: "cm2", Body: "two"})
	m.AddComment("ca", wire.Comment{ID: "cm3", Body: "three"})
	m.DeleteComment("ca", "cm2")

	// A late joiner's snapshot matches the surviving order exactly.
	connB := join(m, "cb", "doc1", "ub", "Bob")
	var snapshot wire.CurrentComments
	require.NoError(t, connB.MessagesByEvent(wire.EventCurrentComments)[0].Decode(&snapshot))
	require.Len(t, snapshot.Comments, 2)
	assert.Equal(t, "cm1", snapshot.Comments[0].ID)
	assert.Equal(t, "cm3", snapshot.Comments[1].ID)
}

func TestCursorBroadcastExcludesSender(t *testing.T) {
	m := newTestManager()
	connA := join(m, "ca", "doc1", "ua", "Alice")
	connB := join(m, "cb", "doc1", "ub", "Bob")

	m.UpdateCursor("ca", wire.Cursor{SlideID: "s1", X: 10, Y: 20})

	require.Len(t, connB.MessagesByEvent(wire.EventUserCursorUpdate), 1)
	assert.Empty(t, connA.MessagesByEvent(wire.EventUserCursorUpdate))

	var payload wire.UserCursorUpdate
	require.NoError(t, connB.MessagesByEvent(wire.EventUserCursorUpdate)[0].Decode(&payload))
	assert.Equal(t, "ua", payload.UserID)
	assert.Equal(t, float64(10), payload.Cursor.X)
}

func TestSelectionBroadcastExcludesSender(t *testing.T) {
	m := newTestManager()
	connA := join(m, "ca", "doc1", "ua", "Alice")
	connB := join(m, "cb", "doc1", "ub", "Bob")

	m.UpdateSelection("ca", wire.Selection{SlideID: "s1", ElementIDs: []string{"e1", "e2"}})

	require.Len(t, connB.MessagesByEvent(wire.EventUserSelectionUpdate), 1)
	assert.Empty(t, connA.MessagesByEvent(wire.EventUserSelectionUpdate))
}

func TestSlideDeltaRelayedUntouched(t *testing.T) {
	m := newTestManager()
	connA := join(m, "ca", "doc1", "ua", "Alice")
	connB := join(m, "cb", "doc1", "ub", "Bob")

	delta := json.RawMessage(`{"e1":{"x":42}}`)
	m.UpdateSlide("ca", "s1", delta)

	require.Len(t, connB.MessagesByEvent(wire.EventSlideUpdated), 1)
	assert.Empty(t, connA.MessagesByEvent(wire.EventSlideUpdated))

	var payload wire.SlideUpdated
	require.NoError(t, connB.MessagesByEvent(wire.EventSlideUpdated)[0].Decode(&payload))
	assert.Equal(t, "s1", payload.SlideID)
	assert.JSONEq(t, `{"e1":{"x":42}}`, string(payload.Updates))
	assert.Equal(t, "ua", payload.UserID)
}

func TestDisconnectBroadcastsUserLeft(t *testing.T) {
	m := newTestManager()
	join(m, "ca", "doc1", "ua", "Alice")
	connB := join(m, "cb", "doc1", "ub", "Bob")

	m.Disconnect("ca")

	require.Eventually(t, func() bool {
		return len(connB.MessagesByEvent(wire.EventUserLeft)) == 1
	}, time.Second, 10*time.Millisecond)

	var payload wire.UserLeft
	require.NoError(t, connB.MessagesByEvent(wire.EventUserLeft)[0].Decode(&payload))
	assert.Equal(t, "ua", payload.UserID)
}

func TestEmptyRoomSurvivesGraceWindow(t *testing.T) {
	m := newTestManager(WithGraceWindow(80 * time.Millisecond))
	join(m, "ca", "doc1", "ua", "Alice")

	m.AddComment("ca", wire.Comment{ID: "cm1", Body: "keep me"})
	m.Leave("ca")

	// Not deleted immediately.
	assert.Equal(t, 1, m.RoomCount())

	// A rejoin inside the window finds the comments intact.
	connB := join(m, "cb", "doc1", "ub", "Bob")
	var snapshot wire.CurrentComments
	require.NoError(t, connB.MessagesByEvent(wire.EventCurrentComments)[0].Decode(&snapshot))
	require.Len(t, snapshot.Comments, 1)

	// And the cancelled timer never fires.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, m.RoomCount())
}

func TestEmptyRoomDeletedAfterGraceWindow(t *testing.T) {
	m := newTestManager(WithGraceWindow(40 * time.Millisecond))
	join(m, "ca", "doc1", "ua", "Alice")
	m.Leave("ca")

	require.Eventually(t, func() bool {
		return m.RoomCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSweepIdleRemovesOnlyEmptyStaleRooms(t *testing.T) {
	m := newTestManager(WithStaleAfter(time.Hour), WithGraceWindow(time.Hour))
	join(m, "ca", "doc1", "ua", "Alice")
	join(m, "cb", "doc2", "ub", "Bob")
	m.Leave("cb")

	// doc2 is empty but fresh; nothing is stale yet.
	assert.Equal(t, 0, m.SweepIdle(time.Now()))
	assert.Equal(t, 2, m.RoomCount())

	// Two hours later doc2 is stale and empty; doc1 still has Alice.
	assert.Equal(t, 1, m.SweepIdle(time.Now().Add(2*time.Hour)))
	assert.Equal(t, 1, m.RoomCount())
	assert.Equal(t, 1, m.ParticipantCount("doc1"))
}

func TestBrokenConnDoesNotBlockOthers(t *testing.T) {
	m := newTestManager()
	join(m, "ca", "doc1", "ua", "Alice")
	connB := join(m, "cb", "doc1", "ub", "Bob")
	connC := join(m, "cc", "doc1", "uc", "Cara")

	connB.Break()
	m.AddComment("ca", wire.Comment{ID: "cm1", Body: "hello"})

	// C still gets the broadcast even though B's sends fail.
	assert.Len(t, connC.MessagesByEvent(wire.EventCommentAdded), 1)
}

func TestHandleMessageDispatch(t *testing.T) {
	m := newTestManager()
	conn := transport.NewMemoryConnID("c1")

	msg, err := wire.NewMessage(wire.EventJoinPresentation, wire.JoinPresentation{
		PresentationID: "doc1",
		User:           wire.User{ID: "u1", Name: "Alice"},
	})
	require.NoError(t, err)
	m.HandleMessage(conn, msg)
	assert.Equal(t, 1, m.ParticipantCount("doc1"))

	cursor, err := wire.NewMessage(wire.EventCursorUpdate, wire.Cursor{SlideID: "s1", X: 1, Y: 2})
	require.NoError(t, err)
	m.HandleMessage(conn, cursor)

	leave, err := wire.NewMessage(wire.EventLeavePresentation, wire.LeavePresentation{PresentationID: "doc1"})
	require.NoError(t, err)
	m.HandleMessage(conn, leave)
	assert.Equal(t, 0, m.ParticipantCount("doc1"))
}

func TestHandleMessageMalformedFrameDropped(t *testing.T) {
	m := newTestManager()
	conn := transport.NewMemoryConnID("c1")

	m.HandleMessage(conn, wire.Message{Event: wire.EventJoinPresentation, Data: json.RawMessage(`{"presentationId":42}`)})
	assert.Equal(t, 0, m.RoomCount())

	m.HandleMessage(conn, wire.Message{Event: "no-such-event"})
}

// relayPipe delivers one node's broadcasts straight into a peer manager,
// standing in for the Redis bridge.
type relayPipe struct {
	peer *Manager
}

func (p *relayPipe) Publish(_ context.Context, roomID string, msg wire.Message) error {
	p.peer.DeliverRemote(roomID, msg)
	return nil
}

func TestRelayedCommentsLandInPeerRoomState(t *testing.T) {
	nodeB := newTestManager()
	nodeA := newTestManager(WithRelay(&relayPipe{peer: nodeB}))

	join(nodeA, "ca", "doc1", "ua", "Alice")
	connB := transport.NewMemoryConnID("cb")
	nodeB.Join(connB, "doc1", wire.User{ID: "ub", Name: "Bob"})

	nodeA.AddComment("ca", wire.Comment{ID: "cm1", Body: "from node A"})

	// Bob receives the relayed broadcast.
	require.Eventually(t, func() bool {
		return len(connB.MessagesByEvent(wire.EventCommentAdded)) == 1
	}, time.Second, 10*time.Millisecond)

	// The mutation is in node B's room state, not just on the wire: a
	// later joiner there gets the comment in its snapshot.
	connC := transport.NewMemoryConnID("cc")
	nodeB.Join(connC, "doc1", wire.User{ID: "uc", Name: "Cara"})
	var snapshot wire.CurrentComments
	require.NoError(t, connC.MessagesByEvent(wire.EventCurrentComments)[0].Decode(&snapshot))
	require.Len(t, snapshot.Comments, 1)
	assert.Equal(t, "cm1", snapshot.Comments[0].ID)
	assert.Equal(t, "from node A", snapshot.Comments[0].Body)
}

func TestRelayedCommentLifecycleConverges(t *testing.T) {
	nodeB := newTestManager()
	nodeA := newTestManager(WithRelay(&relayPipe{peer: nodeB}))

	join(nodeA, "ca", "doc1", "ua", "Alice")
	connB := transport.NewMemoryConnID("cb")
	nodeB.Join(connB, "doc1", wire.User{ID: "ub", Name: "Bob"})

	nodeA.AddComment("ca", wire.Comment{ID: "cm1", Body: "first"})
	nodeA.AddComment("ca", wire.Comment{ID: "cm2", Body: "second"})
	nodeA.ResolveComment("ca", "cm1")
	nodeA.DeleteComment("ca", "cm2")

	require.Eventually(t, func() bool {
		return len(connB.MessagesByEvent(wire.EventCommentDeleted)) == 1
	}, time.Second, 10*time.Millisecond)

	connC := transport.NewMemoryConnID("cc")
	nodeB.Join(connC, "doc1", wire.User{ID: "uc", Name: "Cara"})
	var snapshot wire.CurrentComments
	require.NoError(t, connC.MessagesByEvent(wire.EventCurrentComments)[0].Decode(&snapshot))
	require.Len(t, snapshot.Comments, 1)
	assert.Equal(t, "cm1", snapshot.Comments[0].ID)
	assert.True(t, snapshot.Comments[0].Resolved)
}

func TestPresenceDoesNotResetIdleClock(t *testing.T) {
	m := newTestManager(WithStaleAfter(time.Hour), WithGraceWindow(time.Hour))
	join(m, "ca", "doc1", "ua", "Alice")
	m.UpdateCursor("ca", wire.Cursor{SlideID: "s1", X: 1, Y: 1})
	m.Leave("ca")

	// Join/leave counted as activity, so the room is fresh...
	assert.Equal(t, 0, m.SweepIdle(time.Now().Add(30*time.Minute)))
	// ...but stale two hours on, regardless of how much cursor traffic
	// happened before the leave.
	assert.Equal(t, 1, m.SweepIdle(time.Now().Add(2*time.Hour)))
}
