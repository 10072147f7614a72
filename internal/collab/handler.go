package collab

import (
	"github.com/slidewire/slidewire/internal/collab/wire"
	"github.com/slidewire/slidewire/internal/transport"
)

// HandleMessage dispatches one inbound client event. Part of the
// transport.Handler contract. Malformed payloads and unknown events are
// logged and dropped; a corrupt frame never takes the session down.
func (m *Manager) HandleMessage(conn transport.Conn, msg wire.Message) {
	switch msg.Event {
	case wire.EventJoinPresentation:
		var p wire.JoinPresentation
		if err := msg.Decode(&p); err != nil {
			m.dropFrame(conn, msg.Event, err)
			return
		}
		m.Join(conn, p.PresentationID, p.User)

	case wire.EventLeavePresentation:
		m.Leave(conn.ID())

	case wire.EventCursorUpdate:
		var p wire.Cursor
		if err := msg.Decode(&p); err != nil {
			m.dropFrame(conn, msg.Event, err)
			return
		}
		m.UpdateCursor(conn.ID(), p)

	case wire.EventSelectionUpdate:
		var p wire.Selection
		if err := msg.Decode(&p); err != nil {
			m.dropFrame(conn, msg.Event, err)
			return
		}
		m.UpdateSelection(conn.ID(), p)

	case wire.EventUpdateSlide:
		var p wire.UpdateSlide
		if err := msg.Decode(&p); err != nil {
			m.dropFrame(conn, msg.Event, err)
			return
		}
		m.UpdateSlide(conn.ID(), p.SlideID, p.Updates)

	case wire.EventUpdatePresentation:
		var p wire.UpdatePresentation
		if err := msg.Decode(&p); err != nil {
			m.dropFrame(conn, msg.Event, err)
			return
		}
		m.UpdatePresentation(conn.ID(), p.Updates)

	case wire.EventAddComment:
		var p wire.AddComment
		if err := msg.Decode(&p); err != nil {
			m.dropFrame(conn, msg.Event, err)
			return
		}
		m.AddComment(conn.ID(), p.Comment)

	case wire.EventReplyToComment:
		var p wire.ReplyToComment
		if err := msg.Decode(&p); err != nil {
			m.dropFrame(conn, msg.Event, err)
			return
		}
		m.ReplyToComment(conn.ID(), p.CommentID, p.Reply)

	case wire.EventResolveComment:
		var p wire.ResolveComment
		if err := msg.Decode(&p); err != nil {
			m.dropFrame(conn, msg.Event, err)
			return
		}
		m.ResolveComment(conn.ID(), p.CommentID)

	case wire.EventDeleteComment:
		var p wire.DeleteComment
		if err := msg.Decode(&p); err != nil {
			m.dropFrame(conn, msg.Event, err)
			return
		}
		m.DeleteComment(conn.ID(), p.CommentID)

	default:
		m.log.Warn("dropping unknown event", "event", msg.Event, "conn", conn.ID())
	}
}

// dropFrame logs a malformed inbound frame.
func (m *Manager) dropFrame(conn transport.Conn, event string, err error) {
	m.log.Warn("dropping malformed frame", "event", event, "conn", conn.ID(), "error", err)
}
