// Package wire defines the transport-agnostic event protocol between
// editor clients and the collaboration session manager.
package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// Client-to-server events.
const (
	EventJoinPresentation   = "join-presentation"
	EventLeavePresentation  = "leave-presentation"
	EventCursorUpdate       = "cursor-update"
	EventSelectionUpdate    = "selection-update"
	EventUpdateSlide        = "update-slide"
	EventUpdatePresentation = "update-presentation"
	EventAddComment         = "add-comment"
	EventReplyToComment     = "reply-to-comment"
	EventResolveComment     = "resolve-comment"
	EventDeleteComment      = "delete-comment"
)

// Server-to-client events.
const (
	EventCurrentUsers        = "current-users"
	EventCurrentComments     = "current-comments"
	EventUserJoined          = "user-joined"
	EventUserLeft            = "user-left"
	EventUserCursorUpdate    = "user-cursor-update"
	EventUserSelectionUpdate = "user-selection-update"
	EventSlideUpdated        = "slide-updated"
	EventPresentationUpdated = "presentation-updated"
	EventCommentAdded        = "comment-added"
	EventCommentUpdated      = "comment-updated"
	EventCommentDeleted      = "comment-deleted"
)

// Message is the envelope every event travels in.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewMessage builds an envelope from an event name and payload.
func NewMessage(event string, payload any) (Message, error) {
	if payload == nil {
		return Message{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return Message{Event: event, Data: data}, nil
}

// Decode unmarshals the envelope's data into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Event, err)
	}
	return nil
}

// User is the participant metadata shared inside a room.
type User struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Color     string     `json:"color,omitempty"`
	Cursor    *Cursor    `json:"cursor,omitempty"`
	Selection *Selection `json:"selection,omitempty"`
}

// Cursor is an ephemeral pointer position on a slide.
type Cursor struct {
	SlideID string  `json:"slideId"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// Selection is an ephemeral set of selected elements.
type Selection struct {
	SlideID    string   `json:"slideId"`
	ElementIDs []string `json:"elementIds"`
}

// Anchor pins a comment to a location in the presentation.
type Anchor struct {
	SlideID   string  `json:"slideId"`
	ElementID string  `json:"elementId,omitempty"`
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
}

// Reply is one threaded reply on a comment.
type Reply struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// Comment is a positioned, threadable annotation on the presentation.
type Comment struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	Anchor    Anchor    `json:"anchor"`
	Resolved  bool      `json:"resolved"`
	Replies   []Reply   `json:"replies"`
	CreatedAt time.Time `json:"createdAt"`
}

// JoinPresentation asks to join a presentation's room.
type JoinPresentation struct {
	PresentationID string `json:"presentationId"`
	User           User   `json:"user"`
}

// LeavePresentation leaves a presentation's room.
type LeavePresentation struct {
	PresentationID string `json:"presentationId"`
}

// UpdateSlide carries a content delta scoped to one slide.
// The manager relays it untouched; receivers apply it locally as a
// non-undoable remote mutation.
type UpdateSlide struct {
	SlideID string          `json:"slideId"`
	Updates json.RawMessage `json:"updates"`
}

// UpdatePresentation carries a presentation-level content delta.
type UpdatePresentation struct {
	Updates json.RawMessage `json:"updates"`
}

// AddComment adds a comment to the room.
type AddComment struct {
	Comment Comment `json:"comment"`
}

// ReplyToComment appends a threaded reply.
type ReplyToComment struct {
	CommentID string `json:"commentId"`
	Reply     Reply  `json:"reply"`
}

// ResolveComment marks a comment resolved.
type ResolveComment struct {
	CommentID string `json:"commentId"`
}

// DeleteComment removes a comment.
type DeleteComment struct {
	CommentID string `json:"commentId"`
}

// CurrentUsers is the participant snapshot sent to a joiner.
type CurrentUsers struct {
	Users []User `json:"users"`
}

// CurrentComments is the comment snapshot sent to a joiner.
type CurrentComments struct {
	Comments []Comment `json:"comments"`
}

// UserJoined announces a new participant to the rest of the room.
type UserJoined struct {
	User User `json:"user"`
}

// UserLeft announces a departure.
type UserLeft struct {
	UserID string `json:"userId"`
}

// UserCursorUpdate relays another participant's cursor.
type UserCursorUpdate struct {
	UserID string `json:"userId"`
	Cursor Cursor `json:"cursor"`
}

// UserSelectionUpdate relays another participant's selection.
type UserSelectionUpdate struct {
	UserID    string    `json:"userId"`
	Selection Selection `json:"selection"`
}

// SlideUpdated relays a slide content delta.
type SlideUpdated struct {
	UserID  string          `json:"userId"`
	SlideID string          `json:"slideId"`
	Updates json.RawMessage `json:"updates"`
}

// PresentationUpdated relays a presentation-level content delta.
type PresentationUpdated struct {
	UserID  string          `json:"userId"`
	Updates json.RawMessage `json:"updates"`
}

// CommentAdded broadcasts a new comment to every participant,
// the originator included.
type CommentAdded struct {
	Comment Comment `json:"comment"`
}

// CommentUpdated broadcasts a reply or resolution.
type CommentUpdated struct {
	Comment Comment `json:"comment"`
}

// CommentDeleted broadcasts a removal.
type CommentDeleted struct {
	CommentID string `json:"commentId"`
}
