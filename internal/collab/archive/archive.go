// Package archive persists a room's comment threads across room
// teardowns, so a grace-window expiry does not lose discussion history.
// Persistence stays behind the Store interface; the session manager never
// sees the mechanics.
package archive

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/slidewire/slidewire/internal/collab/wire"
)

// Store archives and restores comment sets keyed by presentation ID.
type Store interface {
	SaveComments(presentationID string, comments []wire.Comment) error
	LoadComments(presentationID string) ([]wire.Comment, error)
	DeleteComments(presentationID string) error
	Close() error
}

var commentsBucket = []byte("comments")

// Bolt is a bbolt-backed Store.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the archive database at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(commentsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init archive buckets: %w", err)
	}
	return &Bolt{db: db}, nil
}

// SaveComments writes a presentation's comment set, replacing any prior
// archive. An empty set deletes the record.
func (b *Bolt) SaveComments(presentationID string, comments []wire.Comment) error {
	if len(comments) == 0 {
		return b.DeleteComments(presentationID)
	}
	data, err := json.Marshal(comments)
	if err != nil {
		return fmt.Errorf("encode comments for %s: %w", presentationID, err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(commentsBucket).Put([]byte(presentationID), data)
	})
}

// LoadComments returns the archived comment set, or nil when none exists.
func (b *Bolt) LoadComments(presentationID string) ([]wire.Comment, error) {
	var comments []wire.Comment
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(commentsBucket).Get([]byte(presentationID))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &comments)
	})
	if err != nil {
		return nil, fmt.Errorf("load comments for %s: %w", presentationID, err)
	}
	return comments, nil
}

// DeleteComments removes a presentation's archived comments.
func (b *Bolt) DeleteComments(presentationID string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(commentsBucket).Delete([]byte(presentationID))
	})
}

// Close closes the underlying database.
func (b *Bolt) Close() error {
	return b.db.Close()
}
