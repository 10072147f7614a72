package archive

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slidewire/slidewire/internal/collab/wire"
)

func openTestArchive(t *testing.T) *Bolt {
	t.Helper()
	b, err := OpenBolt(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSaveAndLoadComments(t *testing.T) {
	b := openTestArchive(t)

	comments := []wire.Comment{
		{
			ID:        "cm1",
			AuthorID:  "u1",
			Author:    "Alice",
			Body:      "check the axis labels",
			Anchor:    wire.Anchor{SlideID: "s1", ElementID: "chart1"},
			Replies:   []wire.Reply{{ID: "r1", AuthorID: "u2", Author: "Bob", Body: "fixed", CreatedAt: time.Now().UTC()}},
			CreatedAt: time.Now().UTC(),
		},
		{ID: "cm2", AuthorID: "u2", Author: "Bob", Body: "resolved one", Resolved: true, Replies: []wire.Reply{}},
	}

	require.NoError(t, b.SaveComments("doc1", comments))

	loaded, err := b.LoadComments("doc1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "cm1", loaded[0].ID)
	assert.Len(t, loaded[0].Replies, 1)
	assert.True(t, loaded[1].Resolved)
}

func TestLoadMissingReturnsNil(t *testing.T) {
	b := openTestArchive(t)

	loaded, err := b.LoadComments("never-seen")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSaveEmptyDeletesRecord(t *testing.T) {
	b := openTestArchive(t)

	require.NoError(t, b.SaveComments("doc1", []wire.Comment{{ID: "cm1"}}))
	require.NoError(t, b.SaveComments("doc1", nil))

	loaded, err := b.LoadComments("doc1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestDeleteComments(t *testing.T) {
	b := openTestArchive(t)

	require.NoError(t, b.SaveComments("doc1", []wire.Comment{{ID: "cm1"}}))
	require.NoError(t, b.DeleteComments("doc1"))

	loaded, err := b.LoadComments("doc1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
