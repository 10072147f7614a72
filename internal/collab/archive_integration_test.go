package collab

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slidewire/slidewire/internal/collab/archive"
	"github.com/slidewire/slidewire/internal/collab/wire"
)

// A grace-window expiry archives comments; the next room creation
// restores them.
func TestCommentsSurviveRoomTeardown(t *testing.T) {
	store, err := archive.OpenBolt(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	defer store.Close()

	m := newTestManager(WithGraceWindow(30*time.Millisecond), WithArchive(store))
	join(m, "ca", "doc1", "ua", "Alice")
	m.AddComment("ca", wire.Comment{ID: "cm1", Body: "survives teardown"})
	m.Leave("ca")

	require.Eventually(t, func() bool {
		return m.RoomCount() == 0
	}, time.Second, 10*time.Millisecond)

	connB := join(m, "cb", "doc1", "ub", "Bob")
	var snapshot wire.CurrentComments
	require.NoError(t, connB.MessagesByEvent(wire.EventCurrentComments)[0].Decode(&snapshot))
	require.Len(t, snapshot.Comments, 1)
	assert.Equal(t, "cm1", snapshot.Comments[0].ID)
	assert.Equal(t, "survives teardown", snapshot.Comments[0].Body)
}
