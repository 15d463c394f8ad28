package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakline/atrium/internal/domain"
)

func testParticipant(connID, workspaceID, userID string) *domain.Participant {
	return domain.NewParticipant(connID, workspaceID, domain.Identity{UserID: userID, Name: userID})
}

func TestDirectoryRegisterAndGet(t *testing.T) {
	d := NewDirectory()
	d.Register(testParticipant("c1", "ws1", "alice"))

	p, ok := d.Get("c1")
	require.True(t, ok)
	assert.Equal(t, "alice", p.UserID)
	assert.Equal(t, domain.SpawnPosition, p.Position)
	assert.NotEmpty(t, p.Avatar.Color)

	_, ok = d.Get("nope")
	assert.False(t, ok)
}

func TestDirectoryUpdatePosition(t *testing.T) {
	d := NewDirectory()
	d.Register(testParticipant("c1", "ws1", "alice"))

	pos := domain.Vec3{X: 1, Y: 2, Z: 3}
	p, ok := d.UpdatePosition("c1", pos)
	require.True(t, ok)
	assert.Equal(t, pos, p.Position)

	p, ok = d.Get("c1")
	require.True(t, ok)
	assert.Equal(t, pos, p.Position)
}

func TestDirectoryUpdateUnregisteredIsNoOp(t *testing.T) {
	d := NewDirectory()

	_, ok := d.UpdatePosition("ghost", domain.Vec3{X: 1})
	assert.False(t, ok)
	_, ok = d.SetVoiceActive("ghost", true)
	assert.False(t, ok)
	assert.Equal(t, 0, d.Count(), "late updates never resurrect state")
}

func TestDirectoryVoiceFlag(t *testing.T) {
	d := NewDirectory()
	d.Register(testParticipant("c1", "ws1", "alice"))

	p, ok := d.SetVoiceActive("c1", true)
	require.True(t, ok)
	assert.True(t, p.VoiceActive)

	p, ok = d.SetVoiceActive("c1", false)
	require.True(t, ok)
	assert.False(t, p.VoiceActive)
}

func TestDirectorySnapshotExcludesJoiner(t *testing.T) {
	d := NewDirectory()
	d.Register(testParticipant("c1", "ws1", "alice"))
	d.Register(testParticipant("c2", "ws1", "bob"))
	d.Register(testParticipant("c3", "ws2", "carol"))

	snap := d.Snapshot("ws1", "c1")
	assert.Len(t, snap, 1)
	assert.Contains(t, snap, "c2")

	assert.Len(t, d.All("ws1"), 2)
	assert.Len(t, d.All("ws2"), 1)
}

func TestDirectoryRemove(t *testing.T) {
	d := NewDirectory()
	d.Register(testParticipant("c1", "ws1", "alice"))

	p, ok := d.Remove("c1")
	require.True(t, ok)
	assert.Equal(t, "alice", p.UserID)
	assert.Equal(t, 0, d.Count())

	_, ok = d.Remove("c1")
	assert.False(t, ok)
}
