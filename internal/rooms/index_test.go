package rooms

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndex_JoinIsIdempotent(t *testing.T) {
	req := require.New(t)
	x := NewIndex()

	req.True(x.Join("R1", "u1"))
	req.False(x.Join("R1", "u1"))
	req.True(x.Join("R1", "u2"))

	req.Equal([]string{"u1", "u2"}, x.MembersOf("R1"))
	req.Equal(1, x.Count())
}

func TestIndex_EmptyRoomIsDeleted(t *testing.T) {
	req := require.New(t)
	x := NewIndex()
	x.Join("R1", "u1")
	x.Join("R1", "u2")

	req.True(x.Leave("R1", "u1"))
	req.True(x.Exists("R1"))

	// When the last member leaves
	req.True(x.Leave("R1", "u2"))

	// Then the room entry is gone
	req.False(x.Exists("R1"))
	req.Empty(x.Rooms())
	req.Equal(0, x.Count())
}

func TestIndex_UnknownRoomIsEmpty(t *testing.T) {
	req := require.New(t)
	x := NewIndex()

	members := x.MembersOf("ghost")
	req.NotNil(members)
	req.Empty(members)
	req.False(x.Leave("ghost", "u1"))
	req.False(x.IsMember("ghost", "u1"))

	// leaving a room one never joined leaves it untouched
	x.Join("R1", "u1")
	req.False(x.Leave("R1", "u2"))
	req.Equal([]string{"u1"}, x.MembersOf("R1"))
}

func TestIndex_NoRoomWithoutMembers(t *testing.T) {
	req := require.New(t)
	x := NewIndex()

	ops := []struct {
		join   bool
		room   string
		member string
	}{
		{true, "A", "u1"}, {true, "B", "u1"}, {true, "A", "u2"},
		{false, "A", "u1"}, {false, "B", "u1"}, {true, "B", "u3"},
		{false, "A", "u2"}, {false, "C", "u9"}, {false, "B", "u3"},
	}
	for _, op := range ops {
		if op.join {
			x.Join(op.room, op.member)
		} else {
			x.Leave(op.room, op.member)
		}
		for _, room := range x.Rooms() {
			req.NotEmpty(x.MembersOf(room), "room %s kept with no members", room)
		}
	}
	req.Equal(0, x.Count())
}
