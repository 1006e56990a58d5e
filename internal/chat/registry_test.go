package chat

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func TestRegistry_Join_CreatesChatOnce(t *testing.T) {
	reg := NewRegistry(clockwork.NewFakeClockAt(epoch))

	require.True(t, reg.Join("room1", "alice"))
	require.False(t, reg.Join("room1", "bob"))

	c, ok := reg.Get("room1")
	require.True(t, ok)
	assert.Equal(t, "room1", c.InviteID)
	assert.Equal(t, epoch, c.CreatedAt)
	assert.Equal(t, []string{"alice", "bob"}, c.Aliases())
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_Join_DuplicateAliasesCollapse(t *testing.T) {
	reg := NewRegistry(clockwork.NewFakeClockAt(epoch))

	for _, alias := range []string{"alice", "bob", "alice", "carol", "bob", "alice"} {
		reg.Join("room1", alias)
	}

	c, ok := reg.Get("room1")
	require.True(t, ok)
	require.Len(t, c.Participants, 3)
}

func TestRegistry_Join_CreatedAtNeverMoves(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	reg := NewRegistry(clock)

	reg.Join("room1", "alice")
	clock.Advance(time.Hour)
	reg.Join("room1", "bob")

	c, _ := reg.Get("room1")
	require.Equal(t, epoch, c.CreatedAt)
}

func TestRegistry_AddMessage_StampsIDAndTime(t *testing.T) {
	reg := NewRegistry(clockwork.NewFakeClockAt(epoch))
	reg.Join("room1", "alice")

	msg, ok := reg.AddMessage("room1", "alice", "hi")
	require.True(t, ok)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "alice", msg.Sender)
	assert.Equal(t, "hi", msg.Body)
	assert.Equal(t, epoch.UnixMilli(), msg.Timestamp)

	other, _ := reg.AddMessage("room1", "alice", "again")
	assert.NotEqual(t, msg.ID, other.ID)
}

func TestRegistry_AddMessage_WithoutChatIsNotStored(t *testing.T) {
	reg := NewRegistry(clockwork.NewFakeClockAt(epoch))

	_, ok := reg.AddMessage("room1", "alice", "hi")
	require.False(t, ok)

	_, exists := reg.Get("room1")
	require.False(t, exists)
	require.Zero(t, reg.Len())
}

func TestRegistry_AddMessage_EvictsOldestPastCap(t *testing.T) {
	reg := NewRegistry(clockwork.NewFakeClockAt(epoch))
	reg.Join("room1", "alice")

	for i := 0; i < MaxMessages+5; i++ {
		_, ok := reg.AddMessage("room1", "alice", fmt.Sprintf("msg-%d", i))
		require.True(t, ok)

		c, _ := reg.Get("room1")
		require.LessOrEqual(t, len(c.Messages), MaxMessages)
	}

	c, _ := reg.Get("room1")
	require.Len(t, c.Messages, MaxMessages)
	assert.Equal(t, "msg-5", c.Messages[0].Body)
	assert.Equal(t, fmt.Sprintf("msg-%d", MaxMessages+4), c.Messages[MaxMessages-1].Body)
}

func TestRegistry_Get_ReturnsDetachedCopy(t *testing.T) {
	reg := NewRegistry(clockwork.NewFakeClockAt(epoch))
	reg.Join("room1", "alice")
	reg.AddMessage("room1", "alice", "hi")

	c, _ := reg.Get("room1")
	c.Participants["mallory"] = struct{}{}
	c.Messages[0].Body = "tampered"

	fresh, _ := reg.Get("room1")
	assert.NotContains(t, fresh.Participants, "mallory")
	assert.Equal(t, "hi", fresh.Messages[0].Body)
}

func TestRegistry_Delete_IsIdempotent(t *testing.T) {
	reg := NewRegistry(clockwork.NewFakeClockAt(epoch))
	reg.Join("room1", "alice")

	require.True(t, reg.Delete("room1"))
	require.False(t, reg.Delete("room1"))
	require.False(t, reg.Delete("never-existed"))
	require.Zero(t, reg.Len())
}

func TestRegistry_DeleteIf_ChecksPredicate(t *testing.T) {
	reg := NewRegistry(clockwork.NewFakeClockAt(epoch))
	reg.Join("room1", "alice")

	require.False(t, reg.DeleteIf("room1", func(Chat) bool { return false }))
	require.Equal(t, 1, reg.Len())
	require.True(t, reg.DeleteIf("room1", func(c Chat) bool { return c.InviteID == "room1" }))
	require.Zero(t, reg.Len())
}

func TestRegistry_Range_StopsEarly(t *testing.T) {
	reg := NewRegistry(clockwork.NewFakeClockAt(epoch))
	for i := 0; i < 5; i++ {
		reg.Join(fmt.Sprintf("room%d", i), "alice")
	}

	visited := 0
	reg.Range(func(Chat) bool {
		visited++
		return visited < 2
	})
	require.Equal(t, 2, visited)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry(clockwork.NewRealClock())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			room := fmt.Sprintf("room%d", id%3)
			reg.Join(room, fmt.Sprintf("user%d", id))
			for j := 0; j < 50; j++ {
				reg.AddMessage(room, "user", "body")
			}
			reg.Range(func(Chat) bool { return true })
		}(i)
	}
	wg.Wait()

	require.Equal(t, 3, reg.Len())
	reg.Range(func(c Chat) bool {
		assert.LessOrEqual(t, len(c.Messages), MaxMessages)
		return true
	})
}

func TestChat_LastActivity(t *testing.T) {
	c := newChat("room1", epoch)
	require.Equal(t, epoch, c.LastActivity())

	later := epoch.Add(45 * time.Minute)
	c.appendMessage(Message{ID: "m1", Timestamp: later.UnixMilli()})
	require.True(t, later.Equal(c.LastActivity()))
}
