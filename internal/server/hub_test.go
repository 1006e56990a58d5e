package server

import (
	"fmt"
	"testing"
	"time"

	"github.com/Tyrowin/vanishchat/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopDispatcher struct{}

func (nopDispatcher) HandleFrame(relay.Conn, []byte) error { return nil }
func (nopDispatcher) Disconnect(relay.Conn)                {}

// attach registers a pump-less client directly, bypassing Run.
func attach(h *Hub, addr string) *Client {
	c := NewClient(nil, h, nopDispatcher{}, addr, ClientConfig{})
	h.mutex.Lock()
	h.clients[c] = true
	h.mutex.Unlock()
	return c
}

func drain(c *Client) []string {
	var frames []string
	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return frames
			}
			frames = append(frames, string(frame))
		default:
			return frames
		}
	}
}

func TestNewHub(t *testing.T) {
	h := NewHub(nil)

	require.NotNil(t, h)
	assert.Zero(t, h.ClientCount())
	assert.Zero(t, h.RoomSize("room1"))
}

func TestHub_BroadcastExceptSkipsSender(t *testing.T) {
	h := NewHub(nil)
	alice, bob, carol := attach(h, "alice"), attach(h, "bob"), attach(h, "carol")
	outsider := attach(h, "outsider")
	for _, c := range []*Client{alice, bob, carol} {
		h.Subscribe(c, "room1")
	}
	h.Subscribe(outsider, "room2")

	h.BroadcastExcept("room1", alice, []byte("hello"))

	assert.Empty(t, drain(alice))
	assert.Equal(t, []string{"hello"}, drain(bob))
	assert.Equal(t, []string{"hello"}, drain(carol))
	assert.Empty(t, drain(outsider))
}

func TestHub_BroadcastIncludesEveryMember(t *testing.T) {
	h := NewHub(nil)
	alice, bob := attach(h, "alice"), attach(h, "bob")
	h.Subscribe(alice, "room1")
	h.Subscribe(bob, "room1")
	h.Subscribe(bob, "room1")

	h.Broadcast("room1", []byte("wipe"))

	assert.Equal(t, 2, h.RoomSize("room1"))
	assert.Equal(t, []string{"wipe"}, drain(alice))
	assert.Equal(t, []string{"wipe"}, drain(bob))
}

func TestHub_SendIsUnicast(t *testing.T) {
	h := NewHub(nil)
	alice, bob := attach(h, "alice"), attach(h, "bob")
	h.Subscribe(alice, "room1")
	h.Subscribe(bob, "room1")

	h.Send(bob, []byte("ack"))

	assert.Empty(t, drain(alice))
	assert.Equal(t, []string{"ack"}, drain(bob))
}

func TestHub_SubscribeIgnoresUnregisteredClient(t *testing.T) {
	h := NewHub(nil)
	stranger := NewClient(nil, h, nopDispatcher{}, "stranger", ClientConfig{})

	h.Subscribe(stranger, "room1")
	h.Broadcast("room1", []byte("x"))

	assert.Zero(t, h.RoomSize("room1"))
	assert.Empty(t, drain(stranger))
}

func TestHub_FullBufferDropsClient(t *testing.T) {
	h := NewHub(nil)
	slow, fast := attach(h, "slow"), attach(h, "fast")
	h.Subscribe(slow, "room1")
	h.Subscribe(fast, "room1")

	for i := 0; i < sendBufferSize; i++ {
		h.Send(slow, []byte(fmt.Sprintf("%d", i)))
	}
	h.Broadcast("room1", []byte("overflow"))

	assert.Equal(t, 1, h.ClientCount())
	assert.Equal(t, 1, h.RoomSize("room1"))
	assert.Equal(t, []string{"overflow"}, drain(fast))

	frames := drain(slow)
	assert.Len(t, frames, sendBufferSize)
	_, open := <-slow.send
	assert.False(t, open, "dropped client's send channel must be closed")
}

func TestHub_UnregisterLeavesRooms(t *testing.T) {
	h := NewHub(nil)
	go h.Run()
	defer func() { require.NoError(t, h.Shutdown(time.Second)) }()

	alice, bob := attach(h, "alice"), attach(h, "bob")
	h.Subscribe(alice, "room1")
	h.Subscribe(bob, "room1")

	h.unregisterClient(alice)

	require.Eventually(t, func() bool { return h.RoomSize("room1") == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.ClientCount())

	h.Broadcast("room1", []byte("still here"))
	assert.Equal(t, []string{"still here"}, drain(bob))
}

func TestHub_RegisterAfterShutdownFails(t *testing.T) {
	h := NewHub(nil)
	go h.Run()
	require.NoError(t, h.Shutdown(time.Second))

	c := NewClient(nil, h, nopDispatcher{}, "late", ClientConfig{})
	assert.False(t, h.Register(c))
}
