// Package chat holds the in-memory state of every active room: the Registry
// keyed by invitation identifier and the Sweeper that evicts idle rooms.
package chat

import (
	"slices"
	"time"

	"github.com/samber/lo"
)

// MaxMessages is the retention cap per chat. The oldest message is dropped
// once a new one would exceed it.
const MaxMessages = 100

// Message is a single relayed text payload as retained by the server.
type Message struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Body      string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// Chat is the server-side state of one room.
type Chat struct {
	InviteID     string
	Participants map[string]struct{}
	Messages     []Message
	CreatedAt    time.Time
}

func newChat(inviteID string, now time.Time) *Chat {
	return &Chat{
		InviteID:     inviteID,
		Participants: make(map[string]struct{}),
		CreatedAt:    now,
	}
}

// Aliases returns the participant aliases in lexical order.
func (c Chat) Aliases() []string {
	aliases := lo.Keys(c.Participants)
	slices.Sort(aliases)
	return aliases
}

// LastActivity is the timestamp of the newest message, or CreatedAt when the
// chat has none.
func (c Chat) LastActivity() time.Time {
	if len(c.Messages) == 0 {
		return c.CreatedAt
	}
	return time.UnixMilli(c.Messages[len(c.Messages)-1].Timestamp)
}

// IdleFor reports whether the chat has seen no activity for longer than d.
func (c Chat) IdleFor(now time.Time, d time.Duration) bool {
	return now.Sub(c.LastActivity()) > d
}

func (c *Chat) addParticipant(alias string) bool {
	if _, ok := c.Participants[alias]; ok {
		return false
	}
	c.Participants[alias] = struct{}{}
	return true
}

func (c *Chat) appendMessage(msg Message) {
	c.Messages = append(c.Messages, msg)
	if overflow := len(c.Messages) - MaxMessages; overflow > 0 {
		c.Messages = slices.Delete(c.Messages, 0, overflow)
	}
}

// clone detaches the copy from the registry's internal maps and slices.
func (c *Chat) clone() Chat {
	cp := *c
	cp.Participants = make(map[string]struct{}, len(c.Participants))
	for alias := range c.Participants {
		cp.Participants[alias] = struct{}{}
	}
	cp.Messages = slices.Clone(c.Messages)
	return cp
}
