package chat

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Registry maps invitation identifiers to chats. It is process local and
// starts empty. A single RWMutex serialises every access; callers only ever
// receive detached copies.
type Registry struct {
	mu    sync.RWMutex
	chats map[string]*Chat
	clock clockwork.Clock
}

// NewRegistry creates an empty Registry stamping times from clock.
func NewRegistry(clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		chats: make(map[string]*Chat),
		clock: clock,
	}
}

// Join gets or creates the chat for inviteID and adds alias to its
// participants. It reports whether the chat was created by this call.
func (r *Registry) Join(inviteID, alias string) (created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.chats[inviteID]
	if !ok {
		c = newChat(inviteID, r.clock.Now())
		r.chats[inviteID] = c
		created = true
	}
	c.addParticipant(alias)
	return created
}

// AddMessage appends a message to an existing chat. Nothing is stored and
// false is returned when no chat exists for inviteID.
func (r *Registry) AddMessage(inviteID, sender, body string) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.chats[inviteID]
	if !ok {
		return Message{}, false
	}

	msg := Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Body:      body,
		Timestamp: r.clock.Now().UnixMilli(),
	}
	c.appendMessage(msg)
	return msg, true
}

// Get returns a copy of the chat for inviteID.
func (r *Registry) Get(inviteID string) (Chat, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.chats[inviteID]
	if !ok {
		return Chat{}, false
	}
	return c.clone(), true
}

// Delete removes the chat for inviteID and reports whether it existed.
func (r *Registry) Delete(inviteID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.chats[inviteID]; !ok {
		return false
	}
	delete(r.chats, inviteID)
	return true
}

// DeleteIf removes the chat for inviteID only if pred holds for its current
// state. The check and the removal happen under the same lock.
func (r *Registry) DeleteIf(inviteID string, pred func(Chat) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.chats[inviteID]
	if !ok || !pred(c.clone()) {
		return false
	}
	delete(r.chats, inviteID)
	return true
}

// Range calls fn with a copy of every chat until fn returns false. The
// registry is read-locked for the whole walk, so fn must not call back into
// the registry.
func (r *Registry) Range(fn func(Chat) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.chats {
		if !fn(c.clone()) {
			return
		}
	}
}

// Len returns the number of active chats.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chats)
}
