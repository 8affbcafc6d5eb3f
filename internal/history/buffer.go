// Package history keeps the most recent messages of each monitored channel in
// memory so live scoring can see the surrounding conversation without a
// round-trip to the platform.
package history

import (
	"sync"

	"github.com/whisper/modbot/internal/platform"
)

// MaxMessages is the number of recent messages retained per channel.
const MaxMessages = 15

// Buffer stores the last MaxMessages messages per channel. It is
// goroutine-safe and uses a ring buffer internally.
type Buffer struct {
	mu    sync.RWMutex
	rings map[string]*ring // channelID -> ring buffer
}

// ring is a fixed-size circular buffer of messages.
type ring struct {
	items []platform.Message
	pos   int
	count int
}

// NewBuffer creates a new empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{rings: make(map[string]*ring)}
}

// Add appends a message to its channel's ring buffer. If the buffer is full,
// the oldest message is overwritten.
func (b *Buffer) Add(msg platform.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rings[msg.ChannelID]
	if !ok {
		r = &ring{items: make([]platform.Message, MaxMessages)}
		b.rings[msg.ChannelID] = r
	}

	r.items[r.pos] = msg
	r.pos = (r.pos + 1) % MaxMessages
	if r.count < MaxMessages {
		r.count++
	}
}

// Get returns the buffered messages for a channel in chronological order
// (oldest first). Returns an empty slice if the channel has no buffer.
func (b *Buffer) Get(channelID string) []platform.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.rings[channelID]
	if !ok {
		return []platform.Message{}
	}
	return r.ordered()
}

func (r *ring) ordered() []platform.Message {
	out := make([]platform.Message, r.count)
	// The oldest message is at position (pos - count) mod MaxMessages.
	start := (r.pos - r.count + MaxMessages) % MaxMessages
	for i := 0; i < r.count; i++ {
		out[i] = r.items[(start+i)%MaxMessages]
	}
	return out
}

// Remove deletes a message from its channel's buffer, preserving the order
// of the rest. Used when the platform reports a deletion.
func (b *Buffer) Remove(channelID, messageID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rings[channelID]
	if !ok {
		return
	}
	fresh := &ring{items: make([]platform.Message, MaxMessages)}
	for _, m := range r.ordered() {
		if m.ID == messageID {
			continue
		}
		fresh.items[fresh.pos] = m
		fresh.pos = (fresh.pos + 1) % MaxMessages
		fresh.count++
	}
	b.rings[channelID] = fresh
}

// Drop deletes the whole buffer for a channel.
func (b *Buffer) Drop(channelID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.rings, channelID)
}
