package fanout

import (
	"sync"
	"time"
)

// typingTTL bounds how long a typing flag survives without a refresh, so a
// client that disconnects mid-keystroke does not leave a stuck indicator.
const typingTTL = 6 * time.Second

// TypingTracker holds the ephemeral per-conversation typing flags. Nothing
// here is persisted; entries expire on TTL and are swept in the background.
type TypingTracker struct {
	mu      sync.Mutex
	entries map[string]map[string]time.Time // conversationID -> memberKey -> expiry

	now  func() time.Time
	done chan struct{}
	once sync.Once
}

func NewTypingTracker() *TypingTracker {
	t := &TypingTracker{
		entries: make(map[string]map[string]time.Time),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go t.sweep()
	return t
}

// Set records or clears a member's typing flag for a conversation.
func (t *TypingTracker) Set(conversationID, memberKey string, isTyping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !isTyping {
		if members := t.entries[conversationID]; members != nil {
			delete(members, memberKey)
			if len(members) == 0 {
				delete(t.entries, conversationID)
			}
		}
		return
	}
	if t.entries[conversationID] == nil {
		t.entries[conversationID] = make(map[string]time.Time)
	}
	t.entries[conversationID][memberKey] = t.now().Add(typingTTL)
}

// Active lists members currently typing in a conversation.
func (t *TypingTracker) Active(conversationID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var out []string
	for member, expiry := range t.entries[conversationID] {
		if expiry.After(now) {
			out = append(out, member)
		}
	}
	return out
}

// ClearMember drops a member's flags across all conversations, used on
// disconnect.
func (t *TypingTracker) ClearMember(memberKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for conversationID, members := range t.entries {
		delete(members, memberKey)
		if len(members) == 0 {
			delete(t.entries, conversationID)
		}
	}
}

func (t *TypingTracker) sweep() {
	ticker := time.NewTicker(typingTTL)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.mu.Lock()
			now := t.now()
			for conversationID, members := range t.entries {
				for member, expiry := range members {
					if !expiry.After(now) {
						delete(members, member)
					}
				}
				if len(members) == 0 {
					delete(t.entries, conversationID)
				}
			}
			t.mu.Unlock()
		}
	}
}

func (t *TypingTracker) Close() {
	t.once.Do(func() { close(t.done) })
}
