package fanout

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	id string

	mu     sync.Mutex
	events []emitted
}

type emitted struct {
	event   string
	payload any
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Emit(event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emitted{event: event, payload: payload})
}

func (f *fakeSubscriber) received() []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]emitted, len(f.events))
	copy(out, f.events)
	return out
}

func TestPublish_ReachesTopicSubscribers(t *testing.T) {
	r := NewRouter()
	visitor := &fakeSubscriber{id: "visitor-1"}
	agent := &fakeSubscriber{id: "agent-1"}
	other := &fakeSubscriber{id: "agent-2"}

	topic := ConversationTopic("site-a", "v1")
	r.Subscribe(topic, visitor)
	r.Subscribe(topic, agent)
	r.Subscribe(ConversationTopic("site-a", "v2"), other)

	r.Publish(topic, "message", "hello", "")

	require.Len(t, visitor.received(), 1)
	require.Len(t, agent.received(), 1)
	require.Empty(t, other.received())
}

func TestPublish_SkipsSender(t *testing.T) {
	r := NewRouter()
	sender := &fakeSubscriber{id: "sender"}
	receiver := &fakeSubscriber{id: "receiver"}

	topic := ConversationTopic("site-a", "v1")
	r.Subscribe(topic, sender)
	r.Subscribe(topic, receiver)

	r.Publish(topic, "message", "hello", "sender")

	require.Empty(t, sender.received())
	require.Len(t, receiver.received(), 1)
}

func TestStaffTopic_SharedAcrossConversations(t *testing.T) {
	r := NewRouter()
	agent := &fakeSubscriber{id: "agent"}
	r.Subscribe(StaffTopic("site-a"), agent)

	// Messages from different visitors reach the same aggregate topic.
	r.Publish(StaffTopic("site-a"), "message", "from v1", "")
	r.Publish(StaffTopic("site-a"), "message", "from v2", "")
	r.Publish(StaffTopic("site-b"), "message", "other site", "")

	require.Len(t, agent.received(), 2)
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	r := NewRouter()
	agent := &fakeSubscriber{id: "agent"}
	topic := ConversationTopic("site-a", "v1")

	r.Subscribe(topic, agent)
	r.Unsubscribe(topic, "agent")
	r.Publish(topic, "message", "hello", "")

	require.Empty(t, agent.received())
}

func TestDisconnect_TearsDownAllTopics(t *testing.T) {
	r := NewRouter()
	agent := &fakeSubscriber{id: "agent"}

	r.Subscribe(StaffTopic("site-a"), agent)
	r.Subscribe(ConversationTopic("site-a", "v1"), agent)
	r.Subscribe(ConversationTopic("site-a", "v2"), agent)

	require.Len(t, r.Topics("agent"), 3)

	r.Disconnect("agent")

	require.Empty(t, r.Topics("agent"))
	r.Publish(StaffTopic("site-a"), "message", "hello", "")
	require.Empty(t, agent.received())
}

func TestSubscribe_TwiceIsNoop(t *testing.T) {
	r := NewRouter()
	agent := &fakeSubscriber{id: "agent"}
	topic := StaffTopic("site-a")

	r.Subscribe(topic, agent)
	r.Subscribe(topic, agent)

	require.Equal(t, 1, r.SubscriberCount(topic))
	r.Publish(topic, "message", "hello", "")
	require.Len(t, agent.received(), 1, "no double delivery")
}

func TestRouter_ConcurrentSubscribePublish(t *testing.T) {
	r := NewRouter()
	topic := StaffTopic("site-a")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		sub := &fakeSubscriber{id: string(rune('a' + i))}
		go func() {
			defer wg.Done()
			r.Subscribe(topic, sub)
			r.Disconnect(sub.ID())
		}()
		go func() {
			defer wg.Done()
			r.Publish(topic, "message", "hello", "")
		}()
	}
	wg.Wait()
}
