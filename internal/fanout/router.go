// Package fanout routes realtime events to live connections through a
// topic subscription model, independent of the underlying transport.
package fanout

import (
	"fmt"
	"sync"

	"github.com/nemark/chat-server/internal/logger"
)

// Subscriber is one live connection able to receive events. Implementations
// must make Emit safe for concurrent use and non-blocking on slow peers.
type Subscriber interface {
	ID() string
	Emit(event string, payload any)
}

// ConversationTopic is the topic carrying one visitor's conversation.
func ConversationTopic(siteKey, visitorID string) string {
	return fmt.Sprintf("conversation:%s:%s", siteKey, visitorID)
}

// StaffTopic is the aggregate topic all staff monitoring a site share.
func StaffTopic(siteKey string) string {
	return fmt.Sprintf("site:%s:staff", siteKey)
}

// Router tracks which connections subscribe to which topics and publishes
// events to them. It holds no transport state beyond the Subscriber handle.
type Router struct {
	mu sync.RWMutex
	// topics maps topic -> subscriber id -> subscriber.
	topics map[string]map[string]Subscriber
	// memberships maps subscriber id -> set of topics, for teardown.
	memberships map[string]map[string]struct{}
}

func NewRouter() *Router {
	return &Router{
		topics:      make(map[string]map[string]Subscriber),
		memberships: make(map[string]map[string]struct{}),
	}
}

// Subscribe adds the connection to a topic. Subscribing twice is a no-op.
func (r *Router) Subscribe(topic string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.topics[topic] == nil {
		r.topics[topic] = make(map[string]Subscriber)
	}
	r.topics[topic][sub.ID()] = sub

	if r.memberships[sub.ID()] == nil {
		r.memberships[sub.ID()] = make(map[string]struct{})
	}
	r.memberships[sub.ID()][topic] = struct{}{}
}

// Unsubscribe removes the connection from one topic.
func (r *Router) Unsubscribe(topic string, subscriberID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(topic, subscriberID)
}

// Disconnect removes the connection from every topic it joined.
func (r *Router) Disconnect(subscriberID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for topic := range r.memberships[subscriberID] {
		r.removeLocked(topic, subscriberID)
	}
}

func (r *Router) removeLocked(topic, subscriberID string) {
	if subs := r.topics[topic]; subs != nil {
		delete(subs, subscriberID)
		if len(subs) == 0 {
			delete(r.topics, topic)
		}
	}
	if topics := r.memberships[subscriberID]; topics != nil {
		delete(topics, topic)
		if len(topics) == 0 {
			delete(r.memberships, subscriberID)
		}
	}
}

// Publish emits the event to every subscriber of the topic. skipID mutes the
// originating connection so senders do not echo to themselves; pass "" to
// deliver to everyone. Emission happens outside the lock on a snapshot, so a
// connection subscribed mid-publish may miss the event (clients reconcile by
// seq on the next history fetch).
func (r *Router) Publish(topic, event string, payload any, skipID string) {
	r.mu.RLock()
	subs := r.topics[topic]
	snapshot := make([]Subscriber, 0, len(subs))
	for _, sub := range subs {
		if skipID != "" && sub.ID() == skipID {
			continue
		}
		snapshot = append(snapshot, sub)
	}
	r.mu.RUnlock()

	for _, sub := range snapshot {
		sub.Emit(event, payload)
	}
	if len(snapshot) > 0 {
		logger.Tracef("fanout: published %s to %d subscribers on %s", event, len(snapshot), topic)
	}
}

// Topics returns the topics a connection is subscribed to.
func (r *Router) Topics(subscriberID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.memberships[subscriberID]))
	for topic := range r.memberships[subscriberID] {
		out = append(out, topic)
	}
	return out
}

// SubscriberCount reports how many connections a topic currently has.
func (r *Router) SubscriberCount(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topic])
}
