package chat

import (
	"context"
	"sync"

	"github.com/nemark/chat-server/internal/logger"
	"github.com/nemark/chat-server/internal/store"
)

const projectorQueueSize = 256

// Projector maintains the per-conversation summary rows asynchronously so
// message ingestion never waits on summary writes. Updates for one
// conversation are applied in order on a dedicated goroutine; updates across
// conversations run independently. The guarded upsert in the store keeps the
// summary correct even when updates arrive out of order after a drop.
type Projector struct {
	store SummaryStore

	mu     sync.Mutex
	queues map[int64]*projectorQueue
	closed bool
	wg     sync.WaitGroup
}

type projectorQueue struct {
	events chan store.SummaryUpdateParams
}

func NewProjector(st SummaryStore) *Projector {
	return &Projector{
		store:  st,
		queues: make(map[int64]*projectorQueue),
	}
}

// Enqueue hands one summary update to the conversation's queue. When the
// queue is full the update is dropped with a warning; a later update will
// bring last_message_* current again, counts drift by the dropped amount.
func (p *Projector) Enqueue(update store.SummaryUpdateParams) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	q, ok := p.queues[update.ConversationKey]
	if !ok {
		q = &projectorQueue{events: make(chan store.SummaryUpdateParams, projectorQueueSize)}
		p.queues[update.ConversationKey] = q
		p.wg.Add(1)
		go p.loop(update.ConversationKey, q)
	}
	p.mu.Unlock()

	select {
	case q.events <- update:
	default:
		logger.Warnf("projector: queue full, dropping summary update conversation=%d seq=%d",
			update.ConversationKey, update.Seq)
	}
}

func (p *Projector) loop(conversationKey int64, q *projectorQueue) {
	defer p.wg.Done()
	for update := range q.events {
		if err := p.store.ApplySummaryUpdate(context.Background(), update); err != nil {
			logger.Errorf("projector: summary update failed conversation=%d seq=%d: %v",
				conversationKey, update.Seq, err)
		}
	}
}

// Close stops accepting updates and waits for queued ones to flush.
func (p *Projector) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, q := range p.queues {
		close(q.events)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
