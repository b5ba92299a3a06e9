package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocateSeq_StartsAtOne(t *testing.T) {
	s := newTestStore(t)
	widgetKey := seedWidget(t, s, "site-a", "")
	conv := seedConversation(t, s, widgetKey, "v1")

	seq, err := s.AllocateSeq(context.Background(), conv.ConversationKey)
	require.NoError(t, err)
	require.Equal(t, int64(1), seq)
}

func TestAllocateSeq_ConcurrentGapless(t *testing.T) {
	s := newTestStore(t)
	widgetKey := seedWidget(t, s, "site-a", "")
	conv := seedConversation(t, s, widgetKey, "v1")

	const n = 50
	seqs := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := s.AllocateSeq(context.Background(), conv.ConversationKey)
			if err != nil {
				t.Errorf("allocate: %v", err)
				return
			}
			seqs <- seq
		}()
	}
	wg.Wait()
	close(seqs)

	seen := make(map[int64]bool)
	for seq := range seqs {
		require.False(t, seen[seq], "duplicate seq %d", seq)
		seen[seq] = true
	}
	require.Len(t, seen, n)
	for i := int64(1); i <= n; i++ {
		require.True(t, seen[i], "missing seq %d", i)
	}
}

func TestAllocateSeq_IndependentPerConversation(t *testing.T) {
	s := newTestStore(t)
	widgetKey := seedWidget(t, s, "site-a", "")
	convA := seedConversation(t, s, widgetKey, "v1")
	convB := seedConversation(t, s, widgetKey, "v2")

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.AllocateSeq(ctx, convA.ConversationKey)
		require.NoError(t, err)
	}
	seq, err := s.AllocateSeq(ctx, convB.ConversationKey)
	require.NoError(t, err)
	require.Equal(t, int64(1), seq)
}

func TestAllocateSeqBatch(t *testing.T) {
	s := newTestStore(t)
	widgetKey := seedWidget(t, s, "site-a", "")
	conv := seedConversation(t, s, widgetKey, "v1")
	ctx := context.Background()

	start, end, err := s.AllocateSeqBatch(ctx, conv.ConversationKey, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), start)
	require.Equal(t, int64(10), end)

	// The next single allocation continues after the reserved range.
	seq, err := s.AllocateSeq(ctx, conv.ConversationKey)
	require.NoError(t, err)
	require.Equal(t, int64(11), seq)
}

func TestPeekSeq(t *testing.T) {
	s := newTestStore(t)
	widgetKey := seedWidget(t, s, "site-a", "")
	conv := seedConversation(t, s, widgetKey, "v1")
	ctx := context.Background()

	peeked, err := s.PeekSeq(ctx, conv.ConversationKey)
	require.NoError(t, err)
	require.Equal(t, int64(0), peeked)

	_, err = s.AllocateSeq(ctx, conv.ConversationKey)
	require.NoError(t, err)

	peeked, err = s.PeekSeq(ctx, conv.ConversationKey)
	require.NoError(t, err)
	require.Equal(t, int64(1), peeked)
}
