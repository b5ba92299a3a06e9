package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nemark/chat-server/pkg/types"
)

func createTestMessage(t *testing.T, s *Store, conv Conversation, content string, clientMsgID *string) CreateMessageResult {
	t.Helper()
	res, err := s.CreateMessage(context.Background(), CreateMessageParams{
		ID:              types.NewID(),
		ConversationKey: conv.ConversationKey,
		ConversationID:  conv.ConversationID,
		SenderType:      SenderVisitor,
		SenderID:        conv.VisitorID,
		Content:         content,
		ClientMsgID:     clientMsgID,
	})
	require.NoError(t, err)
	return res
}

func TestCreateMessage_AssignsSequentialSeqs(t *testing.T) {
	s := newTestStore(t)
	widgetKey := seedWidget(t, s, "site-a", "")
	conv := seedConversation(t, s, widgetKey, "v1")

	for i := 1; i <= 3; i++ {
		res := createTestMessage(t, s, conv, fmt.Sprintf("msg %d", i), nil)
		require.False(t, res.IsDuplicate)
		require.Equal(t, int64(i), res.Message.Seq)
	}
}

func TestCreateMessage_IdempotentRetry(t *testing.T) {
	s := newTestStore(t)
	widgetKey := seedWidget(t, s, "site-a", "")
	conv := seedConversation(t, s, widgetKey, "v1")

	clientMsgID := "abc"
	first := createTestMessage(t, s, conv, "hello", &clientMsgID)
	require.False(t, first.IsDuplicate)
	require.Equal(t, int64(1), first.Message.Seq)

	second := createTestMessage(t, s, conv, "hello", &clientMsgID)
	require.True(t, second.IsDuplicate)
	require.Equal(t, first.Message.Seq, second.Message.Seq)
	require.Equal(t, first.Message.ID, second.Message.ID)

	count, err := s.CountMessages(context.Background(), conv.ConversationKey)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestCreateMessage_ConcurrentRetries(t *testing.T) {
	s := newTestStore(t)
	widgetKey := seedWidget(t, s, "site-a", "")
	conv := seedConversation(t, s, widgetKey, "v1")

	const n = 8
	clientMsgID := "retry-key"
	results := make(chan CreateMessageResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.CreateMessage(context.Background(), CreateMessageParams{
				ID:              types.NewID(),
				ConversationKey: conv.ConversationKey,
				ConversationID:  conv.ConversationID,
				SenderType:      SenderVisitor,
				SenderID:        conv.VisitorID,
				Content:         "hello",
				ClientMsgID:     &clientMsgID,
			})
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	var firstID string
	var firstSeq int64
	for res := range results {
		if firstID == "" {
			firstID = res.Message.ID
			firstSeq = res.Message.Seq
			continue
		}
		require.Equal(t, firstID, res.Message.ID)
		require.Equal(t, firstSeq, res.Message.Seq)
	}

	count, err := s.CountMessages(context.Background(), conv.ConversationKey)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestGetMessagePage_LoadOlder(t *testing.T) {
	s := newTestStore(t)
	widgetKey := seedWidget(t, s, "site-a", "")
	conv := seedConversation(t, s, widgetKey, "v1")
	ctx := context.Background()

	for _, text := range []string{"hi", "there", "!"} {
		createTestMessage(t, s, conv, text, nil)
	}

	page, err := s.GetMessagePage(ctx, conv.ConversationKey, 2, nil)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, int64(2), page.Items[0].Seq)
	require.Equal(t, "there", page.Items[0].Content)
	require.Equal(t, int64(3), page.Items[1].Seq)
	require.Equal(t, "!", page.Items[1].Content)
	require.NotNil(t, page.NextCursor)
	require.Equal(t, int64(2), *page.NextCursor)

	page, err = s.GetMessagePage(ctx, conv.ConversationKey, 2, page.NextCursor)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, int64(1), page.Items[0].Seq)
	require.Equal(t, "hi", page.Items[0].Content)
	require.Nil(t, page.NextCursor)
}

func TestGetMessagePage_Completeness(t *testing.T) {
	s := newTestStore(t)
	widgetKey := seedWidget(t, s, "site-a", "")
	conv := seedConversation(t, s, widgetKey, "v1")
	ctx := context.Background()

	const m = 7
	for i := 1; i <= m; i++ {
		createTestMessage(t, s, conv, fmt.Sprintf("msg %d", i), nil)
	}

	var pages [][]Message
	var cursor *int64
	for {
		page, err := s.GetMessagePage(ctx, conv.ConversationKey, 3, cursor)
		require.NoError(t, err)
		pages = append(pages, page.Items)
		if page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}

	// Pages arrive newest first; reversing page order reconstructs 1..m.
	var all []Message
	for i := len(pages) - 1; i >= 0; i-- {
		all = append(all, pages[i]...)
	}
	require.Len(t, all, m)
	for i, msg := range all {
		require.Equal(t, int64(i+1), msg.Seq, "position %d", i)
	}
}

func TestGetMessagePage_StableUnderInserts(t *testing.T) {
	s := newTestStore(t)
	widgetKey := seedWidget(t, s, "site-a", "")
	conv := seedConversation(t, s, widgetKey, "v1")
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		createTestMessage(t, s, conv, fmt.Sprintf("msg %d", i), nil)
	}

	page, err := s.GetMessagePage(ctx, conv.ConversationKey, 2, nil)
	require.NoError(t, err)
	cursor := page.NextCursor

	// New arrivals must not shift the older window.
	createTestMessage(t, s, conv, "new arrival", nil)

	older, err := s.GetMessagePage(ctx, conv.ConversationKey, 2, cursor)
	require.NoError(t, err)
	require.Len(t, older.Items, 2)
	require.Equal(t, int64(1), older.Items[0].Seq)
	require.Equal(t, int64(2), older.Items[1].Seq)
}
