package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnreadCount_NoPointer(t *testing.T) {
	s := newTestStore(t)
	widgetKey := seedWidget(t, s, "site-a", "")
	conv := seedConversation(t, s, widgetKey, "v1")
	ctx := context.Background()

	applyUpdate(t, s, conv.ConversationKey, 5, "latest", true)

	unread, err := s.UnreadCount(ctx, conv.ConversationKey, "staff:s1")
	require.NoError(t, err)
	require.Equal(t, int64(5), unread, "no pointer means nothing read")
}

func TestUnreadCount_AfterMarkSeen(t *testing.T) {
	s := newTestStore(t)
	widgetKey := seedWidget(t, s, "site-a", "")
	conv := seedConversation(t, s, widgetKey, "v1")
	ctx := context.Background()

	applyUpdate(t, s, conv.ConversationKey, 5, "latest", true)

	require.NoError(t, s.MarkSeen(ctx, conv.ConversationKey, "staff:s1", 3))
	unread, err := s.UnreadCount(ctx, conv.ConversationKey, "staff:s1")
	require.NoError(t, err)
	require.Equal(t, int64(2), unread)

	// Seen past the last message clamps at zero.
	require.NoError(t, s.MarkSeen(ctx, conv.ConversationKey, "staff:s1", 9))
	unread, err = s.UnreadCount(ctx, conv.ConversationKey, "staff:s1")
	require.NoError(t, err)
	require.Equal(t, int64(0), unread)
}

func TestMarkSeen_DragsDelivered(t *testing.T) {
	s := newTestStore(t)
	widgetKey := seedWidget(t, s, "site-a", "")
	conv := seedConversation(t, s, widgetKey, "v1")
	ctx := context.Background()

	require.NoError(t, s.MarkSeen(ctx, conv.ConversationKey, "visitor:v1", 4))

	ptr, err := s.GetReadPointer(ctx, conv.ConversationKey, "visitor:v1")
	require.NoError(t, err)
	require.Equal(t, int64(4), ptr.LastSeenSeq)
	require.Equal(t, int64(4), ptr.LastDeliveredSeq)
}

func TestReadPointers_NeverRegress(t *testing.T) {
	s := newTestStore(t)
	widgetKey := seedWidget(t, s, "site-a", "")
	conv := seedConversation(t, s, widgetKey, "v1")
	ctx := context.Background()

	require.NoError(t, s.MarkDelivered(ctx, conv.ConversationKey, "visitor:v1", 7))
	require.NoError(t, s.MarkSeen(ctx, conv.ConversationKey, "visitor:v1", 5))

	// Stale updates are no-ops.
	require.NoError(t, s.MarkDelivered(ctx, conv.ConversationKey, "visitor:v1", 2))
	require.NoError(t, s.MarkSeen(ctx, conv.ConversationKey, "visitor:v1", 1))

	ptr, err := s.GetReadPointer(ctx, conv.ConversationKey, "visitor:v1")
	require.NoError(t, err)
	require.Equal(t, int64(7), ptr.LastDeliveredSeq)
	require.Equal(t, int64(5), ptr.LastSeenSeq)
}

func TestReadPointers_IndependentPerMember(t *testing.T) {
	s := newTestStore(t)
	widgetKey := seedWidget(t, s, "site-a", "")
	conv := seedConversation(t, s, widgetKey, "v1")
	ctx := context.Background()

	applyUpdate(t, s, conv.ConversationKey, 4, "latest", true)

	require.NoError(t, s.MarkSeen(ctx, conv.ConversationKey, "staff:s1", 4))
	require.NoError(t, s.MarkSeen(ctx, conv.ConversationKey, "staff:s2", 1))

	unread1, err := s.UnreadCount(ctx, conv.ConversationKey, "staff:s1")
	require.NoError(t, err)
	unread2, err := s.UnreadCount(ctx, conv.ConversationKey, "staff:s2")
	require.NoError(t, err)
	require.Equal(t, int64(0), unread1)
	require.Equal(t, int64(3), unread2)
}
