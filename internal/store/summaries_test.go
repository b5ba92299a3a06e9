package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func applyUpdate(t *testing.T, s *Store, conversationKey, seq int64, preview string, isVisitor bool) {
	t.Helper()
	err := s.ApplySummaryUpdate(context.Background(), SummaryUpdateParams{
		ConversationKey: conversationKey,
		Seq:             seq,
		Preview:         preview,
		MessageRef:      preview + "-ref",
		IsVisitor:       isVisitor,
		At:              time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestSummary_MonotonicUnderReverseArrival(t *testing.T) {
	s := newTestStore(t)
	widgetKey := seedWidget(t, s, "site-a", "")
	conv := seedConversation(t, s, widgetKey, "v1")

	applyUpdate(t, s, conv.ConversationKey, 3, "third", true)
	applyUpdate(t, s, conv.ConversationKey, 2, "second", true)

	summary, err := s.GetSummary(context.Background(), conv.ConversationKey)
	require.NoError(t, err)
	require.Equal(t, int64(3), summary.LastMessageSeq)
	require.Equal(t, "third", summary.LastMessagePreview)
	require.Equal(t, "third-ref", summary.LastMessageRef)
	// Counts track every applied update, not just the winning one.
	require.Equal(t, int64(2), summary.MessageCount)
}

func TestSummary_Counts(t *testing.T) {
	s := newTestStore(t)
	widgetKey := seedWidget(t, s, "site-a", "")
	conv := seedConversation(t, s, widgetKey, "v1")

	applyUpdate(t, s, conv.ConversationKey, 1, "from visitor", true)
	applyUpdate(t, s, conv.ConversationKey, 2, "from staff", false)
	applyUpdate(t, s, conv.ConversationKey, 3, "visitor again", true)

	summary, err := s.GetSummary(context.Background(), conv.ConversationKey)
	require.NoError(t, err)
	require.Equal(t, int64(3), summary.MessageCount)
	require.Equal(t, int64(2), summary.VisitorMessageCount)
	require.Equal(t, int64(3), summary.LastMessageSeq)
	require.Equal(t, "visitor again", summary.LastMessagePreview)
}

func TestSummary_MissingRow(t *testing.T) {
	s := newTestStore(t)
	widgetKey := seedWidget(t, s, "site-a", "")
	conv := seedConversation(t, s, widgetKey, "v1")

	_, err := s.GetSummary(context.Background(), conv.ConversationKey)
	require.ErrorIs(t, err, ErrNotFound)
}
