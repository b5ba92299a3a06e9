package fanout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTrackerAt(now time.Time) (*TypingTracker, *time.Time) {
	clock := now
	t := &TypingTracker{
		entries: make(map[string]map[string]time.Time),
		now:     func() time.Time { return clock },
		done:    make(chan struct{}),
	}
	// No sweep goroutine; expiry checks happen on read.
	return t, &clock
}

func TestTyping_SetAndClear(t *testing.T) {
	tracker, _ := newTrackerAt(time.Now())

	tracker.Set("conv-1", "visitor:v1", true)
	require.Equal(t, []string{"visitor:v1"}, tracker.Active("conv-1"))

	tracker.Set("conv-1", "visitor:v1", false)
	require.Empty(t, tracker.Active("conv-1"))
}

func TestTyping_Expires(t *testing.T) {
	tracker, clock := newTrackerAt(time.Now())

	tracker.Set("conv-1", "visitor:v1", true)
	*clock = clock.Add(typingTTL + time.Second)

	require.Empty(t, tracker.Active("conv-1"))
}

func TestTyping_RefreshExtendsTTL(t *testing.T) {
	tracker, clock := newTrackerAt(time.Now())

	tracker.Set("conv-1", "visitor:v1", true)
	*clock = clock.Add(typingTTL - time.Second)
	tracker.Set("conv-1", "visitor:v1", true)
	*clock = clock.Add(typingTTL - time.Second)

	require.Len(t, tracker.Active("conv-1"), 1, "refresh should extend the flag")
}

func TestTyping_ClearMember(t *testing.T) {
	tracker, _ := newTrackerAt(time.Now())

	tracker.Set("conv-1", "staff:s1", true)
	tracker.Set("conv-2", "staff:s1", true)
	tracker.Set("conv-2", "visitor:v1", true)

	tracker.ClearMember("staff:s1")

	require.Empty(t, tracker.Active("conv-1"))
	require.Equal(t, []string{"visitor:v1"}, tracker.Active("conv-2"))
}
