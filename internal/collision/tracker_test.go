package collision

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTracker(t *testing.T) {
	tracker := NewTracker()

	require.NotNil(t, tracker)
	require.Equal(t, 0, tracker.Count())
	require.False(t, tracker.HasCollision())
	require.Empty(t, tracker.GetKeys())
}

func TestTracker_TrackKey_Success(t *testing.T) {
	tracker := NewTracker()

	err := tracker.TrackKey("user:1|name", 0x1234567890abcdef)
	require.NoError(t, err)
	require.Equal(t, 1, tracker.Count())
	require.False(t, tracker.HasCollision())
	require.Equal(t, []string{"user:1|name"}, tracker.GetKeys())

	err = tracker.TrackKey("user:1|email", 0xfedcba0987654321)
	require.NoError(t, err)
	require.Equal(t, 2, tracker.Count())
	require.False(t, tracker.HasCollision())
}

func TestTracker_TrackKey_EmptyKey(t *testing.T) {
	tracker := NewTracker()

	err := tracker.TrackKey("", 0x1234567890abcdef)
	require.ErrorIs(t, err, ErrInvalidKey)
	require.Equal(t, 0, tracker.Count())
}

func TestTracker_TrackKey_Collision(t *testing.T) {
	tracker := NewTracker()

	err := tracker.TrackKey("user:1|name", 0x1234567890abcdef)
	require.NoError(t, err)
	require.False(t, tracker.HasCollision())

	err = tracker.TrackKey("user:2|name", 0x1234567890abcdef)
	require.NoError(t, err)
	require.True(t, tracker.HasCollision())
	require.Equal(t, 2, tracker.Count())
}

func TestTracker_TrackKey_Duplicate(t *testing.T) {
	tracker := NewTracker()

	err := tracker.TrackKey("user:1|name", 0x1234567890abcdef)
	require.NoError(t, err)

	err = tracker.TrackKey("user:1|name", 0x1234567890abcdef)
	require.ErrorIs(t, err, ErrKeyAlreadyTracked)
	require.False(t, tracker.HasCollision())
	require.Equal(t, 1, tracker.Count())
}

func TestTracker_TrackHash_Collision(t *testing.T) {
	tracker := NewTracker()

	require.NoError(t, tracker.TrackHash(0x1234567890abcdef))
	require.ErrorIs(t, tracker.TrackHash(0x1234567890abcdef), ErrHashCollision)
}

func TestTracker_GetKeys_PreservesOrder(t *testing.T) {
	tracker := NewTracker()

	keys := []struct {
		key  string
		hash uint64
	}{
		{"a|1", 0x0001},
		{"a|2", 0x0002},
		{"a|3", 0x0003},
		{"a|4", 0x0004},
	}
	for _, k := range keys {
		require.NoError(t, tracker.TrackKey(k.key, k.hash))
	}

	got := tracker.GetKeys()
	require.Equal(t, []string{"a|1", "a|2", "a|3", "a|4"}, got)
}

func TestTracker_Reset(t *testing.T) {
	tracker := NewTracker()
	_ = tracker.TrackKey("a|1", 0x1)
	_ = tracker.TrackKey("a|2", 0x2)
	require.Equal(t, 2, tracker.Count())

	tracker.Reset()

	require.Equal(t, 0, tracker.Count())
	require.False(t, tracker.HasCollision())
	require.Empty(t, tracker.GetKeys())

	require.NoError(t, tracker.TrackKey("a|3", 0x3))
	require.Equal(t, 1, tracker.Count())
}

func TestTracker_Reset_PreservesCapacity(t *testing.T) {
	tracker := NewTracker()
	for i := 0; i < 100; i++ {
		_ = tracker.TrackKey("k", uint64(i))
	}
	initialCap := cap(tracker.keysList)

	tracker.Reset()

	require.Equal(t, 0, len(tracker.keysList))
	require.GreaterOrEqual(t, cap(tracker.keysList), initialCap)
}
