package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/trungkh/alexa-emulator/internal/ringbuf"
)

func TestLiveWritesEveryFrame(t *testing.T) {
	c := NewController(ringbuf.New(64))
	require.Equal(t, Live, c.Mode())

	c.AcceptCallback([]int16{1, 2, 3, 4})
	assert.Equal(t, 4, c.Ring().ReadAvailable())
}

func TestLiveDropsOnOverflow(t *testing.T) {
	c := NewController(ringbuf.New(4))
	c.AcceptCallback([]int16{1, 2, 3, 4, 5, 6})
	assert.Equal(t, 0, c.Ring().ReadAvailable(), "oversized block dropped whole, not partially written")
}

func TestRecordingStopsAtBudget(t *testing.T) {
	c := NewController(ringbuf.New(256))
	c.Lock()
	c.Ring().Flush()
	c.EnterRecording(10)
	c.Unlock()

	c.AcceptCallback(make([]int16, 6))
	assert.Equal(t, Recording, c.Mode())
	assert.Equal(t, int64(4), c.Remaining())

	c.AcceptCallback(make([]int16, 6))
	assert.Equal(t, Stopped, c.Mode())
	assert.Equal(t, int64(0), c.Remaining())
	assert.Equal(t, 10, c.Ring().ReadAvailable())
}

func TestStoppedWritesNothing(t *testing.T) {
	c := NewController(ringbuf.New(64))
	c.Lock()
	c.EnterRecording(0)
	c.Unlock()
	c.AcceptCallback(make([]int16, 4))
	assert.Equal(t, Stopped, c.Mode())

	c.AcceptCallback(make([]int16, 4))
	assert.Equal(t, 0, c.Ring().ReadAvailable())
}

// TestModeTransitionGraph verifies invariant 4: LIVE -> RECORDING -> STOPPED
// -> LIVE with no other edges, for arbitrary sequences of callback frames
// and budgets.
func TestModeTransitionGraph(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := NewController(ringbuf.New(4096))
		seen := []Mode{c.Mode()}

		budget := int64(rapid.IntRange(0, 50).Draw(t, "budget"))
		c.Lock()
		c.Ring().Flush()
		c.EnterRecording(budget)
		c.Unlock()
		seen = append(seen, c.Mode())

		for c.Mode() == Recording {
			n := rapid.IntRange(1, 20).Draw(t, "frameCount")
			c.AcceptCallback(make([]int16, n))
			seen = append(seen, c.Mode())
		}
		c.EnterLive()
		seen = append(seen, c.Mode())

		for i := 1; i < len(seen); i++ {
			prev, cur := seen[i-1], seen[i]
			if prev == cur {
				continue
			}
			valid := (prev == Live && cur == Recording) ||
				(prev == Recording && cur == Stopped) ||
				(prev == Stopped && cur == Live)
			require.True(t, valid, "invalid transition %s -> %s", prev, cur)
		}
	})
}
