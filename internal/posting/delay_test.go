package posting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypingDelay_Floor(t *testing.T) {
	for i := 0; i < 20; i++ {
		assert.GreaterOrEqual(t, typingDelay(5, ProfileFast), 3*time.Second)
	}
}

func TestReadingDelay_Floor(t *testing.T) {
	for i := 0; i < 20; i++ {
		assert.GreaterOrEqual(t, readingDelay(10, ProfileFast), 5*time.Second)
	}
}

func TestTypingDelay_GrowsWithLength(t *testing.T) {
	// 2000 words at <=90wpm is over 13 minutes of typing; even the fastest
	// samples of a short reply stay far below that.
	short := typingDelay(100, ProfileAverage)
	long := typingDelay(10000, ProfileAverage)
	assert.Greater(t, long, short)
}

func TestPrePostDelay_CombinesComponents(t *testing.T) {
	for i := 0; i < 20; i++ {
		d := PrePostDelay(500, 300, ProfileAverage)
		// reading floor 5s + typing floor 3s + navigation >=3s + review >=2s,
		// minus the 15% jitter bound.
		assert.GreaterOrEqual(t, d, time.Duration(float64(13*time.Second)*0.85))
	}
}
