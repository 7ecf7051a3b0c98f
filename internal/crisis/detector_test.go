package crisis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect_ExplicitSelfHarm(t *testing.T) {
	d := New()
	result := d.Detect("I don't want to be alive anymore")

	require.True(t, result.IsCrisis)
	assert.Equal(t, CategorySelfHarm, result.CrisisCategory)
	assert.NotEmpty(t, result.MatchedPatterns)
	assert.GreaterOrEqual(t, result.Confidence, 0.9)
}

func TestDetect_SafeText(t *testing.T) {
	d := New()
	for _, text := range []string{
		"I've been struggling with staying organized and managing my time",
		"this deadline is killing me, ha",
		"any tips for getting better at time management?",
		"",
		"   ",
	} {
		result := d.Detect(text)
		assert.False(t, result.IsCrisis, "text %q should be safe", text)
	}
}

func TestDetect_LeetspeakNormalization(t *testing.T) {
	d := New()
	assert.True(t, d.Detect("i want to d1e").IsCrisis)
	assert.True(t, d.Detect("su1c1dal thoughts").IsCrisis)
}

func TestDetect_SpacedLettersCollapse(t *testing.T) {
	d := New()
	assert.True(t, d.Detect("going to k i l l m y s e l f").IsCrisis)
}

func TestDetect_ViolenceCategory(t *testing.T) {
	d := New()
	result := d.Detect("I'm going to shoot up the place")
	require.True(t, result.IsCrisis)
	assert.Equal(t, CategoryViolence, result.CrisisCategory)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestDetect_HighestSeverityCategoryWins(t *testing.T) {
	d := New()
	// Matches both mental_health_crisis ("can't go on", 0.8) and self_harm
	// ("want to die", 0.95); the higher-severity category is reported.
	result := d.Detect("I can't go on, I just want to die")
	require.True(t, result.IsCrisis)
	assert.Equal(t, CategorySelfHarm, result.CrisisCategory)
	assert.Len(t, result.MatchedPatterns, 2)
}

func TestIsSafe(t *testing.T) {
	d := New()
	assert.True(t, d.IsSafe("looking for productivity advice"))
	assert.False(t, d.IsSafe("I want to die"))
}
