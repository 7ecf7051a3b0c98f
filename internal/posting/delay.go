package posting

import (
	"math/rand"
	"time"
)

// WPMProfile names a typing/reading speed band a poster can be configured
// with, controlling the words-per-minute range delay shaping samples from.
type WPMProfile string

const (
	ProfileSlow    WPMProfile = "slow"
	ProfileAverage WPMProfile = "average"
	ProfileFast    WPMProfile = "fast"
)

var typingWPMRange = map[WPMProfile][2]float64{
	ProfileSlow:    {30, 50},
	ProfileAverage: {40, 70},
	ProfileFast:    {60, 90},
}

var readingWPMRange = map[WPMProfile][2]float64{
	ProfileSlow:    {100, 200},
	ProfileAverage: {200, 350},
	ProfileFast:    {300, 450},
}

func sampleRange(r [2]float64) float64 {
	return r[0] + rand.Float64()*(r[1]-r[0])
}

func jitter(d time.Duration, pct float64) time.Duration {
	factor := 1 - pct + rand.Float64()*2*pct
	return time.Duration(float64(d) * factor)
}

// typingDelay estimates how long a human would take to type a response of
// charCount characters: words/wpm, plus a thinking pause every ~20 words and
// a typo/correction term proportional to word count, floored at 3s.
func typingDelay(charCount int, profile WPMProfile) time.Duration {
	words := float64(charCount) / 5
	wpm := sampleRange(typingWPMRange[profile])
	base := words / wpm * 60

	thinkingPauses := words / 20
	thinking := thinkingPauses * (1 + rand.Float64()*3)

	typoCorrection := words * 0.02 * (0.5 + rand.Float64())

	total := jitter(time.Duration((base+thinking+typoCorrection)*float64(time.Second)), 0.1)
	if total < 3*time.Second {
		total = 3 * time.Second
	}
	return total
}

// readingDelay estimates how long a human would take to read a post of
// charCount characters, plus scroll time for long posts and a fixed focus
// cost, floored at 5s.
func readingDelay(charCount int, profile WPMProfile) time.Duration {
	words := float64(charCount) / 5
	wpm := sampleRange(readingWPMRange[profile])
	base := words / wpm * 60

	var scroll float64
	if words > 100 {
		scroll = 1 + rand.Float64()*2
	}
	focus := 2 + rand.Float64()*3

	total := jitter(time.Duration((base+scroll+focus)*float64(time.Second)), 0.1)
	if total < 5*time.Second {
		total = 5 * time.Second
	}
	return total
}

func randomDuration(minSeconds, maxSeconds float64) time.Duration {
	return time.Duration((minSeconds + rand.Float64()*(maxSeconds-minSeconds)) * float64(time.Second))
}

// PrePostDelay computes the full human-like delay a poster waits before
// submitting: reading the original post, typing the reply, navigating to the
// reply box, and a final review pause, combined with +/-15% jitter.
func PrePostDelay(originalTextLength, responseTextLength int, profile WPMProfile) time.Duration {
	reading := readingDelay(originalTextLength, profile)
	typing := typingDelay(responseTextLength, profile)
	navigation := randomDuration(3, 8)
	review := randomDuration(2, 5)

	total := reading + typing + navigation + review
	return jitter(total, 0.15)
}
