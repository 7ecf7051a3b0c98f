package reddit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachby3c/engagement-agent/internal/platform/credentials"
	"github.com/reachby3c/engagement-agent/internal/posting"
)

func TestParseRedditTarget_PostPermalink(t *testing.T) {
	sub, thing, err := parseRedditTarget("https://www.reddit.com/r/golang/comments/abc123/some_title_slug/")
	require.NoError(t, err)
	assert.Equal(t, "golang", sub)
	assert.Equal(t, "t3_abc123", thing)
}

func TestParseRedditTarget_CommentPermalink(t *testing.T) {
	sub, thing, err := parseRedditTarget("https://www.reddit.com/r/golang/comments/abc123/some_title_slug/def456/")
	require.NoError(t, err)
	assert.Equal(t, "golang", sub)
	assert.Equal(t, "t1_def456", thing)
}

func TestParseRedditTarget_Unrecognized(t *testing.T) {
	_, _, err := parseRedditTarget("https://www.reddit.com/user/someone")
	assert.Error(t, err)
}

func TestPost_BlockedSubredditRefusedBeforeNetwork(t *testing.T) {
	p := New(Config{}, credentials.New("secret"))
	result, err := p.Post(context.Background(),
		"a reply", "https://www.reddit.com/r/antiMLM/comments/abc123/slug/", false, 0, nil)
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, posting.ErrCodeBlockedSubreddit, result.ErrorCode)
	assert.False(t, result.Retryable)
}
