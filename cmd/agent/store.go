package main

import (
	"context"
	"sync"

	"github.com/reachby3c/engagement-agent/internal/crawl"
	"github.com/reachby3c/engagement-agent/internal/pipeline"
)

// inMemoryStore is the crawl.Store fallback openStore returns when Postgres
// is unreachable at startup, so the crawl spine still runs degraded
// instead of failing to boot. storage.PostStore is the real implementation.
type inMemoryStore struct {
	mu    sync.Mutex
	posts map[string]savedPost
}

type savedPost struct {
	post     crawl.CrawledPost
	analysis pipeline.State
	priority int
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{posts: make(map[string]savedPost)}
}

func (s *inMemoryStore) ExternalURLExists(_ context.Context, externalURL string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.posts[externalURL]
	return ok, nil
}

func (s *inMemoryStore) SavePost(_ context.Context, post crawl.CrawledPost, result pipeline.State, priority int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[post.ExternalURL] = savedPost{post: post, analysis: result, priority: priority}
	return nil
}
