package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/reachby3c/engagement-agent/internal/crawl"
	"github.com/reachby3c/engagement-agent/internal/pipeline"
)

// PostStore is the crawl.Store implementation backed by a crawled_posts
// table, hand-written against database/sql.
type PostStore struct {
	db *sql.DB
}

func NewPostStore(db *sql.DB) *PostStore {
	return &PostStore{db: db}
}

// ExternalURLExists backs the Processor's dedupe check.
func (s *PostStore) ExternalURLExists(ctx context.Context, externalURL string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM crawled_posts WHERE external_url = $1)`,
		externalURL,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check external_url exists: %w", err)
	}
	return exists, nil
}

// SavePost writes the crawled post and its pipeline analysis in one row.
// priority 0 means "not queued" (a blocked analysis).
func (s *PostStore) SavePost(ctx context.Context, post crawl.CrawledPost, result pipeline.State, priority int) error {
	id := post.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	metadata, err := marshalJSONB(post.PlatformMetadata)
	if err != nil {
		return fmt.Errorf("marshal platform_metadata: %w", err)
	}
	engagement, err := marshalJSONB(post.EngagementMetrics)
	if err != nil {
		return fmt.Errorf("marshal engagement_metrics: %w", err)
	}

	var signalCategory, riskLevel, ctaType string
	var emotionalIntensity, riskScore, ctsScore float64
	var ctaLevel int
	var canAutoPost bool
	if result.Signal != nil {
		signalCategory = string(result.Signal.ProblemCategory)
		emotionalIntensity = result.Signal.EmotionalIntensity
	}
	if result.Risk != nil {
		riskLevel = string(result.Risk.RiskLevel)
		riskScore = result.Risk.RiskScore
	}
	if result.CTA != nil {
		ctaType = string(result.CTA.CTAType)
		ctaLevel = result.CTA.CTALevel
	}
	if result.CTS != nil {
		ctsScore = result.CTS.CTSScore
		canAutoPost = result.CTS.CanAutoPost
	}

	var parentID uuid.NullUUID
	if post.ParentID != nil {
		parentID = uuid.NullUUID{UUID: *post.ParentID, Valid: true}
	}
	var externalCreatedAt sql.NullTime
	if post.ExternalCreatedAt != nil {
		externalCreatedAt = sql.NullTime{Time: *post.ExternalCreatedAt, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO crawled_posts (
			id, external_id, external_url, content, content_type,
			author_handle, author_display_name, platform_metadata,
			external_created_at, crawled_at, platform, keywords_matched,
			engagement_metrics, parent_id,
			signal_category, signal_emotional_intensity,
			risk_level, risk_score, cta_type, cta_level,
			cts_score, can_auto_post, blocked, queue_priority, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25
		)
		ON CONFLICT (external_url) DO NOTHING`,
		id, post.ExternalID, post.ExternalURL, post.Content, string(post.ContentType),
		post.AuthorHandle, post.AuthorDisplayName, metadata,
		externalCreatedAt, post.CrawledAt, post.Platform, pq.Array(post.KeywordsMatched),
		engagement, parentID,
		signalCategory, emotionalIntensity,
		riskLevel, riskScore, ctaType, ctaLevel,
		ctsScore, canAutoPost, result.Blocked, priority, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert crawled_posts: %w", err)
	}
	return nil
}

// marshalJSONB turns an arbitrary map into a pqtype.NullRawMessage for a
// jsonb column, null when the source map is empty rather than writing an
// empty object.
func marshalJSONB[M ~map[string]V, V any](m M) (pqtype.NullRawMessage, error) {
	if len(m) == 0 {
		return pqtype.NullRawMessage{Valid: false}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}
