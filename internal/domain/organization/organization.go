// Package organization models the tenant entity every crawled post, queue
// item, and rate-limit record is scoped to, and the automation policy
// (Limits/PlatformLimits) it owns.
package organization

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RiskLevel mirrors pipeline.RiskLevel without importing it, so this
// package stays free of a dependency on the analysis pipeline.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// PlatformLimits is the per-platform slice of an organization's policy.
type PlatformLimits struct {
	PostsPerHour        int
	PostsPerDay         int
	MinGapSeconds       int
	SubredditGapSeconds int
	Enabled             bool
}

// Limits is OrgLimits from the data model: the policy an organization's
// automation is bound by. AutoPostEnabled is the hard override: when
// false, the engine must refuse regardless of any other check.
type Limits struct {
	MaxDailyAutoPosts     int
	MaxHourlyAutoPosts    int
	MinCTSScore           float64
	MaxCTALevel           int
	AllowedRiskLevels     map[RiskLevel]bool
	PlatformLimits        map[string]PlatformLimits
	AutoPostEnabled       bool
	BlacklistedSubreddits map[string]bool
}

// DefaultLimits is the conservative out-of-the-box policy: min CTS 0.7,
// low risk only, CTA capped at soft.
func DefaultLimits() Limits {
	return Limits{
		MaxDailyAutoPosts:  20,
		MaxHourlyAutoPosts: 5,
		MinCTSScore:        0.7,
		MaxCTALevel:        1,
		AllowedRiskLevels:  map[RiskLevel]bool{RiskLow: true},
		PlatformLimits: map[string]PlatformLimits{
			"reddit":  {PostsPerHour: 5, PostsPerDay: 20, MinGapSeconds: 60, SubredditGapSeconds: 300, Enabled: true},
			"twitter": {PostsPerHour: 5, PostsPerDay: 20, MinGapSeconds: 60, Enabled: true},
		},
		AutoPostEnabled:       true,
		BlacklistedSubreddits: map[string]bool{"antiMLM": true, "HailCorporate": true, "Scams": true},
	}
}

// Status is the organization's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Organization is the tenant entity: owns its own Limits, and every
// CrawledPost/QueueItem/Request-Log entry is scoped by its id.
type Organization struct {
	id        uuid.UUID
	name      string
	slug      string
	status    Status
	limits    Limits
	createdAt time.Time
	updatedAt time.Time
	deletedAt *time.Time
}

// New creates an organization with DefaultLimits.
func New(name, slug string) (*Organization, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateSlug(slug); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Organization{
		id:        uuid.New(),
		name:      strings.TrimSpace(name),
		slug:      strings.ToLower(strings.TrimSpace(slug)),
		status:    StatusActive,
		limits:    DefaultLimits(),
		createdAt: now,
		updatedAt: now,
	}, nil
}

// Reconstruct recreates an Organization from persistence.
func Reconstruct(id uuid.UUID, name, slug string, status Status, limits Limits, createdAt, updatedAt time.Time, deletedAt *time.Time) *Organization {
	return &Organization{
		id: id, name: name, slug: slug, status: status, limits: limits,
		createdAt: createdAt, updatedAt: updatedAt, deletedAt: deletedAt,
	}
}

func (o *Organization) ID() uuid.UUID        { return o.id }
func (o *Organization) Name() string         { return o.name }
func (o *Organization) Slug() string         { return o.slug }
func (o *Organization) Status() Status       { return o.status }
func (o *Organization) Limits() Limits       { return o.limits }
func (o *Organization) CreatedAt() time.Time { return o.createdAt }
func (o *Organization) UpdatedAt() time.Time { return o.updatedAt }

// IsActive reports whether the organization can run automation at all.
func (o *Organization) IsActive() bool {
	return o.status == StatusActive && o.deletedAt == nil
}

// UpdateLimits replaces the organization's policy wholesale; callers that
// only want to flip one field should read Limits(), mutate the copy, and
// pass it back.
func (o *Organization) UpdateLimits(limits Limits) error {
	if limits.MinCTSScore < 0 || limits.MinCTSScore > 1 {
		return ErrInvalidMinCTSScore
	}
	if limits.MaxCTALevel < 0 || limits.MaxCTALevel > 3 {
		return ErrInvalidMaxCTALevel
	}
	o.limits = limits
	o.updatedAt = time.Now().UTC()
	return nil
}

// Suspend disables automation for the organization without deleting it.
func (o *Organization) Suspend() error {
	if o.status == StatusSuspended {
		return ErrAlreadySuspended
	}
	o.status = StatusSuspended
	o.updatedAt = time.Now().UTC()
	return nil
}

// Activate reverses Suspend.
func (o *Organization) Activate() error {
	if o.status == StatusActive {
		return ErrAlreadyActive
	}
	o.status = StatusActive
	o.updatedAt = time.Now().UTC()
	return nil
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	if len(name) < 2 || len(name) > 100 {
		return ErrInvalidName
	}
	return nil
}

func validateSlug(slug string) error {
	slug = strings.TrimSpace(slug)
	if len(slug) < 3 || len(slug) > 50 {
		return ErrInvalidSlug
	}
	for _, ch := range slug {
		if !isAlphanumeric(ch) && ch != '-' {
			return ErrInvalidSlug
		}
	}
	if slug[0] == '-' || slug[len(slug)-1] == '-' {
		return ErrInvalidSlug
	}
	return nil
}

func isAlphanumeric(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}
