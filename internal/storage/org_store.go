package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reachby3c/engagement-agent/internal/domain/organization"
)

// orgRecord is the gorm model backing organizations. Limits is stored as a
// single jsonb blob since it has no independent query access patterns.
type orgRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string
	Slug      string `gorm:"uniqueIndex"`
	Status    string
	Limits    []byte `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (orgRecord) TableName() string { return "organizations" }

// OrgStore is the gorm-backed repository for Organization aggregates.
type OrgStore struct {
	db *gorm.DB
}

func NewOrgStore(db *gorm.DB) *OrgStore {
	return &OrgStore{db: db}
}

// Migrate creates/updates the organizations table. Called once at startup;
// a real deployment would instead run versioned migrations.
func (s *OrgStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&orgRecord{})
}

func (s *OrgStore) Create(ctx context.Context, org *organization.Organization) error {
	limits, err := json.Marshal(org.Limits())
	if err != nil {
		return err
	}
	rec := orgRecord{
		ID: org.ID(), Name: org.Name(), Slug: org.Slug(),
		Status: string(org.Status()), Limits: limits,
		CreatedAt: org.CreatedAt(), UpdatedAt: org.UpdatedAt(),
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *OrgStore) FindBySlug(ctx context.Context, slug string) (*organization.Organization, error) {
	var rec orgRecord
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, organization.ErrNotFound
		}
		return nil, err
	}
	return recordToOrganization(rec)
}

func (s *OrgStore) FindByID(ctx context.Context, id uuid.UUID) (*organization.Organization, error) {
	var rec orgRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, organization.ErrNotFound
		}
		return nil, err
	}
	return recordToOrganization(rec)
}

// ListActive returns every non-suspended, non-deleted organization, used
// at startup to seed the Org Rate-Limit Manager's in-memory policy cache.
func (s *OrgStore) ListActive(ctx context.Context) ([]*organization.Organization, error) {
	var recs []orgRecord
	if err := s.db.WithContext(ctx).Where("status = ?", string(organization.StatusActive)).Find(&recs).Error; err != nil {
		return nil, err
	}
	orgs := make([]*organization.Organization, 0, len(recs))
	for _, rec := range recs {
		org, err := recordToOrganization(rec)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, nil
}

func (s *OrgStore) UpdateLimits(ctx context.Context, id uuid.UUID, limits organization.Limits) error {
	raw, err := json.Marshal(limits)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&orgRecord{}).Where("id = ?", id).
		Updates(map[string]any{"limits": raw, "updated_at": time.Now().UTC()}).Error
}

func recordToOrganization(rec orgRecord) (*organization.Organization, error) {
	var limits organization.Limits
	if len(rec.Limits) > 0 {
		if err := json.Unmarshal(rec.Limits, &limits); err != nil {
			return nil, err
		}
	} else {
		limits = organization.DefaultLimits()
	}
	var deletedAt *time.Time
	if rec.DeletedAt.Valid {
		deletedAt = &rec.DeletedAt.Time
	}
	return organization.Reconstruct(rec.ID, rec.Name, rec.Slug, organization.Status(rec.Status), limits, rec.CreatedAt, rec.UpdatedAt, deletedAt), nil
}
