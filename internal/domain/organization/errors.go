package organization

import "errors"

var (
	ErrNotFound           = errors.New("organization not found")
	ErrNameRequired       = errors.New("organization name is required")
	ErrInvalidName        = errors.New("organization name must be 2-100 characters")
	ErrInvalidSlug        = errors.New("slug must be 3-50 alphanumeric/dash characters, not starting or ending with a dash")
	ErrSlugAlreadyExists  = errors.New("slug already exists")
	ErrInvalidMinCTSScore = errors.New("min_cts_score must be between 0 and 1")
	ErrInvalidMaxCTALevel = errors.New("max_cta_level must be between 0 and 3")
	ErrAlreadySuspended   = errors.New("organization is already suspended")
	ErrAlreadyActive      = errors.New("organization is already active")
)
