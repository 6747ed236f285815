package models

import "time"

// URLExtractionRule turns profile URLs into stable canonical identifiers.
// Domain patterns are exact hosts or "*.domain" wildcards; the extraction
// pattern is a regex applied to domain+path and its first non-empty capture
// group is formatted through ExtractionFormat (e.g. "linkedin:{}").
type URLExtractionRule struct {
	ID                string     `json:"id" db:"id"`
	TenantID          string     `json:"tenant_id" db:"tenant_id"`
	Name              string     `json:"name" db:"name" validate:"required"`
	DomainPatterns    []string   `json:"domain_patterns" validate:"required,min=1"`
	ExtractionPattern string     `json:"extraction_pattern" db:"extraction_pattern" validate:"required"`
	ExtractionFormat  string     `json:"extraction_format" db:"extraction_format"`
	CaseSensitive     bool       `json:"case_sensitive" db:"case_sensitive"`
	StripSubdomains   bool       `json:"strip_subdomains" db:"strip_subdomains"`
	Priority          int        `json:"priority" db:"priority"`
	IsActive          bool       `json:"is_active" db:"is_active"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Validate checks structural invariants on an extraction rule
func (r *URLExtractionRule) Validate() error {
	return validate.Struct(r)
}
