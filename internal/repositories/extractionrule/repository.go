// Package extractionrule persists URL extraction rules
package extractionrule

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/internal/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "url_extraction_rules"

var columns = []string{
	"id", "tenant_id", "name", "domain_patterns", "extraction_pattern",
	"extraction_format", "case_sensitive", "strip_subdomains", "priority",
	"is_active", "created_at", "updated_at", "deleted_at",
}

// Repository handles URL extraction rule persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new extraction rule repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type row struct {
	ID                string                   `db:"id"`
	TenantID          string                   `db:"tenant_id"`
	Name              string                   `db:"name"`
	DomainPatterns    database.JSONB[[]string] `db:"domain_patterns"`
	ExtractionPattern string                   `db:"extraction_pattern"`
	ExtractionFormat  string                   `db:"extraction_format"`
	CaseSensitive     bool                     `db:"case_sensitive"`
	StripSubdomains   bool                     `db:"strip_subdomains"`
	Priority          int                      `db:"priority"`
	IsActive          bool                     `db:"is_active"`
	CreatedAt         time.Time                `db:"created_at"`
	UpdatedAt         time.Time                `db:"updated_at"`
	DeletedAt         *time.Time               `db:"deleted_at"`
}

func (r row) toModel() models.URLExtractionRule {
	return models.URLExtractionRule{
		ID:                r.ID,
		TenantID:          r.TenantID,
		Name:              r.Name,
		DomainPatterns:    r.DomainPatterns.Data,
		ExtractionPattern: r.ExtractionPattern,
		ExtractionFormat:  r.ExtractionFormat,
		CaseSensitive:     r.CaseSensitive,
		StripSubdomains:   r.StripSubdomains,
		Priority:          r.Priority,
		IsActive:          r.IsActive,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

// Create validates and inserts a new extraction rule
func (r *Repository) Create(ctx context.Context, tenantID string, rule models.URLExtractionRule) (*models.URLExtractionRule, error) {
	ctx, span := tracing.StartSpan(ctx, "extractionrule.Repository.Create")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":    "Create",
		"tenant_id": tenantID,
		"name":      rule.Name,
	})

	rule.ID = uuid.New().String()
	rule.TenantID = tenantID
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := rule.Validate(); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols(columns[:len(columns)-1]...)
	sb.Values(
		rule.ID, rule.TenantID, rule.Name,
		database.JSONB[[]string]{Data: rule.DomainPatterns},
		rule.ExtractionPattern, rule.ExtractionFormat, rule.CaseSensitive,
		rule.StripSubdomains, rule.Priority, rule.IsActive,
		rule.CreatedAt, rule.UpdatedAt,
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to create extraction rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create extraction rule")
	}

	log.WithFields(map[string]any{"id": rule.ID}).Info("Created extraction rule")
	return &rule, nil
}

// ListActive retrieves all active extraction rules for a tenant, highest
// priority first. Implements the URL extractor's rule source.
func (r *Repository) ListActive(ctx context.Context, tenantID string) ([]models.URLExtractionRule, error) {
	ctx, span := tracing.StartSpan(ctx, "extractionrule.Repository.ListActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("is_active", true),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("priority DESC")

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list extraction rules")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list extraction rules")
	}

	rules := make([]models.URLExtractionRule, 0, len(rows))
	for _, stored := range rows {
		rules = append(rules, stored.toModel())
	}
	return rules, nil
}

// Delete soft deletes an extraction rule
func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "extractionrule.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(table)
	sb.Set(sb.Assign("deleted_at", time.Now().UTC()))
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete extraction rule")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete extraction rule")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("extraction rule %s not found", id))
	}

	return nil
}
