// Package rule persists duplicate-detection rules
package rule

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

const table = "dedupe_rules"

var columns = []string{
	"id", "tenant_id", "pipeline_id", "name", "priority", "is_active",
	"field_rules", "confidence_threshold", "auto_merge_threshold",
	"enable_fuzzy_boost", "logic_tree", "created_at", "updated_at", "deleted_at",
}

// Repository handles detection rule persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new rule repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type row struct {
	ID                  string                             `db:"id"`
	TenantID            string                             `db:"tenant_id"`
	PipelineID          string                             `db:"pipeline_id"`
	Name                string                             `db:"name"`
	Priority            int                                `db:"priority"`
	IsActive            bool                               `db:"is_active"`
	FieldRules          database.JSONB[[]models.FieldRule] `db:"field_rules"`
	ConfidenceThreshold float64                            `db:"confidence_threshold"`
	AutoMergeThreshold  float64                            `db:"auto_merge_threshold"`
	EnableFuzzyBoost    bool                               `db:"enable_fuzzy_boost"`
	LogicTree           database.JSONB[*models.LogicNode]  `db:"logic_tree"`
	CreatedAt           time.Time                          `db:"created_at"`
	UpdatedAt           time.Time                          `db:"updated_at"`
	DeletedAt           *time.Time                         `db:"deleted_at"`
}

func (r row) toModel() models.Rule {
	return models.Rule{
		ID:                  r.ID,
		TenantID:            r.TenantID,
		PipelineID:          r.PipelineID,
		Name:                r.Name,
		Priority:            r.Priority,
		IsActive:            r.IsActive,
		FieldRules:          r.FieldRules.Data,
		ConfidenceThreshold: r.ConfidenceThreshold,
		AutoMergeThreshold:  r.AutoMergeThreshold,
		EnableFuzzyBoost:    r.EnableFuzzyBoost,
		LogicTree:           r.LogicTree.Data,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
		DeletedAt:           r.DeletedAt,
	}
}

// Create validates and inserts a new rule
func (r *Repository) Create(ctx context.Context, tenantID string, rule models.Rule) (*models.Rule, error) {
	ctx, span := tracing.StartSpan(ctx, "rule.Repository.Create")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":      "Create",
		"tenant_id":   tenantID,
		"pipeline_id": rule.PipelineID,
		"name":        rule.Name,
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
		rule.ID, rule.TenantID, rule.PipelineID, rule.Name, rule.Priority, rule.IsActive,
		database.JSONB[[]models.FieldRule]{Data: rule.FieldRules},
		rule.ConfidenceThreshold, rule.AutoMergeThreshold, rule.EnableFuzzyBoost,
		database.JSONB[*models.LogicNode]{Data: rule.LogicTree},
		rule.CreatedAt, rule.UpdatedAt,
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to create rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create rule")
	}

	log.WithFields(map[string]any{"id": rule.ID}).Info("Created rule")
	return &rule, nil
}

// Get retrieves a rule by ID
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.Rule, error) {
	ctx, span := tracing.StartSpan(ctx, "rule.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var stored row
	if err := r.db.GetContext(ctx, &stored, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("rule %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get rule")
	}

	rule := stored.toModel()
	return &rule, nil
}

// ListActive retrieves all active rules for a pipeline, highest priority
// first. Implements the scoring engine's rule source.
func (r *Repository) ListActive(ctx context.Context, tenantID, pipelineID string) ([]models.Rule, error) {
	ctx, span := tracing.StartSpan(ctx, "rule.Repository.ListActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("pipeline_id", pipelineID),
		sb.Equal("is_active", true),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("priority DESC") // Higher priority first

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list rules")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list rules")
	}

	rules := make([]models.Rule, 0, len(rows))
	for _, stored := range rows {
		rules = append(rules, stored.toModel())
	}
	return rules, nil
}

// Delete soft deletes a rule
func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "rule.Repository.Delete")
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
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete rule")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete rule")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("rule %s not found", id))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Deleted rule")
	return nil
}
