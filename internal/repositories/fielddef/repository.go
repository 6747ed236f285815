// Package fielddef persists field definitions and serves the logic engine's
// field lookup.
package fielddef

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/internal/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "field_definitions"

// Repository handles field definition persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new field definition repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type row struct {
	TenantID  string                                       `db:"tenant_id"`
	Slug      string                                       `db:"slug"`
	Name      string                                       `db:"name"`
	FieldType string                                       `db:"field_type"`
	Config    database.JSONB[models.PreprocessingOptions]  `db:"config"`
	CreatedAt time.Time                                    `db:"created_at"`
	UpdatedAt time.Time                                    `db:"updated_at"`
}

func (r row) toModel() models.FieldDefinition {
	return models.FieldDefinition{
		Slug:      r.Slug,
		Name:      r.Name,
		FieldType: models.FieldType(r.FieldType),
		Config:    r.Config.Data,
	}
}

// BySlug resolves a field definition by slug. Not found returns nil, nil so
// the logic engine can fall through to name resolution.
func (r *Repository) BySlug(ctx context.Context, tenantID, slug string) (*models.FieldDefinition, error) {
	return r.byColumn(ctx, "fielddef.Repository.BySlug", tenantID, "slug", slug)
}

// ByName resolves a field definition by display name
func (r *Repository) ByName(ctx context.Context, tenantID, name string) (*models.FieldDefinition, error) {
	return r.byColumn(ctx, "fielddef.Repository.ByName", tenantID, "name", name)
}

func (r *Repository) byColumn(ctx context.Context, spanName, tenantID, column, value string) (*models.FieldDefinition, error) {
	ctx, span := tracing.StartSpan(ctx, spanName)
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("tenant_id", "slug", "name", "field_type", "config", "created_at", "updated_at")
	sb.From(table)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal(column, value),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var stored row
	if err := r.db.GetContext(ctx, &stored, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to resolve field definition")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve field definition")
	}

	definition := stored.toModel()
	return &definition, nil
}

// Upsert creates or replaces a field definition
func (r *Repository) Upsert(ctx context.Context, tenantID string, definition models.FieldDefinition) error {
	ctx, span := tracing.StartSpan(ctx, "fielddef.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols("tenant_id", "slug", "name", "field_type", "config", "created_at", "updated_at")
	sb.Values(
		tenantID, definition.Slug, definition.Name, string(definition.FieldType),
		database.JSONB[models.PreprocessingOptions]{Data: definition.Config},
		now, now,
	)
	sb.SQL("ON CONFLICT (tenant_id, slug) DO UPDATE SET name = EXCLUDED.name, field_type = EXCLUDED.field_type, config = EXCLUDED.config, updated_at = EXCLUDED.updated_at")

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to upsert field definition")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert field definition")
	}

	return nil
}
