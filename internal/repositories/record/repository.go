// Package record persists pipeline records and serves the scoring engine's
// coarse candidate prefilter.
package record

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
	"github.com/Ramsey-B/fern/pkg/scoring"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "records"

// Repository handles record persistence and candidate lookup
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type row struct {
	ID        string                         `db:"id"`
	TenantID  string                         `db:"tenant_id"`
	Pipeline  string                         `db:"pipeline_id"`
	Data      database.JSONB[map[string]any] `db:"data"`
	CreatedAt time.Time                      `db:"created_at"`
	UpdatedAt time.Time                      `db:"updated_at"`
}

// Create inserts a new record
func (r *Repository) Create(ctx context.Context, tenantID, pipelineID string, data map[string]any) (*models.Record, error) {
	ctx, span := tracing.StartSpan(ctx, "record.Repository.Create")
	defer span.End()

	id := uuid.New().String()
	now := time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols("id", "tenant_id", "pipeline_id", "data", "created_at", "updated_at")
	sb.Values(id, tenantID, pipelineID, database.JSONB[map[string]any]{Data: data}, now, now)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create record")
	}

	return &models.Record{ID: id, Data: data}, nil
}

// Get retrieves a record by ID
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.Record, error) {
	ctx, span := tracing.StartSpan(ctx, "record.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "pipeline_id", "data", "created_at", "updated_at")
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
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("record %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get record")
	}

	return &models.Record{ID: stored.ID, Data: stored.Data.Data}, nil
}

// Find implements the scoring engine's candidate lookup: coarse filters on
// jsonb fields, bounded by the query limit.
func (r *Repository) Find(ctx context.Context, query scoring.CandidateQuery) ([]models.Record, error) {
	ctx, span := tracing.StartSpan(ctx, "record.Repository.Find")
	defer span.End()

	sql, args := BuildFindQuery(query)

	var rows []row
	if err := r.db.SelectContext(ctx, &rows, sql, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":   query.TenantID,
			"pipeline_id": query.PipelineID,
		}).Error("Failed to find candidate records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find candidate records")
	}

	records := make([]models.Record, 0, len(rows))
	for _, stored := range rows {
		records = append(records, models.Record{ID: stored.ID, Data: stored.Data.Data})
	}
	return records, nil
}

// BuildFindQuery builds the candidate prefilter SQL. Exact filters compare
// lower-cased jsonb text; partial filters use ILIKE containment. Filters
// combine with OR so one strong field is enough to surface a candidate.
func BuildFindQuery(query scoring.CandidateQuery) (string, []any) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "pipeline_id", "data", "created_at", "updated_at")
	sb.From(table)

	where := []string{
		sb.Equal("tenant_id", query.TenantID),
		sb.Equal("pipeline_id", query.PipelineID),
		sb.IsNull("deleted_at"),
	}
	if query.ExcludeID != "" {
		where = append(where, sb.NotEqual("id", query.ExcludeID))
	}

	var filters []string
	for field, value := range query.ExactFilters {
		filters = append(filters, fmt.Sprintf("LOWER(data->>%s) = LOWER(%s)", sb.Var(field), sb.Var(value)))
	}
	for field, value := range query.PartialFilters {
		filters = append(filters, fmt.Sprintf("data->>%s ILIKE %s", sb.Var(field), sb.Var("%"+value+"%")))
	}
	if len(filters) > 0 {
		where = append(where, sb.Or(filters...))
	}

	sb.Where(where...)

	limit := query.Limit
	if limit <= 0 {
		limit = scoring.DefaultCandidateCap
	}
	sb.Limit(limit)
	sb.OrderBy("created_at DESC")

	return sb.Build()
}
