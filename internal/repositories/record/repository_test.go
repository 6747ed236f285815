package record

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/scoring"
)

func TestBuildFindQueryFilters(t *testing.T) {
	query, args := BuildFindQuery(scoring.CandidateQuery{
		TenantID:       "tenant-1",
		PipelineID:     "pipeline-1",
		ExcludeID:      "rec-1",
		ExactFilters:   map[string]string{"name": "john doe"},
		PartialFilters: map[string]string{"company": "acme"},
		Limit:          50,
	})

	assert.Contains(t, query, "LOWER(data->>")
	assert.Contains(t, query, "ILIKE")
	assert.Contains(t, query, "LIMIT")
	assert.Contains(t, query, "deleted_at IS NULL")
	assert.Contains(t, args, "tenant-1")
	assert.Contains(t, args, "pipeline-1")
	assert.Contains(t, args, "rec-1")
	assert.Contains(t, args, "john doe")
	assert.Contains(t, args, "%acme%")
	assert.Contains(t, query+fmt.Sprint(args), "50")
}

func TestBuildFindQueryDefaultLimit(t *testing.T) {
	query, args := BuildFindQuery(scoring.CandidateQuery{
		TenantID:   "tenant-1",
		PipelineID: "pipeline-1",
	})

	assert.Contains(t, query+fmt.Sprint(args), fmt.Sprint(scoring.DefaultCandidateCap))
}

func TestBuildFindQueryNoFilters(t *testing.T) {
	query, _ := BuildFindQuery(scoring.CandidateQuery{
		TenantID:   "tenant-1",
		PipelineID: "pipeline-1",
	})

	// scope filters only, no field predicates
	assert.NotContains(t, query, "ILIKE")
	assert.NotContains(t, query, "data->>")
}
