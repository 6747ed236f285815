package detection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/scoring"
)

func TestDetectDuplicatesWithoutContainer(t *testing.T) {
	// plain context has no container: degrade to empty, never panic
	candidates := DetectDuplicates(context.Background(), "tenant-1", "pipeline-1", models.Record{ID: "rec-1"}, scoring.Options{})
	assert.NotNil(t, candidates)
	assert.Empty(t, candidates)
}

func TestEvaluateRuleWithoutContainer(t *testing.T) {
	rule := &models.Rule{LogicTree: &models.LogicNode{Operator: models.LogicOperatorAnd}}
	assert.False(t, EvaluateRule(context.Background(), "tenant-1", rule, nil, nil))

	result := EvaluateRuleDetailed(context.Background(), "tenant-1", rule, nil, nil)
	require.NotNil(t, result)
	assert.False(t, result.IsDuplicate)
	assert.Empty(t, result.FieldMatches)
}
