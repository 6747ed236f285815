package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/logging"
	"github.com/Ramsey-B/fern/pkg/matchers"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/urlextract"
)

type fakeRuleSource struct {
	rules []models.Rule
	err   error
}

func (f *fakeRuleSource) ListActive(_ context.Context, _, _ string) ([]models.Rule, error) {
	return f.rules, f.err
}

type fakeLookup struct {
	records   []models.Record
	err       error
	lastQuery CandidateQuery
}

func (f *fakeLookup) Find(_ context.Context, query CandidateQuery) ([]models.Record, error) {
	f.lastQuery = query
	return f.records, f.err
}

func newTestEngine(rules []models.Rule, lookup CandidateLookup) *Engine {
	logger := logging.Nop()
	return NewEngine(
		logger,
		&fakeRuleSource{rules: rules},
		lookup,
		matchers.NewRegistry(logger, nil),
		urlextract.New(logger, nil),
		0,
	)
}

func textRule(id string, threshold float64, fieldRules ...models.FieldRule) models.Rule {
	return models.Rule{
		ID:                  id,
		TenantID:            "tenant-1",
		PipelineID:          "pipeline-1",
		Name:                "rule " + id,
		IsActive:            true,
		FieldRules:          fieldRules,
		ConfidenceThreshold: threshold,
	}
}

func TestDetectDuplicatesWeightedAggregation(t *testing.T) {
	// one matching field and one non-matching field, equal weights: 0.5
	rule := textRule("r1", 0.4,
		models.FieldRule{Field: "name", MatchType: models.MatchTypeCaseInsensitive, Weight: 1},
		models.FieldRule{Field: "city", MatchType: models.MatchTypeCaseInsensitive, Weight: 1},
	)
	lookup := &fakeLookup{records: []models.Record{
		{ID: "rec-2", Data: map[string]any{"name": "John Doe", "city": "Boston"}},
	}}
	engine := newTestEngine([]models.Rule{rule}, lookup)

	record := models.Record{ID: "rec-1", Data: map[string]any{"name": "john doe", "city": "Chicago"}}
	candidates := engine.DetectDuplicates(context.Background(), "tenant-1", "pipeline-1", record, Options{})

	require.Len(t, candidates, 1)
	assert.Equal(t, "rec-2", candidates[0].RecordID)
	assert.InDelta(t, 0.5, candidates[0].Score, 0.001)
	assert.Equal(t, "r1", candidates[0].RuleID)
	assert.Len(t, candidates[0].FieldMatches, 2)
	assert.InDelta(t, 0.5, candidates[0].Breakdown["name"].Weighted, 0.001)
}

func TestDetectDuplicatesThresholdFilter(t *testing.T) {
	rule := textRule("r1", 0.6,
		models.FieldRule{Field: "name", MatchType: models.MatchTypeCaseInsensitive, Weight: 1},
		models.FieldRule{Field: "city", MatchType: models.MatchTypeCaseInsensitive, Weight: 1},
	)
	lookup := &fakeLookup{records: []models.Record{
		{ID: "rec-2", Data: map[string]any{"name": "John Doe", "city": "Boston"}},
	}}
	engine := newTestEngine([]models.Rule{rule}, lookup)

	record := models.Record{ID: "rec-1", Data: map[string]any{"name": "john doe", "city": "Chicago"}}
	candidates := engine.DetectDuplicates(context.Background(), "tenant-1", "pipeline-1", record, Options{})

	assert.Empty(t, candidates)
}

func TestDetectDuplicatesRequiredFieldDisqualifies(t *testing.T) {
	rule := textRule("r1", 0.1,
		models.FieldRule{Field: "name", MatchType: models.MatchTypeCaseInsensitive, Weight: 1},
		models.FieldRule{Field: "email", MatchType: models.MatchTypeExact, Weight: 1, Required: true},
	)
	lookup := &fakeLookup{records: []models.Record{
		{ID: "rec-2", Data: map[string]any{"name": "john doe"}}, // email missing
	}}
	engine := newTestEngine([]models.Rule{rule}, lookup)

	record := models.Record{ID: "rec-1", Data: map[string]any{"name": "john doe", "email": "j@x.com"}}
	candidates := engine.DetectDuplicates(context.Background(), "tenant-1", "pipeline-1", record, Options{})

	assert.Empty(t, candidates)
}

func TestDetectDuplicatesFuzzyBoost(t *testing.T) {
	rule := textRule("r1", 0.7,
		models.FieldRule{Field: "first", MatchType: models.MatchTypeLevenshtein, Weight: 1},
		models.FieldRule{Field: "last", MatchType: models.MatchTypeLevenshtein, Weight: 1},
		models.FieldRule{Field: "city", MatchType: models.MatchTypeExact, Weight: 1},
	)
	rule.EnableFuzzyBoost = true

	// two fields above 0.9 and one miss: aggregate ~0.64, boost 0.1 lifts it
	// over the 0.7 threshold
	lookup := &fakeLookup{records: []models.Record{
		{ID: "rec-2", Data: map[string]any{"first": "christopher", "last": "smithers", "city": "Boston"}},
	}}
	engine := newTestEngine([]models.Rule{rule}, lookup)

	record := models.Record{ID: "rec-1", Data: map[string]any{"first": "christophir", "last": "smithers", "city": "Chicago"}}
	candidates := engine.DetectDuplicates(context.Background(), "tenant-1", "pipeline-1", record, Options{})

	require.Len(t, candidates, 1)
	assert.GreaterOrEqual(t, candidates[0].Score, 0.7)
	assert.LessOrEqual(t, candidates[0].Score, 1.0)
}

func TestApplyFuzzyBoostCap(t *testing.T) {
	strong := []models.FieldMatch{
		{Score: 0.95}, {Score: 0.95}, {Score: 0.95}, {Score: 0.95},
	}

	// 4 strong fields: boost is min(0.1, 0.2) = 0.1
	assert.InDelta(t, 0.75, applyFuzzyBoost(0.65, 0.9, strong), 0.001)

	// never pushes past 1.0
	assert.Equal(t, 1.0, applyFuzzyBoost(0.95, 0.99, strong))

	// fewer than two strong fields: no boost
	assert.Equal(t, 0.65, applyFuzzyBoost(0.65, 0.9, []models.FieldMatch{{Score: 0.95}}))

	// already at threshold: no boost
	assert.Equal(t, 0.9, applyFuzzyBoost(0.9, 0.9, strong))
}

func TestDetectDuplicatesCrossRuleDedup(t *testing.T) {
	weak := textRule("weak", 0.5,
		models.FieldRule{Field: "name", MatchType: models.MatchTypeCaseInsensitive, Weight: 1},
		models.FieldRule{Field: "city", MatchType: models.MatchTypeCaseInsensitive, Weight: 1},
	)
	strong := textRule("strong", 0.5,
		models.FieldRule{Field: "name", MatchType: models.MatchTypeCaseInsensitive, Weight: 1},
	)
	lookup := &fakeLookup{records: []models.Record{
		{ID: "rec-2", Data: map[string]any{"name": "john doe", "city": "Boston"}},
	}}
	engine := newTestEngine([]models.Rule{weak, strong}, lookup)

	record := models.Record{ID: "rec-1", Data: map[string]any{"name": "john doe", "city": "Boston"}}
	candidates := engine.DetectDuplicates(context.Background(), "tenant-1", "pipeline-1", record, Options{})

	// both rules produce rec-2; only the higher score survives
	require.Len(t, candidates, 1)
	assert.Equal(t, 1.0, candidates[0].Score)
}

func TestDetectDuplicatesKeepsHigherScore(t *testing.T) {
	lower := textRule("lower", 0.3,
		models.FieldRule{Field: "name", MatchType: models.MatchTypeCaseInsensitive, Weight: 1},
		models.FieldRule{Field: "city", MatchType: models.MatchTypeCaseInsensitive, Weight: 2},
	)
	higher := textRule("higher", 0.3,
		models.FieldRule{Field: "name", MatchType: models.MatchTypeCaseInsensitive, Weight: 1},
		models.FieldRule{Field: "city", MatchType: models.MatchTypeCaseInsensitive, Weight: 0.5},
	)
	lookup := &fakeLookup{records: []models.Record{
		{ID: "rec-2", Data: map[string]any{"name": "john doe", "city": "Boston"}},
	}}
	engine := newTestEngine([]models.Rule{lower, higher}, lookup)

	// name matches, city does not: lower rule scores 1/3, higher scores ~0.667
	record := models.Record{ID: "rec-1", Data: map[string]any{"name": "john doe", "city": "Chicago"}}
	candidates := engine.DetectDuplicates(context.Background(), "tenant-1", "pipeline-1", record, Options{})

	require.Len(t, candidates, 1)
	assert.Equal(t, "higher", candidates[0].RuleID)
	assert.InDelta(t, 0.667, candidates[0].Score, 0.001)
}

func TestDetectDuplicatesSortedDescending(t *testing.T) {
	rule := textRule("r1", 0.2,
		models.FieldRule{Field: "name", MatchType: models.MatchTypeLevenshtein, Weight: 1},
	)
	lookup := &fakeLookup{records: []models.Record{
		{ID: "rec-2", Data: map[string]any{"name": "jon do"}},
		{ID: "rec-3", Data: map[string]any{"name": "john doe"}},
	}}
	engine := newTestEngine([]models.Rule{rule}, lookup)

	record := models.Record{ID: "rec-1", Data: map[string]any{"name": "john doe"}}
	candidates := engine.DetectDuplicates(context.Background(), "tenant-1", "pipeline-1", record, Options{})

	require.Len(t, candidates, 2)
	assert.Equal(t, "rec-3", candidates[0].RecordID)
	assert.Greater(t, candidates[0].Score, candidates[1].Score)
}

func TestDetectDuplicatesRuleSourceErrorReturnsEmpty(t *testing.T) {
	logger := logging.Nop()
	engine := NewEngine(
		logger,
		&fakeRuleSource{err: errors.New("db down")},
		&fakeLookup{},
		matchers.NewRegistry(logger, nil),
		urlextract.New(logger, nil),
		0,
	)

	candidates := engine.DetectDuplicates(context.Background(), "tenant-1", "pipeline-1", models.Record{ID: "rec-1"}, Options{})
	assert.NotNil(t, candidates)
	assert.Empty(t, candidates)
}

func TestDetectDuplicatesLookupErrorReturnsEmpty(t *testing.T) {
	rule := textRule("r1", 0.2,
		models.FieldRule{Field: "name", MatchType: models.MatchTypeExact, Weight: 1},
	)
	engine := newTestEngine([]models.Rule{rule}, &fakeLookup{err: errors.New("timeout")})

	candidates := engine.DetectDuplicates(context.Background(), "tenant-1", "pipeline-1", models.Record{ID: "rec-1", Data: map[string]any{"name": "x"}}, Options{})
	assert.Empty(t, candidates)
}

func TestDetectDuplicatesNoRules(t *testing.T) {
	engine := newTestEngine(nil, &fakeLookup{})
	candidates := engine.DetectDuplicates(context.Background(), "tenant-1", "pipeline-1", models.Record{ID: "rec-1"}, Options{})
	assert.Empty(t, candidates)
}

func TestDetectDuplicatesSingleRuleFilter(t *testing.T) {
	match := textRule("r1", 0.2, models.FieldRule{Field: "name", MatchType: models.MatchTypeCaseInsensitive, Weight: 1})
	other := textRule("r2", 0.2, models.FieldRule{Field: "name", MatchType: models.MatchTypeCaseInsensitive, Weight: 1})
	lookup := &fakeLookup{records: []models.Record{
		{ID: "rec-2", Data: map[string]any{"name": "john"}},
	}}
	engine := newTestEngine([]models.Rule{match, other}, lookup)
	record := models.Record{ID: "rec-1", Data: map[string]any{"name": "john"}}

	candidates := engine.DetectDuplicates(context.Background(), "tenant-1", "pipeline-1", record, Options{RuleID: "r2"})
	require.Len(t, candidates, 1)
	assert.Equal(t, "r2", candidates[0].RuleID)

	candidates = engine.DetectDuplicates(context.Background(), "tenant-1", "pipeline-1", record, Options{RuleID: "missing"})
	assert.Empty(t, candidates)
}

func TestBuildQueryPrefilter(t *testing.T) {
	rule := textRule("r1", 0.2,
		models.FieldRule{Field: "name", MatchType: models.MatchTypeCaseInsensitive, Weight: 1},
		models.FieldRule{Field: "company", MatchType: models.MatchTypePartial, Weight: 1},
		models.FieldRule{Field: "bio", MatchType: models.MatchTypeFuzzy, Weight: 1},
	)
	lookup := &fakeLookup{}
	engine := newTestEngine([]models.Rule{rule}, lookup)

	record := models.Record{ID: "rec-1", Data: map[string]any{
		"name":    "John Doe",
		"company": "Acme",
		"bio":     "long text",
	}}
	engine.DetectDuplicates(context.Background(), "tenant-1", "pipeline-1", record, Options{ExcludeID: "rec-1"})

	assert.Equal(t, "rec-1", lookup.lastQuery.ExcludeID)
	assert.Equal(t, DefaultCandidateCap, lookup.lastQuery.Limit)
	assert.Equal(t, "john doe", lookup.lastQuery.ExactFilters["name"])
	assert.Equal(t, "acme", lookup.lastQuery.PartialFilters["company"])
	// fuzzy fields never prefilter
	assert.NotContains(t, lookup.lastQuery.ExactFilters, "bio")
	assert.NotContains(t, lookup.lastQuery.PartialFilters, "bio")
}

func TestDetectDuplicatesSkipsWhenBothEmpty(t *testing.T) {
	rule := textRule("r1", 0.5,
		models.FieldRule{Field: "name", MatchType: models.MatchTypeCaseInsensitive, Weight: 1},
		models.FieldRule{Field: "nickname", MatchType: models.MatchTypeCaseInsensitive, Weight: 5},
	)
	lookup := &fakeLookup{records: []models.Record{
		{ID: "rec-2", Data: map[string]any{"name": "john"}},
	}}
	engine := newTestEngine([]models.Rule{rule}, lookup)

	// nickname empty on both sides: its weight must not dilute the aggregate
	record := models.Record{ID: "rec-1", Data: map[string]any{"name": "john"}}
	candidates := engine.DetectDuplicates(context.Background(), "tenant-1", "pipeline-1", record, Options{})

	require.Len(t, candidates, 1)
	assert.Equal(t, 1.0, candidates[0].Score)
}
