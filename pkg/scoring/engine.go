// Package scoring implements weighted-confidence duplicate detection: for
// each active rule it prefilters candidates through the lookup collaborator,
// scores every configured field pair, aggregates into a confidence score,
// and merges candidates across rules.
package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/extractor"
	"github.com/Ramsey-B/fern/pkg/matchers"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/urlextract"
)

// RuleSource loads active detection rules for a pipeline, ordered by
// priority.
type RuleSource interface {
	ListActive(ctx context.Context, tenantID, pipelineID string) ([]models.Rule, error)
}

// CandidateQuery is the coarse prefilter handed to the lookup collaborator.
// Filter values are already normalized; matching strategy and indexing are
// the collaborator's concern.
type CandidateQuery struct {
	TenantID       string
	PipelineID     string
	ExcludeID      string
	ExactFilters   map[string]string
	PartialFilters map[string]string
	Limit          int
}

// CandidateLookup returns up to Limit candidate records for a query
type CandidateLookup interface {
	Find(ctx context.Context, query CandidateQuery) ([]models.Record, error)
}

// Options narrows one detection call
type Options struct {
	ExcludeID string // Record id to exclude from candidates, typically the input record itself
	RuleID    string // Run only this rule instead of all active rules
}

// Engine is the weighted-scoring duplicate detector
type Engine struct {
	logger       ectologger.Logger
	rules        RuleSource
	lookup       CandidateLookup
	registry     *matchers.Registry
	urls         *urlextract.Extractor
	candidateCap int
}

// DefaultCandidateCap bounds prefilter result size per rule
const DefaultCandidateCap = 1000

// NewEngine creates a scoring engine. candidateCap <= 0 uses the default.
func NewEngine(
	logger ectologger.Logger,
	rules RuleSource,
	lookup CandidateLookup,
	registry *matchers.Registry,
	urls *urlextract.Extractor,
	candidateCap int,
) *Engine {
	if candidateCap <= 0 {
		candidateCap = DefaultCandidateCap
	}
	return &Engine{
		logger:       logger,
		rules:        rules,
		lookup:       lookup,
		registry:     registry,
		urls:         urls,
		candidateCap: candidateCap,
	}
}

// DetectDuplicates returns candidates ranked by descending confidence. It
// never returns an error: any failure in the pipeline, including panics,
// yields an empty result so detection can never block the caller's record
// operations.
func (e *Engine) DetectDuplicates(ctx context.Context, tenantID, pipelineID string, record models.Record, opts Options) (result []models.Candidate) {
	ctx, span := tracing.StartSpan(ctx, "scoring.Engine.DetectDuplicates")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   tenantID,
		"pipeline_id": pipelineID,
		"record_id":   record.ID,
	})

	defer func() {
		if p := recover(); p != nil {
			log.WithField("panic", fmt.Sprintf("%v", p)).Error("Duplicate detection panicked")
			result = []models.Candidate{}
		}
	}()

	rules, err := e.rules.ListActive(ctx, tenantID, pipelineID)
	if err != nil {
		log.WithError(err).Error("Failed to load detection rules")
		return []models.Candidate{}
	}
	if opts.RuleID != "" {
		rules = filterByID(rules, opts.RuleID)
	}
	if len(rules) == 0 {
		log.Debug("No active detection rules")
		return []models.Candidate{}
	}

	// highest score wins per record id across rules
	best := make(map[string]models.Candidate)

	for _, rule := range rules {
		candidates, err := e.evaluateRule(ctx, tenantID, pipelineID, record, rule, opts.ExcludeID)
		if err != nil {
			log.WithError(err).WithField("rule_id", rule.ID).Warn("Failed to evaluate rule")
			continue
		}

		for _, candidate := range candidates {
			if existing, ok := best[candidate.RecordID]; !ok || candidate.Score > existing.Score {
				best[candidate.RecordID] = candidate
			}
		}
	}

	result = make([]models.Candidate, 0, len(best))
	for _, candidate := range best {
		result = append(result, candidate)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].RecordID < result[j].RecordID
	})

	log.WithField("candidate_count", len(result)).Debug("Duplicate detection complete")
	return result
}

// evaluateRule prefilters candidates for one rule and scores each
func (e *Engine) evaluateRule(ctx context.Context, tenantID, pipelineID string, record models.Record, rule models.Rule, excludeID string) ([]models.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "scoring.Engine.evaluateRule")
	defer span.End()

	query := e.buildQuery(ctx, tenantID, pipelineID, record, rule, excludeID)

	candidates, err := e.lookup.Find(ctx, query)
	if err != nil {
		return nil, err
	}

	scored := make([]models.Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		scoredCandidate, ok := e.scoreCandidate(ctx, tenantID, record, candidate, rule)
		if !ok {
			continue
		}
		if scoredCandidate.Score >= rule.ConfidenceThreshold {
			scored = append(scored, scoredCandidate)
		}
	}

	return scored, nil
}

// buildQuery derives coarse prefilter predicates from the rule's cheap match
// types. Fields with fuzzy match types are left for full scoring.
func (e *Engine) buildQuery(ctx context.Context, tenantID, pipelineID string, record models.Record, rule models.Rule, excludeID string) CandidateQuery {
	query := CandidateQuery{
		TenantID:       tenantID,
		PipelineID:     pipelineID,
		ExcludeID:      excludeID,
		ExactFilters:   make(map[string]string),
		PartialFilters: make(map[string]string),
		Limit:          e.candidateCap,
	}

	for _, fieldRule := range rule.FieldRules {
		value := e.normalizedValue(ctx, tenantID, record.Data, fieldRule)
		if value == "" {
			continue
		}

		switch fieldRule.MatchType {
		case models.MatchTypeExact, models.MatchTypeCaseInsensitive:
			query.ExactFilters[fieldRule.Field] = value
		case models.MatchTypePartial:
			query.PartialFilters[fieldRule.Field] = value
		}
	}

	return query
}

// scoreCandidate runs every field rule against the candidate. ok is false
// when a required field is empty on either side, which excludes the
// candidate entirely.
func (e *Engine) scoreCandidate(ctx context.Context, tenantID string, record, candidate models.Record, rule models.Rule) (models.Candidate, bool) {
	fieldMatches := make([]models.FieldMatch, 0, len(rule.FieldRules))
	breakdown := make(map[string]models.FieldScoreDetail, len(rule.FieldRules))

	var weightedSum, totalWeight float64

	for _, fieldRule := range rule.FieldRules {
		valueA := e.normalizedValue(ctx, tenantID, record.Data, fieldRule)
		valueB := e.normalizedValue(ctx, tenantID, candidate.Data, fieldRule)

		if valueA == "" && valueB == "" {
			continue
		}
		if fieldRule.Required && (valueA == "" || valueB == "") {
			return models.Candidate{}, false
		}

		started := time.Now()
		score := e.registry.Compare(ctx, valueA, valueB, fieldRule)

		fieldMatches = append(fieldMatches, models.FieldMatch{
			FieldName:   fieldRule.Field,
			MatchType:   fieldRule.MatchType,
			Score:       score,
			Matched:     score > 0 && score >= fieldRule.Threshold,
			NormalizedA: valueA,
			NormalizedB: valueB,
			Algorithm:   string(fieldRule.MatchType),
			Elapsed:     time.Since(started),
		})

		weight := fieldRule.Weight
		if weight == 0 {
			weight = 1.0
		}
		weightedSum += score * weight
		totalWeight += weight
		breakdown[fieldRule.Field] = models.FieldScoreDetail{
			Score:    score,
			Weight:   weight,
			Weighted: score * weight,
		}
	}

	if totalWeight == 0 {
		return models.Candidate{}, false
	}

	for field, detail := range breakdown {
		detail.Weighted /= totalWeight
		breakdown[field] = detail
	}

	aggregate := weightedSum / totalWeight
	if rule.EnableFuzzyBoost {
		aggregate = applyFuzzyBoost(aggregate, rule.ConfidenceThreshold, fieldMatches)
	}

	return models.Candidate{
		RecordID:     candidate.ID,
		Score:        aggregate,
		RuleID:       rule.ID,
		RuleName:     rule.Name,
		FieldMatches: fieldMatches,
		Breakdown:    breakdown,
		AutoMerge:    rule.AutoMergeThreshold > 0 && aggregate >= rule.AutoMergeThreshold,
	}, true
}

// applyFuzzyBoost nudges near-threshold scores upward when at least two
// fields scored above 0.9. The boost never exceeds 0.1 and the result never
// exceeds 1.0.
func applyFuzzyBoost(aggregate, confidenceThreshold float64, fieldMatches []models.FieldMatch) float64 {
	if aggregate >= confidenceThreshold {
		return aggregate
	}

	strong := 0
	for _, match := range fieldMatches {
		if match.Score > 0.9 {
			strong++
		}
	}
	if strong < 2 {
		return aggregate
	}

	boosted := aggregate + math.Min(0.1, 0.05*float64(strong))
	return math.Min(boosted, 1.0)
}

// normalizedValue extracts and canonicalizes one field from record data.
// Extraction failures are treated as empty values.
func (e *Engine) normalizedValue(ctx context.Context, tenantID string, data map[string]any, fieldRule models.FieldRule) string {
	raw, err := extractor.Extract(data, fieldRule.Field)
	if err != nil || raw == nil {
		return ""
	}

	switch fieldRule.FieldType {
	case models.FieldTypePhone:
		return normalizers.CoercePhone(raw)
	case models.FieldTypeURL:
		value := extractor.ToString(raw)
		if value == "" {
			return ""
		}
		return e.urls.Canonicalize(ctx, tenantID, value, fieldRule.Preprocessing)
	default:
		return normalizers.ForField(extractor.ToString(raw), fieldRule.FieldType, fieldRule.Preprocessing)
	}
}

func filterByID(rules []models.Rule, ruleID string) []models.Rule {
	for _, rule := range rules {
		if rule.ID == ruleID {
			return []models.Rule{rule}
		}
	}
	return nil
}
