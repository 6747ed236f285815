// Package detection is the context-resolved entry point for callers that
// wire the engines through the DI container. Resolution failures degrade to
// empty results so a misconfigured caller never sees a detection panic.
package detection

import (
	"context"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/logic"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/scoring"
)

// DetectDuplicates resolves the scoring engine from the context and runs a
// detection call. An unresolvable engine yields an empty result.
func DetectDuplicates(ctx context.Context, tenantID, pipelineID string, record models.Record, opts scoring.Options) []models.Candidate {
	ctx, engine, err := ectoinject.GetContext[*scoring.Engine](ctx)
	if err != nil || engine == nil {
		warn(ctx, "Scoring engine not available")
		return []models.Candidate{}
	}
	return engine.DetectDuplicates(ctx, tenantID, pipelineID, record, opts)
}

// EvaluateRule resolves the logic engine and evaluates the rule's logic
// tree. An unresolvable engine evaluates to false.
func EvaluateRule(ctx context.Context, tenantID string, rule *models.Rule, recordA, recordB map[string]any) bool {
	return EvaluateRuleDetailed(ctx, tenantID, rule, recordA, recordB).IsDuplicate
}

// EvaluateRuleDetailed resolves the logic engine and returns the full
// evaluation trace.
func EvaluateRuleDetailed(ctx context.Context, tenantID string, rule *models.Rule, recordA, recordB map[string]any) *models.LogicEvalResult {
	ctx, engine, err := ectoinject.GetContext[*logic.Engine](ctx)
	if err != nil || engine == nil {
		warn(ctx, "Logic engine not available")
		return &models.LogicEvalResult{
			MatchedConditions: []string{},
			FieldMatches:      map[string]models.FieldMatch{},
		}
	}
	return engine.EvaluateRuleDetailed(ctx, tenantID, rule, recordA, recordB)
}

func warn(ctx context.Context, message string) {
	ctx, logger, err := ectoinject.GetContext[ectologger.Logger](ctx)
	if err != nil || logger == nil {
		return
	}
	logger.WithContext(ctx).Warn(message)
}
