// Package logic implements boolean logic-tree duplicate evaluation: an
// AND/OR tree of field conditions answering "are these two records the same
// entity" with a full trace, independent of weighted scoring.
package logic

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/extractor"
	"github.com/Ramsey-B/fern/pkg/matchers"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/urlextract"
)

// FieldLookup resolves field metadata for a tenant. A nil *FieldDefinition
// with a nil error means "not found".
type FieldLookup interface {
	BySlug(ctx context.Context, tenantID, slug string) (*models.FieldDefinition, error)
	ByName(ctx context.Context, tenantID, name string) (*models.FieldDefinition, error)
}

// Engine evaluates a rule's logic tree against a record pair
type Engine struct {
	logger   ectologger.Logger
	fields   FieldLookup
	registry *matchers.Registry
	urls     *urlextract.Extractor
}

// NewEngine creates a logic engine. A nil lookup makes every field resolve
// to the default text descriptor.
func NewEngine(logger ectologger.Logger, fields FieldLookup, registry *matchers.Registry, urls *urlextract.Extractor) *Engine {
	return &Engine{
		logger:   logger,
		fields:   fields,
		registry: registry,
		urls:     urls,
	}
}

// EvaluateRule answers whether the two records are duplicates under the
// rule's logic tree.
func (e *Engine) EvaluateRule(ctx context.Context, tenantID string, rule *models.Rule, recordA, recordB map[string]any) bool {
	return e.EvaluateRuleDetailed(ctx, tenantID, rule, recordA, recordB).IsDuplicate
}

// EvaluateRuleDetailed evaluates the tree and returns the full trace:
// which conditions matched, every field comparison, and any field-level
// failures (captured, never raised).
func (e *Engine) EvaluateRuleDetailed(ctx context.Context, tenantID string, rule *models.Rule, recordA, recordB map[string]any) *models.LogicEvalResult {
	ctx, span := tracing.StartSpan(ctx, "logic.Engine.EvaluateRuleDetailed")
	defer span.End()

	result := &models.LogicEvalResult{
		MatchedConditions: []string{},
		FieldMatches:      map[string]models.FieldMatch{},
	}

	if rule == nil || rule.LogicTree == nil {
		return result
	}

	result.IsDuplicate = e.evaluateNode(ctx, tenantID, rule.LogicTree, recordA, recordB, result)
	return result
}

// evaluateNode walks one node. AND nodes require every field condition and
// every sub-node; OR nodes succeed on the first true member. Empty nodes
// are false.
func (e *Engine) evaluateNode(ctx context.Context, tenantID string, node *models.LogicNode, recordA, recordB map[string]any, result *models.LogicEvalResult) bool {
	if node == nil || (len(node.Fields) == 0 && len(node.Conditions) == 0) {
		return false
	}

	switch node.Operator {
	case models.LogicOperatorOr:
		for _, condition := range node.Fields {
			if e.evaluateCondition(ctx, tenantID, condition, recordA, recordB, result) {
				return true
			}
		}
		for _, child := range node.Conditions {
			if e.evaluateNode(ctx, tenantID, child, recordA, recordB, result) {
				return true
			}
		}
		return false
	default: // AND
		for _, condition := range node.Fields {
			if !e.evaluateCondition(ctx, tenantID, condition, recordA, recordB, result) {
				return false
			}
		}
		for _, child := range node.Conditions {
			if !e.evaluateNode(ctx, tenantID, child, recordA, recordB, result) {
				return false
			}
		}
		return true
	}
}

// evaluateCondition compares one field pair and records the outcome in the
// trace. Any failure is captured as a trace error and counts as a
// non-match.
func (e *Engine) evaluateCondition(ctx context.Context, tenantID string, condition models.LogicCondition, recordA, recordB map[string]any, result *models.LogicEvalResult) (matched bool) {
	defer func() {
		if p := recover(); p != nil {
			result.Errors = append(result.Errors, models.LogicEvalError{
				Field:   condition.Field,
				Message: fmt.Sprintf("%v", p),
			})
			matched = false
		}
	}()

	definition := e.resolveField(ctx, tenantID, condition.Field)

	valueA, errA := e.normalizedValue(ctx, tenantID, recordA, condition.Field, definition)
	valueB, errB := e.normalizedValue(ctx, tenantID, recordB, condition.Field, definition)
	if errA != nil || errB != nil {
		err := errA
		if err == nil {
			err = errB
		}
		result.Errors = append(result.Errors, models.LogicEvalError{
			Field:   condition.Field,
			Message: err.Error(),
		})
		return false
	}

	matchType := condition.MatchType
	if !matchers.Known(matchType) {
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"field":      condition.Field,
			"match_type": matchType,
		}).Warn("Unknown match type in logic condition, defaulting to exact")
		matchType = models.MatchTypeExact
	}

	started := time.Now()
	score := e.registry.Compare(ctx, valueA, valueB, models.FieldRule{
		Field:         condition.Field,
		FieldType:     definition.FieldType,
		MatchType:     matchType,
		Threshold:     condition.Threshold,
		Preprocessing: definition.Config,
		CustomPattern: condition.CustomPattern,
	})
	matched = score > 0 && score >= condition.Threshold

	result.FieldMatches[condition.Field] = models.FieldMatch{
		FieldName:   condition.Field,
		MatchType:   matchType,
		Score:       score,
		Matched:     matched,
		NormalizedA: valueA,
		NormalizedB: valueB,
		Algorithm:   string(matchType),
		Elapsed:     time.Since(started),
	}
	if matched {
		result.MatchedConditions = append(result.MatchedConditions, condition.Field)
	}
	return matched
}

// resolveField looks the field up by slug, then by name, then synthesizes
// the default text descriptor so evaluation continues.
func (e *Engine) resolveField(ctx context.Context, tenantID, field string) models.FieldDefinition {
	if e.fields == nil {
		return models.DefaultTextField(field)
	}

	definition, err := e.fields.BySlug(ctx, tenantID, field)
	if err == nil && definition != nil {
		return *definition
	}

	definition, err = e.fields.ByName(ctx, tenantID, field)
	if err == nil && definition != nil {
		return *definition
	}

	return models.DefaultTextField(field)
}

func (e *Engine) normalizedValue(ctx context.Context, tenantID string, data map[string]any, field string, definition models.FieldDefinition) (string, error) {
	raw, err := extractor.Extract(data, field)
	if err != nil {
		return "", err
	}
	if raw == nil {
		return "", nil
	}

	switch definition.FieldType {
	case models.FieldTypePhone:
		return normalizers.CoercePhone(raw), nil
	case models.FieldTypeURL:
		value := extractor.ToString(raw)
		if value == "" {
			return "", nil
		}
		return e.urls.Canonicalize(ctx, tenantID, value, definition.Config), nil
	default:
		return normalizers.ForField(extractor.ToString(raw), definition.FieldType, definition.Config), nil
	}
}
