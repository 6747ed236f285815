package models

import "time"

// Record is a candidate record as returned by the candidate-lookup
// collaborator: an id plus a flat-ish map of field slug to value.
type Record struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// FieldMatch is the outcome of comparing one field pair
type FieldMatch struct {
	FieldName   string        `json:"field_name"`
	MatchType   MatchType     `json:"match_type"`
	Score       float64       `json:"score"` // 0..1; boolean algorithms report 0 or 1
	Matched     bool          `json:"matched"`
	NormalizedA string        `json:"normalized_a"`
	NormalizedB string        `json:"normalized_b"`
	Algorithm   string        `json:"algorithm"`
	Elapsed     time.Duration `json:"elapsed"`
}

// FieldScoreDetail is one field's contribution to a candidate's score.
// Weighted is the field's share of the aggregate: score * weight / Σweight.
type FieldScoreDetail struct {
	Score    float64 `json:"score"`
	Weight   float64 `json:"weight"`
	Weighted float64 `json:"weighted"`
}

// Candidate is a scored potential duplicate of the input record
type Candidate struct {
	RecordID     string                      `json:"record_id"`
	Score        float64                     `json:"score"`
	RuleID       string                      `json:"rule_id"`
	RuleName     string                      `json:"rule_name"`
	FieldMatches []FieldMatch                `json:"field_matches"`
	Breakdown    map[string]FieldScoreDetail `json:"confidence_breakdown"`
	AutoMerge    bool                        `json:"auto_merge"`
}
