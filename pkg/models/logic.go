package models

// LogicOperator is the node type in a rule's logic tree
type LogicOperator string

const (
	LogicOperatorAnd LogicOperator = "AND"
	LogicOperatorOr  LogicOperator = "OR"
)

// LogicCondition is a single field comparison inside an AND node
type LogicCondition struct {
	Field         string    `json:"field"` // Field slug, falling back to field name
	MatchType     MatchType `json:"match_type"`
	Threshold     float64   `json:"threshold,omitempty"`
	CustomPattern string    `json:"custom_pattern,omitempty"`
}

// LogicNode is one node of a nested AND/OR condition tree. AND nodes carry
// field conditions; OR nodes carry nested sub-nodes.
type LogicNode struct {
	Operator   LogicOperator    `json:"operator"`
	Fields     []LogicCondition `json:"fields,omitempty"`
	Conditions []*LogicNode     `json:"conditions,omitempty"`
}

// LogicEvalError records a field-level failure captured during evaluation
type LogicEvalError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// LogicEvalResult is the full trace of a logic-tree evaluation
type LogicEvalResult struct {
	IsDuplicate       bool                  `json:"is_duplicate"`
	MatchedConditions []string              `json:"matched_conditions"`
	FieldMatches      map[string]FieldMatch `json:"field_matches"`
	Errors            []LogicEvalError      `json:"errors,omitempty"`
}
