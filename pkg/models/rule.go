package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// MatchType identifies the comparison algorithm for a field rule
type MatchType string

const (
	MatchTypeExact           MatchType = "exact"            // Byte-for-byte string equality
	MatchTypeCaseInsensitive MatchType = "case_insensitive" // Equality after lower-casing
	MatchTypeLevenshtein     MatchType = "levenshtein"      // Edit-distance ratio
	MatchTypeJaroWinkler     MatchType = "jaro_winkler"     // Prefix-boosted Jaro similarity
	MatchTypeFuzzy           MatchType = "fuzzy"            // Max of full/partial/token-sort/token-set ratios
	MatchTypeSoundex         MatchType = "soundex"          // Phonetic code equality
	MatchTypeMetaphone       MatchType = "metaphone"        // Phonetic code equality
	MatchTypeCosine          MatchType = "cosine"           // TF-IDF bigram cosine similarity
	MatchTypeJaccard         MatchType = "jaccard"          // Token-set intersection / union
	MatchTypePartial         MatchType = "partial"          // Substring containment ratio
	MatchTypeEmailDomain     MatchType = "email_domain"     // Equality of the domain after '@'
	MatchTypePhone           MatchType = "phone_normalized" // Equality after phone normalization
	MatchTypeRegex           MatchType = "regex"            // Capture-group equality under a custom pattern
	MatchTypeNumeric         MatchType = "numeric"          // Format-aware float equality
)

// FieldType identifies how a field's values are normalized before comparison
type FieldType string

const (
	FieldTypeText    FieldType = "text"
	FieldTypeEmail   FieldType = "email"
	FieldTypePhone   FieldType = "phone"
	FieldTypeURL     FieldType = "url"
	FieldTypeCompany FieldType = "company"
	FieldTypeNumber  FieldType = "number"
)

// Number format hints for numeric matching
const (
	NumberFormatCurrency   = "currency"
	NumberFormatPercentage = "percentage"
)

// PreprocessingOptions controls normalization for a single field rule.
// Pointer fields distinguish "unset" (use the default) from an explicit false.
type PreprocessingOptions struct {
	NormalizeCase      *bool  `json:"normalize_case,omitempty"`      // default true
	CollapseWhitespace *bool  `json:"collapse_whitespace,omitempty"` // default true
	StripPunctuation   bool   `json:"strip_punctuation,omitempty"`
	StripAccents       bool   `json:"strip_accents,omitempty"`
	AutoLowercase      *bool  `json:"auto_lowercase,omitempty"`  // email fields, default true
	TrimWhitespace     *bool  `json:"trim_whitespace,omitempty"` // email fields, default true
	NumberFormat       string `json:"number_format,omitempty"`   // "", "currency", "percentage"

	// URL fields: which extraction rules to consider. Empty list with
	// AllExtractionRules false means "all active tenant rules".
	ExtractionRuleIDs  []string `json:"extraction_rule_ids,omitempty"`
	AllExtractionRules bool     `json:"all_extraction_rules,omitempty"`
}

// FieldRule is one field's comparison configuration within a Rule
type FieldRule struct {
	Field         string               `json:"field" validate:"required"` // Field reference in record data (dot notation)
	FieldType     FieldType            `json:"field_type"`
	MatchType     MatchType            `json:"match_type" validate:"required"`
	Weight        float64              `json:"weight" validate:"gte=0"`
	Threshold     float64              `json:"threshold" validate:"gte=0,lte=1"`
	Required      bool                 `json:"required"` // Missing on either side disqualifies the candidate
	Preprocessing PreprocessingOptions `json:"preprocessing"`
	CustomPattern string               `json:"custom_pattern,omitempty"` // For regex match type
}

// Rule is a tenant-scoped duplicate-detection configuration. Rules are
// immutable inputs to the engines; they are created and edited elsewhere.
type Rule struct {
	ID                  string      `json:"id" db:"id"`
	TenantID            string      `json:"tenant_id" db:"tenant_id"`
	PipelineID          string      `json:"pipeline_id" db:"pipeline_id"`
	Name                string      `json:"name" db:"name" validate:"required"`
	Priority            int         `json:"priority" db:"priority"`
	IsActive            bool        `json:"is_active" db:"is_active"`
	FieldRules          []FieldRule `json:"field_rules" validate:"required,min=1,dive"`
	ConfidenceThreshold float64     `json:"confidence_threshold" validate:"gte=0,lte=1"`
	AutoMergeThreshold  float64     `json:"auto_merge_threshold" validate:"gte=0,lte=1"`
	EnableFuzzyBoost    bool        `json:"enable_fuzzy_boost"`
	LogicTree           *LogicNode  `json:"logic_tree,omitempty"` // For logic-tree evaluation
	CreatedAt           time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at" db:"updated_at"`
	DeletedAt           *time.Time  `json:"deleted_at,omitempty" db:"deleted_at"`
}

var validate = validator.New()

// Validate checks structural invariants (at least one field rule, weights
// non-negative, thresholds in [0,1])
func (r *Rule) Validate() error {
	return validate.Struct(r)
}

// FieldDefinition is the metadata the logic engine resolves per field slug
type FieldDefinition struct {
	Slug      string               `json:"slug" db:"slug"`
	Name      string               `json:"name" db:"name"`
	FieldType FieldType            `json:"field_type" db:"field_type"`
	Config    PreprocessingOptions `json:"config"`
}

// DefaultTextField returns the descriptor substituted when a field cannot be
// resolved by slug or name. Evaluation continues with plain text semantics.
func DefaultTextField(slug string) FieldDefinition {
	return FieldDefinition{
		Slug:      slug,
		Name:      slug,
		FieldType: FieldTypeText,
	}
}
