package connector

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ---------------------------------------------------------------------------
// TransformType
// ---------------------------------------------------------------------------

// TransformType is the closed set of value conversions a rule may apply
type TransformType string

const (
	TransformEnum        TransformType = "enum"
	TransformNumber      TransformType = "number"
	TransformCurrency    TransformType = "currency"
	TransformString      TransformType = "string"
	TransformBoolean     TransformType = "boolean"
	TransformLowercase   TransformType = "lowercase"
	TransformStockStatus TransformType = "stockStatus"
)

// IsValid returns true if the transform type is known
func (t TransformType) IsValid() bool {
	switch t {
	case TransformEnum, TransformNumber, TransformCurrency, TransformString,
		TransformBoolean, TransformLowercase, TransformStockStatus:
		return true
	default:
		return false
	}
}

// String returns the string representation of TransformType
func (t TransformType) String() string {
	return string(t)
}

// ---------------------------------------------------------------------------
// MappingRule value object
// ---------------------------------------------------------------------------

// Transform describes an optional conversion. Map is only used by enum.
type Transform struct {
	Type TransformType     `json:"type" validate:"required,oneof=enum number currency string boolean lowercase stockStatus"`
	Map  map[string]string `json:"map,omitempty"`
}

// MappingRule maps one dot-path source field to one dot-path target field
type MappingRule struct {
	SourceField string     `json:"sourceField" validate:"required"`
	TargetField string     `json:"targetField" validate:"required"`
	Required    bool       `json:"required,omitempty"`
	Transform   *Transform `json:"transform,omitempty"`
}

// RuleSets holds custom rules per entity type. Missing entries mean defaults.
type RuleSets map[EntityType][]MappingRule

// ruleDocument is the stored JSON shape of custom mapping rules
type ruleDocument struct {
	Products []MappingRule `json:"products" validate:"dive"`
	Orders   []MappingRule `json:"orders" validate:"dive"`
}

var ruleValidator = validator.New(validator.WithRequiredStructEnabled())

// ParseRuleSets parses and validates a custom rules document of the form
// {"products": [rule...], "orders": [rule...]}. A bare [rule...] array applies
// to every entity type. Empty lists are omitted.
func ParseRuleSets(doc string) (RuleSets, error) {
	doc = strings.TrimSpace(doc)
	if strings.HasPrefix(doc, "[") {
		return parseRuleList(doc)
	}

	var parsed ruleDocument
	decoder := json.NewDecoder(strings.NewReader(doc))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMappingRules, err)
	}
	if err := ruleValidator.Struct(parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMappingRules, err)
	}

	sets := RuleSets{}
	if len(parsed.Products) > 0 {
		sets[EntityTypeProduct] = parsed.Products
	}
	if len(parsed.Orders) > 0 {
		sets[EntityTypeOrder] = parsed.Orders
	}
	return sets, nil
}

func parseRuleList(doc string) (RuleSets, error) {
	var rules []MappingRule
	decoder := json.NewDecoder(strings.NewReader(doc))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&rules); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMappingRules, err)
	}
	for i := range rules {
		if err := ruleValidator.Struct(&rules[i]); err != nil {
			return nil, fmt.Errorf("%w: rule %d: %v", ErrInvalidMappingRules, i, err)
		}
	}

	sets := RuleSets{}
	if len(rules) > 0 {
		for _, entity := range AllEntityTypes() {
			sets[entity] = rules
		}
	}
	return sets, nil
}

// RulesFor returns the custom rules for the entity, or the built-in defaults
// when no custom rules exist for it.
func (s RuleSets) RulesFor(entity EntityType) []MappingRule {
	if rules, ok := s[entity]; ok && len(rules) > 0 {
		return rules
	}
	return DefaultRules(entity)
}
