package connector

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MappingResult is the output of applying a rule list to one payload
type MappingResult struct {
	Payload map[string]any
	Errors  []string
}

// HasErrors reports whether any rule produced an error
func (r MappingResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// ApplyRules runs the rules in order against raw. It never performs I/O and
// never fails as a whole: problems are collected in Errors.
// When two rules write the same target path the later one wins.
func ApplyRules(raw map[string]any, rules []MappingRule) MappingResult {
	result := MappingResult{
		Payload: map[string]any{},
		Errors:  []string{},
	}

	for _, rule := range rules {
		value, ok := lookupPath(raw, rule.SourceField)
		if !ok {
			if rule.Required {
				result.Errors = append(result.Errors, "Missing source field: "+rule.SourceField)
			}
			continue
		}

		if rule.Transform != nil {
			value, ok = applyTransform(value, *rule.Transform)
			if !ok {
				if rule.Required {
					result.Errors = append(result.Errors, "Transform failed for: "+rule.SourceField)
				}
				continue
			}
		}

		assignPath(result.Payload, rule.TargetField, cloneValue(value))
	}

	return result
}

// lookupPath resolves a dot path. Missing keys and null or non-container
// intermediates are reported as absent; a null leaf is present. Numeric
// segments index into arrays.
func lookupPath(data map[string]any, path string) (any, bool) {
	var current any = data
	for _, part := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, exists := node[part]
			if !exists {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// assignPath writes value at a dot path, replacing non-map intermediates
func assignPath(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	node := data
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[part] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = value
}

// cloneValue deep-copies objects and arrays so the payload never shares
// containers with the raw record or with another rule's output.
func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = cloneValue(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = cloneValue(child)
		}
		return out
	default:
		return value
	}
}

// ---------------------------------------------------------------------------
// Transforms
// ---------------------------------------------------------------------------

var (
	upperCaser = cases.Upper(language.Und)
	lowerCaser = cases.Lower(language.Und)
)

// applyTransform returns the converted value and false when the transform fails
func applyTransform(value any, t Transform) (any, bool) {
	switch t.Type {
	case TransformEnum:
		s, ok := value.(string)
		if !ok {
			return nil, false
		}
		if mapped, found := t.Map[s]; found {
			return mapped, true
		}
		if mapped, found := t.Map[strings.ToLower(s)]; found {
			return mapped, true
		}
		return s, true
	case TransformNumber:
		return toNumber(value)
	case TransformCurrency:
		s, ok := value.(string)
		if !ok {
			return nil, false
		}
		return upperCaser.String(s), true
	case TransformString:
		if value == nil {
			return nil, false
		}
		return stringify(value), true
	case TransformBoolean:
		return truthy(value), true
	case TransformLowercase:
		s, ok := value.(string)
		if !ok {
			return nil, false
		}
		return lowerCaser.String(s), true
	case TransformStockStatus:
		s, ok := value.(string)
		if !ok {
			return nil, false
		}
		switch s {
		case "instock":
			return true, true
		case "outofstock", "onbackorder":
			return false, true
		}
		return nil, false
	default:
		return nil, false
	}
}

// toNumber coerces a value to an exact decimal rendered as json.Number.
// Blank strings become 0 and booleans 1 or 0; anything else non-numeric fails.
func toNumber(value any) (any, bool) {
	var d decimal.Decimal
	switch v := value.(type) {
	case json.Number:
		parsed, err := decimal.NewFromString(v.String())
		if err != nil {
			return nil, false
		}
		d = parsed
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
		d = decimal.NewFromFloat(v)
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, false
		}
		d = decimal.NewFromFloat32(v)
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	case int32:
		d = decimal.NewFromInt32(v)
	case bool:
		if v {
			d = decimal.NewFromInt(1)
		}
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return json.Number("0"), true
		}
		parsed, err := decimal.NewFromString(trimmed)
		if err != nil {
			return nil, false
		}
		d = parsed
	default:
		return nil, false
	}
	return json.Number(d.String()), true
}

// stringify renders scalars in their natural text form and composites as JSON
func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	default:
		return fmt.Sprint(v)
	}
}

// truthy mirrors loose truthiness: null, false, zero, NaN and "" are false
func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0 && !math.IsNaN(v)
	case float32:
		return v != 0 && !math.IsNaN(float64(v))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return !reflect.ValueOf(v).IsZero()
	case json.Number:
		f, err := v.Float64()
		return err == nil && f != 0
	default:
		return value != nil
	}
}
