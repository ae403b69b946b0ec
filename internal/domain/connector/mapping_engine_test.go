package connector

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyRules_StockStatus(t *testing.T) {
	rule := MappingRule{SourceField: "status", TargetField: "inStock", Transform: &Transform{Type: TransformStockStatus}}

	t.Run("instock maps to true", func(t *testing.T) {
		result := ApplyRules(map[string]any{"status": "instock"}, []MappingRule{rule})
		assert.Equal(t, map[string]any{"inStock": true}, result.Payload)
		assert.Empty(t, result.Errors)
	})

	t.Run("outofstock and onbackorder map to false", func(t *testing.T) {
		for _, status := range []string{"outofstock", "onbackorder"} {
			result := ApplyRules(map[string]any{"status": status}, []MappingRule{rule})
			assert.Equal(t, false, result.Payload["inStock"], status)
			assert.Empty(t, result.Errors)
		}
	})

	t.Run("unknown value on required rule records transform failure", func(t *testing.T) {
		required := rule
		required.Required = true
		result := ApplyRules(map[string]any{"status": "discontinued"}, []MappingRule{required})
		assert.Equal(t, []string{"Transform failed for: status"}, result.Errors)
		assert.NotContains(t, result.Payload, "inStock")
	})

	t.Run("unknown value on optional rule is dropped silently", func(t *testing.T) {
		result := ApplyRules(map[string]any{"status": "discontinued"}, []MappingRule{rule})
		assert.Empty(t, result.Errors)
		assert.Empty(t, result.Payload)
	})
}

func TestApplyRules_MissingSource(t *testing.T) {
	t.Run("required nested field", func(t *testing.T) {
		rules := []MappingRule{{SourceField: "billing.email", TargetField: "userEmail", Required: true}}
		result := ApplyRules(map[string]any{}, rules)
		assert.Equal(t, []string{"Missing source field: billing.email"}, result.Errors)
		assert.Empty(t, result.Payload)
	})

	t.Run("optional field is skipped without writing a key", func(t *testing.T) {
		rules := []MappingRule{{SourceField: "sku", TargetField: "sku"}}
		result := ApplyRules(map[string]any{"name": "Bar"}, rules)
		assert.Empty(t, result.Errors)
		assert.NotContains(t, result.Payload, "sku")
	})

	t.Run("non-object intermediate is absent", func(t *testing.T) {
		rules := []MappingRule{{SourceField: "billing.email", TargetField: "userEmail", Required: true}}
		result := ApplyRules(map[string]any{"billing": "n/a"}, rules)
		assert.Equal(t, []string{"Missing source field: billing.email"}, result.Errors)
	})

	t.Run("null leaf is written as null", func(t *testing.T) {
		rules := []MappingRule{{SourceField: "sku", TargetField: "sku", Required: true}}
		result := ApplyRules(map[string]any{"sku": nil}, rules)
		assert.Empty(t, result.Errors)
		assert.Contains(t, result.Payload, "sku")
		assert.Nil(t, result.Payload["sku"])
	})

	t.Run("null leaf reaches the transform", func(t *testing.T) {
		rules := []MappingRule{{SourceField: "sku", TargetField: "sku", Required: true, Transform: &Transform{Type: TransformString}}}
		result := ApplyRules(map[string]any{"sku": nil}, rules)
		assert.Equal(t, []string{"Transform failed for: sku"}, result.Errors)
		assert.NotContains(t, result.Payload, "sku")
	})

	t.Run("null intermediate is absent", func(t *testing.T) {
		rules := []MappingRule{{SourceField: "billing.email", TargetField: "userEmail", Required: true}}
		result := ApplyRules(map[string]any{"billing": nil}, rules)
		assert.Equal(t, []string{"Missing source field: billing.email"}, result.Errors)
	})

	t.Run("array index segment", func(t *testing.T) {
		rules := []MappingRule{{SourceField: "images.0.src", TargetField: "image"}}
		raw := map[string]any{"images": []any{map[string]any{"src": "a.png"}}}
		result := ApplyRules(raw, rules)
		assert.Equal(t, "a.png", result.Payload["image"])
	})
}

func TestApplyRules_NestedTarget(t *testing.T) {
	rules := []MappingRule{{SourceField: "id", TargetField: "meta.externalId"}}
	result := ApplyRules(map[string]any{"id": 42}, rules)

	assert.Empty(t, result.Errors)
	assert.Equal(t, map[string]any{"meta": map[string]any{"externalId": 42}}, result.Payload)
}

func TestApplyRules_LastWriteWins(t *testing.T) {
	rules := []MappingRule{
		{SourceField: "regular_price", TargetField: "price"},
		{SourceField: "sale_price", TargetField: "price"},
	}
	result := ApplyRules(map[string]any{"regular_price": "10", "sale_price": "8"}, rules)
	assert.Equal(t, "8", result.Payload["price"])
}

func TestApplyRules_NestedTargetReplacesScalar(t *testing.T) {
	rules := []MappingRule{
		{SourceField: "a", TargetField: "meta"},
		{SourceField: "b", TargetField: "meta.b"},
	}
	result := ApplyRules(map[string]any{"a": "scalar", "b": 1}, rules)
	assert.Equal(t, map[string]any{"b": 1}, result.Payload["meta"])
}

func TestApplyRules_DoesNotMutateInput(t *testing.T) {
	raw := map[string]any{"currency": "usd"}
	rules := []MappingRule{{SourceField: "currency", TargetField: "currency", Transform: &Transform{Type: TransformCurrency}}}
	result := ApplyRules(raw, rules)
	assert.Equal(t, "USD", result.Payload["currency"])
	assert.Equal(t, "usd", raw["currency"])

	t.Run("nested write into a copied object", func(t *testing.T) {
		raw := map[string]any{
			"id":      float64(7),
			"billing": map[string]any{"email": "a@b.c"},
		}
		rules := []MappingRule{
			{SourceField: "billing", TargetField: "customer"},
			{SourceField: "id", TargetField: "customer.externalId"},
		}
		result := ApplyRules(raw, rules)

		assert.Equal(t, map[string]any{"email": "a@b.c", "externalId": float64(7)}, result.Payload["customer"])
		assert.Equal(t, map[string]any{"email": "a@b.c"}, raw["billing"])
	})

	t.Run("two targets copied from one source stay independent", func(t *testing.T) {
		raw := map[string]any{
			"name":       "Bar",
			"dimensions": map[string]any{"w": "1"},
			"tags":       []any{map[string]any{"slug": "gold"}},
		}
		rules := []MappingRule{
			{SourceField: "dimensions", TargetField: "specs"},
			{SourceField: "dimensions", TargetField: "size"},
			{SourceField: "name", TargetField: "specs.label"},
			{SourceField: "tags", TargetField: "tags"},
		}
		result := ApplyRules(raw, rules)

		assert.Equal(t, map[string]any{"w": "1", "label": "Bar"}, result.Payload["specs"])
		assert.Equal(t, map[string]any{"w": "1"}, result.Payload["size"])
		assert.Equal(t, map[string]any{"w": "1"}, raw["dimensions"])

		result.Payload["tags"].([]any)[0].(map[string]any)["slug"] = "silver"
		assert.Equal(t, "gold", raw["tags"].([]any)[0].(map[string]any)["slug"])
	})
}

func TestApplyTransform(t *testing.T) {
	enumMap := map[string]string{"publish": "active", "draft": "inactive"}

	tests := []struct {
		name      string
		value     any
		transform Transform
		want      any
		wantOK    bool
	}{
		{"enum exact match", "publish", Transform{Type: TransformEnum, Map: enumMap}, "active", true},
		{"enum lowercase match", "DRAFT", Transform{Type: TransformEnum, Map: enumMap}, "inactive", true},
		{"enum fallback to raw", "trash", Transform{Type: TransformEnum, Map: enumMap}, "trash", true},
		{"enum without map", "x", Transform{Type: TransformEnum}, "x", true},
		{"enum non-string fails", 3.0, Transform{Type: TransformEnum, Map: enumMap}, nil, false},
		{"number from string", "1999.95", Transform{Type: TransformNumber}, json.Number("1999.95"), true},
		{"number keeps precision", "0.1", Transform{Type: TransformNumber}, json.Number("0.1"), true},
		{"number from float", 12.5, Transform{Type: TransformNumber}, json.Number("12.5"), true},
		{"number from int", 7, Transform{Type: TransformNumber}, json.Number("7"), true},
		{"number from blank string", "  ", Transform{Type: TransformNumber}, json.Number("0"), true},
		{"number from bool", true, Transform{Type: TransformNumber}, json.Number("1"), true},
		{"number from json.Number", json.Number("3.20"), Transform{Type: TransformNumber}, json.Number("3.2"), true},
		{"number non-numeric fails", "abc", Transform{Type: TransformNumber}, nil, false},
		{"number NaN fails", math.NaN(), Transform{Type: TransformNumber}, nil, false},
		{"number object fails", map[string]any{}, Transform{Type: TransformNumber}, nil, false},
		{"currency uppercases", "eur", Transform{Type: TransformCurrency}, "EUR", true},
		{"currency non-string fails", 1.0, Transform{Type: TransformCurrency}, nil, false},
		{"string from number", 42.0, Transform{Type: TransformString}, "42", true},
		{"string from int", 42, Transform{Type: TransformString}, "42", true},
		{"string from bool", false, Transform{Type: TransformString}, "false", true},
		{"string from object", map[string]any{"a": 1.0}, Transform{Type: TransformString}, `{"a":1}`, true},
		{"string from null fails", nil, Transform{Type: TransformString}, nil, false},
		{"number from float32", float32(2.5), Transform{Type: TransformNumber}, json.Number("2.5"), true},
		{"number float32 NaN fails", float32(math.NaN()), Transform{Type: TransformNumber}, nil, false},
		{"number float32 Inf fails", float32(math.Inf(1)), Transform{Type: TransformNumber}, nil, false},
		{"number from null fails", nil, Transform{Type: TransformNumber}, nil, false},
		{"boolean from empty string", "", Transform{Type: TransformBoolean}, false, true},
		{"boolean from text", "no", Transform{Type: TransformBoolean}, true, true},
		{"boolean from zero", 0.0, Transform{Type: TransformBoolean}, false, true},
		{"boolean from object", map[string]any{}, Transform{Type: TransformBoolean}, true, true},
		{"boolean from null", nil, Transform{Type: TransformBoolean}, false, true},
		{"boolean from float32 zero", float32(0), Transform{Type: TransformBoolean}, false, true},
		{"boolean from int32 zero", int32(0), Transform{Type: TransformBoolean}, false, true},
		{"boolean from uint zero", uint(0), Transform{Type: TransformBoolean}, false, true},
		{"boolean from uint8", uint8(3), Transform{Type: TransformBoolean}, true, true},
		{"lowercase", "Gold BAR", Transform{Type: TransformLowercase}, "gold bar", true},
		{"lowercase non-string fails", true, Transform{Type: TransformLowercase}, nil, false},
		{"stockStatus is case sensitive", "InStock", Transform{Type: TransformStockStatus}, nil, false},
		{"unknown transform fails", "x", Transform{Type: "reverse"}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := applyTransform(tt.value, tt.transform)
			require.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyRules_DefaultProductRules(t *testing.T) {
	raw := map[string]any{
		"id":             float64(501),
		"name":           "1 oz Gold Maple Leaf",
		"sku":            "GML-1OZ",
		"type":           "Simple",
		"status":         "publish",
		"price":          "2450.10",
		"stock_status":   "onbackorder",
		"stock_quantity": nil,
		"weight":         "0.0311",
	}

	result := ApplyRules(raw, DefaultProductRules())

	require.Empty(t, result.Errors)
	assert.Equal(t, "501", result.Payload["externalId"])
	assert.Equal(t, "simple", result.Payload["productType"])
	assert.Equal(t, "active", result.Payload["status"])
	assert.Equal(t, json.Number("2450.1"), result.Payload["price"])
	assert.Equal(t, false, result.Payload["inStock"])
	assert.NotContains(t, result.Payload, "stockQuantity")
	assert.Equal(t, map[string]any{"weight": json.Number("0.0311")}, result.Payload["specs"])
}

func TestApplyRules_DefaultOrderRulesCollectAllErrors(t *testing.T) {
	raw := map[string]any{
		"id":     float64(9),
		"status": "processing",
		"total":  "abc",
	}

	result := ApplyRules(raw, DefaultOrderRules())

	assert.ElementsMatch(t, []string{
		"Missing source field: currency",
		"Transform failed for: total",
		"Missing source field: billing.email",
		"Missing source field: line_items",
	}, result.Errors)
	assert.Equal(t, "9", result.Payload["externalId"])
	assert.Equal(t, "processing", result.Payload["status"])
}
