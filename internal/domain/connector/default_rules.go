package connector

// Built-in rule sets used when a connector has no custom rules for an entity.
// They target the WooCommerce REST v3 payload shape.

// Mapped payload fields the order enrichment step reads and writes
const (
	OrderUserEmailField = "userEmail"
	OrderUserIDField    = "userId"
	OrderItemsField     = "items"
	OrderTypeField      = "type"
	OrderTypePurchase   = "purchase"

	ItemExternalProductIDField = "productExternalId"
	ItemProductIDField         = "productId"
)

var productStatusMap = map[string]string{
	"publish": "active",
	"draft":   "inactive",
	"pending": "inactive",
	"private": "inactive",
}

var orderStatusMap = map[string]string{
	"pending":    "pending",
	"on-hold":    "pending",
	"processing": "processing",
	"completed":  "completed",
	"cancelled":  "cancelled",
	"refunded":   "refunded",
	"failed":     "failed",
}

// DefaultProductRules returns the built-in product rule set
func DefaultProductRules() []MappingRule {
	return []MappingRule{
		{SourceField: "id", TargetField: "externalId", Required: true, Transform: &Transform{Type: TransformString}},
		{SourceField: "name", TargetField: "name", Required: true},
		{SourceField: "sku", TargetField: "sku"},
		{SourceField: "type", TargetField: "productType", Transform: &Transform{Type: TransformLowercase}},
		{SourceField: "status", TargetField: "status", Transform: &Transform{Type: TransformEnum, Map: productStatusMap}},
		{SourceField: "price", TargetField: "price", Required: true, Transform: &Transform{Type: TransformNumber}},
		{SourceField: "regular_price", TargetField: "regularPrice", Transform: &Transform{Type: TransformNumber}},
		{SourceField: "sale_price", TargetField: "salePrice", Transform: &Transform{Type: TransformNumber}},
		{SourceField: "stock_status", TargetField: "inStock", Transform: &Transform{Type: TransformStockStatus}},
		{SourceField: "stock_quantity", TargetField: "stockQuantity", Transform: &Transform{Type: TransformNumber}},
		{SourceField: "weight", TargetField: "specs.weight", Transform: &Transform{Type: TransformNumber}},
		{SourceField: "virtual", TargetField: "isVirtual", Transform: &Transform{Type: TransformBoolean}},
		{SourceField: "short_description", TargetField: "summary", Transform: &Transform{Type: TransformString}},
		{SourceField: "date_modified_gmt", TargetField: "externalUpdatedAt"},
	}
}

// DefaultOrderRules returns the built-in order rule set
func DefaultOrderRules() []MappingRule {
	return []MappingRule{
		{SourceField: "id", TargetField: "externalId", Required: true, Transform: &Transform{Type: TransformString}},
		{SourceField: "number", TargetField: "orderNumber", Transform: &Transform{Type: TransformString}},
		{SourceField: "status", TargetField: "status", Required: true, Transform: &Transform{Type: TransformEnum, Map: orderStatusMap}},
		{SourceField: "currency", TargetField: "currency", Required: true, Transform: &Transform{Type: TransformCurrency}},
		{SourceField: "total", TargetField: "total", Required: true, Transform: &Transform{Type: TransformNumber}},
		{SourceField: "total_tax", TargetField: "totalTax", Transform: &Transform{Type: TransformNumber}},
		{SourceField: "shipping_total", TargetField: "shippingTotal", Transform: &Transform{Type: TransformNumber}},
		{SourceField: "billing.email", TargetField: OrderUserEmailField, Required: true, Transform: &Transform{Type: TransformLowercase}},
		{SourceField: "payment_method", TargetField: "paymentMethod"},
		{SourceField: "date_created_gmt", TargetField: "placedAt"},
		{SourceField: "line_items", TargetField: OrderItemsField, Required: true},
	}
}

// DefaultRules returns the built-in rule set for an entity type
func DefaultRules(entity EntityType) []MappingRule {
	switch entity {
	case EntityTypeProduct:
		return DefaultProductRules()
	case EntityTypeOrder:
		return DefaultOrderRules()
	default:
		return nil
	}
}
