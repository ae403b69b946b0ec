package connector

import (
	"context"
	"fmt"

	"github.com/aurum/backend/internal/domain/connector"
)

// orderEnricher resolves the cross-system references of a mapped order.
// Lookup misses become record errors; only lookup failures are returned.
type orderEnricher struct {
	resolver connector.LookupResolver
	source   connector.SourceType
}

func (e *orderEnricher) enrich(ctx context.Context, result *connector.MappingResult) error {
	payload := result.Payload

	if email, ok := payload[connector.OrderUserEmailField].(string); ok && email != "" {
		userID, err := e.resolver.ResolveUserIDByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("resolve user by email: %w", err)
		}
		if userID == nil {
			result.Errors = append(result.Errors, "User not found for email: "+email)
		} else {
			payload[connector.OrderUserIDField] = userID.String()
		}
	}

	if items, ok := payload[connector.OrderItemsField].([]any); ok {
		kept, errs, err := e.resolveItems(ctx, items)
		if err != nil {
			return err
		}
		payload[connector.OrderItemsField] = kept
		result.Errors = append(result.Errors, errs...)
	}

	payload[connector.OrderTypeField] = connector.OrderTypePurchase
	return nil
}

// resolveItems keeps the line items whose product resolves and reports the rest
func (e *orderEnricher) resolveItems(ctx context.Context, items []any) ([]any, []string, error) {
	kept := make([]any, 0, len(items))
	var errs []string

	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			errs = append(errs, "Line item missing product id")
			continue
		}
		externalID, ok := itemProductExternalID(item)
		if !ok {
			errs = append(errs, "Line item missing product id")
			continue
		}

		productID, err := e.resolver.ResolveProductIDByExternalID(ctx, e.source, externalID)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve product %s: %w", externalID, err)
		}
		if productID == nil {
			errs = append(errs, "Product not found for external id: "+externalID)
			continue
		}

		resolved := make(map[string]any, len(item)+1)
		for k, v := range item {
			resolved[k] = v
		}
		resolved[connector.ItemProductIDField] = productID.String()
		kept = append(kept, resolved)
	}
	return kept, errs, nil
}

// itemProductExternalID prefers a mapped productExternalId and falls back to
// the raw WooCommerce product_id.
func itemProductExternalID(item map[string]any) (string, bool) {
	if id, ok := connector.ExternalIDFrom(item[connector.ItemExternalProductIDField]); ok {
		return id, true
	}
	return connector.ExternalIDFrom(item["product_id"])
}
