package mapper

import (
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/entity"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/types"
)

func OrderToResponse(item *entity.Order) *types.OrderResponse {
	if item == nil {
		return nil
	}

	items := make([]types.OrderItemPayload, 0, len(item.Items))
	for _, it := range item.Items {
		items = append(items, types.OrderItemPayload{SKU: it.SKU, Qty: it.Qty})
	}

	return &types.OrderResponse{
		ID:          item.ID,
		UserID:      item.UserID,
		Items:       items,
		AmountCents: item.AmountCents,
		Status:      item.Status,
		Version:     item.Version,
		CreatedAt:   item.CreatedAt.UTC(),
		UpdatedAt:   item.UpdatedAt.UTC(),
	}
}

func OrdersToResponse(items []*entity.Order) []*types.OrderResponse {
	result := make([]*types.OrderResponse, 0, len(items))
	for _, item := range items {
		result = append(result, OrderToResponse(item))
	}
	return result
}

func ItemsToEntity(items []types.OrderItemPayload) []entity.OrderItem {
	result := make([]entity.OrderItem, 0, len(items))
	for _, item := range items {
		result = append(result, entity.OrderItem{SKU: item.SKU, Qty: item.Qty})
	}
	return result
}

func DeadLetterToResponse(item *entity.WebhookDeadLetter) *types.DeadLetterResponse {
	if item == nil {
		return nil
	}

	return &types.DeadLetterResponse{
		ID:        item.ID,
		PaymentID: item.PaymentID,
		OrderID:   item.OrderID,
		Payload:   item.PayloadJSON,
		LastError: item.LastError,
		Attempts:  item.Attempts,
		CreatedAt: item.CreatedAt.UTC(),
	}
}

func DeadLettersToResponse(items []*entity.WebhookDeadLetter) []*types.DeadLetterResponse {
	result := make([]*types.DeadLetterResponse, 0, len(items))
	for _, item := range items {
		result = append(result, DeadLetterToResponse(item))
	}
	return result
}
