package events

import (
	"context"

	"shopping/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, event models.PurchaseEvent) error
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.PurchaseEvent) error {
	return nil
}
