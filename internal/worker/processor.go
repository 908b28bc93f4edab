// Package worker persists delivery-status events drained from SQS.
package worker

import (
	"context"

	"chatgw/internal/observability"
	sqsqueue "chatgw/internal/queue/sqs"
	"chatgw/internal/store"
)

type Store interface {
	InsertDeliveryEvent(ctx context.Context, in store.DeliveryEvent) error
}

type Processor struct {
	Store Store
}

// Process writes one event. Errors propagate so the consumer leaves the
// message on the queue for redrive.
func (p *Processor) Process(ctx context.Context, ev sqsqueue.StatusEvent) error {
	err := p.Store.InsertDeliveryEvent(ctx, store.DeliveryEvent{
		Provider:      ev.Provider,
		ProviderMsgID: ev.ProviderMsgID,
		VendorStatus:  ev.Status,
		ErrorCode:     ev.ErrorCode,
		Payload: map[string]any{
			"recipient": ev.Recipient,
		},
		OccurredAt: ev.ReceivedAt,
	})
	if err != nil {
		return err
	}
	observability.StatusEvents.WithLabelValues(ev.Provider, ev.Status).Inc()
	return nil
}
