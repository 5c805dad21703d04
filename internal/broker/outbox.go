package broker

import (
	"context"

	"clubpay/pkg/platform/outbox"
)

// OutboxPublisher adapts a Publisher to the outbox relay. The outbox entry id
// becomes the message id, so a relay retry after a lost ack republishes
// under the same id and consumers deduplicate it. Permanent publish errors
// park the entry.
func OutboxPublisher(p Publisher) outbox.PublishFunc {
	return func(ctx context.Context, e outbox.Entry) error {
		err := p.Publish(ctx, Message{
			ID:         e.ID.String(),
			RoutingKey: e.RoutingKey,
			Key:        e.AggregateID,
			Payload:    e.Payload,
			Headers: map[string]string{
				"aggregate-type": e.AggregateType,
			},
			Timestamp: e.CreatedAt,
		})
		if IsPermanent(err) {
			return outbox.Park(err)
		}
		return err
	}
}
