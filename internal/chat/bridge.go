package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/workbridge/marketplace-be/shared/rabbitmq"
)

// Bridge fans persisted message frames out across router processes through a
// RabbitMQ fanout exchange. Each process consumes from its own exclusive
// queue and skips envelopes it published itself, so the bridge only ever
// carries traffic for connections held elsewhere. It is a deliberate,
// optional extension: the in-process ordering and durability contract never
// depends on it.
type Bridge struct {
	client *rabbitmq.Client
	hub    *Hub
	logger *slog.Logger
}

func NewBridge(client *rabbitmq.Client, hub *Hub, logger *slog.Logger) *Bridge {
	return &Bridge{
		client: client,
		hub:    hub,
		logger: logger,
	}
}

// PublishEnvelope implements Publisher.
func (b *Bridge) PublishEnvelope(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	return b.client.Publish(ctx, body, "application/json")
}

// Run consumes remote envelopes until ctx is cancelled or the delivery
// channel closes.
func (b *Bridge) Run(ctx context.Context) error {
	deliveries, err := b.client.Consume("chat-bridge-" + b.hub.OriginID())
	if err != nil {
		return fmt.Errorf("failed to start bridge consumer: %w", err)
	}

	b.logger.Info("Chat bridge consuming",
		slog.String("origin_id", b.hub.OriginID()),
	)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Chat bridge stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				b.logger.Warn("Chat bridge delivery channel closed")
				return nil
			}
			b.dispatch(delivery)
		}
	}
}

func (b *Bridge) dispatch(delivery amqp.Delivery) {
	var env Envelope
	if err := json.Unmarshal(delivery.Body, &env); err != nil {
		b.logger.Error("Failed to parse bridge envelope",
			slog.String("error", err.Error()),
		)
		// Malformed envelopes are dropped, never requeued.
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			b.logger.Error("Failed to NACK malformed envelope",
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	b.hub.DeliverRemote(env)

	if ackErr := delivery.Ack(false); ackErr != nil {
		b.logger.Error("Failed to ACK bridge envelope",
			slog.String("error", ackErr.Error()),
		)
	}
}
