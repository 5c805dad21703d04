package broker

import (
	"context"
	"log/slog"
)

// Router dispatches a queue's messages to per-routing-key handlers. A queue
// bound with a wildcard can receive several keys.
type Router struct {
	handlers map[string]Handler
	fallback Handler
	logger   *slog.Logger
}

// NewRouter creates a router with an optional fallback handler.
func NewRouter(logger *slog.Logger, fallback Handler) *Router {
	return &Router{
		handlers: make(map[string]Handler),
		fallback: fallback,
		logger:   logger,
	}
}

func (r *Router) Register(routingKey string, h Handler) {
	r.handlers[routingKey] = h
}

func (r *Router) Handle(ctx context.Context, msg Message) error {
	h, ok := r.handlers[msg.RoutingKey]
	if !ok {
		if r.fallback != nil {
			return r.fallback.Handle(ctx, msg)
		}
		r.logger.WarnContext(ctx, "no handler for routing key, acking",
			"routing_key", msg.RoutingKey,
			"message_id", msg.ID,
		)
		return nil
	}
	return h.Handle(ctx, msg)
}
