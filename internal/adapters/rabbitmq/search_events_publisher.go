package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Hamnivore/used-item-aggregator/internal/constants"
	"github.com/Hamnivore/used-item-aggregator/internal/contextkeys"
	"github.com/Hamnivore/used-item-aggregator/internal/contracts"
	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/Hamnivore/used-item-aggregator/internal/core/port"
	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 10 * time.Second

// EventPublisher is the part of rabbitmq_producer.Publisher the sink needs.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error
}

// SearchEventsPublisher is a delivery sink that publishes every event of a
// job to the broker.
type SearchEventsPublisher struct {
	producer   EventPublisher
	routingKey string
}

func NewSearchEventsPublisher(producer EventPublisher, routingKey string) (*SearchEventsPublisher, error) {
	if producer == nil {
		return nil, fmt.Errorf("rabbitmq adapter: producer cannot be nil")
	}
	if routingKey == "" {
		return nil, fmt.Errorf("rabbitmq adapter: routingKey cannot be empty")
	}
	return &SearchEventsPublisher{producer: producer, routingKey: routingKey}, nil
}

func (a *SearchEventsPublisher) JobQueued(ctx context.Context, job domain.Job) error {
	return nil
}

func (a *SearchEventsPublisher) JobStarted(ctx context.Context, job domain.Job) error {
	return nil
}

func (a *SearchEventsPublisher) Emit(ctx context.Context, job domain.Job, event domain.SourceEvent) error {
	adapterLogger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"component":   "SearchEventsPublisher",
		"routing_key": a.routingKey,
		"event_type":  string(event.Type),
	})

	body, err := json.Marshal(contracts.NewEventMessage(job.ID, event))
	if err != nil {
		return fmt.Errorf("rabbitmq adapter: failed to marshal event for search %s: %w", job.ID, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers: amqp.Table{
			constants.HeaderSearchID: job.ID.String(),
		},
	}
	if traceID := contextkeys.TraceIDFromContext(ctx); traceID != "" {
		msg.Headers[constants.HeaderTraceID] = traceID
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := a.producer.Publish(publishCtx, a.routingKey, msg); err != nil {
		adapterLogger.Error("Failed to publish search event", err, nil)
		return fmt.Errorf("rabbitmq adapter: %w: search %s: %v", domain.ErrTransportDisconnected, job.ID, err)
	}

	adapterLogger.Debug("Published search event", nil)
	return nil
}
