package rabbitmq

import (
	"context"
	"fmt"

	"github.com/Hamnivore/used-item-aggregator/internal/constants"
	"github.com/Hamnivore/used-item-aggregator/internal/contextkeys"
	"github.com/Hamnivore/used-item-aggregator/internal/contracts"
	"github.com/Hamnivore/used-item-aggregator/internal/core/port"
	"github.com/Hamnivore/used-item-aggregator/internal/core/port/usecases_port"
	"github.com/Hamnivore/used-item-aggregator/pkg/rabbitmq/rabbitmq_common"
	"github.com/Hamnivore/used-item-aggregator/pkg/rabbitmq/rabbitmq_consumer"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// SearchCommandsConsumerAdapter feeds search commands from the broker into a dispatcher.
type SearchCommandsConsumerAdapter struct {
	consumer   rabbitmq_consumer.Consumer
	dispatcher usecases_port.DispatchSearchPort
	logger     port.LoggerPort
}

func NewSearchCommandsConsumerAdapter(
	consumerCfg rabbitmq_consumer.ConsumerConfig,
	dispatcher usecases_port.DispatchSearchPort,
	logger port.LoggerPort,
	connManager *rabbitmq_common.ConnectionManager,
) (*SearchCommandsConsumerAdapter, error) {
	adapter := &SearchCommandsConsumerAdapter{
		dispatcher: dispatcher,
		logger:     logger.WithFields(port.Fields{"component": "SearchCommandsConsumerAdapter"}),
	}

	pkgLogger := logger.WithFields(port.Fields{"component": "rabbitmq_distributing_consumer", "consumer_tag": consumerCfg.ConsumerTag})
	consumerCfg.Logger = NewPkgLoggerBridge(pkgLogger)

	consumer, err := rabbitmq_consumer.NewDistributingConsumer(consumerCfg, adapter.messageHandler, connManager)
	if err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ consumer for search commands: %w", err)
	}
	adapter.consumer = consumer

	return adapter, nil
}

// messageHandler returns an error to send the message round the retry loop.
func (a *SearchCommandsConsumerAdapter) messageHandler(ctx context.Context, d amqp.Delivery) error {
	traceID, ok := d.Headers[constants.HeaderTraceID].(string)
	if !ok || traceID == "" {
		traceID = uuid.New().String()
	}

	msgLogger := a.logger.WithFields(port.Fields{
		"trace_id":     traceID,
		"delivery_tag": d.DeliveryTag,
	})

	// the job outlives the delivery, only the logger and trace id are carried
	msgCtx := contextkeys.ContextWithLogger(context.WithoutCancel(ctx), msgLogger)
	msgCtx = contextkeys.ContextWithTraceID(msgCtx, traceID)

	cmd, err := contracts.ParseCommand(d.Body)
	if err != nil {
		msgLogger.Error("Invalid search command", err, nil)
		return fmt.Errorf("invalid search command: %w", err)
	}

	switch cmd.Type {
	case contracts.CommandExit:
		// exit has no meaning for a shared queue
		msgLogger.Debug("Ignoring exit command", nil)
		return nil
	case contracts.CommandSearch:
		job, err := a.dispatcher.Enqueue(msgCtx, cmd.Query)
		if err != nil {
			msgLogger.Warn("Search could not be queued, will retry", port.Fields{"query": cmd.Query, "error": err.Error()})
			return fmt.Errorf("enqueue search: %w", err)
		}
		msgLogger.Info("Search queued from broker", port.Fields{"search_id": job.ID.String(), "query": cmd.Query})
	}
	return nil
}

// Start implements EventListenerPort
func (a *SearchCommandsConsumerAdapter) Start(ctx context.Context) error {
	return a.consumer.StartConsuming(ctx)
}

// Close implements EventListenerPort
func (a *SearchCommandsConsumerAdapter) Close() error {
	return a.consumer.Close()
}
