package rabbitmq_consumer

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer is what service adapters depend on.
type Consumer interface {
	// StartConsuming blocks until ctx is cancelled or the connection drops.
	StartConsuming(ctx context.Context) error
	Close() error
}

// MessageHandler processes one delivery. The consumer acks on nil and
// routes the message through the retry loop on error.
type MessageHandler func(ctx context.Context, delivery amqp.Delivery) error

// DeathCount returns how many times the delivery was dead-lettered out of
// queueName, according to its x-death header.
func DeathCount(d amqp.Delivery, queueName string) int64 {
	if d.Headers == nil {
		return 0
	}
	deaths, ok := d.Headers["x-death"].([]interface{})
	if !ok {
		return 0
	}

	// x-death also has an entry for the retry-wait queue; only the main queue counts
	for _, death := range deaths {
		tbl, ok := death.(amqp.Table)
		if !ok {
			continue
		}
		if queue, ok := tbl["queue"].(string); ok && queue == queueName {
			if count, ok := tbl["count"].(int64); ok {
				return count
			}
		}
	}
	return 0
}
