package rabbitmq

import (
	"github.com/Hamnivore/used-item-aggregator/internal/constants"
	"github.com/Hamnivore/used-item-aggregator/internal/core/port"
	"github.com/Hamnivore/used-item-aggregator/pkg/rabbitmq/rabbitmq_common"
	amqp "github.com/rabbitmq/amqp091-go"
)

// PkgLoggerBridge adapts LoggerPort to the key/value logger of pkg/rabbitmq.
// Message headers logged by the consumer are reduced to the search
// correlation fields, so broker log lines join up with the search they carry.
type PkgLoggerBridge struct {
	internalLogger port.LoggerPort
}

func NewPkgLoggerBridge(logger port.LoggerPort) rabbitmq_common.Logger {
	return &PkgLoggerBridge{internalLogger: logger.WithFields(port.Fields{"transport": "rabbitmq"})}
}

func (b *PkgLoggerBridge) toFields(keysAndValues ...interface{}) port.Fields {
	fields := make(port.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		switch v := keysAndValues[i+1].(type) {
		case amqp.Table:
			liftCorrelation(fields, v)
		case error:
			fields[key] = v.Error()
		default:
			fields[key] = v
		}
	}
	return fields
}

// liftCorrelation copies the trace and search ids out of message headers.
// Other headers, x-death included, are left out of the log line.
func liftCorrelation(fields port.Fields, headers amqp.Table) {
	if traceID, ok := headers[constants.HeaderTraceID].(string); ok && traceID != "" {
		fields["trace_id"] = traceID
	}
	if searchID, ok := headers[constants.HeaderSearchID].(string); ok && searchID != "" {
		fields["search_id"] = searchID
	}
}

func (b *PkgLoggerBridge) Debug(msg string, keysAndValues ...interface{}) {
	b.internalLogger.Debug(msg, b.toFields(keysAndValues...))
}

func (b *PkgLoggerBridge) Info(msg string, keysAndValues ...interface{}) {
	b.internalLogger.Info(msg, b.toFields(keysAndValues...))
}

func (b *PkgLoggerBridge) Warn(msg string, keysAndValues ...interface{}) {
	b.internalLogger.Warn(msg, b.toFields(keysAndValues...))
}

func (b *PkgLoggerBridge) Error(err error, msg string, keysAndValues ...interface{}) {
	b.internalLogger.Error(msg, err, b.toFields(keysAndValues...))
}
