package constants

// Exchanges
const (
	FinderExchange     = "finder_exchange"
	FinderExchangeType = "direct"
)

// Queues
const (
	QueueSearchCommands = "search_commands"
)

// Routing keys
const (
	RoutingKeySearchCommands = "search.commands"
	RoutingKeySearchEvents   = "search.events"
)

const (
	FinalDLXExchangeForSearchCommands   = "search_commands_final_dlx"
	FinalDLQForSearchCommands           = "search_commands_final_dlq"
	FinalDLQRoutingKeyForSearchCommands = "search_commands.dlq.key"

	SearchCommandsRetryTTLMs  = 5000
	SearchCommandsMaxRetries  = 3
	SearchCommandsPrefetch    = 10
	SearchCommandsConsumerTag = "search-commands-consumer"
)

// Message headers
const (
	HeaderTraceID  = "x-trace-id"
	HeaderSearchID = "x-search-id"
)
