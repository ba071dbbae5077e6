package types

const (
	ActionRabbitMQConnected       = "rabbitmq_connected"
	ActionRabbitConnectionClosed  = "rabbitmq_connection_closed"
	ActionRabbitConnectionClosing = "rabbitmq_connection_closing"
	ActionRabbitReconnected       = "rabbitmq_reconnection_success"

	ActionDatabaseTransactionFailed = "database_transaction_failed"
	ActionExternalServiceFailed     = "external_service_failed"

	ActionSearchDriver      = "search_driver"
	ActionSendOffer         = "send_offer"
	ActionAssignDriver      = "assign_driver"
	ActionOrderTransition   = "order_transition"
	ActionNotify            = "notify_order_update"
	ActionRecoverSearches   = "recover_searches"
	ActionWSConnect         = "ws_connect"
	ActionWSDisconnect      = "ws_disconnect"
	ActionLocationIngest    = "location_ingest"
	ActionGeoIndexFailed    = "geo_index_failed"
	ActionPublishEvent      = "publish_order_event"
	ActionConsumeRequest    = "consume_order_request"
	ActionPingConnections   = "ping_connections"
	ActionMigrationsApplied = "migrations_applied"
)
