package types

// MessageType is the "type" field of live channel messages
type MessageType string

func (t MessageType) String() string {
	return string(t)
}

const (
	MsgConnected      MessageType = "connected"
	MsgNewOrder       MessageType = "new_order"
	MsgOrderUpdate    MessageType = "order_update"
	MsgPing           MessageType = "ping"
	MsgPong           MessageType = "pong"
	MsgLocationUpdate MessageType = "location_update"
	MsgError          MessageType = "error"
)
