package ws

type EventType string

const (
	EventSubscribe    EventType = "subscribe"
	EventUnsubscribe  EventType = "unsubscribe"
	EventSubscribed   EventType = "subscribed"
	EventUnsubscribed EventType = "unsubscribed"
	EventInvalidate   EventType = "invalidate"
	EventError        EventType = "error"
)

// IncomingMessage is what the client sends to the server.
type IncomingMessage struct {
	Type  EventType `json:"type"`
	Topic string    `json:"topic,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
// Payload uses typed structs to avoid heap-heavy map[string]any.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

type TopicPayload struct {
	Topic string `json:"topic"`
}

// InvalidatePayload tells the client that cached reads tagged with Topic are stale.
type InvalidatePayload struct {
	Topic string `json:"topic"`
	Kind  string `json:"kind"`
	ID    string `json:"id,omitempty"`
}
