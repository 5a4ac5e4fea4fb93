package pubsub

import (
	"context"
	"encoding/json"
	"time"
)

// Event is one room event exchanged between application instances.
type Event struct {
	Kind string `json:"kind"`
	Room string `json:"room"`
	// Origin names the instance that published the event.
	Origin string          `json:"origin,omitempty"`
	Body   json.RawMessage `json:"body"`
	SentAt time.Time       `json:"sent_at"`
}

// NewRoomEvent encodes body into an event for room.
func NewRoomEvent(kind, room, origin string, body interface{}) (*Event, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return &Event{
		Kind:   kind,
		Room:   room,
		Origin: origin,
		Body:   data,
		SentAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the event body into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Body, v)
}

// Bus carries room events between instances. Every subscriber sees the
// events of every room; events of one room arrive in publish order.
type Bus interface {
	Publish(ctx context.Context, evt *Event) error
	// SubscribeRooms returns once the subscription is live. The channel is
	// closed when ctx ends or the bus is closed.
	SubscribeRooms(ctx context.Context) (<-chan *Event, error)
	Close() error
}
