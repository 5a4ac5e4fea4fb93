package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/weiawesome/flow-market/internal/domain"
	"github.com/weiawesome/flow-market/internal/hub"
	"github.com/weiawesome/flow-market/pkg/log"
	"github.com/weiawesome/flow-market/pkg/pubsub"
)

// Broadcaster fans a chat message out to every connection in a room.
type Broadcaster interface {
	Broadcast(ctx context.Context, payload domain.ChatPayload) error
}

// LocalBroadcaster delivers to the connections of this process only.
type LocalBroadcaster struct {
	hub *hub.Hub
}

func NewLocalBroadcaster(h *hub.Hub) *LocalBroadcaster {
	return &LocalBroadcaster{hub: h}
}

func (b *LocalBroadcaster) Broadcast(ctx context.Context, payload domain.ChatPayload) error {
	return b.hub.BroadcastToRoom(payload.Room, domain.Chat(payload))
}

// PubSubBroadcaster publishes room events to a shared bus. Every instance,
// this one included, consumes the bus and re-broadcasts to its own hub, so
// delivery is uniform no matter which instance accepted the sender.
type PubSubBroadcaster struct {
	bus    pubsub.Bus
	hub    *hub.Hub
	local  *LocalBroadcaster
	origin string

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPubSubBroadcaster wires bus to h. origin identifies this instance in published events.
func NewPubSubBroadcaster(bus pubsub.Bus, h *hub.Hub, origin string) *PubSubBroadcaster {
	return &PubSubBroadcaster{
		bus:    bus,
		hub:    h,
		local:  NewLocalBroadcaster(h),
		origin: origin,
	}
}

// Start subscribes to all room channels. Events published after Start
// returns reach the local hub.
func (b *PubSubBroadcaster) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	events, err := b.bus.SubscribeRooms(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to room events: %w", err)
	}
	b.cancel = cancel

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.consume(events)
	}()
	return nil
}

// Broadcast publishes payload for all instances. If the bus rejects it the
// message still reaches this instance's connections.
func (b *PubSubBroadcaster) Broadcast(ctx context.Context, payload domain.ChatPayload) error {
	evt, err := pubsub.NewRoomEvent(pubsub.EventChatMessage, payload.Room, b.origin, payload)
	if err != nil {
		return err
	}

	if err := b.bus.Publish(ctx, evt); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoom, payload.Room).Msg("relay publish failed, delivering locally")
		return b.local.Broadcast(ctx, payload)
	}
	return nil
}

func (b *PubSubBroadcaster) consume(events <-chan *pubsub.Event) {
	l := log.L()
	for evt := range events {
		if evt.Kind != pubsub.EventChatMessage {
			continue
		}

		var payload domain.ChatPayload
		if err := evt.Decode(&payload); err != nil {
			l.Warn().Err(err).Str(log.FieldRoom, evt.Room).Str("origin", evt.Origin).Msg("dropping undecodable relay event")
			continue
		}
		if payload.Room == "" {
			payload.Room = evt.Room
		}

		if err := b.hub.BroadcastToRoom(payload.Room, domain.Chat(payload)); err != nil {
			l.Warn().Err(err).Str(log.FieldRoom, payload.Room).Msg("relay re-broadcast failed")
		}
	}
}

// Close stops consuming and closes the bus.
func (b *PubSubBroadcaster) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	err := b.bus.Close()
	b.wg.Wait()
	return err
}
