package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/flow-market/internal/config"
	"github.com/weiawesome/flow-market/internal/domain"
	"github.com/weiawesome/flow-market/internal/hub"
	"github.com/weiawesome/flow-market/pkg/pubsub"
)

// memBus is an in-process pubsub.Bus shared by several "instances".
type memBus struct {
	mu      sync.Mutex
	subs    []chan *pubsub.Event
	failPub bool
}

func (b *memBus) Publish(_ context.Context, evt *pubsub.Event) error {
	if b.failPub {
		return errors.New("bus down")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		ch <- evt
	}
	return nil
}

func (b *memBus) SubscribeRooms(context.Context) (<-chan *pubsub.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan *pubsub.Event, 16)
	b.subs = append(b.subs, ch)
	return ch, nil
}

func (b *memBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	return nil
}

type instance struct {
	hub   *hub.Hub
	relay *PubSubBroadcaster
}

func newInstance(t *testing.T, bus pubsub.Bus, name string) *instance {
	t.Helper()
	h := hub.NewHub()
	go h.Run()
	t.Cleanup(h.Stop)

	r := NewPubSubBroadcaster(bus, h, name)
	require.NoError(t, r.Start(context.Background()))
	return &instance{hub: h, relay: r}
}

func (i *instance) connect(id, room string) *hub.Client {
	c := hub.NewClient(context.Background(), id, i.hub, nil, config.WebSocketConfig{SendBuffer: 8})
	i.hub.Register(c)
	i.hub.Join(c, room)
	return c
}

func readChat(t *testing.T, c *hub.Client) domain.ChatPayload {
	t.Helper()
	select {
	case data := <-c.Send:
		var env struct {
			Event string             `json:"event"`
			Data  domain.ChatPayload `json:"data"`
		}
		require.NoError(t, json.Unmarshal(data, &env))
		require.Equal(t, domain.EventMessage, env.Event)
		return env.Data
	case <-time.After(time.Second):
		t.Fatalf("client %s received nothing", c.ID)
		return domain.ChatPayload{}
	}
}

func TestPubSubBroadcaster_FansOutAcrossInstances(t *testing.T) {
	bus := &memBus{}
	a := newInstance(t, bus, "a")
	b := newInstance(t, bus, "b")

	sender := a.connect("sender", "product_3")
	remote := b.connect("remote", "product_3")
	elsewhere := b.connect("elsewhere", "product_4")

	payload := domain.ChatPayload{Room: "product_3", Sender: "ann", Text: "hi", TS: "2024-01-01T00:00:00Z"}
	require.NoError(t, a.relay.Broadcast(context.Background(), payload))

	assert.Equal(t, payload, readChat(t, sender))
	assert.Equal(t, payload, readChat(t, remote))

	select {
	case data := <-elsewhere.Send:
		t.Fatalf("non-member received %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPubSubBroadcaster_FallsBackToLocal(t *testing.T) {
	bus := &memBus{}
	a := newInstance(t, bus, "a")
	c := a.connect("c", "lobby")

	bus.failPub = true
	payload := domain.ChatPayload{Room: "lobby", Sender: "s", Text: "still here"}
	require.NoError(t, a.relay.Broadcast(context.Background(), payload))
	assert.Equal(t, "still here", readChat(t, c).Text)
}

func TestPubSubBroadcaster_Close(t *testing.T) {
	bus := &memBus{}
	a := newInstance(t, bus, "a")
	assert.NoError(t, a.relay.Close())
}

func TestLocalBroadcaster(t *testing.T) {
	h := hub.NewHub()
	go h.Run()
	defer h.Stop()

	c := hub.NewClient(context.Background(), "c", h, nil, config.WebSocketConfig{SendBuffer: 8})
	h.Register(c)
	h.Join(c, "product_1")

	b := NewLocalBroadcaster(h)
	require.NoError(t, b.Broadcast(context.Background(), domain.ChatPayload{Room: "product_1", Text: "x"}))
	assert.Equal(t, "x", readChat(t, c).Text)
}
