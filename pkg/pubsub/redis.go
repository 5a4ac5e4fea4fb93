package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/flow-market/pkg/log"
)

// RedisBus publishes each room on its own channel and consumes all rooms
// through one pattern subscription.
type RedisBus struct {
	client *redis.Client

	mu   sync.Mutex
	subs []*redis.PubSub
}

func newRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return redis.NewClient(&redis.Options{
			Addr:         cfg.Address,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}), nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	return redis.NewClient(opts), nil
}

// NewRedisBus connects and pings Redis.
func NewRedisBus(cfg RedisConfig) (*RedisBus, error) {
	client, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisBus{client: client}, nil
}

func (b *RedisBus) Publish(ctx context.Context, evt *Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return b.client.Publish(ctx, RoomEventsChannel(evt.Room), data).Err()
}

func (b *RedisBus) SubscribeRooms(ctx context.Context) (<-chan *Event, error) {
	ps := b.client.PSubscribe(ctx, PatternRoomEvents)
	// Wait for the subscription confirmation so nothing published after
	// this call returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", PatternRoomEvents, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, ps)
	b.mu.Unlock()

	events := make(chan *Event, 100)
	go b.pump(ctx, ps, events)
	return events, nil
}

func (b *RedisBus) pump(ctx context.Context, ps *redis.PubSub, events chan<- *Event) {
	defer close(events)
	l := log.L()

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				l.Warn().Err(err).Str(log.FieldChannel, msg.Channel).Msg("dropping malformed room event")
				continue
			}
			if evt.Room == "" {
				evt.Room, _ = RoomFromChannel(msg.Channel)
			}

			select {
			case events <- &evt:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close ends every subscription and closes the client.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ps := range b.subs {
		ps.Close()
	}
	b.subs = nil
	return b.client.Close()
}
