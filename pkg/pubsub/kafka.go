package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"

	"github.com/weiawesome/flow-market/pkg/log"
)

const (
	// DefaultKafkaTopic carries the events of every room, keyed by room name.
	DefaultKafkaTopic = "market-room-events"
	// DefaultKafkaTimeout bounds delivery reports, topic creation and
	// partition assignment.
	DefaultKafkaTimeout = 10 * time.Second
)

// KafkaBus keys each event by room, so a room's events share a partition
// and keep their order. Publish waits for the broker's delivery report.
type KafkaBus struct {
	producer *kafka.Producer
	cfg      KafkaConfig

	mu        sync.Mutex
	cancels   []context.CancelFunc
	wg        sync.WaitGroup
	delivered chan struct{}
}

// NewKafkaBus creates the producer and makes sure the topic exists.
func NewKafkaBus(cfg KafkaConfig) (*KafkaBus, error) {
	if cfg.Topic == "" {
		cfg.Topic = DefaultKafkaTopic
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "market-relay"
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.New().String()
	}
	if cfg.Partitions <= 0 {
		cfg.Partitions = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultKafkaTimeout
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"acks":               "1",
		"linger.ms":          5,
		"message.timeout.ms": int(cfg.Timeout / time.Millisecond),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	b := &KafkaBus{
		producer:  p,
		cfg:       cfg,
		delivered: make(chan struct{}),
	}
	go b.watchDeliveries()

	if err := b.ensureTopic(); err != nil {
		l := log.L()
		l.Warn().Err(err).Str("topic", cfg.Topic).Msg("could not create kafka topic, assuming it exists")
	}
	return b, nil
}

func (b *KafkaBus) ensureTopic() error {
	admin, err := kafka.NewAdminClientFromProducer(b.producer)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.Timeout)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             b.cfg.Topic,
		NumPartitions:     b.cfg.Partitions,
		ReplicationFactor: 1,
	}})
	if err != nil {
		return err
	}
	for _, r := range results {
		if code := r.Error.Code(); code != kafka.ErrNoError && code != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("create topic %s: %v", r.Topic, r.Error)
		}
	}
	return nil
}

// watchDeliveries drains producer events that have no per-call channel.
func (b *KafkaBus) watchDeliveries() {
	defer close(b.delivered)
	l := log.L()
	for e := range b.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			l.Warn().Err(m.TopicPartition.Error).Str(log.FieldRoom, string(m.Key)).Msg("kafka delivery failed")
		} else if ke, ok := e.(kafka.Error); ok {
			l.Warn().Err(ke).Msg("kafka producer error")
		}
	}
}

func (b *KafkaBus) Publish(ctx context.Context, evt *Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := b.cfg.Topic
	// Buffered so a report arriving after we gave up does not block librdkafka.
	report := make(chan kafka.Event, 1)
	err = b.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(evt.Room),
		Value:          data,
	}, report)
	if err != nil {
		return fmt.Errorf("failed to produce event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	select {
	case e := <-report:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery report %v", e)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("kafka delivery failed: %w", m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("kafka delivery unconfirmed: %w", ctx.Err())
	}
}

var groupIDRegexp = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// consumerGroup is unique per instance; a shared group would split the
// rooms between instances instead of fanning out.
func consumerGroup(cfg KafkaConfig) string {
	return groupIDRegexp.ReplaceAllString(cfg.GroupID+"-"+cfg.InstanceID, "-")
}

func (b *KafkaBus) SubscribeRooms(ctx context.Context) (<-chan *Event, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  b.cfg.Brokers,
		"group.id":           consumerGroup(b.cfg),
		"auto.offset.reset":  "latest",
		"enable.auto.commit": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	if err := c.Subscribe(b.cfg.Topic, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", b.cfg.Topic, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()

	events := make(chan *Event, 100)
	assigned := make(chan struct{})
	stopped := make(chan struct{})
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer close(stopped)
		b.poll(ctx, c, events, assigned)
	}()

	// With auto.offset.reset=latest nothing published before assignment is
	// ever read, so the subscription is only live once partitions arrive.
	timer := time.NewTimer(b.cfg.Timeout)
	defer timer.Stop()
	select {
	case <-assigned:
		return events, nil
	case <-stopped:
		return nil, fmt.Errorf("kafka consumer for %s stopped before partitions were assigned", b.cfg.Topic)
	case <-timer.C:
		cancel()
		return nil, fmt.Errorf("no partitions of %s assigned within %s", b.cfg.Topic, b.cfg.Timeout)
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}
}

func (b *KafkaBus) poll(ctx context.Context, c *kafka.Consumer, events chan<- *Event, assigned chan<- struct{}) {
	defer close(events)
	defer c.Close()
	l := log.L()

	ready := false
	for ctx.Err() == nil {
		e := c.Poll(100)
		if !ready {
			if parts, err := c.Assignment(); err == nil && len(parts) > 0 {
				ready = true
				close(assigned)
			}
		}

		switch e := e.(type) {
		case nil:
		case *kafka.Message:
			var evt Event
			if err := json.Unmarshal(e.Value, &evt); err != nil {
				l.Warn().Err(err).Msg("dropping malformed room event")
				continue
			}
			if evt.Room == "" {
				evt.Room = string(e.Key)
			}
			select {
			case events <- &evt:
			case <-ctx.Done():
				return
			}
		case kafka.Error:
			l.Error().Err(e).Bool("fatal", e.IsFatal()).Msg("kafka consumer error")
			if e.IsFatal() {
				return
			}
		}
	}
}

// Close stops every SubscribeRooms consumer, then flushes and closes the
// producer.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
	b.mu.Unlock()
	b.wg.Wait()

	b.producer.Flush(5000)
	b.producer.Close()
	<-b.delivered
	return nil
}
