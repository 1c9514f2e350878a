package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"

	"github.com/weiawesome/wes-io-chat/pkg/log"
)

const (
	kafkaPollTimeoutMs  = 500
	kafkaFlushTimeoutMs = 5000
	defaultKafkaGroup   = "chat-pubsub"
	defaultPartitions   = 4
)

// route is where a bus channel lives on Kafka: one topic per channel
// family, with the scoped id as the message key.
type route struct {
	topic string
	key   string
}

// parseChannel maps a bus channel onto its Kafka route.
//
//	"chat:room:12:to_subscribers" → topic "chat-room-to-subscribers", key "12"
//	"chat:user:42:to_errors"      → topic "chat-user-to-errors", key "42"
func parseChannel(channel string) (route, error) {
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[0] == "" || parts[1] == "" || !strings.HasPrefix(parts[3], "to_") {
		return route{}, fmt.Errorf("invalid channel format: %s", channel)
	}
	family := strings.Join([]string{parts[0], parts[1], strings.ReplaceAll(parts[3], "_", "-")}, "-")
	return route{topic: family, key: parts[2]}, nil
}

// patternToTopic maps a subscribe pattern with a wildcard id onto the
// topic of its channel family.
func patternToTopic(pattern string) (string, error) {
	r, err := parseChannel(strings.ReplaceAll(pattern, "*", "any"))
	return r.topic, err
}

// decodeKafkaMessage turns a consumed message into an event. ok is false
// when the message is addressed to another key than filterKey; an empty
// filterKey accepts every key. Messages produced without a Kafka key are
// matched on the key carried in the event itself.
func decodeKafkaMessage(msg *kafka.Message, filterKey string) (ev *Event, ok bool, err error) {
	if filterKey != "" && len(msg.Key) > 0 && string(msg.Key) != filterKey {
		return nil, false, nil
	}

	var event Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, false, fmt.Errorf("decode kafka event: %w", err)
	}
	if filterKey != "" && len(msg.Key) == 0 && event.Key != filterKey {
		return nil, false, nil
	}
	return &event, true, nil
}

// consumerGroupID names the group of one subscription on one node. A
// group per node means every node sees every event, which fan-out to
// locally connected clients needs.
func consumerGroupID(base, instanceID, subKey string) string {
	if base == "" {
		base = defaultKafkaGroup
	}
	return fmt.Sprintf("%s-%s-%s", base, instanceID, groupIDRegexp.ReplaceAllString(subKey, "-"))
}

var groupIDRegexp = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func producerConfig(cfg KafkaConfig) *kafka.ConfigMap {
	return &kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	}
}

// consumerConfig starts new groups at the log end; history comes from the
// message store, not the bus.
func consumerConfig(cfg KafkaConfig, groupID string) *kafka.ConfigMap {
	return &kafka.ConfigMap{
		"bootstrap.servers":       cfg.Brokers,
		"group.id":                groupID,
		"auto.offset.reset":       "latest",
		"enable.auto.commit":      true,
		"auto.commit.interval.ms": 5000,
	}
}

func topicSpecs(partitions int) []kafka.TopicSpecification {
	if partitions <= 0 {
		partitions = defaultPartitions
	}
	names := []string{TopicRoomSubscribers, TopicUserErrors}
	specs := make([]kafka.TopicSpecification, len(names))
	for i, name := range names {
		specs[i] = kafka.TopicSpecification{Topic: name, NumPartitions: partitions, ReplicationFactor: 1}
	}
	return specs
}

// poller is the part of *kafka.Consumer the read loop needs.
type poller interface {
	Poll(timeoutMs int) kafka.Event
}

type kafkaSubscription struct {
	consumer *kafka.Consumer
	cancel   context.CancelFunc
}

// KafkaPubSub implements PubSub on Apache Kafka.
type KafkaPubSub struct {
	config     KafkaConfig
	instanceID string
	producer   *kafka.Producer
	reportsEnd chan struct{}

	mu   sync.Mutex
	subs map[string]*kafkaSubscription
}

// NewKafkaPubSub connects a producer and makes sure the chat topics exist.
func NewKafkaPubSub(cfg KafkaConfig) (*KafkaPubSub, error) {
	producer, err := kafka.NewProducer(producerConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	k := &KafkaPubSub{
		config:     cfg,
		instanceID: instanceID,
		producer:   producer,
		reportsEnd: make(chan struct{}),
		subs:       make(map[string]*kafkaSubscription),
	}
	go k.watchDeliveries()

	if err := k.createTopics(); err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("could not create kafka topics, assuming they exist")
	}
	return k, nil
}

func (k *KafkaPubSub) createTopics() error {
	admin, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, topicSpecs(k.config.Partitions))
	if err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}

	l := log.L()
	for _, r := range results {
		switch r.Error.Code() {
		case kafka.ErrNoError, kafka.ErrTopicAlreadyExists:
		default:
			l.Warn().Str("topic", r.Topic).Str("error", r.Error.String()).Msg("kafka topic not created")
		}
	}
	return nil
}

func (k *KafkaPubSub) watchDeliveries() {
	defer close(k.reportsEnd)

	l := log.L()
	for e := range k.producer.Events() {
		msg, ok := e.(*kafka.Message)
		if !ok || msg.TopicPartition.Error == nil {
			continue
		}
		l.Error().Err(msg.TopicPartition.Error).Str("key", string(msg.Key)).Msg("kafka delivery failed")
	}
}

// Publish produces event on the channel's topic keyed by the scoped id,
// which keeps one room's events on one partition and so in order.
func (k *KafkaPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	r, err := parseChannel(channel)
	if err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &r.topic, Partition: kafka.PartitionAny},
		Key:            []byte(r.key),
		Value:          data,
	}
	if err := k.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("failed to produce to %s: %w", r.topic, err)
	}
	return nil
}

// Subscribe delivers the events of one channel.
func (k *KafkaPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	r, err := parseChannel(channel)
	if err != nil {
		return nil, err
	}
	return k.subscribe(ctx, channel, r.topic, r.key)
}

// SubscribePattern delivers every event of the pattern's channel family.
func (k *KafkaPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	topic, err := patternToTopic(pattern)
	if err != nil {
		return nil, err
	}
	return k.subscribe(ctx, pattern, topic, "")
}

// subscribe replaces any earlier subscription under subKey.
func (k *KafkaPubSub) subscribe(ctx context.Context, subKey, topic, filterKey string) (<-chan *Event, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	_ = k.dropLocked(subKey)

	groupID := consumerGroupID(k.config.GroupID, k.instanceID, subKey)
	consumer, err := kafka.NewConsumer(consumerConfig(k.config, groupID))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	if err := consumer.Subscribe(topic, nil); err != nil {
		_ = consumer.Close()
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan *Event, eventBufferSize)
	k.subs[subKey] = &kafkaSubscription{consumer: consumer, cancel: cancel}

	go pump(subCtx, consumer, out, filterKey)
	return out, nil
}

// pump polls p until ctx ends or the consumer fails fatally, forwarding
// matching events to out without blocking. out is closed on return.
func pump(ctx context.Context, p poller, out chan<- *Event, filterKey string) {
	defer close(out)

	l := log.L()
	for ctx.Err() == nil {
		switch e := p.Poll(kafkaPollTimeoutMs).(type) {
		case *kafka.Message:
			event, ok, err := decodeKafkaMessage(e, filterKey)
			if err != nil {
				l.Warn().Err(err).Msg("dropping malformed kafka event")
				continue
			}
			if !ok {
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			default:
				l.Warn().Str("event_id", event.ID).Msg("subscriber buffer full, event dropped")
			}

		case kafka.Error:
			l.Error().Err(e).Int("code", int(e.Code())).Bool("fatal", e.IsFatal()).Msg("kafka consumer error")
			if e.IsFatal() {
				return
			}
		}
	}
}

func (k *KafkaPubSub) dropLocked(subKey string) error {
	sub, ok := k.subs[subKey]
	if !ok {
		return nil
	}
	delete(k.subs, subKey)
	sub.cancel()
	return sub.consumer.Close()
}

// Unsubscribe ends the subscription made under channel, if any.
func (k *KafkaPubSub) Unsubscribe(ctx context.Context, channel string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.dropLocked(channel); err != nil {
		return fmt.Errorf("failed to close consumer: %w", err)
	}
	return nil
}

// Close ends every subscription and flushes the producer.
func (k *KafkaPubSub) Close() error {
	k.mu.Lock()
	for key := range k.subs {
		_ = k.dropLocked(key)
	}
	k.mu.Unlock()

	k.producer.Flush(kafkaFlushTimeoutMs)
	k.producer.Close()
	<-k.reportsEnd
	return nil
}
