package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	provisioning "github.com/goliatone/go-provisioning"
	"github.com/goliatone/go-provisioning/activitymap"
)

// DefaultTopic receives provisioning activity when none is configured
const DefaultTopic = "provisioning.activity"

// Producer is the subset of *kgo.Client used by the sink
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Sink publishes committed provisioning events to a kafka topic, keyed by
// the target user so events for one account stay ordered.
type Sink struct {
	producer Producer
	topic    string
	opts     []activitymap.Option
}

var _ provisioning.ActivitySink = (*Sink)(nil)

func New(producer Producer, topic string, opts ...activitymap.Option) *Sink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Sink{
		producer: producer,
		topic:    topic,
		opts:     opts,
	}
}

// Dial creates a franz-go client for the given seed brokers. The caller
// closes the returned client.
func Dial(brokers []string, topic string, opts ...activitymap.Option) (*Sink, *kgo.Client, error) {
	if len(brokers) == 0 {
		return nil, nil, fmt.Errorf("kafkasink: no seed brokers")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID("go-provisioning"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafkasink: client: %w", err)
	}

	return New(client, topic, opts...), client, nil
}

// Record implements provisioning.ActivitySink
func (s *Sink) Record(ctx context.Context, event provisioning.ActivityEvent) error {
	value, err := json.Marshal(activitymap.Normalize(event, s.opts...))
	if err != nil {
		return err
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.UserID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "operation_id", Value: []byte(event.OperationID.String())},
		},
	}

	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("kafkasink: produce %s: %w", event.EventType, err)
	}
	return nil
}
