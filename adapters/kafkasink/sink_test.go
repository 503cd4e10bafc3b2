package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	provisioning "github.com/goliatone/go-provisioning"
	"github.com/goliatone/go-provisioning/activitymap"
)

type recordingProducer struct {
	records []*kgo.Record
	err     error
}

func (p *recordingProducer) ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	p.records = append(p.records, rs...)
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

func TestSinkRecord(t *testing.T) {
	producer := &recordingProducer{}
	sink := New(producer, "", activitymap.WithRoleAsObjectType())

	opID := uuid.New()
	userID := uuid.NewString()
	err := sink.Record(context.Background(), provisioning.ActivityEvent{
		EventType:   provisioning.ActivityEventAdminBlocked,
		Actor:       provisioning.ActorRef{ID: "actor-1", Type: "user"},
		OperationID: opID,
		UserID:      userID,
		Role:        provisioning.RoleProviderAdmin,
		OccurredAt:  time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, producer.records, 1)

	rec := producer.records[0]
	assert.Equal(t, DefaultTopic, rec.Topic)
	assert.Equal(t, userID, string(rec.Key))
	assert.Equal(t, "event_type", rec.Headers[0].Key)
	assert.Equal(t, string(provisioning.ActivityEventAdminBlocked), string(rec.Headers[0].Value))
	assert.Equal(t, opID.String(), string(rec.Headers[1].Value))

	var out activitymap.Normalized
	require.NoError(t, json.Unmarshal(rec.Value, &out))
	assert.Equal(t, "actor-1", out.ActorID)
	assert.Equal(t, userID, out.ObjectID)
}

func TestSinkRecordError(t *testing.T) {
	producer := &recordingProducer{err: errors.New("broker unavailable")}
	sink := New(producer, "audit")

	err := sink.Record(context.Background(), provisioning.ActivityEvent{
		EventType: provisioning.ActivityEventAdminCreated,
		UserID:    "u1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")
	assert.Equal(t, "audit", producer.records[0].Topic)
}

func TestDialRequiresBrokers(t *testing.T) {
	_, _, err := Dial(nil, "")
	assert.Error(t, err)
}
