package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/twmb/franz-go/pkg/kgo"

	"clubpay/internal/broker"
)

func TestRecordRoundTripPreservesIdentity(t *testing.T) {
	top := broker.DefaultTopology()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := broker.Message{
		ID:         "0b7c3c0e-7c61-4d0b-9a43-6f1f0e2bfe11",
		RoutingKey: "donation.completed",
		Key:        "cs_1",
		Payload:    []byte(`{"session_id":"cs_1"}`),
		Headers:    map[string]string{"aggregate-type": "donation"},
		Timestamp:  ts,
	}

	rec := toRecord(top.TopicFor(msg.RoutingKey), msg)
	assert.Equal(t, "clubpay.events.donation.completed", rec.Topic)

	got := fromRecord(top, rec)
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, msg.RoutingKey, got.RoutingKey)
	assert.Equal(t, msg.Key, got.Key)
	assert.Equal(t, msg.Payload, got.Payload)
	assert.Equal(t, "donation", got.Headers["aggregate-type"])
	assert.Equal(t, ts, got.Timestamp)
}

func TestFromRecord_ForeignRecord(t *testing.T) {
	top := broker.DefaultTopology()
	got := fromRecord(top, &kgo.Record{
		Topic:     "clubpay.events.admin.broadcast",
		Partition: 2,
		Offset:    41,
		Value:     []byte(`{}`),
	})
	assert.Equal(t, "admin.broadcast", got.RoutingKey)
	assert.Equal(t, "clubpay.events.admin.broadcast/2/41", got.ID)
}
