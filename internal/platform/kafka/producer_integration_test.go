//go:build integration

package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"pims/internal/platform/config"
	"pims/internal/platform/kafka"
	"pims/pkg/platform/audit/outbox"
	"pims/pkg/testutil/containers"
)

func TestProducerPublishesKeyedRecords(t *testing.T) {
	rp := containers.GetManager().GetRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "pims.audit." + uuid.NewString()[:8]
	producer, err := kafka.NewProducer(config.KafkaConfig{Brokers: []string{rp.Broker}, AuditTopic: topic})
	require.NoError(t, err)
	require.NotNil(t, producer)
	defer producer.Close()

	require.NoError(t, producer.EnsureTopic(ctx, 1, 1))
	require.NoError(t, producer.EnsureTopic(ctx, 1, 1), "existing topic is not an error")

	msg := outbox.Message{
		ID:            uuid.New(),
		AggregateType: "file",
		AggregateID:   uuid.NewString(),
		EventType:     "FILE_SENT",
		Payload:       []byte(`{"action":"FILE_SENT"}`),
	}
	require.NoError(t, producer.Publish(ctx, []outbox.Message{msg}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var records []*kgo.Record
	for len(records) == 0 {
		fetches := consumer.PollFetches(ctx)
		require.NoError(t, ctx.Err())
		fetches.EachRecord(func(r *kgo.Record) {
			records = append(records, r)
		})
	}

	rec := records[0]
	assert.Equal(t, "file:"+msg.AggregateID, string(rec.Key))
	assert.JSONEq(t, string(msg.Payload), string(rec.Value))
	headers := map[string]string{}
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "FILE_SENT", headers["event_type"])
	assert.Equal(t, msg.ID.String(), headers["outbox_id"])
}
