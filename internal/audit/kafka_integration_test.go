//go:build integration

package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"callwatch/pkg/testutil/containers"
)

func TestKafkaPublisherAppend(t *testing.T) {
	ctx := context.Background()
	rp := containers.NewRedpandaContainer(t)
	const topic = "callwatch.audit.test"

	publisher, err := NewKafkaPublisher([]string{rp.Broker}, topic)
	require.NoError(t, err)
	defer publisher.Close()

	entry := Entry{
		ResourceType: "attention_event",
		ResourceID:   "evt-1",
		Action:       ActionDecisionOverridden,
		Actor:        "human:u-1",
		After:        json.RawMessage(`{"decision": "suppress"}`),
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, publisher.Append(ctx, entry))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	fetches := consumer.PollFetches(fetchCtx)
	require.NoError(t, fetches.Err())

	records := fetches.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "evt-1", string(records[0].Key))

	var got Entry
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	assert.Equal(t, ActionDecisionOverridden, got.Action)
	assert.Equal(t, "human:u-1", got.Actor)
}
