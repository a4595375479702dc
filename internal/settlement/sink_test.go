package settlement

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func sampleAdvice() Advice {
	return Advice{
		MessageID: "0d8c1f5e-6d0e-4a4c-9a43-2c8f5d6e7a10",
		TxHash:    "0xfeed",
		Operation: "native_transfer",
		Document:  "<Document/>",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMemorySinkReturnsCopies(t *testing.T) {
	sink := NewMemorySink()
	require.NoError(t, sink.Publish(context.Background(), sampleAdvice()))

	got := sink.Advices()
	got[0].TxHash = "mutated"
	require.Equal(t, "0xfeed", sink.Advices()[0].TxHash)
	require.NoError(t, sink.Close())
}

func TestPublishingCarriesAdviceMetadata(t *testing.T) {
	msg := publishing(sampleAdvice())
	require.Equal(t, "application/xml", msg.ContentType)
	require.Equal(t, amqp.Persistent, msg.DeliveryMode)
	require.Equal(t, "0d8c1f5e-6d0e-4a4c-9a43-2c8f5d6e7a10", msg.MessageId)
	require.Equal(t, "0xfeed", msg.Headers["tx_hash"])
	require.Equal(t, "<Document/>", string(msg.Body))
}

func TestNewSinksRejectEmptyTargets(t *testing.T) {
	_, err := NewRedisSink(context.Background(), RedisSinkConfig{})
	require.Error(t, err)
	_, err = NewRabbitMQSink(RabbitMQSinkConfig{})
	require.Error(t, err)
}

func redisTestAddress(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDRESS not set")
	}
	return addr
}

func TestRedisSinkPushesEnvelope(t *testing.T) {
	addr := redisTestAddress(t)
	ctx := context.Background()
	key := "aegis:test:settlement"

	sink, err := NewRedisSink(ctx, RedisSinkConfig{Address: addr, DB: 15, Key: key})
	require.NoError(t, err)
	defer sink.Close()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	defer client.Close()
	require.NoError(t, client.Del(ctx, key).Err())

	require.NoError(t, sink.Publish(ctx, sampleAdvice()))

	raw, err := client.RPop(ctx, key).Result()
	require.NoError(t, err)
	var got Advice
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	require.Equal(t, sampleAdvice(), got)
}

func TestRabbitMQSinkPublishes(t *testing.T) {
	url := os.Getenv("RABBITMQ_TEST_URL")
	if url == "" {
		t.Skip("RABBITMQ_TEST_URL not set")
	}
	sink, err := NewRabbitMQSink(RabbitMQSinkConfig{URL: url, Queue: "aegis.test.settlement"})
	require.NoError(t, err)
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sink.Publish(ctx, sampleAdvice()))
}
