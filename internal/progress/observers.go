package progress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// LogObserver writes each snapshot to a zap logger.
type LogObserver struct {
	logger *zap.Logger
}

// NewLogObserver returns an observer that logs at info level.
func NewLogObserver(logger *zap.Logger) *LogObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogObserver{logger: logger}
}

// Notify logs s.
func (o *LogObserver) Notify(_ context.Context, s Snapshot) error {
	o.logger.Info("ingest progress",
		zap.String("job_id", s.JobID),
		zap.Int("done", s.Done()),
		zap.Int("total", s.Total),
		zap.Int("failed", s.Failed),
		zap.String("current", s.CurrentDocument),
		zap.Bool("finished", s.Finished))
	return nil
}

// redisPublisher is the subset of redis.UniversalClient the observer needs.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisObserver publishes snapshots as JSON on a Redis pub/sub channel.
type RedisObserver struct {
	client  redisPublisher
	channel string
}

// NewRedisObserver returns an observer publishing on channel.
func NewRedisObserver(client redisPublisher, channel string) *RedisObserver {
	return &RedisObserver{client: client, channel: channel}
}

// NewRedisClient connects to Redis and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}
	return rdb, nil
}

// Notify publishes s.
func (o *RedisObserver) Notify(ctx context.Context, s Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := o.client.Publish(ctx, o.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", o.channel, err)
	}
	return nil
}

// messageWriter is the subset of *kafka.Writer the observer needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaObserver writes snapshots to a Kafka topic keyed by job id, so every
// snapshot of one job lands on the same partition in order.
type KafkaObserver struct {
	writer messageWriter
}

// NewKafkaWriter returns a writer for topic on the given broker list.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
}

// NewKafkaObserver wraps w.
func NewKafkaObserver(w messageWriter) *KafkaObserver {
	return &KafkaObserver{writer: w}
}

// Notify writes s.
func (o *KafkaObserver) Notify(ctx context.Context, s Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := o.writer.WriteMessages(ctx, kafka.Message{Key: []byte(s.JobID), Value: payload}); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (o *KafkaObserver) Close() error {
	return o.writer.Close()
}
