package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"ozzus/check-dispatcher/internal/repository"
)

// Consumer reads worker results from the result topic as a member of a
// consumer group, so every result reaches one collector.
type Consumer struct {
	reader *kafka.Reader
	topic  string
	log    *slog.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log *slog.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			StartOffset: kafka.FirstOffset,
			Topic:       topic,
			GroupID:     groupID,
			MaxWait:     10 * time.Second,
		}),
		topic: topic,
		log:   log,
	}
}

// SourceFactory opens one consumer per result worker, all in the same group.
func SourceFactory(brokers []string, topic string, log *slog.Logger) repository.ResultSourceFactory {
	group := topic + "-collectors"
	return func(workerID int) (repository.ResultSource, error) {
		return NewConsumer(brokers, topic, group, log.With(slog.Int("worker", workerID))), nil
	}
}

// CheckConnection dials the first broker and reads the partitions of topic.
func CheckConnection(ctx context.Context, broker, topic string, log *slog.Logger) error {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("failed to connect to kafka: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(topic)
	if err != nil {
		return fmt.Errorf("failed to read partitions: %w", err)
	}

	log.Info("kafka connection ok", "topic", topic, "partitions", len(partitions))
	return nil
}

func (c *Consumer) Fetch(ctx context.Context) (repository.Delivery, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return repository.Delivery{}, err
	}

	c.log.Debug("received message",
		"key", string(msg.Key),
		"partition", msg.Partition,
		"offset", msg.Offset,
		"value_length", len(msg.Value))

	return repository.Delivery{
		Payload: msg.Value,
		Ack: func(ctx context.Context) error {
			return c.commit(ctx, msg)
		},
	}, nil
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) error {
	const maxRetries = 3

	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		timeout := 5 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return ctx.Err()
			}
			if remaining < timeout {
				timeout = remaining
			}
		}

		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		err := c.reader.CommitMessages(commitCtx, msg)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
	}

	return fmt.Errorf("failed to commit message: %w", lastErr)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func (c *Consumer) Topic() string {
	return c.topic
}
