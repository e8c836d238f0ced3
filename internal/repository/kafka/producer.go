package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"ozzus/check-dispatcher/internal/dispatch"
	"ozzus/check-dispatcher/internal/domain"
)

const (
	DefaultPort = 9092

	headerJobID    = "job_id"
	headerPriority = "priority"

	lowSuffix = "_low"
)

var Driver = dispatch.Driver{
	Name:        "kafka",
	DefaultPort: DefaultPort,
	Module:      "github.com/segmentio/kafka-go",
	MinVersion:  "v0.4.40",
	Dial:        Dial,
}

// LowTopic holds the low priority jobs of queue. Workers drain the queue's
// own topic before it. Topic names cannot contain ':', so the suffix differs
// from the redis one.
func LowTopic(queue string) string {
	return queue + lowSuffix
}

// Topic is the topic a job of queue with priority p is written to.
func Topic(queue string, p domain.Priority) string {
	if p == domain.PriorityLow {
		return LowTopic(queue)
	}
	return queue
}

// Producer is a dispatch handle: queue names are topics, low priority jobs
// go to the queue's low topic and the unique key is the message key.
type Producer struct {
	writer  *kafka.Writer
	timeout time.Duration

	mu      sync.Mutex
	lastErr string
}

func Dial(opts dispatch.Options) (dispatch.Conn, error) {
	return NewProducer(dispatch.Addrs(opts.Servers), opts.Timeout), nil
}

func NewProducer(brokers []string, timeout time.Duration) *Producer {
	p := &Producer{timeout: timeout}
	p.writer = &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            1,
		BatchSize:              1,
		WriteTimeout:           timeout,
		ReadTimeout:            timeout,
		AllowAutoTopicCreation: true,
		Transport: &kafka.Transport{
			DialTimeout: timeout,
		},
	}
	return p
}

func (p *Producer) Submit(ctx context.Context, job dispatch.Job) error {
	p.setLastError("")

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	topic := Topic(job.Queue, job.Priority)
	msg := kafka.Message{
		Topic: topic,
		Value: job.Payload,
		Headers: []kafka.Header{
			{Key: headerJobID, Value: []byte(job.ID)},
			{Key: headerPriority, Value: []byte(job.Priority.String())},
		},
	}
	if job.UniqueKey != "" {
		msg.Key = []byte(job.UniqueKey)
	}

	// only the write's own result counts; the writer logs from its own
	// goroutines and a late line must not fail a later submit
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		err = fmt.Errorf("failed to write to %s: %w", topic, err)
		p.setLastError(err.Error())
		return err
	}
	return nil
}

func (p *Producer) setLastError(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = s
}

func (p *Producer) LastError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
