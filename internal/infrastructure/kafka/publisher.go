package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nerrad567/telemetry-core/internal/infrastructure/config"
	"github.com/nerrad567/telemetry-core/internal/queue"
)

const (
	defaultTopic        = "telemetry.dead-letter"
	defaultWriteTimeout = 10 * time.Second
)

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// envelope is the dead-letter message value.
type envelope struct {
	Queue    string     `json:"queue"`
	FailedAt time.Time  `json:"failedAt"`
	Job      *queue.Job `json:"job"`
}

// DeadLetterPublisher writes terminally failed jobs to Kafka.
type DeadLetterPublisher struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
}

// NewDeadLetterPublisher builds a synchronous writer for the configured
// dead-letter topic. No connection is made until the first publish.
func NewDeadLetterPublisher(cfg config.KafkaConfig) (*DeadLetterPublisher, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	topic := cfg.DeadLetterTopic
	if topic == "" {
		topic = defaultTopic
	}
	compression, err := parseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	acks, err := parseRequiredAcks(cfg.RequiredAcks)
	if err != nil {
		return nil, err
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    10,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: acks,
		Compression:  compression,
	}
	return newPublisher(w, topic, time.Duration(cfg.WriteTimeout)*time.Second), nil
}

func newPublisher(w messageWriter, topic string, timeout time.Duration) *DeadLetterPublisher {
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &DeadLetterPublisher{writer: w, topic: topic, timeout: timeout, now: time.Now}
}

// Topic returns the dead-letter topic name.
func (p *DeadLetterPublisher) Topic() string {
	return p.topic
}

// PublishDeadLetter writes job to the dead-letter topic.
func (p *DeadLetterPublisher) PublishDeadLetter(ctx context.Context, job *queue.Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	value, err := json.Marshal(envelope{Queue: job.Queue, FailedAt: p.now().UTC(), Job: job})
	if err != nil {
		return fmt.Errorf("kafka: encoding job %s: %w", job.ID, err)
	}

	msg := kafka.Message{
		Key:   []byte(job.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "queue", Value: []byte(job.Queue)},
			{Key: "attempts", Value: []byte(strconv.Itoa(job.Attempts))},
			{Key: "topic", Value: []byte(job.Data.Topic)},
		},
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(writeCtx, msg); err != nil {
		return fmt.Errorf("kafka: publishing job %s to %s: %w", job.ID, p.topic, err)
	}
	return nil
}

// Close flushes and closes the writer. Further publishes return ErrClosed.
func (p *DeadLetterPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}

func parseCompression(name string) (kafka.Compression, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("kafka: unknown compression %q", name)
	}
}

func parseRequiredAcks(name string) (kafka.RequiredAcks, error) {
	switch strings.ToLower(name) {
	case "", "all":
		return kafka.RequireAll, nil
	case "one":
		return kafka.RequireOne, nil
	case "none":
		return kafka.RequireNone, nil
	default:
		return 0, fmt.Errorf("kafka: unknown required_acks %q", name)
	}
}
