package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes envelopes to a single topic through a buffered
// inbox drained by a background goroutine, so publishing never blocks
// the calling request beyond a full buffer.
type KafkaPublisher struct {
	writer *kafka.Writer
	inbox  chan kafka.Message
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func NewKafkaPublisher(brokers []string, topic string, bufferSize int, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	publisher := &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		inbox:  make(chan kafka.Message, bufferSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	go publisher.drain()
	return publisher
}

func (p *KafkaPublisher) Publish(ctx context.Context, envelope Envelope) error {
	value, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(envelope.CorrelationID),
		Value: value,
		Time:  envelope.OccurredAt,
	}

	select {
	case p.inbox <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events, flushes what is buffered, and waits
// for the drain goroutine to exit.
func (p *KafkaPublisher) Close() error {
	p.closeOnce.Do(func() { close(p.inbox) })
	<-p.done
	return p.writer.Close()
}

func (p *KafkaPublisher) drain() {
	defer close(p.done)
	for message := range p.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.writer.WriteMessages(ctx, message); err != nil {
			p.logger.Error("failed to publish event",
				slog.String("key", string(message.Key)),
				slog.String("error", err.Error()))
		}
		cancel()
	}
}
