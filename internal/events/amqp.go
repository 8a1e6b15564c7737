package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// AMQPSink publishes Events to a topic exchange, one routing key per
// (kind, status) pair, grounded on the teacher's EventProducer: declare the
// exchange durable, retry once by reopening the channel on a stale-channel
// publish failure, never surface delivery confirmation to the caller.
type AMQPSink struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	logger   *slog.Logger
}

// NewAMQPSink dials amqpURL and declares exchange as a durable topic
// exchange.
func NewAMQPSink(amqpURL, exchange string, logger *slog.Logger) (*AMQPSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp091.DialConfig(amqpURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	sink := &AMQPSink{conn: conn, channel: ch, exchange: exchange, logger: logger}
	if err := sink.declareExchange(); err != nil {
		sink.Close()
		return nil, err
	}
	return sink, nil
}

func (s *AMQPSink) declareExchange() error {
	return s.channel.ExchangeDeclare(s.exchange, "topic", true, false, false, false, nil)
}

// Publish never returns an error the caller must act on beyond logging; a
// publish failure is retried once by reopening the channel, then swallowed,
// matching the "the core never blocks on delivery confirmation" contract in
// spec §6.
func (s *AMQPSink) Publish(ctx context.Context, event Event) error {
	routingKey := routingKeyFor(event)
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	publishing := amqp091.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	}

	err = s.channel.PublishWithContext(ctx, s.exchange, routingKey, false, false, publishing)
	if err == nil {
		return nil
	}
	s.logger.Warn("event publish failed, reopening channel", "routing_key", routingKey, "error", err)

	ch, reopenErr := s.conn.Channel()
	if reopenErr != nil {
		s.logger.Error("event publish channel reopen failed", "error", reopenErr)
		return nil
	}
	s.channel = ch
	if err := s.declareExchange(); err != nil {
		s.logger.Error("event publish exchange redeclare failed", "error", err)
		return nil
	}
	if err := s.channel.PublishWithContext(ctx, s.exchange, routingKey, false, false, publishing); err != nil {
		s.logger.Error("event publish retry failed", "routing_key", routingKey, "error", err)
	}
	return nil
}

func (s *AMQPSink) Close() {
	if s.channel != nil {
		s.channel.Close()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}

func routingKeyFor(event Event) string {
	return fmt.Sprintf("ledger.%s.%s", event.Kind, strings.ToLower(event.Status))
}
