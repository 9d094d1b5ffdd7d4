package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cinema-reservation/pkg/utils"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes persistent JSON messages to a durable topic exchange.
// Routing key: screening.<id>.seats
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
	log      *zap.Logger
}

// DialAMQP connects, opens a channel and declares the exchange.
func DialAMQP(config utils.AMQPConfig, log *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(config.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		config.Exchange, // name
		"topic",         // kind
		true,            // durable
		false,           // autoDelete
		false,           // internal
		false,           // noWait
		nil,             // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", config.Exchange, err)
	}

	p := newAMQPPublisher(ch, config.Exchange, log)
	p.conn = conn
	return p, nil
}

func newAMQPPublisher(ch amqpChannel, exchange string, log *zap.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		ch:       ch,
		exchange: exchange,
		log:      log.With(zap.String("publisher", "amqp")),
	}
}

func RoutingKey(screeningID uuid.UUID) string {
	return fmt.Sprintf("screening.%s.seats", screeningID.String())
}

func (p *AMQPPublisher) Publish(ctx context.Context, screeningID uuid.UUID, events []SeatEvent) error {
	body, err := json.Marshal(NewMessage(screeningID, events))
	if err != nil {
		return fmt.Errorf("marshal seat events: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := RoutingKey(screeningID)
	if err := p.ch.PublishWithContext(ctx, p.exchange, key, false, false, msg); err != nil {
		p.log.Error("Failed to publish to rabbitmq",
			zap.Error(err),
			zap.String("exchange", p.exchange),
			zap.String("routing_key", key),
		)
		return fmt.Errorf("publish to %s/%s: %w", p.exchange, key, err)
	}

	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
