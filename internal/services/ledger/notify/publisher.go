package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mojaloop/central-ledger-sub000/internal/platform/timeouts"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/event"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DefaultExchange is the topic exchange notifications are published to.
const DefaultExchange = "ledger.transfers"

// Publisher delivers one event notification.
type Publisher interface {
	Publish(ctx context.Context, evt event.Event) error
}

// amqpChannel is the subset of *amqp.Channel the publisher uses.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes notifications to a durable topic exchange.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  amqpChannel
	reopen   func() (amqpChannel, error)
	exchange string
	logger   *zap.Logger
}

// DialAMQP connects to the broker at rawURL and declares exchange.
func DialAMQP(rawURL, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	cleanURL, err := sanitizeAMQPURL(rawURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	reopen := func() (amqpChannel, error) {
		return conn.Channel()
	}
	ch, err := reopen()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	publisher, err := newAMQPPublisher(ch, reopen, exchange, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	publisher.conn = conn
	return publisher, nil
}

func newAMQPPublisher(ch amqpChannel, reopen func() (amqpChannel, error), exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := declareExchange(ch, exchange); err != nil {
		return nil, err
	}
	return &AMQPPublisher{
		channel:  ch,
		reopen:   reopen,
		exchange: exchange,
		logger:   logger.Named("amqp_publisher"),
	}, nil
}

func declareExchange(ch amqpChannel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}

// Publish sends evt as a persistent JSON message. A failed publish reopens
// the channel and retries once.
func (p *AMQPPublisher) Publish(ctx context.Context, evt event.Event) error {
	msg := NewMessage(evt)
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification %s: %w", msg.ID(), err)
	}
	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID(),
		Type:         string(msg.Type),
		Timestamp:    msg.Timestamp,
		Body:         body,
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.PublishAttempt)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, msg.RoutingKey(), false, false, publishing)
	if err == nil {
		return nil
	}
	p.logger.Warn("publish failed; reopening channel",
		zap.String("exchange", p.exchange),
		zap.String("routing_key", msg.RoutingKey()),
		zap.Error(err),
	)
	if p.reopen == nil {
		return err
	}
	ch, chErr := p.reopen()
	if chErr != nil {
		return errors.Join(err, chErr)
	}
	_ = p.channel.Close()
	p.channel = ch
	if err := declareExchange(ch, p.exchange); err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, p.exchange, msg.RoutingKey(), false, false, publishing)
}

// Close closes the channel and connection.
func (p *AMQPPublisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("parse amqp url: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("amqp url scheme must be amqp or amqps")
	}
	return clean, nil
}

// LogPublisher records notifications in the log instead of a broker. It
// serves deployments without RabbitMQ.
type LogPublisher struct {
	Logger *zap.Logger
}

// Publish logs evt and always succeeds.
func (p LogPublisher) Publish(_ context.Context, evt event.Event) error {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	msg := NewMessage(evt)
	logger.Info("transfer notification",
		zap.String("message_id", msg.ID()),
		zap.String("routing_key", msg.RoutingKey()),
	)
	return nil
}
