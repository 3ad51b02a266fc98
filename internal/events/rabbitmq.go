package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Harsh-BH/Intelligenter/internal/domain"
)

const (
	exchangeName = "intelligenter.events"
	exchangeType = "topic"
	queueName    = "analysis_outcomes"
	bindingKey   = "analysis.#"

	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 30 * time.Second

	publishTimeout = 5 * time.Second
)

// RoutingKey returns the routing key of an outcome event, e.g. analysis.completed.
func RoutingKey(status domain.AnalysisStatus) string {
	return "analysis." + string(status)
}

type rabbitPublisher struct {
	url     string
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *zap.Logger
	mu      sync.RWMutex
	closed  bool
}

// NewRabbitMQPublisher connects to the broker, declares the events exchange
// and keeps the connection alive in the background.
func NewRabbitMQPublisher(url string, logger *zap.Logger) (Publisher, error) {
	p := &rabbitPublisher{
		url:    url,
		logger: logger,
	}

	if err := p.connect(); err != nil {
		return nil, err
	}

	go p.watchConnection()

	return p, nil
}

func (p *rabbitPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err == nil {
		err = declareTopology(ch)
		if err != nil {
			_ = ch.Close()
		}
	}
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: %w", err)
	}

	p.mu.Lock()
	p.conn, p.channel = conn, ch
	p.mu.Unlock()

	p.logger.Info("RabbitMQ event publisher initialized",
		zap.String("exchange", exchangeName),
		zap.String("queue", queueName),
	)
	return nil
}

// declareTopology puts ch in confirm mode and declares the durable topic
// exchange with a quorum queue receiving every outcome.
func declareTopology(ch *amqp.Channel) error {
	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("enable confirms: %w", err)
	}
	if err := ch.ExchangeDeclare(exchangeName, exchangeType, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchangeName, err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, amqp.Table{"x-queue-type": "quorum"}); err != nil {
		return fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	if err := ch.QueueBind(queueName, bindingKey, exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind %s to %s: %w", queueName, bindingKey, err)
	}
	return nil
}

func (p *rabbitPublisher) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// watchConnection reconnects after the broker drops the connection.
func (p *rabbitPublisher) watchConnection() {
	for !p.isClosed() {
		p.mu.RLock()
		conn := p.conn
		p.mu.RUnlock()

		reason, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
		if !ok || p.isClosed() {
			return
		}
		p.logger.Warn("RabbitMQ connection lost, reconnecting", zap.String("reason", reason.Error()))

		p.mu.Lock()
		p.channel = nil
		p.mu.Unlock()

		if !p.reconnect() {
			return
		}
	}
}

// reconnect retries connect with capped exponential delay. It returns false
// once the publisher is closed.
func (p *rabbitPublisher) reconnect() bool {
	for delay := reconnectDelay; ; delay = min(delay*2, maxReconnectDelay) {
		time.Sleep(delay)
		if p.isClosed() {
			return false
		}
		if err := p.connect(); err != nil {
			p.logger.Warn("RabbitMQ reconnect failed", zap.Error(err), zap.Duration("waited", delay))
			continue
		}
		p.logger.Info("RabbitMQ reconnected")
		return true
	}
}

func (p *rabbitPublisher) PublishOutcome(ctx context.Context, event domain.AnalysisEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal event: %w", err)
	}

	p.mu.RLock()
	ch := p.channel
	p.mu.RUnlock()
	if ch == nil {
		return fmt.Errorf("rabbitmq: channel not available (reconnecting)")
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	confirm, err := ch.PublishWithDeferredConfirmWithContext(publishCtx,
		exchangeName,
		RoutingKey(event.Status),
		false,
		false,
		amqp.Publishing{
			MessageId:    uuid.NewString(),
			AppId:        "intelligenter",
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}

	acked, err := confirm.WaitContext(publishCtx)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish confirmation (domain=%s): %w", event.Domain, err)
	}
	if !acked {
		return fmt.Errorf("rabbitmq: broker nacked event (domain=%s)", event.Domain)
	}

	p.logger.Debug("Published analysis event",
		zap.String("domain", event.Domain),
		zap.String("status", string(event.Status)),
	)
	return nil
}

// Close stops reconnecting and closes the connection. Unpublished events are dropped.
func (p *rabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	if err := p.conn.Close(); err != nil {
		return fmt.Errorf("rabbitmq: close: %w", err)
	}
	return nil
}
