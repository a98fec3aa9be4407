package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/NickAwrist/dynamic-pr-templates/internal/logger"
)

const publishTimeout = 5 * time.Second

// channel is the part of *amqp.Channel used for publishing
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes outcomes as persistent JSON messages to a durable
// queue through the default exchange
type AMQPPublisher struct {
	conn  *amqp.Connection
	queue string
	log   *logger.Logger

	// amqp channels are not goroutine-safe
	mu sync.Mutex
	ch channel
}

// NewAMQPPublisher dials url, opens a publish channel and declares queue
func NewAMQPPublisher(url, queue string, log *logger.Logger) (*AMQPPublisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open publish channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %q: %w", queue, err)
	}

	log.Infof("Publishing bootstrap outcomes to queue %q", queue)
	return &AMQPPublisher{conn: conn, ch: ch, queue: queue, log: log}, nil
}

// PublishOutcome sends msg to the queue
func (p *AMQPPublisher) PublishOutcome(ctx context.Context, msg OutcomeMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.DeliveryID + "/" + msg.Outcome.Repository.String(),
			Timestamp:    msg.PublishedAt,
			Body:         body,
		},
	); err != nil {
		return fmt.Errorf("failed to publish outcome for %s: %w", msg.Outcome.Repository, err)
	}

	p.log.Debugf("Published outcome for %s to %q", msg.Outcome.Repository, p.queue)
	return nil
}

// Close releases the channel and the connection
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			firstErr = err
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
