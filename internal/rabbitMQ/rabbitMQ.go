package rabbitMQ

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
	config  RabbitMQConfig
}

type RabbitMQConfig struct {
	URL       string
	QueueName string
}

func NewRabbitMQ(config RabbitMQConfig) (*RabbitMQ, error) {
	conn, err := amqp.Dial(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q, err := channel.QueueDeclare(
		config.QueueName, // name
		true,             // durable
		false,            // delete when unused
		false,            // exclusive
		false,            // no-wait
		amqp.Table{
			"x-queue-mode": "lazy",
		},
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	logrus.WithField("queue", q.Name).Info("RabbitMQ fan-out queue declared")

	return &RabbitMQ{
		conn:    conn,
		channel: channel,
		queue:   q,
		config:  config,
	}, nil
}

func persistent(body []byte) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}
}

func (r *RabbitMQ) Publish(ctx context.Context, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		"",           // exchange
		r.queue.Name, // routing key
		false,        // mandatory
		false,        // immediate
		persistent(body),
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

// PublishWithDelay parks the message in a per-delay queue whose TTL
// dead-letters it back onto the main queue.
func (r *RabbitMQ) PublishWithDelay(ctx context.Context, message interface{}, delay time.Duration) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	name := delayedQueueName(r.config.QueueName, delay)
	_, err = r.channel.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		delayedQueueArgs(r.config.QueueName, delay),
	)
	if err != nil {
		return fmt.Errorf("failed to declare delayed queue: %w", err)
	}

	if err := r.channel.PublishWithContext(ctx, "", name, false, false, persistent(body)); err != nil {
		return fmt.Errorf("failed to publish delayed message: %w", err)
	}
	return nil
}

// one queue per distinct delay keeps per-queue TTL semantics exact
func delayedQueueName(queueName string, delay time.Duration) string {
	return fmt.Sprintf("%s_delayed_%d", queueName, delay.Milliseconds())
}

func delayedQueueArgs(queueName string, delay time.Duration) amqp.Table {
	return amqp.Table{
		"x-message-ttl":             delay.Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queueName,
		"x-expires":                 delay.Milliseconds() + 60000,
	}
}

// Consume uses prefetch 1 so the fan-out worker sees one task at a time.
func (r *RabbitMQ) Consume(ctx context.Context, handler func(message []byte) error) error {
	err := r.channel.Qos(
		1,     // prefetch count
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := r.channel.Consume(
		r.queue.Name, // queue
		"",           // consumer
		false,        // auto-ack
		false,        // exclusive
		false,        // no-local
		false,        // no-wait
		nil,          // args
	)
	if err != nil {
		return fmt.Errorf("failed to consume messages: %w", err)
	}

	go r.handleMessages(ctx, msgs, handler)
	return nil
}

func (r *RabbitMQ) handleMessages(ctx context.Context, msgs <-chan amqp.Delivery, handler func(message []byte) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			if err := handler(msg.Body); err != nil {
				logrus.WithError(err).Warn("Failed to process message. Message will be retried")
				msg.Nack(false, true)
			} else {
				msg.Ack(false)
			}
		}
	}
}

func (r *RabbitMQ) Close() error {
	var errs []error

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors while closing RabbitMQ: %v", errs)
	}

	return nil
}

// HealthCheck checks the RabbitMQ connection
func (r *RabbitMQ) HealthCheck() error {
	if r.conn == nil || r.conn.IsClosed() {
		return fmt.Errorf("RabbitMQ connection is closed")
	}

	testChannel, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("RabbitMQ health check failed: %w", err)
	}
	testChannel.Close()

	return nil
}
