package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type Producer interface {
	// SendMessage publishes message keyed by key; one key keeps its order.
	SendMessage(ctx context.Context, key string, message interface{}) error
	Close() error
}

type kafkaProducer struct {
	writer *kafka.Writer
}

// NewProducer falls back to a logging producer when no broker is reachable.
func NewProducer(brokers []string, topic string) Producer {
	if len(brokers) == 0 {
		logrus.Info("No Kafka brokers configured, using mock producer")
		return &mockProducer{topic: topic}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		logrus.WithError(err).Warn("Kafka connection failed, using mock producer instead")
		return &mockProducer{topic: topic}
	}
	defer conn.Close()

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		logrus.WithError(err).Debug("Could not create topic (might already exist)")
	}

	logrus.WithFields(logrus.Fields{"brokers": brokers, "topic": topic}).Info("Connected to Kafka")
	return &kafkaProducer{writer: writer}
}

func buildMessage(key string, message interface{}) (kafka.Message, error) {
	value, err := json.Marshal(message)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}, nil
}

func (p *kafkaProducer) SendMessage(ctx context.Context, key string, message interface{}) error {
	msg, err := buildMessage(key, message)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		logrus.WithError(err).WithField("topic", p.writer.Topic).Error("Failed to write message to Kafka")
		return err
	}
	return nil
}

func (p *kafkaProducer) Close() error {
	return p.writer.Close()
}

// mockProducer logs messages when Kafka is not available
type mockProducer struct {
	topic string
}

func (m *mockProducer) SendMessage(ctx context.Context, key string, message interface{}) error {
	logrus.WithFields(logrus.Fields{"topic": m.topic, "key": key}).Debugf("MOCK: %v", message)
	return nil
}

func (m *mockProducer) Close() error {
	return nil
}
