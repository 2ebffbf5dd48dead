package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/config"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

const (
	AuditQueueName = "audit_events"
	ExchangeName   = "cnpjleads"
)

// Message types
const (
	MessageTypeExport  = "export"
	MessageTypeDataset = "dataset"
)

// Message is the envelope of every audit event on the bus
type Message struct {
	Type    string               `json:"type"`
	Export  *models.ExportEvent  `json:"export,omitempty"`
	Dataset *models.DatasetEvent `json:"dataset,omitempty"`
}

// Validate checks the envelope carries the payload its type names
func (m *Message) Validate() error {
	switch m.Type {
	case MessageTypeExport:
		if m.Export == nil || m.Export.ID == "" {
			return fmt.Errorf("export message without event")
		}
	case MessageTypeDataset:
		if m.Dataset == nil || m.Dataset.DatasetID == "" {
			return fmt.Errorf("dataset message without event")
		}
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}

func decodeMessage(body []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Queue provides message queue operations
type Queue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// New creates a new queue client and declares the audit topology
func New(cfg config.QueueConfig) (*Queue, error) {
	conn, err := amqp.Dial(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// Declare exchange
	err = channel.ExchangeDeclare(
		ExchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Declare queue
	_, err = channel.QueueDeclare(
		AuditQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	// Bind queue to exchange
	err = channel.QueueBind(
		AuditQueueName,
		AuditQueueName,
		ExchangeName,
		false,
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	q := &Queue{
		conn:    conn,
		channel: channel,
	}

	if err := q.SetupDeadLetterQueue(); err != nil {
		q.Close()
		return nil, err
	}

	return q, nil
}

// Close closes the queue connection
func (q *Queue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// PublishExportEvent publishes a debit audit event
func (q *Queue) PublishExportEvent(ctx context.Context, ev *models.ExportEvent) error {
	return q.publish(ctx, &Message{Type: MessageTypeExport, Export: ev}, 0)
}

// PublishDatasetEvent publishes a dataset change audit event
func (q *Queue) PublishDatasetEvent(ctx context.Context, ev *models.DatasetEvent) error {
	return q.publish(ctx, &Message{Type: MessageTypeDataset, Dataset: ev}, 0)
}

func (q *Queue) publish(ctx context.Context, msg *Message, retryCount int) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = q.channel.PublishWithContext(ctx,
		ExchangeName,
		AuditQueueName,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
			Type:         msg.Type,
			Headers:      amqp.Table{retryHeader: int32(retryCount)},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", msg.Type, err)
	}

	return nil
}

// Consume starts consuming audit events. A failed handler call schedules a
// delayed retry; after MaxRetries the message is dead-lettered.
func (q *Queue) Consume(ctx context.Context, handler func(context.Context, *Message) error) error {
	// Set QoS to limit concurrent processing
	err := q.channel.Qos(
		1,     // prefetch count
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := q.channel.Consume(
		AuditQueueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-msgs:
				if !ok {
					return
				}
				q.handleDelivery(ctx, delivery, handler)
			}
		}
	}()

	return nil
}

func (q *Queue) handleDelivery(ctx context.Context, delivery amqp.Delivery, handler func(context.Context, *Message) error) {
	msg, err := decodeMessage(delivery.Body)
	if err != nil {
		if dlqErr := q.PublishToDeadLetterQueue(ctx, delivery.Body, err.Error()); dlqErr != nil {
			delivery.Nack(false, true)
			return
		}
		delivery.Ack(false)
		return
	}

	if err := handler(ctx, msg); err != nil {
		if retryErr := q.PublishToRetryQueue(ctx, msg, retryCount(delivery.Headers), err); retryErr != nil {
			// Requeue in place when the retry path is unavailable
			delivery.Nack(false, true)
			return
		}
	}
	delivery.Ack(false)
}

// GetQueueDepth returns the number of messages in the queue
func (q *Queue) GetQueueDepth() (int, error) {
	info, err := q.channel.QueueInspect(AuditQueueName)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect queue: %w", err)
	}

	return info.Messages, nil
}
