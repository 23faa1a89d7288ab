// Package event publishes training events to a RabbitMQ topic exchange.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"puzzletrainer/internal/logger"
	"puzzletrainer/internal/models"
)

// PuzzleSubmittedType is the routing key of PuzzleSubmitted.
const PuzzleSubmittedType = "puzzle.submitted"

// PuzzleSubmitted is emitted after a submission commits.
type PuzzleSubmitted struct {
	ID            uuid.UUID             `json:"id"`
	UserID        uint                  `json:"userId"`
	PuzzleID      string                `json:"puzzleId"`
	Solved        bool                  `json:"solved"`
	RatingChanges []models.RatingChange `json:"ratingChanges"`
	At            time.Time             `json:"at"`
}

type Publisher interface {
	PublishPuzzleSubmitted(ctx context.Context, event *PuzzleSubmitted) error
	Close() error
}

type EventPublisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	enabled  bool
	log      *logger.Logger
}

// NewEventPublisher connects and declares the exchange. An empty URI yields a disabled publisher.
func NewEventPublisher(rabbitURI, exchange string, log *logger.Logger) (*EventPublisher, error) {
	if rabbitURI == "" || exchange == "" {
		log.Warn("RabbitMQ not configured, event publishing is disabled")
		return &EventPublisher{exchange: exchange, log: log}, nil
	}

	conn, err := amqp091.Dial(rabbitURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	log.Info("event publisher initialized", "exchange", exchange)
	return &EventPublisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		enabled:  true,
		log:      log,
	}, nil
}

func (p *EventPublisher) PublishPuzzleSubmitted(ctx context.Context, event *PuzzleSubmitted) error {
	if !p.enabled {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// amqp channels are not safe for concurrent publishes
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx,
		p.exchange,          // exchange
		PuzzleSubmittedType, // routing key
		false,               // mandatory
		false,               // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    event.ID.String(),
			Timestamp:    event.At,
			Body:         body,
			Headers: amqp091.Table{
				"event_type": PuzzleSubmittedType,
				"user_id":    strconv.FormatUint(uint64(event.UserID), 10),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *EventPublisher) Close() error {
	if !p.enabled {
		return nil
	}
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.log.Warn("error closing RabbitMQ channel", "error", err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("error closing RabbitMQ connection: %w", err)
		}
	}
	return nil
}

// MockPublisher records events in memory.
type MockPublisher struct {
	mu     sync.Mutex
	Events []PuzzleSubmitted
	Err    error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{Events: make([]PuzzleSubmitted, 0)}
}

func (m *MockPublisher) PublishPuzzleSubmitted(_ context.Context, event *PuzzleSubmitted) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Events = append(m.Events, *event)
	return nil
}

func (m *MockPublisher) Close() error {
	return nil
}

func (m *MockPublisher) GetEvents() []PuzzleSubmitted {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PuzzleSubmitted(nil), m.Events...)
}
