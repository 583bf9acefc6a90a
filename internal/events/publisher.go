// internal/events/publisher.go
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"funding-service/internal/domain"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	EventTransactionCompleted = "transaction.completed"
	EventTransactionFailed    = "transaction.failed"
)

// LedgerEvent is published after a terminal transition has been committed.
type LedgerEvent struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	InternalRef   string    `json:"reference"`
	ExternalRef   string    `json:"payment_reference"`
	Owner         string    `json:"owner"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	Balance       string    `json:"balance,omitempty"`
	Trigger       string    `json:"trigger"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewLedgerEvent(t *domain.Transaction, w *domain.Wallet, trigger string) LedgerEvent {
	ev := LedgerEvent{
		EventID:     uuid.NewString(),
		EventType:   EventTransactionFailed,
		InternalRef: t.InternalRef,
		ExternalRef: t.ExternalRef,
		Owner:       t.Owner,
		Amount:      t.Amount.StringFixed(domain.AmountScale),
		Currency:    t.Currency,
		Status:      string(t.Status),
		Trigger:     trigger,
		Timestamp:   time.Now().UTC(),
	}
	if t.Status == domain.TxStatusCompleted {
		ev.EventType = EventTransactionCompleted
	}
	if t.PaymentMethod != nil {
		ev.PaymentMethod = *t.PaymentMethod
	}
	if w != nil {
		ev.Balance = w.Balance.StringFixed(domain.AmountScale)
	}
	return ev
}

type Publisher interface {
	Publish(ctx context.Context, ev LedgerEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
	logger  *zap.Logger
}

// NewKafkaPublisher builds a publisher whose Publish gives up after timeout,
// so callers never wait on an unreachable broker for longer than that.
func NewKafkaPublisher(brokers []string, topic string, timeout time.Duration, logger *zap.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           timeout,
	}
	return &KafkaPublisher{writer: w, timeout: timeout, logger: logger}
}

// Publish keys messages by internal reference so events for one transaction
// land on one partition.
func (p *KafkaPublisher) Publish(ctx context.Context, ev LedgerEvent) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.InternalRef),
		Value: payload,
		Time:  ev.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.EventType)},
		},
	})
	if err != nil {
		p.logger.Error("failed to publish ledger event",
			zap.String("event_type", ev.EventType),
			zap.String("internal_ref", ev.InternalRef),
			zap.Error(err))
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, LedgerEvent) error { return nil }
func (NopPublisher) Close() error                               { return nil }
