package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"funding-service/internal/domain"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

// stalledWriter behaves like a writer whose broker never answers.
type stalledWriter struct{}

func (stalledWriter) WriteMessages(ctx context.Context, _ ...kafka.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledWriter) Close() error { return nil }

func completedTx() *domain.Transaction {
	pm := "CARD"
	return &domain.Transaction{
		InternalRef:   "WAL-1",
		ExternalRef:   "EXT-1",
		Owner:         "user-1",
		Amount:        decimal.NewFromInt(500),
		Currency:      "NGN",
		Kind:          domain.TxKindDeposit,
		Status:        domain.TxStatusCompleted,
		PaymentMethod: &pm,
	}
}

func TestNewLedgerEvent(t *testing.T) {
	w := &domain.Wallet{Balance: decimal.NewFromInt(500)}
	ev := NewLedgerEvent(completedTx(), w, "webhook")

	assert.Equal(t, EventTransactionCompleted, ev.EventType)
	assert.Equal(t, "500.00", ev.Amount)
	assert.Equal(t, "500.00", ev.Balance)
	assert.Equal(t, "CARD", ev.PaymentMethod)
	assert.NotEmpty(t, ev.EventID)

	failed := completedTx()
	failed.Status = domain.TxStatusFailed
	assert.Equal(t, EventTransactionFailed, NewLedgerEvent(failed, nil, "poll").EventType)
}

func TestKafkaPublisher_Publish(t *testing.T) {
	fw := &fakeWriter{}
	p := &KafkaPublisher{writer: fw, logger: zap.NewNop()}

	ev := NewLedgerEvent(completedTx(), nil, "poll")
	require.NoError(t, p.Publish(context.Background(), ev))
	require.Len(t, fw.msgs, 1)
	assert.Equal(t, "WAL-1", string(fw.msgs[0].Key))

	var decoded LedgerEvent
	require.NoError(t, json.Unmarshal(fw.msgs[0].Value, &decoded))
	assert.Equal(t, ev.EventID, decoded.EventID)
}

func TestKafkaPublisher_PublishError(t *testing.T) {
	fw := &fakeWriter{err: errors.New("broker down")}
	p := &KafkaPublisher{writer: fw, logger: zap.NewNop()}

	err := p.Publish(context.Background(), NewLedgerEvent(completedTx(), nil, "poll"))
	assert.Error(t, err)
}

func TestKafkaPublisher_PublishGivesUpAfterTimeout(t *testing.T) {
	p := &KafkaPublisher{writer: stalledWriter{}, timeout: 20 * time.Millisecond, logger: zap.NewNop()}

	start := time.Now()
	err := p.Publish(context.Background(), NewLedgerEvent(completedTx(), nil, "webhook"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}
