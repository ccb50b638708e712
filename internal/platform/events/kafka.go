package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/odyssey-erp/stock-ledger/internal/ledger"
)

// StockChanged is the event published for every committed ledger write.
type StockChanged struct {
	CompanyID       int64     `json:"company_id"`
	ItemID          int64     `json:"item_id"`
	EntryID         int64     `json:"entry_id"`
	Type            string    `json:"type"`
	QuantityChange  int64     `json:"quantity_change"`
	Balance         int64     `json:"balance"`
	TransactionDate time.Time `json:"transaction_date"`
	Reference       string    `json:"reference,omitempty"`
	SourceType      string    `json:"source_type,omitempty"`
	SourceID        int64     `json:"source_document_id,omitempty"`
	Compensates     int64     `json:"compensates,omitempty"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends StockChanged events to Kafka and implements ledger.Notifier.
type Publisher struct {
	writer MessageWriter
}

// NewPublisher builds a publisher for topic. Messages are keyed by stream so every
// change of one item lands on the same partition in order.
func NewPublisher(brokers []string, topic string) *Publisher {
	return NewPublisherWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	})
}

// NewPublisherWithWriter wraps an existing writer.
func NewPublisherWithWriter(writer MessageWriter) *Publisher {
	return &Publisher{writer: writer}
}

// StockChanged publishes one event per entry.
func (p *Publisher) StockChanged(ctx context.Context, entries []ledger.Entry) error {
	if p == nil || p.writer == nil {
		return errors.New("events publisher not initialised")
	}
	if len(entries) == 0 {
		return nil
	}
	msgs, err := Messages(entries)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish stock changed: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// Messages encodes entries as Kafka messages keyed by "<company>:<item>".
func Messages(entries []ledger.Entry) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(entries))
	for _, e := range entries {
		body, err := json.Marshal(StockChanged{
			CompanyID:       e.CompanyID,
			ItemID:          e.ItemID,
			EntryID:         e.ID,
			Type:            e.Type.String(),
			QuantityChange:  e.QuantityChange,
			Balance:         e.NetBalance,
			TransactionDate: e.TransactionDate,
			Reference:       e.ReferenceLabel,
			SourceType:      string(e.Source.Type),
			SourceID:        e.Source.DocumentID,
			Compensates:     e.Reverses,
			RecordedAt:      e.RecordedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("encode stock changed: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.Key().String()),
			Value: body,
			Headers: []kafka.Header{
				{Key: "event", Value: []byte("stock.changed")},
			},
		})
	}
	return msgs, nil
}
