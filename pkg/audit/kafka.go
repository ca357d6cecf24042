// Package audit publishes committed ledger receipts to kafka.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"quotecore/internal/ledger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const eventType = "ledger.receipt"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReceiptPublisher implements ledger.ReceiptSink. Messages are keyed by user
// id so one account's receipts stay ordered within a partition.
type ReceiptPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

// NewReceiptPublisher creates a publisher writing to topic on brokers.
func NewReceiptPublisher(brokers []string, topic string, logger *zap.Logger) *ReceiptPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            5,
	}
	return newReceiptPublisher(writer, logger)
}

func newReceiptPublisher(w messageWriter, logger *zap.Logger) *ReceiptPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReceiptPublisher{writer: w, logger: logger}
}

// Publish writes receipt as JSON keyed by user id, so one user's receipts
// stay ordered within a partition.
func (p *ReceiptPublisher) Publish(ctx context.Context, receipt ledger.Receipt) error {
	data, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(receipt.UserID),
		Value: data,
		Time:  receipt.AppliedAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(eventType)},
			{Key: "order-id", Value: []byte(receipt.Order.OrderID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish receipt %s: %w", receipt.ID, err)
	}

	p.logger.Debug("receipt published", zap.String("receipt_id", receipt.ID), zap.String("user_id", receipt.UserID))
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *ReceiptPublisher) Close() error {
	return p.writer.Close()
}

var _ ledger.ReceiptSink = (*ReceiptPublisher)(nil)
