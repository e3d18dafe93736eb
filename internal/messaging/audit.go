// Package messaging publishes terminal order records to a Kafka topic as
// an append-only audit trail alongside the database sink.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/swapline/swapline/internal/config"
	"github.com/swapline/swapline/pkg/models"
)

// auditRecord is the wire shape written to the audit topic.
type auditRecord struct {
	ID              string          `json:"id"`
	Status          string          `json:"status"`
	InputToken      string          `json:"inputToken"`
	OutputToken     string          `json:"outputToken"`
	InputAmount     decimal.Decimal `json:"inputAmount"`
	ExecutedPrice   decimal.Decimal `json:"executedPrice,omitempty"`
	FinalOutput     decimal.Decimal `json:"finalOutput,omitempty"`
	TransactionHash string          `json:"transactionHash,omitempty"`
	FailReason      string          `json:"failReason,omitempty"`
	RecordedAt      time.Time       `json:"recordedAt"`
}

// AuditPublisher implements store.Sink over a Kafka writer.
type AuditPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewAuditPublisher creates a producer for the configured audit topic.
func NewAuditPublisher(cfg config.KafkaConfig, logger *zap.Logger) *AuditPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.CRC32Balancer{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: time.Second,
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		Compression:  kafka.Snappy,
	}
	return &AuditPublisher{writer: writer, logger: logger}
}

func (p *AuditPublisher) SaveConfirmed(ctx context.Context, order models.Order, executedPrice, finalOutput decimal.Decimal, txHash string) error {
	return p.publish(ctx, auditRecord{
		ID:              order.ID,
		Status:          "CONFIRMED",
		InputToken:      order.InputToken,
		OutputToken:     order.OutputToken,
		InputAmount:     order.Amount,
		ExecutedPrice:   executedPrice,
		FinalOutput:     finalOutput,
		TransactionHash: txHash,
		RecordedAt:      time.Now().UTC(),
	})
}

func (p *AuditPublisher) SaveFailed(ctx context.Context, order models.Order, reason string) error {
	return p.publish(ctx, auditRecord{
		ID:          order.ID,
		Status:      "FAILED",
		InputToken:  order.InputToken,
		OutputToken: order.OutputToken,
		InputAmount: order.Amount,
		FailReason:  models.TruncateReason(reason),
		RecordedAt:  time.Now().UTC(),
	})
}

func (p *AuditPublisher) publish(ctx context.Context, rec auditRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(rec.ID),
		Value: data,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write audit record %s: %w", rec.ID, err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *AuditPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		p.logger.Error("failed to close audit writer", zap.Error(err))
		return err
	}
	return nil
}
