// Package store is the write-only persistence sink receiving terminal
// order outcomes. It is never consulted during execution, and write
// failures must not alter the client-visible outcome.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/swapline/swapline/internal/config"
	"github.com/swapline/swapline/pkg/models"
)

// Record status values.
const (
	RecordConfirmed = "CONFIRMED"
	RecordFailed    = "FAILED"
)

// Sink accepts terminal order records.
type Sink interface {
	SaveConfirmed(ctx context.Context, order models.Order, executedPrice, finalOutput decimal.Decimal, txHash string) error
	SaveFailed(ctx context.Context, order models.Order, reason string) error
}

// OrderRecord is the audit/history row for a finished order.
type OrderRecord struct {
	ID              string          `gorm:"primaryKey;size:64"`
	Status          string          `gorm:"size:16;index"`
	InputToken      string          `gorm:"size:32"`
	OutputToken     string          `gorm:"size:32"`
	InputAmount     decimal.Decimal `gorm:"type:decimal(32,18)"`
	ExecutedPrice   decimal.Decimal `gorm:"type:decimal(32,18)"`
	FinalOutput     decimal.Decimal `gorm:"type:decimal(32,18)"`
	TransactionHash string          `gorm:"size:128"`
	FailReason      string          `gorm:"size:255"`
	CreatedAt       time.Time
}

// DB is the gorm-backed sink.
type DB struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects per the configured driver and migrates the schema.
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return New(db, logger)
}

// New wraps an existing gorm handle and migrates the schema.
func New(db *gorm.DB, logger *zap.Logger) (*DB, error) {
	if err := db.AutoMigrate(&OrderRecord{}); err != nil {
		return nil, fmt.Errorf("migrate order records: %w", err)
	}
	return &DB{db: db, logger: logger}, nil
}

func (s *DB) SaveConfirmed(ctx context.Context, order models.Order, executedPrice, finalOutput decimal.Decimal, txHash string) error {
	rec := OrderRecord{
		ID:              order.ID,
		Status:          RecordConfirmed,
		InputToken:      order.InputToken,
		OutputToken:     order.OutputToken,
		InputAmount:     order.Amount,
		ExecutedPrice:   executedPrice,
		FinalOutput:     finalOutput,
		TransactionHash: txHash,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("save confirmed order %s: %w", order.ID, err)
	}
	s.logger.Debug("order record saved",
		zap.String("order_id", order.ID),
		zap.String("status", RecordConfirmed))
	return nil
}

func (s *DB) SaveFailed(ctx context.Context, order models.Order, reason string) error {
	rec := OrderRecord{
		ID:          order.ID,
		Status:      RecordFailed,
		InputToken:  order.InputToken,
		OutputToken: order.OutputToken,
		InputAmount: order.Amount,
		FailReason:  models.TruncateReason(reason),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("save failed order %s: %w", order.ID, err)
	}
	s.logger.Debug("order record saved",
		zap.String("order_id", order.ID),
		zap.String("status", RecordFailed))
	return nil
}

// Find returns the record for an order ID.
func (s *DB) Find(ctx context.Context, orderID string) (*OrderRecord, error) {
	var rec OrderRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", orderID).Error; err != nil {
		return nil, fmt.Errorf("find order %s: %w", orderID, err)
	}
	return &rec, nil
}

// Multi fans records out to several sinks. Errors from later sinks do
// not stop earlier ones; the first error is returned.
type Multi []Sink

func (m Multi) SaveConfirmed(ctx context.Context, order models.Order, executedPrice, finalOutput decimal.Decimal, txHash string) error {
	var first error
	for _, s := range m {
		if err := s.SaveConfirmed(ctx, order, executedPrice, finalOutput, txHash); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) SaveFailed(ctx context.Context, order models.Order, reason string) error {
	var first error
	for _, s := range m {
		if err := s.SaveFailed(ctx, order, reason); err != nil && first == nil {
			first = err
		}
	}
	return first
}
