// Package store defines storage interfaces for bars and backtest results,
// with Parquet and SQLite implementations.
package store

import (
	"context"
	"errors"
	"time"

	"vela/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol within [start, end].
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols with bar data.
	ListSymbols(ctx context.Context) ([]string, error)
}

// ResultSummary is the listing row for a stored backtest result: enough to
// render a results table without decoding the full payload.
type ResultSummary struct {
	ID          string           `json:"id"`
	Strategy    string           `json:"strategy"`
	Symbols     []string         `json:"symbols"`
	Status      domain.RunStatus `json:"status"`
	TotalReturn float64          `json:"total_return"`
	SharpeRatio float64          `json:"sharpe_ratio"`
	MaxDrawdown float64          `json:"max_drawdown"`
	WinRate     float64          `json:"win_rate"`
	TotalTrades int              `json:"total_trades"`
	CreatedAt   time.Time        `json:"created_at"`
}

// ResultStore persists and retrieves completed backtest results.
type ResultStore interface {
	// SaveResult inserts or replaces a result by its ID.
	SaveResult(ctx context.Context, res *domain.BacktestResult) error

	// GetResult retrieves a result by ID. Returns ErrNotFound if absent.
	GetResult(ctx context.Context, id string) (*domain.BacktestResult, error)

	// ListResults returns summaries of stored results, newest first, up to
	// limit (0 = no limit).
	ListResults(ctx context.Context, limit int) ([]ResultSummary, error)

	// DeleteResult removes a stored result. Returns ErrNotFound if absent.
	DeleteResult(ctx context.Context, id string) error
}
