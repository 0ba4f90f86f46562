package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"vela/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

// SQLiteStore implements ResultStore backed by a SQLite database. The full
// result (config, curve, trades, metrics) is stored as a JSON blob; a few
// headline metrics are denormalized into columns so listing never decodes
// payloads.
type SQLiteStore struct {
	db *sql.DB
}

const resultsSchema = `
CREATE TABLE IF NOT EXISTS backtest_results (
	id           TEXT PRIMARY KEY,
	strategy     TEXT NOT NULL,
	symbols      TEXT NOT NULL,
	status       TEXT NOT NULL,
	total_return REAL NOT NULL DEFAULT 0,
	sharpe_ratio REAL NOT NULL DEFAULT 0,
	max_drawdown REAL NOT NULL DEFAULT 0,
	win_rate     REAL NOT NULL DEFAULT 0,
	total_trades INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL,
	payload      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_backtest_results_created
	ON backtest_results (created_at DESC);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(resultsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveResult inserts or replaces a backtest result.
func (s *SQLiteStore) SaveResult(ctx context.Context, res *domain.BacktestResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding result %s: %w", res.ID, err)
	}

	var totalReturn, sharpe, maxDD, winRate float64
	var totalTrades int
	if res.Metrics != nil {
		totalReturn = res.Metrics.TotalReturn
		sharpe = res.Metrics.SharpeRatio
		maxDD = res.Metrics.MaxDrawdown
		winRate = res.Metrics.WinRate
		totalTrades = res.Metrics.TotalTrades
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO backtest_results
			(id, strategy, symbols, status, total_return, sharpe_ratio,
			 max_drawdown, win_rate, total_trades, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID,
		res.Config.Strategy,
		strings.Join(res.Config.Symbols, ","),
		string(res.Status),
		totalReturn, sharpe, maxDD, winRate, totalTrades,
		res.CompletedAt.UTC().Format(time.RFC3339Nano),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("saving result %s: %w", res.ID, err)
	}
	return nil
}

// GetResult retrieves a stored result by ID.
func (s *SQLiteStore) GetResult(ctx context.Context, id string) (*domain.BacktestResult, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM backtest_results WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading result %s: %w", id, err)
	}

	res := &domain.BacktestResult{}
	if err := json.Unmarshal([]byte(payload), res); err != nil {
		return nil, fmt.Errorf("decoding result %s: %w", id, err)
	}
	return res, nil
}

// ListResults returns summaries of stored results, newest first.
func (s *SQLiteStore) ListResults(ctx context.Context, limit int) ([]ResultSummary, error) {
	q := `SELECT id, strategy, symbols, status, total_return, sharpe_ratio,
			max_drawdown, win_rate, total_trades, created_at
		FROM backtest_results ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	defer rows.Close()

	var out []ResultSummary
	for rows.Next() {
		var sum ResultSummary
		var symbols, status, createdAt string
		if err := rows.Scan(&sum.ID, &sum.Strategy, &symbols, &status,
			&sum.TotalReturn, &sum.SharpeRatio, &sum.MaxDrawdown,
			&sum.WinRate, &sum.TotalTrades, &createdAt); err != nil {
			return nil, err
		}
		if symbols != "" {
			sum.Symbols = strings.Split(symbols, ",")
		}
		sum.Status = domain.RunStatus(status)
		sum.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteResult removes a stored result by ID.
func (s *SQLiteStore) DeleteResult(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM backtest_results WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting result %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
