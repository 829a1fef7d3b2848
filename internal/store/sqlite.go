// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"research-terminal/internal/errors"
	"research-terminal/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	syncTimes map[string]time.Time
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:        db,
		syncTimes: make(map[string]time.Time),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Daily price cache
	CREATE TABLE IF NOT EXISTS prices (
		symbol TEXT NOT NULL,
		source TEXT NOT NULL,
		date DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (symbol, source, date)
	);

	-- Last successful fetch per cache key
	CREATE TABLE IF NOT EXISTS sync_state (
		key TEXT PRIMARY KEY,
		last_sync DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Saved optimizations
	CREATE TABLE IF NOT EXISTS portfolios (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		method TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		params TEXT NOT NULL,
		weights TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_prices_date ON prices(date);
	CREATE INDEX IF NOT EXISTS idx_portfolios_created ON portfolios(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Price Methods
// ============================================================================

// SavePrices upserts candles for a symbol and source.
func (s *SQLiteStore) SavePrices(ctx context.Context, symbol, source string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO prices (symbol, source, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.ExecContext(ctx, symbol, source, c.Timestamp.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			return fmt.Errorf("failed to insert price: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetPrices retrieves cached candles between from and to inclusive, oldest first.
func (s *SQLiteStore) GetPrices(ctx context.Context, symbol, source string, from, to time.Time) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, volume
		FROM prices
		WHERE symbol = ? AND source = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, symbol, source, from.UTC(), to.UTC())
	if err != nil {
		return nil, &errors.DataError{DataType: "prices", Symbol: symbol, Message: "query failed", Err: err}
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		c.Timestamp = c.Timestamp.UTC()
		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices: %w", err)
	}

	return candles, nil
}

// ============================================================================
// Portfolio Methods
// ============================================================================

// SavePortfolio stores a portfolio, assigning an id and creation time when missing.
func (s *SQLiteStore) SavePortfolio(ctx context.Context, p *Portfolio) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	params, err := json.Marshal(p.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	weights, err := json.Marshal(p.Weights)
	if err != nil {
		return fmt.Errorf("failed to encode weights: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO portfolios (id, name, method, created_at, params, weights)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Method, p.CreatedAt.UTC(), string(params), string(weights))
	if err != nil {
		return fmt.Errorf("%w: saving portfolio: %v", errors.ErrDatabaseError, err)
	}
	return nil
}

// GetPortfolio loads a portfolio by id. A unique id prefix is accepted.
func (s *SQLiteStore) GetPortfolio(ctx context.Context, id string) (*Portfolio, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, method, created_at, params, weights
		FROM portfolios WHERE id LIKE ? || '%'
		LIMIT 2
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio: %w", err)
	}
	defer rows.Close()

	var found []Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: portfolio %s", errors.ErrDataNotFound, id)
	case 1:
		return &found[0], nil
	default:
		return nil, errors.NewValidationError("id", id, "prefix matches more than one portfolio")
	}
}

// ListPortfolios returns saved portfolios, newest first.
func (s *SQLiteStore) ListPortfolios(ctx context.Context, limit int) ([]Portfolio, error) {
	query := "SELECT id, name, method, created_at, params, weights FROM portfolios ORDER BY created_at DESC"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, err
		}
		portfolios = append(portfolios, *p)
	}
	return portfolios, rows.Err()
}

// DeletePortfolio removes a saved portfolio.
func (s *SQLiteStore) DeletePortfolio(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM portfolios WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete portfolio: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: portfolio %s", errors.ErrDataNotFound, id)
	}
	return nil
}

func scanPortfolio(rows *sql.Rows) (*Portfolio, error) {
	var p Portfolio
	var params, weights string
	if err := rows.Scan(&p.ID, &p.Name, &p.Method, &p.CreatedAt, &params, &weights); err != nil {
		return nil, fmt.Errorf("failed to scan portfolio: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &p.Params); err != nil {
		return nil, fmt.Errorf("failed to decode params of %s: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(weights), &p.Weights); err != nil {
		return nil, fmt.Errorf("failed to decode weights of %s: %w", p.ID, err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

// Symbols returns the portfolio's symbols by descending weight.
func (p *Portfolio) Symbols() []string {
	out := make([]string, 0, len(p.Weights))
	for sym := range p.Weights {
		out = append(out, sym)
	}
	sort.Slice(out, func(i, j int) bool {
		if p.Weights[out[i]] != p.Weights[out[j]] {
			return p.Weights[out[i]] > p.Weights[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// ============================================================================
// Sync Methods
// ============================================================================

// GetLastSync returns the last sync time for a cache key.
func (s *SQLiteStore) GetLastSync(key string) time.Time {
	s.mu.RLock()
	if t, ok := s.syncTimes[key]; ok {
		s.mu.RUnlock()
		return t
	}
	s.mu.RUnlock()

	var lastSync time.Time
	err := s.db.QueryRow(`
		SELECT last_sync FROM sync_state WHERE key = ?
	`, key).Scan(&lastSync)
	if err != nil {
		return time.Time{}
	}

	s.mu.Lock()
	s.syncTimes[key] = lastSync
	s.mu.Unlock()

	return lastSync
}

// SetLastSync sets the last sync time for a cache key.
func (s *SQLiteStore) SetLastSync(key string, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sync_state (key, last_sync, updated_at)
		VALUES (?, ?, ?)
	`, key, t.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}

	s.mu.Lock()
	s.syncTimes[key] = t
	s.mu.Unlock()

	return nil
}
