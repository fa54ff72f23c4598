package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"pricechart/internal/logger"
	"pricechart/internal/market"
)

// SQLiteStore 把序列持久化到 SQLite；OHLC 列允许 NULL，缺失值原样保留。
// Close 之后 db 保留，读写返回 sql: database is closed。
type SQLiteStore struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// OpenSQLite opens (or creates) the database file and runs migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path 不能为空")
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create store dir: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// 单连接：写入串行化，:memory: 库也不会被拆成多份。
	db.SetMaxOpenConns(1)
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Infof("[store] sqlite opened: %s", path)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_points (
			symbol    TEXT    NOT NULL,
			timeframe TEXT    NOT NULL,
			ts        INTEGER NOT NULL,
			open      REAL,
			high      REAL,
			low       REAL,
			close     REAL,
			PRIMARY KEY (symbol, timeframe, ts)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_points_ts ON price_points(symbol, timeframe, ts DESC)`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Put upserts pts and trims the series to its newest max points.
func (s *SQLiteStore) Put(ctx context.Context, symbol, interval string, pts []market.PricePoint, max int) error {
	symbol, interval, err := normalizeKey(symbol, interval)
	if err != nil {
		return err
	}
	if len(pts) == 0 {
		return nil
	}
	if max <= 0 {
		max = DefaultMaxPoints
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO price_points (symbol, timeframe, ts, open, high, low, close)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(symbol, timeframe, ts) DO UPDATE SET
            open=excluded.open, high=excluded.high, low=excluded.low, close=excluded.close`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, p := range pts {
		if _, err := stmt.ExecContext(ctx, symbol, interval, p.Time.UnixMilli(),
			nullable(p.Open), nullable(p.High), nullable(p.Low), nullable(p.Close)); err != nil {
			return fmt.Errorf("upsert %s@%s: %w", symbol, interval, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
        DELETE FROM price_points
        WHERE symbol=? AND timeframe=? AND ts NOT IN (
            SELECT ts FROM price_points WHERE symbol=? AND timeframe=? ORDER BY ts DESC LIMIT ?
        )`, symbol, interval, symbol, interval, max); err != nil {
		return fmt.Errorf("trim %s@%s: %w", symbol, interval, err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, symbol, interval string) ([]market.PricePoint, error) {
	symbol, interval, err := normalizeKey(symbol, interval)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT ts, open, high, low, close FROM price_points
        WHERE symbol=? AND timeframe=? ORDER BY ts ASC`, symbol, interval)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]market.PricePoint, 0)
	for rows.Next() {
		var (
			ts                     int64
			open, high, low, close sql.NullFloat64
		)
		if err := rows.Scan(&ts, &open, &high, &low, &close); err != nil {
			return nil, err
		}
		out = append(out, market.PricePoint{
			Time:  time.UnixMilli(ts),
			Open:  ptrFloat(open),
			High:  ptrFloat(high),
			Low:   ptrFloat(low),
			Close: ptrFloat(close),
		})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Keys(ctx context.Context) ([]Key, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT symbol, timeframe, COUNT(*) FROM price_points
        GROUP BY symbol, timeframe ORDER BY symbol, timeframe`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Key
	for rows.Next() {
		var k Key
		if err := rows.Scan(&k.Symbol, &k.Interval, &k.Points); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func ptrFloat(v sql.NullFloat64) *float64 {
	if v.Valid {
		return &v.Float64
	}
	return nil
}
