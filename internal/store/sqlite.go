package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"instabot-trader/internal/models"
)

// SQLiteStore implements OrderJournal using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

var _ OrderJournal = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the journal at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Blocks append from their own goroutines
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id TEXT NOT NULL,
		exchange TEXT NOT NULL,
		symbol TEXT NOT NULL,
		session TEXT NOT NULL,
		tag TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		side TEXT NOT NULL,
		amount REAL NOT NULL,
		price REAL NOT NULL DEFAULT 0,
		placed_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_orders_exchange ON orders(exchange, placed_at);
	CREATE INDEX IF NOT EXISTS idx_orders_session ON orders(session);
	CREATE INDEX IF NOT EXISTS idx_orders_tag ON orders(tag);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Ping checks the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append saves a placed order.
func (s *SQLiteStore) Append(ctx context.Context, rec models.OrderRecord) error {
	placedAt := rec.PlacedAt
	if placedAt.IsZero() {
		placedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (order_id, exchange, symbol, session, tag, kind, side, amount, price, placed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.OrderID, rec.Exchange, rec.Symbol, rec.Session, rec.Tag, string(rec.Kind), string(rec.Side), rec.Amount, rec.Price, placedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append order: %w", err)
	}
	return nil
}

func (f OrderFilter) where() (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)

	if f.Exchange != "" {
		clauses = append(clauses, "exchange = ?")
		args = append(args, strings.ToLower(f.Exchange))
	}
	if f.Symbol != "" {
		clauses = append(clauses, "symbol = ?")
		args = append(args, f.Symbol)
	}
	if f.Session != "" {
		clauses = append(clauses, "session = ?")
		args = append(args, f.Session)
	}
	if f.Tag != "" {
		clauses = append(clauses, "tag = ?")
		args = append(args, f.Tag)
	}
	if f.Side != "" {
		clauses = append(clauses, "side = ?")
		args = append(args, string(f.Side))
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "placed_at >= ?")
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		clauses = append(clauses, "placed_at <= ?")
		args = append(args, f.Until.UTC())
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Orders retrieves journal entries, newest first.
func (s *SQLiteStore) Orders(ctx context.Context, filter OrderFilter) ([]models.OrderRecord, error) {
	where, args := filter.where()
	query := "SELECT order_id, exchange, symbol, session, tag, kind, side, amount, price, placed_at FROM orders" +
		where + " ORDER BY placed_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var records []models.OrderRecord
	for rows.Next() {
		var r models.OrderRecord
		if err := rows.Scan(&r.OrderID, &r.Exchange, &r.Symbol, &r.Session, &r.Tag, &r.Kind, &r.Side, &r.Amount, &r.Price, &r.PlacedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return records, nil
}

// Stats groups matching orders by exchange and side.
func (s *SQLiteStore) Stats(ctx context.Context, filter OrderFilter) ([]OrderStats, error) {
	where, args := filter.where()
	rows, err := s.db.QueryContext(ctx, `
		SELECT exchange, side, COUNT(*), COALESCE(SUM(amount), 0), MIN(placed_at), MAX(placed_at)
		FROM orders`+where+`
		GROUP BY exchange, side
		ORDER BY exchange, side
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query order stats: %w", err)
	}
	defer rows.Close()

	var stats []OrderStats
	for rows.Next() {
		var (
			st          OrderStats
			first, last string
		)
		if err := rows.Scan(&st.Exchange, &st.Side, &st.Orders, &st.TotalAmount, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan order stats: %w", err)
		}
		st.FirstAt = parseTimestamp(first)
		st.LastAt = parseTimestamp(last)
		stats = append(stats, st)
	}

	return stats, rows.Err()
}

// parseTimestamp reads the aggregate columns, which come back as text.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
