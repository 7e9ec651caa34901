// Package store persists the mapping from chat identities to wallet users.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Lookup when the identity has no mapping.
var ErrNotFound = errors.New("identity mapping not found")

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

const schema = `CREATE TABLE IF NOT EXISTS identity_wallets (
	chat_id TEXT PRIMARY KEY,
	wallet_user_id TEXT NOT NULL,
	wallet_admin_id TEXT NOT NULL,
	created_at TEXT NOT NULL
)`

// Mapping links one chat identity to its wallet-service user.
type Mapping struct {
	ChatID        string
	WalletUserID  string
	WalletAdminID string
	CreatedAt     time.Time
}

// Store is a SQL-backed identity mapping table. Mappings are never updated
// or deleted.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database named by url. postgres:// and postgresql://
// URLs use postgres; anything else is a sqlite file path.
func Open(ctx context.Context, url string) (*Store, error) {
	driver, dsn := driverFor(url)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	if driver == driverSQLite {
		// One writer keeps sqlite from returning SQLITE_BUSY under concurrent provisioning.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

func driverFor(url string) (string, string) {
	trimmed := strings.TrimSpace(url)
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return driverPostgres, trimmed
	}

	return driverSQLite, strings.TrimPrefix(trimmed, "sqlite://")
}

// Exists reports whether chatID already has a mapping.
func (s *Store) Exists(ctx context.Context, chatID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM identity_wallets WHERE chat_id = ?`), chatID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check mapping for %s: %w", chatID, err)
	}

	return true, nil
}

// Insert stores m unless chatID is already mapped. inserted is false when an
// existing row won; the existing row is left untouched.
func (s *Store) Insert(ctx context.Context, m Mapping) (bool, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO identity_wallets (chat_id, wallet_user_id, wallet_admin_id, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (chat_id) DO NOTHING`),
		m.ChatID, m.WalletUserID, m.WalletAdminID, m.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("insert mapping for %s: %w", m.ChatID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert mapping for %s: %w", m.ChatID, err)
	}

	return n == 1, nil
}

// Lookup returns the mapping for chatID or ErrNotFound.
func (s *Store) Lookup(ctx context.Context, chatID string) (Mapping, error) {
	var (
		m       Mapping
		created string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT chat_id, wallet_user_id, wallet_admin_id, created_at
		 FROM identity_wallets WHERE chat_id = ?`), chatID,
	).Scan(&m.ChatID, &m.WalletUserID, &m.WalletAdminID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Mapping{}, fmt.Errorf("%w: %s", ErrNotFound, chatID)
	}
	if err != nil {
		return Mapping{}, fmt.Errorf("lookup mapping for %s: %w", chatID, err)
	}

	if parsed, err := time.Parse(time.RFC3339Nano, created); err == nil {
		m.CreatedAt = parsed
	}

	return m, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != driverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}
