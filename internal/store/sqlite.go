package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/nhle/mail-triage/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Per-connection pragmas go in the DSN so every pooled connection
	// gets them.
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Each connection to :memory: is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// EnsureAccount returns the account with acct.Address, creating it first
// if it does not exist. Existing rows are never modified.
func (s *SQLiteStore) EnsureAccount(
	ctx context.Context,
	acct model.Account,
) (*model.Account, error) {
	addr := strings.TrimSpace(acct.Address)
	if addr == "" {
		return nil, fmt.Errorf("account address must not be empty")
	}
	if acct.Provider == "" {
		acct.Provider = "gmail"
	}
	if acct.AuthMethod == "" {
		acct.AuthMethod = "oauth2"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (provider, address, display_name, auth_method, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(address) DO NOTHING`,
		acct.Provider, addr, acct.DisplayName, acct.AuthMethod, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("ensuring account %s: %w", addr, err)
	}

	return s.GetAccountByAddress(ctx, addr)
}

// GetAccount retrieves an account by ID.
func (s *SQLiteStore) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	var acct model.Account
	err := s.db.GetContext(ctx, &acct, "SELECT * FROM accounts WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting account %d: %w", id, err)
	}
	return &acct, nil
}

// GetAccountByAddress retrieves an account by its email address.
func (s *SQLiteStore) GetAccountByAddress(
	ctx context.Context,
	address string,
) (*model.Account, error) {
	var acct model.Account
	err := s.db.GetContext(ctx, &acct,
		"SELECT * FROM accounts WHERE address = ?", strings.TrimSpace(address))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", address, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting account %s: %w", address, err)
	}
	return &acct, nil
}

// LatestAccount returns the most recently created account. It lets the
// app start offline once an account has been mirrored.
func (s *SQLiteStore) LatestAccount(ctx context.Context) (*model.Account, error) {
	var acct model.Account
	err := s.db.GetContext(ctx, &acct, "SELECT * FROM accounts ORDER BY id DESC LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest account: %w", err)
	}
	return &acct, nil
}

// Fingerprint returns a SHA-256 digest over every message row with its
// recipients and labels, in id order.
func (s *SQLiteStore) Fingerprint(ctx context.Context) (string, error) {
	h := sha256.New()

	rows, err := s.db.QueryxContext(ctx,
		"SELECT "+messageColumns+" FROM email_messages ORDER BY id")
	if err != nil {
		return "", fmt.Errorf("querying messages for fingerprint: %w", err)
	}
	var msgs []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return "", err
		}
		msgs = append(msgs, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", err
	}

	for _, m := range msgs {
		fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s|%s|%s|%s|%s|%d|%t|%s|%s|%s|%t|%t|%s\n",
			m.ID, deref(m.RemoteID), deref(m.RemoteDraftID), m.ThreadID,
			m.Subject, m.Sender, m.Body, deref(m.BodyHTML),
			m.Type, m.TypeOrigin, m.Priority, m.IsRead,
			m.ReceivedAt.UTC().Format(time.RFC3339Nano),
			deref(m.Summary), deref(m.Draft),
			m.Archived(), m.Trashed(),
			m.UpdatedAt.UTC().Format(time.RFC3339Nano),
		)
	}

	var recips []string
	err = s.db.SelectContext(ctx, &recips, `
		SELECT email_id || '|' || recipient_type || '|' || address
		FROM email_recipients ORDER BY email_id, recipient_type, address`)
	if err != nil {
		return "", fmt.Errorf("querying recipients for fingerprint: %w", err)
	}
	for _, r := range recips {
		fmt.Fprintln(h, r)
	}

	var labels []string
	err = s.db.SelectContext(ctx, &labels, `
		SELECT ml.email_id || '|' || l.name
		FROM message_labels ml JOIN labels l ON l.id = ml.label_id
		ORDER BY ml.email_id, l.name`)
	if err != nil {
		return "", fmt.Errorf("querying labels for fingerprint: %w", err)
	}
	for _, l := range labels {
		fmt.Fprintln(h, l)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// isUniqueViolation reports whether err is a SQLite unique or primary
// key constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
