package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spaceseries/spacechat/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	uuid TEXT NOT NULL PRIMARY KEY,
	username TEXT NOT NULL,
	created TEXT NOT NULL,
	last_messaged TEXT,
	disabled_chats TEXT
);
CREATE TABLE IF NOT EXISTS subscribed_channels (
	uuid TEXT NOT NULL,
	channel TEXT NOT NULL,
	UNIQUE (uuid, channel)
);
CREATE TABLE IF NOT EXISTS ignored_users (
	uuid TEXT NOT NULL,
	ignored_id TEXT NOT NULL,
	ignored_name TEXT NOT NULL,
	UNIQUE (uuid, ignored_id)
);
CREATE TABLE IF NOT EXISTS chat_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL,
	name TEXT,
	message TEXT,
	date TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS private_chat_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL,
	name TEXT,
	target TEXT,
	message TEXT,
	date TEXT NOT NULL
);
`

// New creates a new SQLite store at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// LoadUser fetches a user record with subscriptions and ignores.
func (s *SQLiteStore) LoadUser(ctx context.Context, id uuid.UUID) (*store.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT username, created, last_messaged, disabled_chats FROM users WHERE uuid = ?`, id.String())

	var (
		username      string
		created       string
		lastMessaged  sql.NullString
		disabledChats sql.NullString
	)
	if err := row.Scan(&username, &created, &lastMessaged, &disabledChats); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339, created)
	if err != nil {
		return nil, fmt.Errorf("parse user created date: %w", err)
	}

	u := &store.User{
		ID:           id,
		Username:     username,
		Created:      createdAt,
		LastMessaged: lastMessaged.String,
		Ignored:      make(map[uuid.UUID]string),
	}
	if disabledChats.String != "" {
		u.DisabledChats = strings.Split(disabledChats.String, ",")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT channel FROM subscribed_channels WHERE uuid = ?`, id.String())
	if err != nil {
		return nil, fmt.Errorf("select subscribed channels: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var channel string
		if err := rows.Scan(&channel); err != nil {
			return nil, fmt.Errorf("scan subscribed channel: %w", err)
		}
		u.SubscribedChannels = append(u.SubscribedChannels, channel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribed channels: %w", err)
	}

	ignoredRows, err := s.db.QueryContext(ctx,
		`SELECT ignored_id, ignored_name FROM ignored_users WHERE uuid = ?`, id.String())
	if err != nil {
		return nil, fmt.Errorf("select ignored users: %w", err)
	}
	defer ignoredRows.Close()
	for ignoredRows.Next() {
		var ignoredID, ignoredName string
		if err := ignoredRows.Scan(&ignoredID, &ignoredName); err != nil {
			return nil, fmt.Errorf("scan ignored user: %w", err)
		}
		parsed, err := uuid.Parse(ignoredID)
		if err != nil {
			continue
		}
		u.Ignored[parsed] = ignoredName
	}
	if err := ignoredRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ignored users: %w", err)
	}

	return u, nil
}

// SaveUser upserts the user row and replaces subscriptions and ignores.
func (s *SQLiteStore) SaveUser(ctx context.Context, u *store.User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save user: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (uuid, username, created, last_messaged, disabled_chats)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(uuid) DO UPDATE SET
		 username = excluded.username,
		 last_messaged = excluded.last_messaged,
		 disabled_chats = excluded.disabled_chats`,
		u.ID.String(), u.Username, u.Created.UTC().Format(time.RFC3339),
		u.LastMessaged, strings.Join(u.DisabledChats, ","))
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM subscribed_channels WHERE uuid = ?`, u.ID.String()); err != nil {
		return fmt.Errorf("clear subscribed channels: %w", err)
	}
	for _, channel := range u.SubscribedChannels {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO subscribed_channels (uuid, channel) VALUES (?, ?)`,
			u.ID.String(), channel); err != nil {
			return fmt.Errorf("insert subscribed channel: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM ignored_users WHERE uuid = ?`, u.ID.String()); err != nil {
		return fmt.Errorf("clear ignored users: %w", err)
	}
	for ignoredID, ignoredName := range u.Ignored {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO ignored_users (uuid, ignored_id, ignored_name) VALUES (?, ?, ?)`,
			u.ID.String(), ignoredID.String(), ignoredName); err != nil {
			return fmt.Errorf("insert ignored user: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save user: %w", err)
	}
	return nil
}

// LogChat appends to the public chat log.
func (s *SQLiteStore) LogChat(ctx context.Context, entry store.ChatLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_logs (uuid, name, message, date) VALUES (?, ?, ?, ?)`,
		entry.SenderID.String(), entry.SenderName, entry.Message,
		entry.At.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert chat log: %w", err)
	}
	return nil
}

// LogPrivateChat appends to the private chat log.
func (s *SQLiteStore) LogPrivateChat(ctx context.Context, entry store.PrivateChatLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO private_chat_logs (uuid, name, target, message, date) VALUES (?, ?, ?, ?, ?)`,
		entry.SenderID.String(), entry.SenderName, entry.TargetName, entry.Message,
		entry.At.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert private chat log: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
