package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/bscott/mailsync/internal/message"
)

// SQLiteStore implements Storage on a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// OpenSQLite opens (or creates) the database at path, enables WAL mode
// and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	account     TEXT NOT NULL,
	folder      TEXT NOT NULL,
	uid         TEXT NOT NULL,
	size        INTEGER NOT NULL DEFAULT 0,
	seen        INTEGER NOT NULL DEFAULT 0,
	from_name   TEXT NOT NULL DEFAULT '',
	from_email  TEXT NOT NULL DEFAULT '',
	date        DATETIME,
	subject     TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	html_body   TEXT NOT NULL DEFAULT '',
	attachments TEXT NOT NULL DEFAULT '[]',
	fetched_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (account, folder, uid)
);

CREATE INDEX IF NOT EXISTS idx_messages_seen ON messages (account, folder, seen);
`

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

type messageRow struct {
	UID         string         `db:"uid"`
	Size        int64          `db:"size"`
	Seen        bool           `db:"seen"`
	FromName    string         `db:"from_name"`
	FromEmail   string         `db:"from_email"`
	Date        sql.NullTime   `db:"date"`
	Subject     string         `db:"subject"`
	Body        string         `db:"body"`
	HTMLBody    string         `db:"html_body"`
	Attachments string         `db:"attachments"`
}

func (r *messageRow) toMessage() (*message.Message, error) {
	msg := &message.Message{
		ID:        message.ID(r.UID),
		Size:      r.Size,
		Read:      r.Seen,
		FromName:  r.FromName,
		FromEmail: r.FromEmail,
		Subject:   r.Subject,
		Body:      r.Body,
		HTMLBody:  r.HTMLBody,
	}
	if r.Date.Valid {
		msg.Date = r.Date.Time.UTC()
	}
	if r.Attachments != "" && r.Attachments != "[]" {
		if err := json.Unmarshal([]byte(r.Attachments), &msg.Attachments); err != nil {
			return nil, fmt.Errorf("decoding attachments: %w", err)
		}
	}
	return msg, nil
}

func (s *SQLiteStore) ExistingIDs(ctx context.Context, account, folder string) (map[message.ID]struct{}, error) {
	var uids []string
	err := s.db.SelectContext(ctx, &uids,
		`SELECT uid FROM messages WHERE account = ? AND folder = ?`, account, folder)
	if err != nil {
		return nil, fmt.Errorf("listing existing ids: %w", err)
	}
	ids := make(map[message.ID]struct{}, len(uids))
	for _, uid := range uids {
		ids[message.ID(uid)] = struct{}{}
	}
	return ids, nil
}

func (s *SQLiteStore) LoadMessage(ctx context.Context, account, folder string, id message.ID) (*message.Message, error) {
	var row messageRow
	err := s.db.GetContext(ctx, &row,
		`SELECT uid, size, seen, from_name, from_email, date, subject, body, html_body, attachments
		 FROM messages WHERE account = ? AND folder = ? AND uid = ?`,
		account, folder, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading message %q: %w", id, err)
	}
	return row.toMessage()
}

func (s *SQLiteStore) SaveMessage(ctx context.Context, account, folder string, msg *message.Message) error {
	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return fmt.Errorf("encoding attachments: %w", err)
	}

	var date any
	if !msg.Date.IsZero() {
		date = msg.Date.UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO messages
		 (account, folder, uid, size, seen, from_name, from_email, date, subject, body, html_body, attachments, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account, folder, string(msg.ID), msg.Size, msg.Read,
		msg.FromName, msg.FromEmail, date, msg.Subject,
		msg.Body, msg.HTMLBody, string(attachments), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving message %q: %w", msg.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateSeen(ctx context.Context, account, folder string, id message.ID, seen bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET seen = ? WHERE account = ? AND folder = ? AND uid = ?`,
		seen, account, folder, string(id))
	if err != nil {
		return fmt.Errorf("updating seen flag for %q: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
