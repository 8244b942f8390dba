package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	_ "github.com/mattn/go-sqlite3"
	"github.com/tbxark/formchat/document"
	"github.com/tbxark/formchat/session"
)

// SQLiteStore persists sessions and documents in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every connection to :memory: is a separate database
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			document_id TEXT,
			state TEXT NOT NULL,
			complete INTEGER NOT NULL DEFAULT 0,
			data TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS document_images (
			document_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			locator TEXT NOT NULL,
			PRIMARY KEY (document_id, position),
			FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, sess *session.Session) error {
	if sess == nil || sess.ID == "" {
		return errors.New("session without id")
	}
	data, err := sonic.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, title, document_id, state, complete, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			state = excluded.state,
			complete = excluded.complete,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		sess.ID, sess.Title, nullString(sess.DocumentID), string(sess.State), sess.Complete,
		string(data), sess.CreatedAt.UTC(), sess.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (*session.Session, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return decodeSession(data)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*session.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM sessions ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()
	var out []*session.Session
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		sess, err := decodeSession(data)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func decodeSession(data string) (*session.Session, error) {
	var sess session.Session
	if err := sonic.UnmarshalString(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}

// SaveDocument inserts or replaces a document and its ordered images.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *document.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		doc.ID, doc.Name, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM document_images WHERE document_id = ?`, doc.ID); err != nil {
		return err
	}
	for i, img := range doc.Images {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO document_images (document_id, position, locator) VALUES (?, ?, ?)`,
			doc.ID, i, img,
		); err != nil {
			return fmt.Errorf("failed to save document image: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	doc := &document.Document{ID: id}
	err := s.db.QueryRowContext(ctx, `SELECT name FROM documents WHERE id = ?`, id).Scan(&doc.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	images, err := s.documentImages(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.Images = images
	return doc, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]*document.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM documents ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	var out []*document.Document
	for rows.Next() {
		doc := &document.Document{}
		if err := rows.Scan(&doc.ID, &doc.Name); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for _, doc := range out {
		images, err := s.documentImages(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		doc.Images = images
	}
	return out, nil
}

func (s *SQLiteStore) documentImages(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT locator FROM document_images WHERE document_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load document images: %w", err)
	}
	defer rows.Close()
	images := []string{}
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, err
		}
		images = append(images, loc)
	}
	return images, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var (
	_ SessionStore      = (*SQLiteStore)(nil)
	_ document.Provider = (*SQLiteStore)(nil)
)
