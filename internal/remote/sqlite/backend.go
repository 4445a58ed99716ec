// Package sqlite provides an embedded remote backend on SQLite. Open
// transactions are SQL transactions held on their own connection.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/gezibash/docio/internal/settings"
	docerrors "github.com/gezibash/docio/pkg/errors"
	"github.com/gezibash/docio/pkg/format"
	"github.com/gezibash/docio/pkg/remote"
)

const (
	KeyPath        = "path"
	KeyJournalMode = "journal_mode"
	KeyBusyTimeout = "busy_timeout"
	KeyCacheSize   = "cache_size"
)

func init() {
	remote.Register("sqlite", NewFactory, Defaults)
}

// Defaults returns the default configuration for the SQLite backend.
func Defaults() map[string]string {
	return map[string]string{
		KeyPath:        "~/.docio/documents.db",
		KeyJournalMode: "wal",
		KeyBusyTimeout: "5000",
		KeyCacheSize:   "-64000",
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    uri         TEXT PRIMARY KEY,
    format      TEXT NOT NULL,
    mimetype    TEXT NOT NULL DEFAULT '',
    content     BLOB NOT NULL,
    updated_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(updated_at);
`

// NewFactory creates a new SQLite backend from a configuration map.
func NewFactory(_ context.Context, config map[string]string) (remote.Operations, error) {
	cfg := settings.Settings(config)

	path := cfg.Path(KeyPath, "")
	if path == "" {
		return nil, settings.NewConfigError("sqlite", KeyPath, "cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, settings.NewConfigErrorWithCause("sqlite", KeyPath, "failed to create directory", err)
	}

	journalMode := cfg.String(KeyJournalMode, "wal")
	busyTimeout, err := cfg.Int(KeyBusyTimeout, 5000)
	if err != nil {
		return nil, asConfigError(err)
	}
	cacheSize, err := cfg.Int(KeyCacheSize, -64000)
	if err != nil {
		return nil, asConfigError(err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(%s)&_pragma=cache_size(%d)",
		path, busyTimeout, journalMode, cacheSize)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, settings.NewConfigErrorWithCause("sqlite", KeyPath, "failed to open database", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, settings.NewConfigErrorWithCause("sqlite", KeyPath, "failed to initialize schema", err)
	}

	slog.Info("sqlite backend initialized", "path", path, "journal_mode", journalMode)
	return NewWithDB(db), nil
}

func asConfigError(err error) error {
	var cfgErr *settings.ConfigError
	if errors.As(err, &cfgErr) {
		return cfgErr.WithBackend("sqlite")
	}
	return err
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Backend is a SQLite implementation of remote.Operations.
type Backend struct {
	db     *sql.DB
	closed atomic.Bool

	mu   sync.Mutex
	txns map[string]*sql.Tx
}

// NewWithDB creates a backend on an open database whose schema is already
// initialized.
func NewWithDB(db *sql.DB) *Backend {
	return &Backend{db: db, txns: make(map[string]*sql.Tx)}
}

// GetDocument reads a document, through the transaction when one is named.
func (b *Backend) GetDocument(ctx context.Context, req remote.Request) (*remote.Document, error) {
	q, err := b.querier(req)
	if err != nil {
		return nil, err
	}

	var (
		formatName, mimetype string
		content              []byte
	)
	err = q.QueryRowContext(ctx,
		`SELECT format, mimetype, content FROM documents WHERE uri = ?`, req.URI,
	).Scan(&formatName, &mimetype, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, remote.DocumentNotFound(req.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get: %w", err)
	}

	f, _ := format.Parse(formatName)
	return &remote.Document{
		URI:      req.URI,
		Format:   f,
		Mimetype: mimetype,
		Body:     io.NopCloser(bytes.NewReader(content)),
	}, nil
}

// PutDocument inserts or replaces a document.
func (b *Backend) PutDocument(ctx context.Context, req remote.Request, body io.Reader) error {
	q, err := b.querier(req)
	if err != nil {
		return err
	}

	content := []byte{}
	if body != nil {
		if content, err = io.ReadAll(body); err != nil {
			return docerrors.NewIOError("read document body", err)
		}
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO documents (uri, format, mimetype, content, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(uri) DO UPDATE SET
			format = excluded.format,
			mimetype = excluded.mimetype,
			content = excluded.content,
			updated_at = excluded.updated_at`,
		req.URI, req.Format.String(), remote.ResolveMimetype(req), content, time.Now().UnixMilli(),
	)
	if err != nil {
		return wrapErr("put", err)
	}
	return nil
}

// DeleteDocument removes a document.
func (b *Backend) DeleteDocument(ctx context.Context, req remote.Request) error {
	q, err := b.querier(req)
	if err != nil {
		return err
	}

	res, err := q.ExecContext(ctx, `DELETE FROM documents WHERE uri = ?`, req.URI)
	if err != nil {
		return wrapErr("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	if n == 0 {
		return remote.DocumentNotFound(req.URI)
	}
	return nil
}

// OpenTransaction begins a SQL transaction that outlives ctx.
func (b *Backend) OpenTransaction(ctx context.Context) (string, error) {
	if b.closed.Load() {
		return "", docerrors.ErrClosed
	}

	tx, err := b.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return "", fmt.Errorf("sqlite begin: %w", err)
	}

	id := uuid.NewString()
	b.mu.Lock()
	b.txns[id] = tx
	b.mu.Unlock()
	return id, nil
}

// CommitTransaction commits the named transaction.
func (b *Backend) CommitTransaction(_ context.Context, id string) error {
	tx, err := b.take(id)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapErr("commit "+id, err)
	}
	return nil
}

// RollbackTransaction rolls back the named transaction.
func (b *Backend) RollbackTransaction(_ context.Context, id string) error {
	tx, err := b.take(id)
	if err != nil {
		return err
	}
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("sqlite rollback %s: %w", id, err)
	}
	return nil
}

// Close rolls back open transactions and closes the database.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	b.mu.Lock()
	txns := b.txns
	b.txns = make(map[string]*sql.Tx)
	b.mu.Unlock()

	for _, tx := range txns {
		_ = tx.Rollback()
	}
	return b.db.Close()
}

func (b *Backend) querier(req remote.Request) (querier, error) {
	if b.closed.Load() {
		return nil, docerrors.ErrClosed
	}
	if err := remote.ValidateURI(req.URI); err != nil {
		return nil, err
	}
	if req.Transaction == "" {
		return b.db, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	tx, ok := b.txns[req.Transaction]
	if !ok {
		return nil, remote.TransactionNotFound(req.Transaction)
	}
	return tx, nil
}

func (b *Backend) take(id string) (*sql.Tx, error) {
	if b.closed.Load() {
		return nil, docerrors.ErrClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	tx, ok := b.txns[id]
	if !ok {
		return nil, remote.TransactionNotFound(id)
	}
	delete(b.txns, id)
	return tx, nil
}

// wrapErr maps lock contention onto errors.ErrConflict.
func wrapErr(op string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") {
		return fmt.Errorf("sqlite %s: %w: %v", op, docerrors.ErrConflict, err)
	}
	return fmt.Errorf("sqlite %s: %w", op, err)
}
