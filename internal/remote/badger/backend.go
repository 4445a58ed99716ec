// Package badger provides an embedded remote backend on BadgerDB. Open
// transactions are live read-write Badger transactions.
package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/gezibash/docio/internal/settings"
	docerrors "github.com/gezibash/docio/pkg/errors"
	"github.com/gezibash/docio/pkg/format"
	"github.com/gezibash/docio/pkg/remote"
)

const (
	docPrefix  = "doc/"
	metaPrefix = "meta/"
)

const (
	KeyPath             = "path"
	KeySyncWrites       = "sync_writes"
	KeyValueLogFileSize = "value_log_file_size"
	KeyMemTableSize     = "mem_table_size"
	KeyInMemory         = "in_memory"
)

func init() {
	remote.Register("badger", NewFactory, Defaults)
}

// Defaults returns the default configuration for the BadgerDB backend.
func Defaults() map[string]string {
	return map[string]string{
		KeyPath:             "~/.docio/badger",
		KeySyncWrites:       "false",
		KeyValueLogFileSize: strconv.FormatInt(1<<30, 10),
		KeyMemTableSize:     strconv.FormatInt(64<<20, 10),
		KeyInMemory:         "false",
	}
}

// NewFactory creates a new BadgerDB backend from a configuration map.
func NewFactory(_ context.Context, config map[string]string) (remote.Operations, error) {
	cfg := settings.Settings(config)

	inMemory, err := cfg.Bool(KeyInMemory, false)
	if err != nil {
		return nil, asConfigError(err)
	}
	if inMemory {
		return newInMemory()
	}

	path := cfg.Path(KeyPath, "")
	if path == "" {
		return nil, settings.NewConfigError("badger", KeyPath, "cannot be empty")
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, settings.NewConfigErrorWithCause("badger", KeyPath, "failed to create directory", err)
	}

	syncWrites, err := cfg.Bool(KeySyncWrites, false)
	if err != nil {
		return nil, asConfigError(err)
	}
	valueLogFileSize, err := cfg.Int(KeyValueLogFileSize, 1<<30)
	if err != nil {
		return nil, asConfigError(err)
	}
	memTableSize, err := cfg.Int(KeyMemTableSize, 64<<20)
	if err != nil {
		return nil, asConfigError(err)
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = syncWrites
	if valueLogFileSize > 0 {
		opts.ValueLogFileSize = int64(valueLogFileSize)
	}
	if memTableSize > 0 {
		opts.MemTableSize = int64(memTableSize)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, settings.NewConfigErrorWithCause("badger", KeyPath, "failed to open database", err)
	}

	slog.Info("badger backend initialized", "path", path, "sync_writes", syncWrites)
	return NewWithDB(db), nil
}

func newInMemory() (*Backend, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, settings.NewConfigErrorWithCause("badger", KeyInMemory, "failed to open in-memory database", err)
	}

	slog.Info("badger backend initialized (in-memory)")
	return NewWithDB(db), nil
}

func asConfigError(err error) error {
	var cfgErr *settings.ConfigError
	if errors.As(err, &cfgErr) {
		return cfgErr.WithBackend("badger")
	}
	return err
}

// metadata is stored as JSON under meta/<uri>.
type metadata struct {
	Format   string `json:"format"`
	Mimetype string `json:"mimetype,omitempty"`
}

// openTxn serializes access to a Badger transaction, which is not safe for
// concurrent use.
type openTxn struct {
	mu  sync.Mutex
	txn *badger.Txn
}

// Backend is a BadgerDB implementation of remote.Operations.
type Backend struct {
	db     *badger.DB
	closed atomic.Bool

	mu   sync.Mutex
	txns map[string]*openTxn
}

// NewWithDB creates a new backend with an existing BadgerDB instance.
func NewWithDB(db *badger.DB) *Backend {
	return &Backend{db: db, txns: make(map[string]*openTxn)}
}

// GetDocument reads a document, through the transaction when one is named.
func (b *Backend) GetDocument(_ context.Context, req remote.Request) (*remote.Document, error) {
	if b.closed.Load() {
		return nil, docerrors.ErrClosed
	}
	if err := remote.ValidateURI(req.URI); err != nil {
		return nil, err
	}

	var (
		data []byte
		meta metadata
	)
	err := b.withTxn(req.Transaction, false, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(docPrefix + req.URI))
		if err != nil {
			return err
		}
		if data, err = item.ValueCopy(nil); err != nil {
			return err
		}
		item, err = txn.Get([]byte(metaPrefix + req.URI))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, &meta) })
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, remote.DocumentNotFound(req.URI)
	}
	if err != nil {
		return nil, wrapErr("get", err)
	}

	f, _ := format.Parse(meta.Format)
	return &remote.Document{
		URI:      req.URI,
		Format:   f,
		Mimetype: meta.Mimetype,
		Body:     io.NopCloser(bytes.NewReader(data)),
	}, nil
}

// PutDocument writes a document, inside the transaction when one is named.
func (b *Backend) PutDocument(_ context.Context, req remote.Request, body io.Reader) error {
	if b.closed.Load() {
		return docerrors.ErrClosed
	}
	if err := remote.ValidateURI(req.URI); err != nil {
		return err
	}

	data, err := readBody(body)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(metadata{Format: req.Format.String(), Mimetype: remote.ResolveMimetype(req)})
	if err != nil {
		return fmt.Errorf("badger put: %w", err)
	}

	err = b.withTxn(req.Transaction, true, func(txn *badger.Txn) error {
		if err := txn.Set([]byte(docPrefix+req.URI), data); err != nil {
			return err
		}
		return txn.Set([]byte(metaPrefix+req.URI), meta)
	})
	return wrapErr("put", err)
}

// DeleteDocument removes a document, inside the transaction when one is
// named.
func (b *Backend) DeleteDocument(_ context.Context, req remote.Request) error {
	if b.closed.Load() {
		return docerrors.ErrClosed
	}
	if err := remote.ValidateURI(req.URI); err != nil {
		return err
	}

	err := b.withTxn(req.Transaction, true, func(txn *badger.Txn) error {
		key := []byte(docPrefix + req.URI)
		if _, err := txn.Get(key); err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete([]byte(metaPrefix + req.URI))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return remote.DocumentNotFound(req.URI)
	}
	return wrapErr("delete", err)
}

// OpenTransaction starts a read-write Badger transaction.
func (b *Backend) OpenTransaction(_ context.Context) (string, error) {
	if b.closed.Load() {
		return "", docerrors.ErrClosed
	}

	id := uuid.NewString()
	b.mu.Lock()
	b.txns[id] = &openTxn{txn: b.db.NewTransaction(true)}
	b.mu.Unlock()
	return id, nil
}

// CommitTransaction commits the named transaction. A write conflict with a
// concurrent transaction is reported as errors.ErrConflict.
func (b *Backend) CommitTransaction(_ context.Context, id string) error {
	if b.closed.Load() {
		return docerrors.ErrClosed
	}
	ot := b.take(id)
	if ot == nil {
		return remote.TransactionNotFound(id)
	}

	ot.mu.Lock()
	defer ot.mu.Unlock()
	if err := ot.txn.Commit(); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return fmt.Errorf("badger commit %s: %w", id, docerrors.ErrConflict)
		}
		return fmt.Errorf("badger commit %s: %w", id, err)
	}
	return nil
}

// RollbackTransaction discards the named transaction.
func (b *Backend) RollbackTransaction(_ context.Context, id string) error {
	if b.closed.Load() {
		return docerrors.ErrClosed
	}
	ot := b.take(id)
	if ot == nil {
		return remote.TransactionNotFound(id)
	}

	ot.mu.Lock()
	ot.txn.Discard()
	ot.mu.Unlock()
	return nil
}

// Close discards open transactions and closes the database.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	b.mu.Lock()
	txns := b.txns
	b.txns = make(map[string]*openTxn)
	b.mu.Unlock()

	for _, ot := range txns {
		ot.mu.Lock()
		ot.txn.Discard()
		ot.mu.Unlock()
	}
	return b.db.Close()
}

func (b *Backend) take(id string) *openTxn {
	b.mu.Lock()
	defer b.mu.Unlock()
	ot := b.txns[id]
	delete(b.txns, id)
	return ot
}

// withTxn runs fn in the named open transaction, or in a fresh one when id
// is empty.
func (b *Backend) withTxn(id string, update bool, fn func(*badger.Txn) error) error {
	if id == "" {
		if update {
			return b.db.Update(fn)
		}
		return b.db.View(fn)
	}

	b.mu.Lock()
	ot := b.txns[id]
	b.mu.Unlock()
	if ot == nil {
		return remote.TransactionNotFound(id)
	}

	ot.mu.Lock()
	defer ot.mu.Unlock()
	return fn(ot.txn)
}

func readBody(body io.Reader) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, docerrors.NewIOError("read document body", err)
	}
	return data, nil
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, docerrors.ErrNotFound) || errors.Is(err, docerrors.ErrInvalidArgument) {
		return err
	}
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("badger %s: %w", op, docerrors.ErrConflict)
	}
	return fmt.Errorf("badger %s: %w", op, err)
}
