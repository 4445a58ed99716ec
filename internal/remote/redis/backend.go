// Package redis provides a remote backend on Redis.
//
// Documents are hashes. A transaction is a marker key plus a list of staged
// operations, both expiring after the transaction TTL. Reads inside a
// transaction see its staged operations; commit applies them in a single
// MULTI/EXEC block.
package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gezibash/docio/internal/settings"
	docerrors "github.com/gezibash/docio/pkg/errors"
	"github.com/gezibash/docio/pkg/format"
	"github.com/gezibash/docio/pkg/remote"
)

const (
	KeyAddr         = "addr"
	KeyPassword     = "password"
	KeyDB           = "db"
	KeyMaxRetries   = "max_retries"
	KeyDialTimeout  = "dial_timeout"
	KeyReadTimeout  = "read_timeout"
	KeyWriteTimeout = "write_timeout"
	KeyPoolSize     = "pool_size"
	KeyKeyPrefix    = "key_prefix"
	KeyTxnTTL       = "txn_ttl"

	defaultPrefix = "docio:"
	defaultTxnTTL = 10 * time.Minute
)

func init() {
	remote.Register("redis", NewFactory, Defaults)
}

// Defaults returns the default configuration for the Redis backend.
func Defaults() map[string]string {
	return map[string]string{
		KeyAddr:         "localhost:6379",
		KeyPassword:     "",
		KeyDB:           "0",
		KeyMaxRetries:   "3",
		KeyDialTimeout:  "5s",
		KeyReadTimeout:  "3s",
		KeyWriteTimeout: "3s",
		KeyPoolSize:     "0",
		KeyKeyPrefix:    defaultPrefix,
		KeyTxnTTL:       defaultTxnTTL.String(),
	}
}

// NewFactory creates a new Redis backend from a configuration map.
func NewFactory(ctx context.Context, config map[string]string) (remote.Operations, error) {
	cfg := settings.Settings(config)

	addr, err := cfg.Required("redis", KeyAddr)
	if err != nil {
		return nil, err
	}

	db, err := cfg.Int(KeyDB, 0)
	if err != nil {
		return nil, asConfigError(err)
	}
	if db < 0 {
		return nil, &settings.ConfigError{Backend: "redis", Field: KeyDB, Value: config[KeyDB], Message: "must be non-negative"}
	}
	maxRetries, err := cfg.Int(KeyMaxRetries, 3)
	if err != nil {
		return nil, asConfigError(err)
	}
	dialTimeout, err := cfg.Duration(KeyDialTimeout, 5*time.Second)
	if err != nil {
		return nil, asConfigError(err)
	}
	readTimeout, err := cfg.Duration(KeyReadTimeout, 3*time.Second)
	if err != nil {
		return nil, asConfigError(err)
	}
	writeTimeout, err := cfg.Duration(KeyWriteTimeout, 3*time.Second)
	if err != nil {
		return nil, asConfigError(err)
	}
	poolSize, err := cfg.Int(KeyPoolSize, 0)
	if err != nil {
		return nil, asConfigError(err)
	}
	txnTTL, err := cfg.Duration(KeyTxnTTL, defaultTxnTTL)
	if err != nil {
		return nil, asConfigError(err)
	}

	opts := &redis.Options{
		Addr:         addr,
		Password:     cfg.String(KeyPassword, ""),
		DB:           db,
		MaxRetries:   maxRetries,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	if poolSize > 0 {
		opts.PoolSize = poolSize
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, settings.NewConfigErrorWithCause("redis", KeyAddr, "failed to connect", err)
	}

	prefix := cfg.String(KeyKeyPrefix, defaultPrefix)
	slog.Info("redis backend initialized", "addr", addr, "db", db, "key_prefix", prefix)

	b := NewWithClient(client, prefix)
	b.txnTTL = txnTTL
	return b, nil
}

func asConfigError(err error) error {
	var cfgErr *settings.ConfigError
	if errors.As(err, &cfgErr) {
		return cfgErr.WithBackend("redis")
	}
	return err
}

// Backend is a Redis implementation of remote.Operations.
type Backend struct {
	client *redis.Client
	prefix string
	txnTTL time.Duration
	closed atomic.Bool
}

// NewWithClient creates a new backend with an existing Redis client.
func NewWithClient(client *redis.Client, prefix string) *Backend {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Backend{client: client, prefix: prefix, txnTTL: defaultTxnTTL}
}

func (b *Backend) docKey(uri string) string   { return b.prefix + "doc:" + uri }
func (b *Backend) txnKey(id string) string    { return b.prefix + "txn:" + id }
func (b *Backend) txnOpsKey(id string) string { return b.prefix + "txn:" + id + ":ops" }

// stagedOp is one buffered write of an open transaction.
type stagedOp struct {
	Op       string `json:"op"`
	URI      string `json:"uri"`
	Format   string `json:"format,omitempty"`
	Mimetype string `json:"mimetype,omitempty"`
	Content  []byte `json:"content,omitempty"`
}

const (
	opPut    = "put"
	opDelete = "del"
)

// latestStaged returns the most recent staged operation on uri, if any.
func latestStaged(ops []stagedOp, uri string) (stagedOp, bool) {
	for i := len(ops) - 1; i >= 0; i-- {
		if ops[i].URI == uri {
			return ops[i], true
		}
	}
	return stagedOp{}, false
}

// GetDocument reads a document, overlaying the named transaction's staged
// writes.
func (b *Backend) GetDocument(ctx context.Context, req remote.Request) (*remote.Document, error) {
	if err := b.check(req.URI); err != nil {
		return nil, err
	}

	if req.Transaction != "" {
		staged, err := b.staged(ctx, req.Transaction)
		if err != nil {
			return nil, err
		}
		if op, ok := latestStaged(staged, req.URI); ok {
			if op.Op == opDelete {
				return nil, remote.DocumentNotFound(req.URI)
			}
			return document(req.URI, op.Format, op.Mimetype, op.Content), nil
		}
	}

	fields, err := b.client.HGetAll(ctx, b.docKey(req.URI)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	if len(fields) == 0 {
		return nil, remote.DocumentNotFound(req.URI)
	}
	return document(req.URI, fields["format"], fields["mimetype"], []byte(fields["content"])), nil
}

func document(uri, formatName, mimetype string, content []byte) *remote.Document {
	f, _ := format.Parse(formatName)
	return &remote.Document{
		URI:      uri,
		Format:   f,
		Mimetype: mimetype,
		Body:     io.NopCloser(bytes.NewReader(content)),
	}
}

// PutDocument writes a document, or stages the write in the named
// transaction.
func (b *Backend) PutDocument(ctx context.Context, req remote.Request, body io.Reader) error {
	if err := b.check(req.URI); err != nil {
		return err
	}

	var content []byte
	if body != nil {
		var err error
		if content, err = io.ReadAll(body); err != nil {
			return docerrors.NewIOError("read document body", err)
		}
	}

	op := stagedOp{
		Op:       opPut,
		URI:      req.URI,
		Format:   req.Format.String(),
		Mimetype: remote.ResolveMimetype(req),
		Content:  content,
	}
	if req.Transaction != "" {
		return b.stage(ctx, req.Transaction, op)
	}

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		b.apply(ctx, pipe, op)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

// DeleteDocument removes a document, or stages the removal in the named
// transaction.
func (b *Backend) DeleteDocument(ctx context.Context, req remote.Request) error {
	if err := b.check(req.URI); err != nil {
		return err
	}

	if req.Transaction != "" {
		doc, err := b.GetDocument(ctx, req)
		if err != nil {
			return err
		}
		_ = doc.Body.Close()
		return b.stage(ctx, req.Transaction, stagedOp{Op: opDelete, URI: req.URI})
	}

	n, err := b.client.Del(ctx, b.docKey(req.URI)).Result()
	if err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	if n == 0 {
		return remote.DocumentNotFound(req.URI)
	}
	return nil
}

// OpenTransaction creates a transaction marker that expires after the
// configured TTL.
func (b *Backend) OpenTransaction(ctx context.Context) (string, error) {
	if b.closed.Load() {
		return "", docerrors.ErrClosed
	}

	id := uuid.NewString()
	opened := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := b.client.Set(ctx, b.txnKey(id), opened, b.txnTTL).Err(); err != nil {
		return "", fmt.Errorf("redis open transaction: %w", err)
	}
	return id, nil
}

// CommitTransaction applies the staged operations atomically.
func (b *Backend) CommitTransaction(ctx context.Context, id string) error {
	staged, err := b.resolve(ctx, id)
	if err != nil {
		return err
	}
	if len(staged) == 0 {
		return nil
	}

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range staged {
			b.apply(ctx, pipe, op)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis commit %s: %w", id, err)
	}
	return nil
}

// RollbackTransaction drops the staged operations.
func (b *Backend) RollbackTransaction(ctx context.Context, id string) error {
	_, err := b.resolve(ctx, id)
	return err
}

// Close closes the Redis client.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.client.Close()
}

func (b *Backend) check(uri string) error {
	if b.closed.Load() {
		return docerrors.ErrClosed
	}
	return remote.ValidateURI(uri)
}

func (b *Backend) apply(ctx context.Context, pipe redis.Pipeliner, op stagedOp) {
	key := b.docKey(op.URI)
	switch op.Op {
	case opPut:
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"format", op.Format,
			"mimetype", op.Mimetype,
			"content", op.Content,
			"updated_at", time.Now().UnixMilli(),
		)
	case opDelete:
		pipe.Del(ctx, key)
	}
}

// stage appends op to the transaction's list and refreshes both TTLs.
func (b *Backend) stage(ctx context.Context, id string, op stagedOp) error {
	if err := b.requireOpen(ctx, id); err != nil {
		return err
	}
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("redis stage: %w", err)
	}
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, b.txnOpsKey(id), data)
		pipe.Expire(ctx, b.txnOpsKey(id), b.txnTTL)
		pipe.Expire(ctx, b.txnKey(id), b.txnTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis stage: %w", err)
	}
	return nil
}

func (b *Backend) requireOpen(ctx context.Context, id string) error {
	n, err := b.client.Exists(ctx, b.txnKey(id)).Result()
	if err != nil {
		return fmt.Errorf("redis transaction lookup: %w", err)
	}
	if n == 0 {
		return remote.TransactionNotFound(id)
	}
	return nil
}

func (b *Backend) staged(ctx context.Context, id string) ([]stagedOp, error) {
	if err := b.requireOpen(ctx, id); err != nil {
		return nil, err
	}
	raw, err := b.client.LRange(ctx, b.txnOpsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis transaction ops: %w", err)
	}
	return decodeOps(raw)
}

// resolve ends the transaction and returns its staged operations. Deleting
// the marker first makes concurrent commit and rollback calls race for a
// single winner.
func (b *Backend) resolve(ctx context.Context, id string) ([]stagedOp, error) {
	if b.closed.Load() {
		return nil, docerrors.ErrClosed
	}

	n, err := b.client.Del(ctx, b.txnKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis resolve transaction: %w", err)
	}
	if n == 0 {
		return nil, remote.TransactionNotFound(id)
	}

	var lrange *redis.StringSliceCmd
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lrange = pipe.LRange(ctx, b.txnOpsKey(id), 0, -1)
		pipe.Del(ctx, b.txnOpsKey(id))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis resolve transaction: %w", err)
	}
	return decodeOps(lrange.Val())
}

func decodeOps(raw []string) ([]stagedOp, error) {
	ops := make([]stagedOp, 0, len(raw))
	for _, r := range raw {
		var op stagedOp
		if err := json.Unmarshal([]byte(r), &op); err != nil {
			return nil, fmt.Errorf("redis decode staged op: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}
