// Package client is the caller-facing entry point: it opens transactions on
// a remote backend and moves documents between handles and the backend
// through format-specific document managers.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gezibash/docio/internal/observability"
	"github.com/gezibash/docio/pkg/format"
	"github.com/gezibash/docio/pkg/handle"
	"github.com/gezibash/docio/pkg/logging"
	"github.com/gezibash/docio/pkg/remote"
	"github.com/gezibash/docio/pkg/transaction"
)

// Client talks to one remote backend.
type Client struct {
	ops    remote.Operations
	cfg    clientConfig
	logger *logging.Logger
}

type clientConfig struct {
	retries int
	backoff time.Duration
	timeout time.Duration
	logger  *logging.Logger
	metrics *observability.Metrics
}

// Option configures client behavior.
type Option func(*clientConfig)

// WithRetries retries failed calls up to n more times. Writes are only
// retried when the handle is handle.Bufferable.
func WithRetries(n int) Option {
	return func(c *clientConfig) { c.retries = max(n, 0) }
}

// WithRetryBackoff sets the delay before the first retry. Later retries
// wait proportionally longer.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *clientConfig) { c.backoff = d }
}

// WithTimeout bounds each document call. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.timeout = d }
}

// WithLogger sets the client logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *clientConfig) { c.logger = l }
}

// WithMetrics instruments backends created by Connect.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *clientConfig) { c.metrics = m }
}

func newConfig(opts []Option) clientConfig {
	cfg := clientConfig{backoff: 100 * time.Millisecond}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// New returns a client on ops. The client owns ops and closes it on Close.
func New(ops remote.Operations, opts ...Option) *Client {
	cfg := newConfig(opts)
	logger := cfg.logger
	if logger == nil {
		logger = logging.New(nil)
	}
	return &Client{ops: ops, cfg: cfg, logger: logger.WithComponent("client")}
}

// Connect creates the named backend from the registry and returns a
// client on it.
func Connect(ctx context.Context, backend string, config map[string]string, opts ...Option) (*Client, error) {
	cfg := newConfig(opts)
	ops, err := remote.New(ctx, backend, config, cfg.metrics)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", backend, err)
	}
	return New(ops, opts...), nil
}

// Remote returns the backend the client talks to.
func (c *Client) Remote() remote.Operations { return c.ops }

// Close closes the backend.
func (c *Client) Close() error {
	return c.ops.Close()
}

// OpenTransaction opens a remote transaction. The returned handle commits
// and rolls back through this client's backend.
func (c *Client) OpenTransaction(ctx context.Context) (*transaction.Transaction, error) {
	id, err := c.ops.OpenTransaction(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.WithTransaction(id).DebugContext(ctx, "transaction opened")
	return transaction.New(c.ops, id), nil
}

// XML returns a manager for XML documents.
func (c *Client) XML() *XMLDocumentManager {
	return NewDocumentManager[handle.XMLReadHandle, handle.XMLWriteHandle](c, format.XML)
}

// JSON returns a manager for JSON documents.
func (c *Client) JSON() *JSONDocumentManager {
	return NewDocumentManager[handle.JSONReadHandle, handle.JSONWriteHandle](c, format.JSON)
}

// Text returns a manager for text documents.
func (c *Client) Text() *TextDocumentManager {
	return NewDocumentManager[handle.TextReadHandle, handle.TextWriteHandle](c, format.Text)
}

// Binary returns a manager for binary documents.
func (c *Client) Binary() *BinaryDocumentManager {
	return NewDocumentManager[handle.BinaryReadHandle, handle.BinaryWriteHandle](c, format.Binary)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.timeout)
}

// retry runs fn until it succeeds, fails permanently or runs out of
// attempts.
func (c *Client) retry(ctx context.Context, log *logging.Logger, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || attempt >= c.cfg.retries || !retryable(err) {
			return err
		}

		wait := c.cfg.backoff * time.Duration(attempt+1)
		log.WithError(err).WarnContext(ctx, "call failed, retrying", "attempt", attempt+1, "wait", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}

// retryable reports whether err may be transient. Classified errors such as
// not-found or conflict are never retried.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch observability.ErrorClass(err) {
	case "io", "internal":
		return true
	default:
		return false
	}
}
