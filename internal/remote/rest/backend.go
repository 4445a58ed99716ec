// Package rest provides a remote backend that talks to a docio REST
// endpoint (see internal/restapi).
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gezibash/docio/internal/observability"
	"github.com/gezibash/docio/internal/restapi"
	"github.com/gezibash/docio/internal/settings"
	docerrors "github.com/gezibash/docio/pkg/errors"
	"github.com/gezibash/docio/pkg/format"
	"github.com/gezibash/docio/pkg/remote"
)

const (
	KeyURL      = "url"
	KeyUsername = "username"
	KeyPassword = "password"
	KeyTimeout  = "timeout"
)

func init() {
	remote.Register("rest", NewFactory, Defaults)
}

// Defaults returns the default configuration for the REST backend.
func Defaults() map[string]string {
	return map[string]string{
		KeyURL:      "http://localhost:8080",
		KeyUsername: "",
		KeyPassword: "",
		KeyTimeout:  "30s",
	}
}

// NewFactory creates a REST backend from a configuration map.
func NewFactory(_ context.Context, config map[string]string) (remote.Operations, error) {
	cfg := settings.Settings(config)

	raw, err := cfg.Required("rest", KeyURL)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, &settings.ConfigError{Backend: "rest", Field: KeyURL, Value: raw, Message: "must be an absolute http(s) URL", Cause: err}
	}

	timeout, err := cfg.Duration(KeyTimeout, 30*time.Second)
	if err != nil {
		var cfgErr *settings.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, cfgErr.WithBackend("rest")
		}
		return nil, err
	}

	client := &http.Client{
		Transport: observability.NewTransport(nil),
		Timeout:   timeout,
	}

	slog.Info("rest backend initialized", "url", base.String())

	b := NewWithClient(client, base.String())
	b.username = cfg.String(KeyUsername, "")
	b.password = cfg.String(KeyPassword, "")
	return b, nil
}

// Backend is a REST client implementation of remote.Operations.
type Backend struct {
	client   *http.Client
	baseURL  string
	username string
	password string
	closed   atomic.Bool
}

// NewWithClient creates a backend that sends requests with client to
// baseURL.
func NewWithClient(client *http.Client, baseURL string) *Backend {
	return &Backend{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (b *Backend) documentURL(req remote.Request) string {
	q := url.Values{}
	q.Set(restapi.ParamURI, req.URI)
	if req.Transaction != "" {
		q.Set(restapi.ParamTransaction, req.Transaction)
	}
	return b.baseURL + restapi.DocumentsPath + "?" + q.Encode()
}

func (b *Backend) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	if body == nil {
		body = http.NoBody
	}
	r, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("rest %s: %w", method, err)
	}
	if b.username != "" {
		r.SetBasicAuth(b.username, b.password)
	}
	return r, nil
}

// do sends r and returns the response when the status is 2xx.
func (b *Backend) do(r *http.Request) (*http.Response, error) {
	resp, err := b.client.Do(r)
	if err != nil {
		return nil, docerrors.NewIOError("rest "+r.Method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, restapi.ErrorFor(resp)
	}
	return resp, nil
}

func (b *Backend) doDiscard(r *http.Request) error {
	resp, err := b.do(r)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// GetDocument fetches a document. The returned body streams the response.
func (b *Backend) GetDocument(ctx context.Context, req remote.Request) (*remote.Document, error) {
	if err := b.check(req.URI); err != nil {
		return nil, err
	}

	r, err := b.newRequest(ctx, http.MethodGet, b.documentURL(req), nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.do(r)
	if err != nil {
		return nil, err
	}

	f, _ := format.Parse(resp.Header.Get(restapi.HeaderFormat))
	return &remote.Document{
		URI:      req.URI,
		Format:   f,
		Mimetype: resp.Header.Get("Content-Type"),
		Body:     resp.Body,
	}, nil
}

// PutDocument uploads a document.
func (b *Backend) PutDocument(ctx context.Context, req remote.Request, body io.Reader) error {
	if err := b.check(req.URI); err != nil {
		return err
	}

	r, err := b.newRequest(ctx, http.MethodPut, b.documentURL(req), body)
	if err != nil {
		return err
	}
	r.Header.Set(restapi.HeaderFormat, req.Format.String())
	if mt := remote.ResolveMimetype(req); mt != "" {
		r.Header.Set("Content-Type", mt)
	}
	return b.doDiscard(r)
}

// DeleteDocument removes a document.
func (b *Backend) DeleteDocument(ctx context.Context, req remote.Request) error {
	if err := b.check(req.URI); err != nil {
		return err
	}

	r, err := b.newRequest(ctx, http.MethodDelete, b.documentURL(req), nil)
	if err != nil {
		return err
	}
	return b.doDiscard(r)
}

// OpenTransaction opens a transaction on the server.
func (b *Backend) OpenTransaction(ctx context.Context) (string, error) {
	if b.closed.Load() {
		return "", docerrors.ErrClosed
	}

	r, err := b.newRequest(ctx, http.MethodPost, b.baseURL+restapi.TransactionsPath, nil)
	if err != nil {
		return "", err
	}
	resp, err := b.do(r)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out restapi.TransactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", docerrors.NewIOError("decode transaction response", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: server returned an empty transaction id", docerrors.ErrInvalidState)
	}
	return out.ID, nil
}

// CommitTransaction commits a transaction on the server.
func (b *Backend) CommitTransaction(ctx context.Context, id string) error {
	return b.resolve(ctx, id, restapi.ResultCommit)
}

// RollbackTransaction rolls back a transaction on the server.
func (b *Backend) RollbackTransaction(ctx context.Context, id string) error {
	return b.resolve(ctx, id, restapi.ResultRollback)
}

func (b *Backend) resolve(ctx context.Context, id, result string) error {
	if b.closed.Load() {
		return docerrors.ErrClosed
	}

	target := b.baseURL + restapi.TransactionsPath + "/" + url.PathEscape(id) +
		"?" + restapi.ParamResult + "=" + result
	r, err := b.newRequest(ctx, http.MethodPost, target, nil)
	if err != nil {
		return err
	}
	return b.doDiscard(r)
}

// Close releases idle connections. The server is not affected.
func (b *Backend) Close() error {
	if !b.closed.Swap(true) {
		b.client.CloseIdleConnections()
	}
	return nil
}

func (b *Backend) check(uri string) error {
	if b.closed.Load() {
		return docerrors.ErrClosed
	}
	return remote.ValidateURI(uri)
}
