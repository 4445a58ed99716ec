// Package remote defines the boundary between docio clients and the store
// that holds documents: the calls a client makes, a registry of backends
// implementing them, and an instrumentation decorator.
package remote

import (
	"context"
	"fmt"
	"io"
	"strings"

	docerrors "github.com/gezibash/docio/pkg/errors"
	"github.com/gezibash/docio/pkg/format"
)

// Request addresses a document, optionally inside a transaction.
type Request struct {
	URI         string
	Transaction string
	Format      format.Format
	Mimetype    string
}

// Document is a fetched document. The caller must close Body.
type Document struct {
	URI      string
	Format   format.Format
	Mimetype string
	Body     io.ReadCloser
}

// Operations is implemented by every backend.
//
// Missing documents and unknown transaction ids wrap errors.ErrNotFound.
// Empty URIs fail with errors.ErrInvalidArgument. Calls on a closed
// backend fail with errors.ErrClosed. Operations are safe for concurrent
// use.
type Operations interface {
	GetDocument(ctx context.Context, req Request) (*Document, error)
	PutDocument(ctx context.Context, req Request, body io.Reader) error
	DeleteDocument(ctx context.Context, req Request) error

	OpenTransaction(ctx context.Context) (string, error)
	CommitTransaction(ctx context.Context, id string) error
	RollbackTransaction(ctx context.Context, id string) error

	Close() error
}

// ValidateURI rejects empty and whitespace-only URIs.
func ValidateURI(uri string) error {
	if strings.TrimSpace(uri) == "" {
		return fmt.Errorf("%w: document uri is empty", docerrors.ErrInvalidArgument)
	}
	return nil
}

// DocumentNotFound returns an error wrapping errors.ErrNotFound for uri.
func DocumentNotFound(uri string) error {
	return fmt.Errorf("document %q: %w", uri, docerrors.ErrNotFound)
}

// TransactionNotFound returns an error wrapping errors.ErrNotFound for id.
func TransactionNotFound(id string) error {
	return fmt.Errorf("transaction %q: %w", id, docerrors.ErrNotFound)
}

// ResolveMimetype returns req's mimetype, falling back to the format
// default.
func ResolveMimetype(req Request) string {
	if req.Mimetype != "" {
		return req.Mimetype
	}
	return req.Format.DefaultMimetype()
}
