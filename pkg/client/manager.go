package client

import (
	"bytes"
	"context"
	"fmt"
	"io"

	docerrors "github.com/gezibash/docio/pkg/errors"
	"github.com/gezibash/docio/pkg/format"
	"github.com/gezibash/docio/pkg/handle"
	"github.com/gezibash/docio/pkg/logging"
	"github.com/gezibash/docio/pkg/remote"
	"github.com/gezibash/docio/pkg/transaction"
)

// DocumentManager reads and writes documents of one format. R and W limit
// the handles it accepts to those able to carry that format.
type DocumentManager[R handle.ReadHandle, W handle.WriteHandle] struct {
	client *Client
	format format.Format
}

type (
	XMLDocumentManager    = DocumentManager[handle.XMLReadHandle, handle.XMLWriteHandle]
	JSONDocumentManager   = DocumentManager[handle.JSONReadHandle, handle.JSONWriteHandle]
	TextDocumentManager   = DocumentManager[handle.TextReadHandle, handle.TextWriteHandle]
	BinaryDocumentManager = DocumentManager[handle.BinaryReadHandle, handle.BinaryWriteHandle]
)

// NewDocumentManager returns a manager for documents of format f.
func NewDocumentManager[R handle.ReadHandle, W handle.WriteHandle](c *Client, f format.Format) *DocumentManager[R, W] {
	return &DocumentManager[R, W]{client: c, format: f}
}

// Format returns the format the manager reads and writes.
func (m *DocumentManager[R, W]) Format() format.Format { return m.format }

// CallOption configures a single document call.
type CallOption func(*callConfig)

type callConfig struct {
	tx *transaction.Transaction
}

// WithTransaction runs the call inside tx.
func WithTransaction(tx *transaction.Transaction) CallOption {
	return func(c *callConfig) { c.tx = tx }
}

func (m *DocumentManager[R, W]) request(uri string, opts []CallOption) (remote.Request, *logging.Logger) {
	var cc callConfig
	for _, o := range opts {
		o(&cc)
	}
	req := remote.Request{URI: uri, Format: m.format}
	if cc.tx != nil {
		req.Transaction = cc.tx.ID()
	}
	log := m.client.logger.WithURI(uri).WithTransaction(req.Transaction)
	return req, log
}

// Read fetches uri into h. The handle's mimetype is set from the document
// when the handle has none. Stream handles own the document body after a
// successful Read and must be closed.
func (m *DocumentManager[R, W]) Read(ctx context.Context, uri string, h R, opts ...CallOption) error {
	req, log := m.request(uri, opts)
	ctx, cancel := m.client.withTimeout(ctx)

	var doc *remote.Document
	err := m.client.retry(ctx, log, func(ctx context.Context) error {
		var err error
		doc, err = m.client.ops.GetDocument(ctx, req)
		return err
	})
	if err != nil {
		cancel()
		return err
	}

	if h.Mimetype() == "" && doc.Mimetype != "" {
		h.SetMimetype(doc.Mimetype)
	}

	body := doc.Body
	if h.ReceiveAs() == handle.Stream {
		// The stream outlives this call; release the timeout with the body.
		body = &cancelOnClose{ReadCloser: body, cancel: cancel}
	} else {
		defer cancel()
	}

	if err := handle.Receive(h, body); err != nil {
		_ = body.Close()
		return err
	}
	log.DebugContext(ctx, "document read", "format", doc.Format, "mimetype", doc.Mimetype)
	return nil
}

// Write stores h's content at uri.
//
// A handle whose format is set and differs from the manager's fails with
// errors.ErrInvalidArgument. With retries configured and a Bufferable
// handle the content is buffered once and replayed on each attempt;
// otherwise it is streamed once.
func (m *DocumentManager[R, W]) Write(ctx context.Context, uri string, h W, opts ...CallOption) error {
	if f := h.Format(); f != format.Unknown && f != m.format {
		return fmt.Errorf("%w: %s handle cannot be written by the %s document manager",
			docerrors.ErrInvalidArgument, f, m.format)
	}

	req, log := m.request(uri, opts)
	req.Mimetype = h.Mimetype()
	ctx, cancel := m.client.withTimeout(ctx)
	defer cancel()

	if b, ok := any(h).(handle.Bufferable); ok && m.client.cfg.retries > 0 {
		data, err := b.ToBuffer()
		if err != nil {
			return err
		}
		if data == nil {
			return fmt.Errorf("%w: %T has no content to write", docerrors.ErrInvalidState, h)
		}
		err = m.client.retry(ctx, log, func(ctx context.Context) error {
			return m.client.ops.PutDocument(ctx, req, bytes.NewReader(data))
		})
		if err != nil {
			return err
		}
		log.DebugContext(ctx, "document written", "bytes", len(data))
		return nil
	}

	body, err := handle.Open(h)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := m.client.ops.PutDocument(ctx, req, body); err != nil {
		return err
	}
	log.DebugContext(ctx, "document written")
	return nil
}

// Delete removes uri.
func (m *DocumentManager[R, W]) Delete(ctx context.Context, uri string, opts ...CallOption) error {
	req, log := m.request(uri, opts)
	ctx, cancel := m.client.withTimeout(ctx)
	defer cancel()

	return m.client.retry(ctx, log, func(ctx context.Context) error {
		return m.client.ops.DeleteDocument(ctx, req)
	})
}

type cancelOnClose struct {
	io.ReadCloser
	cancel func()
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}
