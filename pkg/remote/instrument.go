package remote

import (
	"context"
	"io"

	"go.opentelemetry.io/otel/attribute"

	"github.com/gezibash/docio/internal/observability"
)

// Instrument wraps ops so every call is traced, timed and counted, and
// document bytes are counted in both directions.
func Instrument(ops Operations, metrics *observability.Metrics) Operations {
	if ops == nil {
		return nil
	}
	if _, ok := ops.(*instrumented); ok {
		return ops
	}
	return &instrumented{next: ops, metrics: metrics}
}

type instrumented struct {
	next    Operations
	metrics *observability.Metrics
}

func requestAttrs(req Request) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("docio.uri", req.URI),
		attribute.String("docio.format", req.Format.String()),
	}
	if req.Transaction != "" {
		attrs = append(attrs, attribute.String("docio.txid", req.Transaction))
	}
	return attrs
}

func (i *instrumented) GetDocument(ctx context.Context, req Request) (doc *Document, err error) {
	op, ctx := observability.StartOperation(ctx, i.metrics, "remote.get", requestAttrs(req)...)
	defer func() { op.End(err) }()

	doc, err = i.next.GetDocument(ctx, req)
	if err != nil {
		return nil, err
	}
	doc.Body = &countingBody{ReadCloser: doc.Body, metrics: i.metrics, direction: "in"}
	return doc, nil
}

func (i *instrumented) PutDocument(ctx context.Context, req Request, body io.Reader) (err error) {
	op, ctx := observability.StartOperation(ctx, i.metrics, "remote.put", requestAttrs(req)...)
	defer func() { op.End(err) }()

	if body == nil {
		return i.next.PutDocument(ctx, req, nil)
	}
	counted := &countingReader{r: body}
	err = i.next.PutDocument(ctx, req, counted)
	i.metrics.AddBytes("out", counted.n)
	op.SetAttributes(attribute.Int64("docio.bytes", counted.n))
	return err
}

func (i *instrumented) DeleteDocument(ctx context.Context, req Request) (err error) {
	op, ctx := observability.StartOperation(ctx, i.metrics, "remote.delete", requestAttrs(req)...)
	defer func() { op.End(err) }()
	return i.next.DeleteDocument(ctx, req)
}

func (i *instrumented) OpenTransaction(ctx context.Context) (id string, err error) {
	op, ctx := observability.StartOperation(ctx, i.metrics, "remote.txn.open")
	defer func() { op.End(err) }()

	id, err = i.next.OpenTransaction(ctx)
	if err == nil {
		op.SetAttributes(attribute.String("docio.txid", id))
		i.metrics.RecordTransaction("open")
	}
	return id, err
}

func (i *instrumented) CommitTransaction(ctx context.Context, id string) (err error) {
	op, ctx := observability.StartOperation(ctx, i.metrics, "remote.txn.commit", attribute.String("docio.txid", id))
	defer func() { op.End(err) }()

	if err = i.next.CommitTransaction(ctx, id); err == nil {
		i.metrics.RecordTransaction("commit")
	}
	return err
}

func (i *instrumented) RollbackTransaction(ctx context.Context, id string) (err error) {
	op, ctx := observability.StartOperation(ctx, i.metrics, "remote.txn.rollback", attribute.String("docio.txid", id))
	defer func() { op.End(err) }()

	if err = i.next.RollbackTransaction(ctx, id); err == nil {
		i.metrics.RecordTransaction("rollback")
	}
	return err
}

func (i *instrumented) Close() error {
	return i.next.Close()
}

// Unwrap returns the decorated backend.
func (i *instrumented) Unwrap() Operations { return i.next }

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type countingBody struct {
	io.ReadCloser
	metrics   *observability.Metrics
	direction string
	n         int64
	reported  bool
}

func (c *countingBody) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingBody) Close() error {
	if !c.reported {
		c.reported = true
		c.metrics.AddBytes(c.direction, c.n)
	}
	return c.ReadCloser.Close()
}
