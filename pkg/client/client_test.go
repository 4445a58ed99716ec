package client

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gezibash/docio/internal/observability"
	"github.com/gezibash/docio/internal/remote/memory"
	docerrors "github.com/gezibash/docio/pkg/errors"
	"github.com/gezibash/docio/pkg/format"
	"github.com/gezibash/docio/pkg/handle"
	"github.com/gezibash/docio/pkg/logging"
	"github.com/gezibash/docio/pkg/remote"
)

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	ops, err := memory.New()
	require.NoError(t, err)
	c := New(ops, append([]Option{WithLogger(logging.Discard())}, opts...)...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// flaky fails the first n puts and deletes with an I/O error after
// consuming part of the body.
type flaky struct {
	remote.Operations
	mu    sync.Mutex
	fails int
	calls int
}

func (f *flaky) fail() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fails > 0 {
		f.fails--
		return true
	}
	return false
}

func (f *flaky) PutDocument(ctx context.Context, req remote.Request, body io.Reader) error {
	if f.fail() {
		_, _ = io.CopyN(io.Discard, body, 2)
		return docerrors.NewIOError("send", errors.New("connection reset"))
	}
	return f.Operations.PutDocument(ctx, req, body)
}

func (f *flaky) DeleteDocument(ctx context.Context, req remote.Request) error {
	if f.fail() {
		return docerrors.NewIOError("send", errors.New("connection reset"))
	}
	return f.Operations.DeleteDocument(ctx, req)
}

func newFlakyClient(t *testing.T, fails int, opts ...Option) (*Client, *flaky) {
	t.Helper()
	ops, err := memory.New()
	require.NoError(t, err)
	f := &flaky{Operations: ops, fails: fails}
	c := New(f, append([]Option{WithLogger(logging.Discard()), WithRetryBackoff(time.Millisecond)}, opts...)...)
	t.Cleanup(func() { _ = c.Close() })
	return c, f
}

func TestWriteReadXML(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	in := handle.NewString("<doc>hi</doc>")
	require.NoError(t, in.SetFormat(format.XML))
	require.NoError(t, c.XML().Write(ctx, "/x.xml", in))

	out := handle.NewString("")
	require.NoError(t, c.XML().Read(ctx, "/x.xml", out))
	assert.Equal(t, "<doc>hi</doc>", out.Get())
	assert.Equal(t, "application/xml", out.Mimetype())
}

func TestReadKeepsHandleMimetype(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.Binary().Write(ctx, "/b", handle.NewBytes([]byte{1, 2})))

	out := handle.NewBytes(nil)
	out.SetMimetype("image/png")
	require.NoError(t, c.Binary().Read(ctx, "/b", out))
	assert.Equal(t, []byte{1, 2}, out.Get())
	assert.Equal(t, "image/png", out.Mimetype())
}

func TestReadStreamOwnsBody(t *testing.T) {
	c := newTestClient(t, WithTimeout(time.Minute))
	ctx := context.Background()
	require.NoError(t, c.Text().Write(ctx, "/s.txt", handle.NewString("streamed")))

	out := handle.NewStream(nil)
	require.NoError(t, c.Text().Read(ctx, "/s.txt", out))
	data, err := io.ReadAll(out.Get())
	require.NoError(t, err)
	assert.Equal(t, "streamed", string(data))
	require.NoError(t, out.Close())
}

func TestWriteFormatConflict(t *testing.T) {
	c := newTestClient(t)
	h := handle.NewString("plain")

	err := c.XML().Write(context.Background(), "/conflict", h)
	assert.ErrorIs(t, err, docerrors.ErrInvalidArgument)

	unknown := handle.NewBytes([]byte("<ok/>"))
	assert.NoError(t, c.XML().Write(context.Background(), "/ok.xml", unknown))
}

func TestReadMissing(t *testing.T) {
	c := newTestClient(t, WithRetries(3))
	err := c.JSON().Read(context.Background(), "/missing.json", handle.NewJSON())
	assert.ErrorIs(t, err, docerrors.ErrNotFound)
}

func TestWriteRetriesReplayBufferedContent(t *testing.T) {
	c, f := newFlakyClient(t, 2, WithRetries(2))
	ctx := context.Background()

	in := handle.NewStream(strings.NewReader("replayed content"))
	require.NoError(t, c.Text().Write(ctx, "/r.txt", in))
	assert.Equal(t, 3, f.calls)

	out := handle.NewString("")
	require.NoError(t, c.Text().Read(ctx, "/r.txt", out))
	assert.Equal(t, "replayed content", out.Get())
}

func TestWriteRetriesExhausted(t *testing.T) {
	c, f := newFlakyClient(t, 5, WithRetries(1))
	err := c.Text().Write(context.Background(), "/r.txt", handle.NewString("x"))
	assert.True(t, docerrors.IsIOError(err))
	assert.Equal(t, 2, f.calls)
}

func TestWriteWithoutRetriesStreamsOnce(t *testing.T) {
	c, f := newFlakyClient(t, 1)
	err := c.Text().Write(context.Background(), "/r.txt", handle.NewString("x"))
	assert.True(t, docerrors.IsIOError(err))
	assert.Equal(t, 1, f.calls)
}

func TestWriteEmptyHandle(t *testing.T) {
	c := newTestClient(t)
	err := c.Text().Write(context.Background(), "/e.txt", handle.NewString(""))
	assert.ErrorIs(t, err, docerrors.ErrInvalidState)

	c = newTestClient(t, WithRetries(1))
	err = c.Text().Write(context.Background(), "/e.txt", handle.NewString(""))
	assert.ErrorIs(t, err, docerrors.ErrInvalidState)
}

func TestDeleteRetries(t *testing.T) {
	c, f := newFlakyClient(t, 1, WithRetries(1))
	ctx := context.Background()
	require.NoError(t, c.Text().Write(ctx, "/d.txt", handle.NewString("x")))
	require.NoError(t, c.Text().Delete(ctx, "/d.txt"))
	// Failed write, retried write, delete.
	assert.Equal(t, 3, f.calls)

	err := c.Text().Delete(ctx, "/d.txt")
	assert.ErrorIs(t, err, docerrors.ErrNotFound)
}

func TestRetryStopsOnCancel(t *testing.T) {
	c, _ := newFlakyClient(t, 10, WithRetries(5), WithRetryBackoff(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Text().Write(ctx, "/c.txt", handle.NewString("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransactionCommit(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	tx, err := c.OpenTransaction(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, tx.ID())

	require.NoError(t, c.Text().Write(ctx, "/t.txt", handle.NewString("in tx"), WithTransaction(tx)))

	err = c.Text().Read(ctx, "/t.txt", handle.NewString(""))
	assert.ErrorIs(t, err, docerrors.ErrNotFound)

	inTx := handle.NewString("")
	require.NoError(t, c.Text().Read(ctx, "/t.txt", inTx, WithTransaction(tx)))
	assert.Equal(t, "in tx", inTx.Get())

	require.NoError(t, tx.Commit(ctx))
	out := handle.NewString("")
	require.NoError(t, c.Text().Read(ctx, "/t.txt", out))
	assert.Equal(t, "in tx", out.Get())

	assert.ErrorIs(t, tx.Commit(ctx), docerrors.ErrNotFound)
}

func TestTransactionRollback(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	tx, err := c.OpenTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Text().Write(ctx, "/rb.txt", handle.NewString("x"), WithTransaction(tx)))
	require.NoError(t, tx.Rollback(ctx))

	err = c.Text().Read(ctx, "/rb.txt", handle.NewString(""))
	assert.ErrorIs(t, err, docerrors.ErrNotFound)
}

func TestJSONManager(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.JSON().Write(ctx, "/v.json", handle.NewJSONValue(map[string]any{"n": 1.0})))

	out := handle.NewJSON()
	require.NoError(t, c.JSON().Read(ctx, "/v.json", out))
	v, err := out.Get()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": 1.0}, v)
}

func TestConnect(t *testing.T) {
	m := observability.NewMetrics()
	c, err := Connect(context.Background(), "memory", nil, WithMetrics(m), WithLogger(logging.Discard()))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Binary().Write(context.Background(), "/m", handle.NewBytes([]byte("abc"))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationTotal.WithLabelValues("remote.put", "ok")))

	_, err = Connect(context.Background(), "no-such-backend", nil)
	assert.Error(t, err)
}

func TestManagerFormats(t *testing.T) {
	c := newTestClient(t)
	assert.Equal(t, format.XML, c.XML().Format())
	assert.Equal(t, format.JSON, c.JSON().Format())
	assert.Equal(t, format.Text, c.Text().Format())
	assert.Equal(t, format.Binary, c.Binary().Format())
}
