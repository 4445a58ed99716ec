package remote

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gezibash/docio/internal/observability"
	"github.com/gezibash/docio/internal/settings"
	docerrors "github.com/gezibash/docio/pkg/errors"
	"github.com/gezibash/docio/pkg/format"
)

// fakeBackend keeps documents in a map and has no real transactions.
type fakeBackend struct {
	mu     sync.Mutex
	config map[string]string
	docs   map[string]string
	closed bool
}

func newFake(_ context.Context, config map[string]string) (Operations, error) {
	if config["fail"] == "true" {
		return nil, settings.NewConfigError("fake", "fail", "asked to fail")
	}
	return &fakeBackend{config: config, docs: make(map[string]string)}, nil
}

func (f *fakeBackend) GetDocument(_ context.Context, req Request) (*Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.docs[req.URI]
	if !ok {
		return nil, DocumentNotFound(req.URI)
	}
	return &Document{URI: req.URI, Format: format.Text, Body: io.NopCloser(strings.NewReader(content))}, nil
}

func (f *fakeBackend) PutDocument(_ context.Context, req Request, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[req.URI] = string(data)
	return nil
}

func (f *fakeBackend) DeleteDocument(_ context.Context, req Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, req.URI)
	return nil
}

func (f *fakeBackend) OpenTransaction(context.Context) (string, error) { return "tx-1", nil }

func (f *fakeBackend) CommitTransaction(_ context.Context, id string) error {
	if id != "tx-1" {
		return TransactionNotFound(id)
	}
	return nil
}

func (f *fakeBackend) RollbackTransaction(context.Context, string) error { return nil }

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func init() {
	Register("fake", newFake, func() map[string]string {
		return map[string]string{"color": "blue", "size": "small"}
	})
}

func TestRegistry(t *testing.T) {
	assert.True(t, IsRegistered("fake"))
	assert.False(t, IsRegistered("nope"))
	assert.Contains(t, ListBackends(), "fake")
	assert.Equal(t, "blue", GetDefaults("fake")["color"])
	assert.Nil(t, GetDefaults("nope"))
}

func TestRegisterDuplicatePanics(t *testing.T) {
	assert.Panics(t, func() { Register("fake", newFake, nil) })
}

func TestNewMergesDefaults(t *testing.T) {
	ops, err := New(context.Background(), "fake", map[string]string{"size": "large"}, nil)
	require.NoError(t, err)
	fake := ops.(*fakeBackend)
	assert.Equal(t, "blue", fake.config["color"])
	assert.Equal(t, "large", fake.config["size"])
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New(context.Background(), "nope", nil, nil)
	var cfgErr *settings.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "fake")
}

func TestNewFactoryError(t *testing.T) {
	m := observability.NewMetrics()
	_, err := New(context.Background(), "fake", map[string]string{"fail": "true"}, m)
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationTotal.WithLabelValues("remote.new", "error")))
}

func TestNewInstruments(t *testing.T) {
	m := observability.NewMetrics()
	ops, err := New(context.Background(), "fake", nil, m)
	require.NoError(t, err)

	unwrapper, ok := ops.(interface{ Unwrap() Operations })
	require.True(t, ok)
	assert.IsType(t, &fakeBackend{}, unwrapper.Unwrap())
	assert.Same(t, ops, Instrument(ops, m))
}

func TestInstrumentCountsBytesAndCalls(t *testing.T) {
	m := observability.NewMetrics()
	fake, _ := newFake(context.Background(), nil)
	ops := Instrument(fake, m)
	ctx := context.Background()

	require.NoError(t, ops.PutDocument(ctx, Request{URI: "/a"}, strings.NewReader("hello")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.BytesProcessed.WithLabelValues("out")))

	doc, err := ops.GetDocument(ctx, Request{URI: "/a"})
	require.NoError(t, err)
	data, err := io.ReadAll(doc.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	require.NoError(t, doc.Body.Close())
	require.NoError(t, doc.Body.Close())
	assert.Equal(t, 5.0, testutil.ToFloat64(m.BytesProcessed.WithLabelValues("in")))

	_, err = ops.GetDocument(ctx, Request{URI: "/missing"})
	assert.ErrorIs(t, err, docerrors.ErrNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("remote.get", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationTotal.WithLabelValues("remote.get", "ok")))

	id, err := ops.OpenTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, ops.CommitTransaction(ctx, id))
	assert.ErrorIs(t, ops.CommitTransaction(ctx, "other"), docerrors.ErrNotFound)
	require.NoError(t, ops.RollbackTransaction(ctx, id))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transactions.WithLabelValues("open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transactions.WithLabelValues("commit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transactions.WithLabelValues("rollback")))

	require.NoError(t, ops.Close())
	assert.True(t, fake.(*fakeBackend).closed)
}

func TestInstrumentNil(t *testing.T) {
	assert.Nil(t, Instrument(nil, nil))
}

func TestValidateURI(t *testing.T) {
	assert.NoError(t, ValidateURI("/a"))
	assert.ErrorIs(t, ValidateURI(""), docerrors.ErrInvalidArgument)
	assert.ErrorIs(t, ValidateURI(" \t"), docerrors.ErrInvalidArgument)
}

func TestNotFoundHelpers(t *testing.T) {
	err := DocumentNotFound("/x")
	assert.ErrorIs(t, err, docerrors.ErrNotFound)
	assert.Contains(t, err.Error(), "/x")
	assert.True(t, errors.Is(TransactionNotFound("t"), docerrors.ErrNotFound))
}

func TestResolveMimetype(t *testing.T) {
	assert.Equal(t, "application/xml", ResolveMimetype(Request{Format: format.XML}))
	assert.Equal(t, "text/csv", ResolveMimetype(Request{Format: format.Text, Mimetype: "text/csv"}))
	assert.Equal(t, "", ResolveMimetype(Request{}))
}
