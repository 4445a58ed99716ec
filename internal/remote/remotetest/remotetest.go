// Package remotetest provides a behavioural test suite every remote backend
// must pass, plus shared benchmarks.
package remotetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerrors "github.com/gezibash/docio/pkg/errors"
	"github.com/gezibash/docio/pkg/format"
	"github.com/gezibash/docio/pkg/remote"
)

// NewFunc returns a fresh, empty backend. The suite closes it.
type NewFunc func(t testing.TB) remote.Operations

// Run runs the full suite against backends built by newBackend.
func Run(t *testing.T, newBackend NewFunc) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, ops remote.Operations)
	}{
		{"PutGetDelete", testPutGetDelete},
		{"Overwrite", testOverwrite},
		{"MetadataPreserved", testMetadataPreserved},
		{"BinaryContent", testBinaryContent},
		{"EmptyURI", testEmptyURI},
		{"MissingDocument", testMissingDocument},
		{"CommitPublishesWrites", testCommitPublishesWrites},
		{"RollbackDiscardsWrites", testRollbackDiscardsWrites},
		{"DeleteInsideTransaction", testDeleteInsideTransaction},
		{"UnknownTransaction", testUnknownTransaction},
		{"ResolvedTransactionIsGone", testResolvedTransactionIsGone},
		{"DistinctTransactionIDs", testDistinctTransactionIDs},
		{"Closed", testClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := newBackend(t)
			t.Cleanup(func() { _ = ops.Close() })
			tt.fn(t, ops)
		})
	}
}

// Put stores content at uri as XML outside any transaction.
func Put(t testing.TB, ops remote.Operations, uri, txid, content string) {
	t.Helper()
	req := remote.Request{URI: uri, Transaction: txid, Format: format.XML}
	require.NoError(t, ops.PutDocument(context.Background(), req, strings.NewReader(content)))
}

// Get fetches uri and returns its content.
func Get(t testing.TB, ops remote.Operations, uri, txid string) (*remote.Document, string) {
	t.Helper()
	doc, err := ops.GetDocument(context.Background(), remote.Request{URI: uri, Transaction: txid})
	require.NoError(t, err)
	defer doc.Body.Close()
	data, err := io.ReadAll(doc.Body)
	require.NoError(t, err)
	return doc, string(data)
}

// AssertMissing asserts uri is not visible in txid (or outside, if empty).
func AssertMissing(t testing.TB, ops remote.Operations, uri, txid string) {
	t.Helper()
	doc, err := ops.GetDocument(context.Background(), remote.Request{URI: uri, Transaction: txid})
	if err == nil {
		doc.Body.Close()
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, docerrors.ErrNotFound)
}

func testPutGetDelete(t *testing.T, ops remote.Operations) {
	ctx := context.Background()
	Put(t, ops, "/docs/a.xml", "", "<a>1</a>")

	doc, content := Get(t, ops, "/docs/a.xml", "")
	assert.Equal(t, "<a>1</a>", content)
	assert.Equal(t, "/docs/a.xml", doc.URI)
	assert.Equal(t, format.XML, doc.Format)
	assert.Equal(t, "application/xml", doc.Mimetype)

	require.NoError(t, ops.DeleteDocument(ctx, remote.Request{URI: "/docs/a.xml"}))
	AssertMissing(t, ops, "/docs/a.xml", "")
}

func testOverwrite(t *testing.T, ops remote.Operations) {
	Put(t, ops, "/o.xml", "", "<v>1</v>")
	Put(t, ops, "/o.xml", "", "<v>2</v>")

	_, content := Get(t, ops, "/o.xml", "")
	assert.Equal(t, "<v>2</v>", content)
}

func testMetadataPreserved(t *testing.T, ops remote.Operations) {
	req := remote.Request{URI: "/m.json", Format: format.JSON, Mimetype: "application/vnd.docio+json"}
	require.NoError(t, ops.PutDocument(context.Background(), req, strings.NewReader(`{"a":1}`)))

	doc, content := Get(t, ops, "/m.json", "")
	assert.Equal(t, `{"a":1}`, content)
	assert.Equal(t, format.JSON, doc.Format)
	assert.Equal(t, "application/vnd.docio+json", doc.Mimetype)
}

func testBinaryContent(t *testing.T, ops remote.Operations) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	req := remote.Request{URI: "/bin/blob", Format: format.Binary}
	require.NoError(t, ops.PutDocument(context.Background(), req, bytes.NewReader(data)))

	doc, content := Get(t, ops, "/bin/blob", "")
	assert.Equal(t, data, []byte(content))
	assert.Equal(t, format.Binary, doc.Format)
	assert.Equal(t, "application/octet-stream", doc.Mimetype)
}

func testEmptyURI(t *testing.T, ops remote.Operations) {
	ctx := context.Background()
	_, err := ops.GetDocument(ctx, remote.Request{})
	assert.ErrorIs(t, err, docerrors.ErrInvalidArgument)
	err = ops.PutDocument(ctx, remote.Request{URI: " "}, strings.NewReader("x"))
	assert.ErrorIs(t, err, docerrors.ErrInvalidArgument)
	err = ops.DeleteDocument(ctx, remote.Request{})
	assert.ErrorIs(t, err, docerrors.ErrInvalidArgument)
}

func testMissingDocument(t *testing.T, ops remote.Operations) {
	AssertMissing(t, ops, "/nope.xml", "")
	err := ops.DeleteDocument(context.Background(), remote.Request{URI: "/nope.xml"})
	assert.ErrorIs(t, err, docerrors.ErrNotFound)
}

func testCommitPublishesWrites(t *testing.T, ops remote.Operations) {
	ctx := context.Background()
	id, err := ops.OpenTransaction(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	Put(t, ops, "/tx/a.xml", id, "<a/>")
	AssertMissing(t, ops, "/tx/a.xml", "")

	_, content := Get(t, ops, "/tx/a.xml", id)
	assert.Equal(t, "<a/>", content)

	require.NoError(t, ops.CommitTransaction(ctx, id))
	_, content = Get(t, ops, "/tx/a.xml", "")
	assert.Equal(t, "<a/>", content)
}

func testRollbackDiscardsWrites(t *testing.T, ops remote.Operations) {
	ctx := context.Background()
	Put(t, ops, "/keep.xml", "", "<old/>")

	id, err := ops.OpenTransaction(ctx)
	require.NoError(t, err)
	Put(t, ops, "/keep.xml", id, "<new/>")
	Put(t, ops, "/gone.xml", id, "<x/>")

	require.NoError(t, ops.RollbackTransaction(ctx, id))

	_, content := Get(t, ops, "/keep.xml", "")
	assert.Equal(t, "<old/>", content)
	AssertMissing(t, ops, "/gone.xml", "")
}

func testDeleteInsideTransaction(t *testing.T, ops remote.Operations) {
	ctx := context.Background()
	Put(t, ops, "/d.xml", "", "<d/>")

	id, err := ops.OpenTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, ops.DeleteDocument(ctx, remote.Request{URI: "/d.xml", Transaction: id}))

	AssertMissing(t, ops, "/d.xml", id)
	_, content := Get(t, ops, "/d.xml", "")
	assert.Equal(t, "<d/>", content)

	require.NoError(t, ops.CommitTransaction(ctx, id))
	AssertMissing(t, ops, "/d.xml", "")
}

func testUnknownTransaction(t *testing.T, ops remote.Operations) {
	ctx := context.Background()
	const id = "no-such-transaction"

	err := ops.PutDocument(ctx, remote.Request{URI: "/u.xml", Transaction: id}, strings.NewReader("<u/>"))
	assert.ErrorIs(t, err, docerrors.ErrNotFound)
	_, err = ops.GetDocument(ctx, remote.Request{URI: "/u.xml", Transaction: id})
	assert.ErrorIs(t, err, docerrors.ErrNotFound)
	assert.ErrorIs(t, ops.CommitTransaction(ctx, id), docerrors.ErrNotFound)
	assert.ErrorIs(t, ops.RollbackTransaction(ctx, id), docerrors.ErrNotFound)
}

func testResolvedTransactionIsGone(t *testing.T, ops remote.Operations) {
	ctx := context.Background()

	id, err := ops.OpenTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, ops.CommitTransaction(ctx, id))
	assert.ErrorIs(t, ops.CommitTransaction(ctx, id), docerrors.ErrNotFound)
	assert.ErrorIs(t, ops.RollbackTransaction(ctx, id), docerrors.ErrNotFound)

	id, err = ops.OpenTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, ops.RollbackTransaction(ctx, id))
	assert.ErrorIs(t, ops.CommitTransaction(ctx, id), docerrors.ErrNotFound)
}

func testDistinctTransactionIDs(t *testing.T, ops remote.Operations) {
	ctx := context.Background()
	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		id, err := ops.OpenTransaction(ctx)
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate transaction id %s", id)
		seen[id] = true
	}
	for id := range seen {
		require.NoError(t, ops.RollbackTransaction(ctx, id))
	}
}

func testClosed(t *testing.T, ops remote.Operations) {
	ctx := context.Background()
	require.NoError(t, ops.Close())

	_, err := ops.GetDocument(ctx, remote.Request{URI: "/a"})
	assert.ErrorIs(t, err, docerrors.ErrClosed)
	err = ops.PutDocument(ctx, remote.Request{URI: "/a"}, strings.NewReader("x"))
	assert.ErrorIs(t, err, docerrors.ErrClosed)
	_, err = ops.OpenTransaction(ctx)
	assert.ErrorIs(t, err, docerrors.ErrClosed)
}

// Bench runs put and get benchmarks against a backend.
func Bench(b *testing.B, newBackend NewFunc) {
	for _, size := range []int{256, 16 << 10} {
		payload := bytes.Repeat([]byte("x"), size)

		b.Run(fmt.Sprintf("Put/%d", size), func(b *testing.B) {
			ops := newBackend(b)
			defer ops.Close()
			ctx := context.Background()
			b.SetBytes(int64(size))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				req := remote.Request{URI: fmt.Sprintf("/bench/%d", i%1000), Format: format.Binary}
				if err := ops.PutDocument(ctx, req, bytes.NewReader(payload)); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run(fmt.Sprintf("Get/%d", size), func(b *testing.B) {
			ops := newBackend(b)
			defer ops.Close()
			ctx := context.Background()
			req := remote.Request{URI: "/bench/doc", Format: format.Binary}
			if err := ops.PutDocument(ctx, req, bytes.NewReader(payload)); err != nil {
				b.Fatal(err)
			}
			b.SetBytes(int64(size))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				doc, err := ops.GetDocument(ctx, remote.Request{URI: "/bench/doc"})
				if err != nil {
					b.Fatal(err)
				}
				_, _ = io.Copy(io.Discard, doc.Body)
				doc.Body.Close()
			}
		})
	}
}
