package s3

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gezibash/docio/internal/remote/remotetest"
	"github.com/gezibash/docio/internal/settings"
	"github.com/gezibash/docio/pkg/remote"
)

type mockObject struct {
	data        []byte
	contentType string
	format      string
}

type mockStore struct {
	mu      sync.Mutex
	objects map[string]mockObject
}

func (m *mockStore) put(key string, obj mockObject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = obj
}

func (m *mockStore) get(key string) (mockObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

func (m *mockStore) del(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
}

func (m *mockStore) keys(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

type listResult struct {
	XMLName     xml.Name `xml:"ListBucketResult"`
	Name        string   `xml:"Name"`
	Prefix      string   `xml:"Prefix"`
	KeyCount    int      `xml:"KeyCount"`
	MaxKeys     int      `xml:"MaxKeys"`
	IsTruncated bool     `xml:"IsTruncated"`
	Contents    []struct {
		Key  string `xml:"Key"`
		Size int    `xml:"Size"`
	} `xml:"Contents"`
}

// mockS3Server creates an httptest server that emulates the slice of the S3
// API the backend uses: HeadBucket, ListObjectsV2 and object CRUD.
func mockS3Server() (*httptest.Server, *mockStore) {
	store := &mockStore{objects: make(map[string]mockObject)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Path format: /bucket/key or /bucket
		parts := strings.SplitN(r.URL.Path, "/", 3)

		if len(parts) < 3 || parts[2] == "" {
			if r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2" {
				prefix := r.URL.Query().Get("prefix")
				res := listResult{Name: parts[1], Prefix: prefix, MaxKeys: 1000}
				for _, k := range store.keys(prefix) {
					obj, _ := store.get(k)
					res.Contents = append(res.Contents, struct {
						Key  string `xml:"Key"`
						Size int    `xml:"Size"`
					}{k, len(obj.data)})
				}
				res.KeyCount = len(res.Contents)
				w.Header().Set("Content-Type", "application/xml")
				_ = xml.NewEncoder(w).Encode(res)
				return
			}
			w.WriteHeader(http.StatusOK)
			return
		}

		key := parts[2]
		switch r.Method {
		case http.MethodPut:
			data, _ := io.ReadAll(r.Body)
			store.put(key, mockObject{
				data:        data,
				contentType: r.Header.Get("Content-Type"),
				format:      r.Header.Get("X-Amz-Meta-Format"),
			})
			w.WriteHeader(http.StatusOK)
		case http.MethodGet, http.MethodHead:
			obj, ok := store.get(key)
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				if r.Method == http.MethodGet {
					_, _ = w.Write([]byte(`<?xml version="1.0"?><Error><Code>NoSuchKey</Code></Error>`))
				}
				return
			}
			if obj.contentType != "" {
				w.Header().Set("Content-Type", obj.contentType)
			}
			if obj.format != "" {
				w.Header().Set("X-Amz-Meta-Format", obj.format)
			}
			if r.Method == http.MethodGet {
				_, _ = w.Write(obj.data)
			}
		case http.MethodDelete:
			store.del(key)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	return srv, store
}

func testConfig(endpoint string) map[string]string {
	return map[string]string{
		KeyBucket:          "test-bucket",
		KeyRegion:          "us-east-1",
		KeyEndpoint:        endpoint,
		KeyForcePathStyle:  "true",
		KeyAccessKeyID:     "test",
		KeySecretAccessKey: "test",
	}
}

func newTestBackend(t testing.TB) remote.Operations {
	t.Helper()
	srv, _ := mockS3Server()
	t.Cleanup(srv.Close)

	b, err := NewFactory(context.Background(), testConfig(srv.URL))
	require.NoError(t, err)
	return b
}

func TestBackend(t *testing.T) {
	remotetest.Run(t, newTestBackend)
}

func BenchmarkBackend(b *testing.B) {
	remotetest.Bench(b, newTestBackend)
}

func TestObjectLayout(t *testing.T) {
	srv, store := mockS3Server()
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg[KeyPrefix] = "p/"
	ops, err := NewFactory(context.Background(), cfg)
	require.NoError(t, err)
	defer ops.Close()

	ctx := context.Background()
	id, err := ops.OpenTransaction(ctx)
	require.NoError(t, err)
	remotetest.Put(t, ops, "/a/b.xml", id, "<b/>")

	staged := store.keys("p/txn/" + id + "/")
	assert.Len(t, staged, 2)
	assert.Empty(t, store.keys("p/docs/"))

	require.NoError(t, ops.CommitTransaction(ctx, id))
	assert.Empty(t, store.keys("p/txn/"))
	assert.Equal(t, []string{"p/docs/%2Fa%2Fb.xml"}, store.keys("p/docs/"))

	obj, ok := store.get("p/docs/%2Fa%2Fb.xml")
	require.True(t, ok)
	assert.Equal(t, "xml", obj.format)
	assert.Equal(t, "application/xml", obj.contentType)
}

func TestPutReplacesStagedDelete(t *testing.T) {
	ops := newTestBackend(t)
	defer ops.Close()
	ctx := context.Background()

	remotetest.Put(t, ops, "/r.xml", "", "<r>1</r>")
	id, err := ops.OpenTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, ops.DeleteDocument(ctx, remote.Request{URI: "/r.xml", Transaction: id}))
	remotetest.Put(t, ops, "/r.xml", id, "<r>2</r>")

	_, content := remotetest.Get(t, ops, "/r.xml", id)
	assert.Equal(t, "<r>2</r>", content)

	require.NoError(t, ops.CommitTransaction(ctx, id))
	_, content = remotetest.Get(t, ops, "/r.xml", "")
	assert.Equal(t, "<r>2</r>", content)
}

func TestNewFactoryMissingBucket(t *testing.T) {
	_, err := NewFactory(context.Background(), map[string]string{})
	var cfgErr *settings.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, KeyBucket, cfgErr.Field)
}

func TestNewFactoryInvalidForcePathStyle(t *testing.T) {
	srv, _ := mockS3Server()
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg[KeyForcePathStyle] = "not-a-bool"
	_, err := NewFactory(context.Background(), cfg)
	var cfgErr *settings.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "s3", cfgErr.Backend)
}

func TestNewFactoryBucketNotAccessible(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg[KeyBucket] = "nonexistent"
	_, err := NewFactory(context.Background(), cfg)
	require.Error(t, err)
}

func TestGetServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.SplitN(r.URL.Path, "/", 3)
		if len(parts) < 3 || parts[2] == "" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ops, err := NewFactory(context.Background(), testConfig(srv.URL))
	require.NoError(t, err)
	defer ops.Close()

	_, err = ops.GetDocument(context.Background(), remote.Request{URI: "/x"})
	require.Error(t, err)
	assert.False(t, isNotFound(err))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{Message: aws.String("no such key")}))
	assert.True(t, isNotFound(&types.NotFound{Message: aws.String("not found")}))
	assert.False(t, isNotFound(errors.New("some other error")))
}

func TestIntegration(t *testing.T) {
	bucket := os.Getenv("S3_TEST_BUCKET")
	if bucket == "" {
		t.Skip("S3_TEST_BUCKET not set, skipping integration test")
	}

	remotetest.Run(t, func(t testing.TB) remote.Operations {
		ops, err := NewFactory(context.Background(), map[string]string{
			KeyBucket: bucket,
			KeyPrefix: "docio-test/" + t.Name() + "/",
		})
		require.NoError(t, err)
		return ops
	})
}

func TestRegistered(t *testing.T) {
	assert.True(t, remote.IsRegistered("s3"))
	assert.Equal(t, "us-east-1", remote.GetDefaults("s3")[KeyRegion])
}
