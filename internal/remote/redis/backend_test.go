package redis

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gezibash/docio/internal/remote/remotetest"
	"github.com/gezibash/docio/internal/settings"
	"github.com/gezibash/docio/pkg/remote"
)

// newTestBackend connects to REDIS_ADDR using db 15 and a unique key prefix.
func newTestBackend(t testing.TB) remote.Operations {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	require.NoError(t, client.Ping(context.Background()).Err())

	prefix := "docio-test:" + uuid.NewString()[:8] + ":"
	t.Cleanup(func() {
		cleanup := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
		defer cleanup.Close()
		ctx := context.Background()
		iter := cleanup.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			cleanup.Del(ctx, iter.Val())
		}
	})
	return NewWithClient(client, prefix)
}

func TestBackend(t *testing.T) {
	remotetest.Run(t, newTestBackend)
}

func BenchmarkBackend(b *testing.B) {
	remotetest.Bench(b, newTestBackend)
}

func TestLatestStaged(t *testing.T) {
	ops := []stagedOp{
		{Op: opPut, URI: "/a", Content: []byte("1")},
		{Op: opPut, URI: "/b", Content: []byte("2")},
		{Op: opDelete, URI: "/a"},
		{Op: opPut, URI: "/b", Content: []byte("3")},
	}

	op, ok := latestStaged(ops, "/a")
	require.True(t, ok)
	assert.Equal(t, opDelete, op.Op)

	op, ok = latestStaged(ops, "/b")
	require.True(t, ok)
	assert.Equal(t, "3", string(op.Content))

	_, ok = latestStaged(ops, "/c")
	assert.False(t, ok)
}

func TestDecodeOps(t *testing.T) {
	ops, err := decodeOps([]string{`{"op":"put","uri":"/x","format":"xml","content":"PHgvPg=="}`})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "<x/>", string(ops[0].Content))

	_, err = decodeOps([]string{"not json"})
	assert.Error(t, err)
}

func TestFactoryConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		cfg   map[string]string
		field string
	}{
		{"missing addr", map[string]string{KeyAddr: ""}, KeyAddr},
		{"bad db", map[string]string{KeyAddr: "localhost:1", KeyDB: "x"}, KeyDB},
		{"negative db", map[string]string{KeyAddr: "localhost:1", KeyDB: "-1"}, KeyDB},
		{"bad ttl", map[string]string{KeyAddr: "localhost:1", KeyTxnTTL: "soon"}, KeyTxnTTL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFactory(context.Background(), tt.cfg)
			var cfgErr *settings.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, "redis", cfgErr.Backend)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestRegistered(t *testing.T) {
	assert.True(t, remote.IsRegistered("redis"))
	assert.Equal(t, defaultPrefix, remote.GetDefaults("redis")[KeyKeyPrefix])
}
