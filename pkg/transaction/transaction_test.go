package transaction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	op string
	id string
}

type recordingServices struct {
	calls []call
	err   error
}

func (r *recordingServices) CommitTransaction(_ context.Context, id string) error {
	r.calls = append(r.calls, call{"commit", id})
	return r.err
}

func (r *recordingServices) RollbackTransaction(_ context.Context, id string) error {
	r.calls = append(r.calls, call{"rollback", id})
	return r.err
}

func TestCommitDelegatesOnce(t *testing.T) {
	svc := &recordingServices{}
	tx := New(svc, "T1")

	require.NoError(t, tx.Commit(context.Background()))
	assert.Equal(t, []call{{"commit", "T1"}}, svc.calls)
}

func TestRollbackDelegatesOnce(t *testing.T) {
	svc := &recordingServices{}
	tx := New(svc, "T1")

	require.NoError(t, tx.Rollback(context.Background()))
	assert.Equal(t, []call{{"rollback", "T1"}}, svc.calls)
}

func TestRemoteErrorsSurfaceUnchanged(t *testing.T) {
	remoteErr := errors.New("XDMP-NOTXN: no transaction")
	svc := &recordingServices{err: remoteErr}
	tx := New(svc, "T1")

	assert.Same(t, remoteErr, tx.Commit(context.Background()))
	assert.Same(t, remoteErr, tx.Rollback(context.Background()))
}

func TestRepeatedCommitIssuesRepeatedCalls(t *testing.T) {
	svc := &recordingServices{}
	tx := New(svc, "T1")

	require.NoError(t, tx.Commit(context.Background()))
	require.NoError(t, tx.Commit(context.Background()))
	assert.Len(t, svc.calls, 2)
}

func TestIDReassignment(t *testing.T) {
	svc := &recordingServices{}
	tx := New(svc, "T1")
	tx.SetID("T2")

	require.NoError(t, tx.Commit(context.Background()))
	assert.Equal(t, "T2", tx.ID())
	assert.Equal(t, "T2", tx.String())
	assert.Equal(t, []call{{"commit", "T2"}}, svc.calls)
}

func TestServicesReassignment(t *testing.T) {
	first := &recordingServices{}
	second := &recordingServices{}
	tx := New(first, "T1")
	assert.Same(t, first, tx.Services())

	tx.SetServices(second)
	require.NoError(t, tx.Rollback(context.Background()))
	assert.Empty(t, first.calls)
	assert.Equal(t, []call{{"rollback", "T1"}}, second.calls)
}
