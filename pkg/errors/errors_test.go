package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIOErrorNil(t *testing.T) {
	assert.NoError(t, NewIOError("transform", nil))
}

func TestIOErrorUnwrap(t *testing.T) {
	err := NewIOError("transform", io.ErrUnexpectedEOF)
	require.Error(t, err)

	assert.True(t, stderrors.Is(err, io.ErrUnexpectedEOF))
	assert.True(t, IsIOError(err))
	assert.Equal(t, "transform: i/o failure: unexpected EOF", err.Error())

	var ioErr *IOError
	require.True(t, stderrors.As(fmt.Errorf("write: %w", err), &ioErr))
	assert.Equal(t, "transform", ioErr.Op)
}

func TestIOErrorWithoutOp(t *testing.T) {
	err := &IOError{Err: io.EOF}
	assert.Equal(t, "i/o failure: EOF", err.Error())
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{ErrNotFound, ErrClosed, ErrInvalidState, ErrInvalidArgument, ErrConflict, ErrUnsupported}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.False(t, stderrors.Is(a, b), "%v should not match %v", a, b)
		}
	}
	assert.False(t, IsIOError(ErrInvalidState))
}
