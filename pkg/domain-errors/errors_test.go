package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeUnavailable, "contact store unreachable")

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.True(t, HasCode(err, CodeUnavailable))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
}

func TestCodeOf(t *testing.T) {
	t.Run("uncoded errors are internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})

	t.Run("outermost code wins", func(t *testing.T) {
		inner := New(CodeNotFound, "contact not found")
		outer := Wrap(inner, CodeIntegrity, "dangling link")
		assert.Equal(t, CodeIntegrity, CodeOf(outer))
	})

	t.Run("code survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("identify: %w", New(CodeTimeout, "deadline"))
		assert.Equal(t, CodeTimeout, CodeOf(err))
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(CodeUnavailable, "down")))
	assert.True(t, IsRetryable(New(CodeTimeout, "slow")))
	assert.False(t, IsRetryable(New(CodeIntegrity, "corrupt")))
	assert.False(t, IsRetryable(errors.New("plain")))
}
