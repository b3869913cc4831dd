package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_WrapsCause(t *testing.T) {
	cause := stderrors.New("boom")
	err := Internal("writing cache", cause)

	assert.Equal(t, "INTERNAL: writing cache: boom", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.NotEmpty(t, err.StackTrace())
}

func TestDomainError_WithoutCause(t *testing.T) {
	err := Overloaded("too many concurrent searches", nil)

	assert.Equal(t, "OVERLOADED: too many concurrent searches", err.Error())
	assert.NotEmpty(t, err.StackTrace())
}

func TestTypeOf_UnwrapsChain(t *testing.T) {
	wrapped := fmt.Errorf("aggregate: %w", Overloaded("busy", nil))

	assert.Equal(t, ErrTypeOverloaded, TypeOf(wrapped))
	assert.True(t, Is(wrapped, ErrTypeOverloaded))
	assert.False(t, Is(wrapped, ErrTypeInvalidInput))
}

func TestTypeOf_PlainErrorIsInternal(t *testing.T) {
	assert.Equal(t, ErrTypeInternal, TypeOf(stderrors.New("plain")))
	assert.False(t, Is(nil, ErrTypeInternal))
}

func TestStackIsReusedFromGoErrors(t *testing.T) {
	var de *DomainError
	err := fmt.Errorf("outer: %w", FallbackExhausted("no strategy left", stderrors.New("x")))
	require.True(t, stderrors.As(err, &de))
	assert.Equal(t, ErrTypeFallbackExhausted, de.Type)
}
