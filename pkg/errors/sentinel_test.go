package errors

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsDefinitionAndCause(t *testing.T) {
	err := Wrap(IdentityUnavailable, context.DeadlineExceeded)

	assert.ErrorIs(t, err, IdentityUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "deadline exceeded")

	var def Definition
	assert.True(t, stderrors.As(err, &def))
	assert.Equal(t, IdentityUnavailable.Code, def.Code)
}

func TestWrapNilCause(t *testing.T) {
	assert.Equal(t, error(UploadFailed), Wrap(UploadFailed, nil))
}
