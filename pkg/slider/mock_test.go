package slider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"Kinship/pkg/errors"
)

func TestMockClient(t *testing.T) {
	var c Client = &MockClient{}

	_, err := c.Verify(context.Background(), "", "scene")
	assert.ErrorIs(t, err, errors.ErrCaptchaTokenRequired)

	ok, err := c.Verify(context.Background(), "param", "scene")
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Verify(context.Background(), "fail", "scene")
	assert.NoError(t, err)
	assert.False(t, ok)
}
