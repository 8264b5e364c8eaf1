package pipelineerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAndError(t *testing.T) {
	err := New(KindPolicy, "forbidden path")
	assert.Equal(t, "policy: forbidden path", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, KindTransient, "dial postgres")

	assert.Equal(t, cause, err.Unwrap())
	assert.Contains(t, err.Error(), "connection refused")
	assert.True(t, errors.Is(err, cause))
}

func TestIsAndKindOf(t *testing.T) {
	err := New(KindSandbox, "timeout")
	assert.True(t, Is(err, KindSandbox))
	assert.False(t, Is(err, KindPolicy))
	assert.Equal(t, KindSandbox, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
