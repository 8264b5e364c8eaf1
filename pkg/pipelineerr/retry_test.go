package pipelineerr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeBackoff(t *testing.T) {
	base := 2 * time.Second
	max := 60 * time.Second

	assert.Equal(t, base, ComputeBackoff(1, base, max))
	assert.Equal(t, 4*time.Second, ComputeBackoff(2, base, max))
	assert.Equal(t, 8*time.Second, ComputeBackoff(3, base, max))
	assert.Equal(t, max, ComputeBackoff(10, base, max)) // clamps
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(Wrap(context.DeadlineExceeded, KindTransient, "redis dial")))
	assert.False(t, IsRetryable(New(KindPolicy, "blocked")))
	assert.False(t, IsRetryable(nil))
}

func TestClassify(t *testing.T) {
	d := Classify(New(KindTransient, "db down"), 3, time.Second, 30*time.Second)
	assert.True(t, d.ShouldRetry)
	assert.Equal(t, 4, d.CountdownSeconds)

	d2 := Classify(New(KindPolicy, "blocked"), 1, time.Second, 30*time.Second)
	assert.False(t, d2.ShouldRetry)
}
