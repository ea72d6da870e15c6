package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomHexLength(t *testing.T) {
	s, err := RandomHex(16)
	require.NoError(t, err)
	assert.Len(t, s, 32)
}

func TestRandomHexIsNotConstant(t *testing.T) {
	a, err := RandomHex(16)
	require.NoError(t, err)
	b, err := RandomHex(16)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNowMillisIsCurrent(t *testing.T) {
	before := time.Now().UnixMilli()
	got := NowMillis()
	after := time.Now().UnixMilli()
	assert.GreaterOrEqual(t, got, before)
	assert.LessOrEqual(t, got, after)
}

func TestRetryWithBackoffSucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}, 5, time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoffGivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(func() error {
		attempts++
		return errors.New("permanent")
	}, 2, time.Millisecond)

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}
