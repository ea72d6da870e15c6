package podio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPodReadErrorPrefersStderr(t *testing.T) {
	err := &PodReadError{Stderr: "no such file", Cause: errors.New("exit code 1")}
	assert.Equal(t, "pod read failed: no such file", err.Error())
	assert.Equal(t, errors.New("exit code 1"), err.Unwrap())
}

func TestPodReadErrorFallsBackToCauseWithoutStderr(t *testing.T) {
	err := &PodReadError{Cause: errors.New("connection reset")}
	assert.Equal(t, "pod read failed: connection reset", err.Error())
}

func TestChunkWriterCopiesBytesBeforeCallback(t *testing.T) {
	var received [][]byte
	w := &chunkWriter{onChunk: func(b []byte) { received = append(received, b) }}

	buf := []byte("hello")
	n, err := w.Write(buf)
	assert.NoError(t, err)
	assert.Equal(t, len(buf), n)
	require.Len(t, received, 1)
	assert.Equal(t, "hello", string(received[0]))

	// Mutating the original buffer must not affect the delivered copy.
	buf[0] = 'X'
	assert.Equal(t, "hello", string(received[0]))
}

func TestChunkWriterIgnoresEmptyWrites(t *testing.T) {
	called := false
	w := &chunkWriter{onChunk: func([]byte) { called = true }}

	n, err := w.Write(nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.False(t, called)
}

func TestErrAccumulatorCollectsWrites(t *testing.T) {
	acc := &errAccumulator{}
	_, _ = acc.Write([]byte("first "))
	_, _ = acc.Write([]byte("second"))
	assert.Equal(t, "first second", acc.buf.String())
}
