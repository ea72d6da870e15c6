package logdecoder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogOffset(t *testing.T) {
	assert.Equal(t, len("Script started\n"), LogOffset([]byte("Script started\nhello\nworld\n")))
	assert.Equal(t, len("no newline here"), LogOffset([]byte("no newline here")))
	assert.Equal(t, 0, LogOffset([]byte("")))
}

func TestParseTiming(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	entries, err := ParseTiming([]byte("0.5 5\n1.25 10\n"), start)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 5, entries[0].Length)
	assert.Equal(t, 10, entries[1].Length)
	assert.Equal(t, "2024-01-01T00:00:00.500000+00:00", entries[0].Timestamp)
	assert.Equal(t, "2024-01-01T00:00:01.250000+00:00", entries[1].Timestamp)
}

func TestParseTimingSkipsBlankLines(t *testing.T) {
	entries, err := ParseTiming([]byte("0.1 3\n\n0.2 4\n"), time.Now())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestParseTimingMalformed(t *testing.T) {
	_, err := ParseTiming([]byte("not-a-number 3\n"), time.Now())
	assert.Error(t, err)

	_, err = ParseTiming([]byte("0.1 notanumber\n"), time.Now())
	assert.Error(t, err)

	_, err = ParseTiming([]byte("onefield\n"), time.Now())
	assert.Error(t, err)
}

func TestDecodeRoundTrip(t *testing.T) {
	logs := []byte("Script started on 2024-01-01\nhello\nworld\n")
	timings := []byte("0 6\n0 6\n")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	lines, err := Decode(logs, timings, start)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "hello\n", lines[0].Content)
	assert.Equal(t, "world\n", lines[1].Content)
}

func TestDecodeClampsOutOfBoundsLength(t *testing.T) {
	logs := []byte("intro\nshort")
	timings := []byte("0 999\n")

	lines, err := Decode(logs, timings, time.Now())
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "short", lines[0].Content)
}
