// Package logdecoder parses script(1)-style timing files against their
// co-located log text to produce timestamped log segments.
package logdecoder

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/open-runtimes/executor/types"
)

// LogOffset returns the byte length of the first line of logs plus one (the
// line terminator), skipping the "Script started on …" banner script(1)
// writes at the top of the log file.
func LogOffset(logs []byte) int {
	idx := bytes.IndexByte(logs, '\n')
	if idx == -1 {
		return len(logs)
	}
	return idx + 1
}

// TimingEntry is one parsed (timestamp, length) pair from a timing file.
type TimingEntry struct {
	Timestamp string
	Length    int
}

// ParseTiming parses each non-empty line of timings as "{seconds} {length}".
// seconds is a floating-point wall-clock delta from startTime (now if zero).
// length is signed: the reader uses |length| as the slice size and the sign
// to decide whether the cursor advances forward. The rendered timestamp is
// startTime + seconds, in ISO-8601 with a "+00:00" offset (never "Z").
func ParseTiming(timings []byte, startTime time.Time) ([]TimingEntry, error) {
	if startTime.IsZero() {
		startTime = time.Now().UTC()
	}

	var entries []TimingEntry
	lines := strings.Split(string(timings), "\n")
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed timing line: %q", line)
		}
		seconds, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed timing seconds: %q", parts[0])
		}
		length, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("malformed timing length: %q", parts[1])
		}

		ts := startTime.Add(time.Duration(seconds * float64(time.Second)))
		entries = append(entries, TimingEntry{
			Timestamp: formatISO8601(ts),
			Length:    length,
		})
	}
	return entries, nil
}

// formatISO8601 renders ts with an explicit "+00:00" UTC offset rather than
// the "Z" suffix time.RFC3339 would use.
func formatISO8601(ts time.Time) string {
	s := ts.UTC().Format("2006-01-02T15:04:05.000000")
	return s + "+00:00"
}

// Decode reconstructs timestamped log segments from a completed build's log
// and timing files.
func Decode(logs, timings []byte, startTime time.Time) ([]types.LogLine, error) {
	entries, err := ParseTiming(timings, startTime)
	if err != nil {
		return nil, err
	}

	intro := LogOffset(logs)
	cursor := 0
	lines := make([]types.LogLine, 0, len(entries))
	for _, e := range entries {
		n := e.Length
		if n < 0 {
			n = -n
		}
		start := intro + cursor
		end := start + n
		if start < 0 {
			start = 0
		}
		if end > len(logs) {
			end = len(logs)
		}
		if start > end {
			start = end
		}
		content := string(logs[start:end])
		lines = append(lines, types.LogLine{Timestamp: e.Timestamp, Content: content})
		cursor += e.Length
	}
	return lines, nil
}
