package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/open-runtimes/executor/utils/logger"
)

// RetryWithBackoff retries a function with exponential backoff.
func RetryWithBackoff(fn func() error, maxRetries int, initialDelay time.Duration) error {
	delay := initialDelay
	var errMsg error

	for retry := 0; retry < maxRetries; retry++ {
		if err := fn(); err != nil {
			errMsg = err
			if retry < maxRetries-1 {
				logger.Warnf("retry attempt %d/%d failed: %s. retrying in %v...", retry+1, maxRetries, err, delay)
				time.Sleep(delay)
				delay *= 2
				continue
			}
		} else {
			return nil
		}
	}
	return fmt.Errorf("failed after %d retries: %s", maxRetries, errMsg)
}

// RandomHex returns n random bytes rendered as a lowercase hex string (2n
// characters), used to generate the per-runtime secret and hostname.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %s", err)
	}
	return hex.EncodeToString(buf), nil
}

// NowMillis returns the current wall-clock time in epoch milliseconds, the
// unit the runtime's `created`/`updated`/`last-execution-time` annotations
// are stored in.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
