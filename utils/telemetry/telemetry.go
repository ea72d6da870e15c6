// Package telemetry posts optional runtime lifecycle events to an external
// callback URL, fire-and-forget, for operators who want usage analytics
// without the executor owning a storage layer for them.
package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/open-runtimes/executor/constants"
	"github.com/open-runtimes/executor/utils/logger"
	"github.com/spf13/viper"
)

type Event string

const (
	EventCreated Event = "created"
	EventInvoked Event = "invoked"
	EventReaped  Event = "reaped"
)

// SendEvent posts {runtime_id, event} to {OPR_EXECUTOR_CALLBACK_URL}/runtime-telemetry.
// No-ops when the callback URL isn't configured.
func SendEvent(runtimeID string, event Event) {
	callbackURL := viper.GetString(constants.EnvCallbackURL)
	if callbackURL == "" {
		return
	}

	go func() {
		switch event {
		case EventCreated, EventInvoked, EventReaped:
		default:
			logger.Warnf("invalid telemetry event: %s", event)
			return
		}

		url := fmt.Sprintf("%s/runtime-telemetry", callbackURL)
		payload := map[string]interface{}{
			"runtime_id": runtimeID,
			"event":      event,
		}

		jsonData, err := json.Marshal(payload)
		if err != nil {
			logger.Warnf("failed to marshal telemetry payload: %s", err)
			return
		}

		resp, err := http.Post(url, "application/json", bytes.NewBuffer(jsonData))
		if err != nil {
			logger.Warnf("failed to send runtime telemetry: %s", err)
			return
		}
		defer func() {
			if cerr := resp.Body.Close(); cerr != nil {
				logger.Warnf("failed to close telemetry response body: %s", cerr)
			}
		}()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			logger.Debugf("runtime telemetry post failed: %d %s", resp.StatusCode, string(body))
		}
	}()
}
