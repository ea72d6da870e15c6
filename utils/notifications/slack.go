package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

type SlackMessage struct {
	Text string `json:"text"`
}

// SendBuildFailureNotification posts a best-effort Slack alert when a
// runtime's build Job fails. Silently no-ops if SLACK_WEBHOOK_URL isn't set,
// since alerting is optional and must never block a build response.
func SendBuildFailureNotification(runtimeID string, failedAt time.Time, output string) error {
	webhookURL := os.Getenv("SLACK_WEBHOOK_URL")
	if webhookURL == "" {
		return fmt.Errorf("SLACK_WEBHOOK_URL not set")
	}
	message := fmt.Sprintf(
		"🚨 *Runtime Build Failure*\n"+
			"-----------------------------------\n"+
			"• *Runtime:* `%s`\n"+
			"• *Output:* ```%s```\n"+
			"• *Timestamp:* %s\n"+
			"-----------------------------------",
		runtimeID,
		trimErrorLogs(output),
		failedAt.Format("2006-01-02 15:04:05 MST"),
	)

	payload, _ := json.Marshal(SlackMessage{Text: message})
	resp, err := http.Post(webhookURL, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to send Slack notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("Slack webhook returned non-2xx status: %s", resp.Status)
	}
	return nil
}

func trimErrorLogs(logs string) string {
	lines := strings.Split(logs, "\n")
	var filtered []string
	for _, line := range lines {
		if strings.Contains(line, "FATAL") || strings.Contains(line, "ERROR") {
			filtered = append(filtered, line)
		}
	}
	if len(filtered) == 0 {
		return "No critical error lines found. See full logs for details."
	}
	return strings.Join(filtered, "\n")
}
