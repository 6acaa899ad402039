// Package notify carries the dead-letter contract: the event emitted when a
// job reaches its terminal failure status, and the NSQ plumbing around it.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// TopicJobsDead receives one Event per job that lands in dead/failed.
const TopicJobsDead = "jobs.dead"

// Event is the dead-letter message body. Downstream alerting and replay
// tooling consume it as JSON.
type Event struct {
	JobID         int64           `json:"job_id"`
	JobType       string          `json:"job_type"`
	Status        string          `json:"status"`
	Attempts      int             `json:"attempts"`
	LastError     json.RawMessage `json:"last_error,omitempty"`
	WorkerID      string          `json:"worker_id"`
	CorrelationID string          `json:"correlation_id"`
	DeadAt        time.Time       `json:"dead_at"`
}

// CreateTopics pre-creates NSQ topics over nsqd's HTTP API so the first
// publish does not race topic creation. Fire and forget; nsqd restarts are
// tolerated because topic creation is idempotent.
func CreateTopics(nsqdHTTP string, topics ...string) {
	go func() {
		time.Sleep(2 * time.Second)
		for _, topic := range topics {
			url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
			resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
			if err != nil {
				slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
				continue
			}
			if closeErr := resp.Body.Close(); closeErr != nil {
				slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
			}
		}
	}()
}
