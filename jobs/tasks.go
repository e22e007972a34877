package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRatesRefresh re-fetches live exchange rates into the cache.
	TaskRatesRefresh = "rates:refresh"
	// TaskQuotesSync copies changed drafts into the quote library.
	TaskQuotesSync = "quotes:sync"
)

// QuotesSyncUniqueWindow collapses overlapping sync requests into one task.
const QuotesSyncUniqueWindow = 30 * time.Second

// RatesRefreshPayload describes a refresh request.
type RatesRefreshPayload struct {
	// Reason is logged with the run ("cron", "cli", ...).
	Reason string `json:"reason,omitempty"`
}

// QuotesSyncPayload describes a sync request.
type QuotesSyncPayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewRatesRefreshTask constructs an Asynq task.
func NewRatesRefreshTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(RatesRefreshPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRatesRefresh, data), nil
}

// NewQuotesSyncTask constructs an Asynq task.
func NewQuotesSyncTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(QuotesSyncPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuotesSync, data), nil
}

// decodePayload tolerates an empty payload.
func decodePayload(raw []byte, target any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, target)
}
