// Package publish defines pipeline run events and the topics they go out on.
// Publishing is optional; a disabled bus drops events silently.
package publish

import (
	"time"

	"github.com/google/uuid"
)

// Topics for pipeline notifications.
const (
	TopicRunEvents = "ingest-run-events"
)

// Stage names reported in run events.
const (
	StageCollect  = "collect"
	StageFetch    = "fetch"
	StageExtract  = "extract"
	StagePopulate = "populate"
	StageSync     = "sync"
)

// RunEvent describes the completion of one pipeline stage for one vendor.
type RunEvent struct {
	RunID     uuid.UUID `json:"run_id"`
	Stage     string    `json:"stage"`
	Vendor    string    `json:"vendor,omitempty"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}
