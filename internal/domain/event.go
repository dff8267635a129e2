package domain

import "time"

// LoadEvent summarizes one completed migration phase. It is published to
// downstream consumers that refresh caches after a reload.
type LoadEvent struct {
	RunID      string    `json:"run_id"`
	Phase      string    `json:"phase"`
	Read       int       `json:"rows_read"`
	Loaded     int       `json:"rows_loaded"`
	Skipped    int       `json:"rows_skipped"`
	Issues     int       `json:"issues"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
