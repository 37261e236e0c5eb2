package store

import "time"

// Run statuses.
const (
	StatusRunning = "running"
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	// StatusAborted marks a run that never finished its script: the script
	// could not be loaded, the run was interrupted, or the process died.
	StatusAborted = "aborted"
)

// Run is one archived execution of a script.
type Run struct {
	ID            string     `json:"id"`
	Script        string     `json:"script"`
	LogPath       string     `json:"log_path"`
	ScreenshotDir string     `json:"screenshot_dir"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Status        string     `json:"status"`
	Instructions  int        `json:"instructions"`
	Errors        int        `json:"errors"`
	Warnings      int        `json:"warnings"`
}

// Summary is what FinishRun records about a completed run.
type Summary struct {
	FinishedAt   time.Time
	Status       string
	Instructions int
	Errors       int
	Warnings     int
	Screenshots  []string
}

// Entry is one archived run log entry.
type Entry struct {
	Seq     int64     `json:"seq"`
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}
