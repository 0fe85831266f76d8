// Package cron – types.go
// Job model and the durable JSON store.
package cron

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Schedule kinds.
const (
	KindEvery = "every" // fixed interval
	KindCron  = "cron"  // 5-field cron expression
	KindAt    = "at"    // one-shot at a point in time
)

// Job states.
const (
	StateActive   = "active"
	StatePaused   = "paused"
	StateDisabled = "disabled" // one-shot jobs land here after firing
)

// Schedule describes when a job runs. Exactly one of the kind-specific
// fields is meaningful.
type Schedule struct {
	Kind     string `json:"kind"`
	EveryMS  int64  `json:"every_ms,omitempty"`
	CronExpr string `json:"cron_expr,omitempty"`
	AtMS     int64  `json:"at_ms,omitempty"` // unix millis
}

// Payload is what the job hands to the agent when it fires.
type Payload struct {
	Message string `json:"message"`
	Channel string `json:"channel,omitempty"`
	To      string `json:"to,omitempty"`
	Deliver bool   `json:"deliver,omitempty"`
}

// Job is one scheduled task. RunCount and LastError track execution
// history; LastError is cleared by the next successful run.
type Job struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Schedule    Schedule `json:"schedule"`
	Payload     Payload  `json:"payload"`
	State       string   `json:"state"`
	NextRunMS   int64    `json:"next_run_ms,omitempty"`
	LastRunMS   int64    `json:"last_run_ms,omitempty"`
	RunCount    int64    `json:"run_count,omitempty"`
	LastError   string   `json:"last_error,omitempty"`
	CreatedAtMS int64    `json:"created_at_ms"`
	UpdatedAtMS int64    `json:"updated_at_ms"`
}

type storeFile struct {
	Version int    `json:"version"`
	Jobs    []*Job `json:"jobs"`
}

// Store persists jobs to a single JSON file with atomic rename writes.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore uses path (default ~/.nanobot/cron/jobs.json).
func NewStore(path string) *Store {
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".nanobot", "cron", "jobs.json")
	}
	return &Store{path: path}
}

// Load reads all jobs; a missing file is an empty job list.
func (s *Store) Load() ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read jobs: %w", err)
	}
	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse jobs %s: %w", s.path, err)
	}
	return file.Jobs, nil
}

// Save writes all jobs atomically.
func (s *Store) Save(jobs []*Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create cron dir: %w", err)
	}
	if jobs == nil {
		jobs = []*Job{}
	}
	data, err := json.MarshalIndent(storeFile{Version: 1, Jobs: jobs}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode jobs: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write jobs: %w", err)
	}
	return os.Rename(tmp, s.path)
}
