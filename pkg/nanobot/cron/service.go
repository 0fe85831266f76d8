// Package cron – service.go
// Durable scheduler: a one-second tick loop over the job store. Cron
// expressions use the standard 5-field syntax via robfig/cron.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	robfig "github.com/robfig/cron/v3"
)

// Handler runs a due job and returns the agent's reply (delivered to the
// payload target when requested).
type Handler func(ctx context.Context, job *Job) (string, error)

// Service owns the job list and the tick loop.
type Service struct {
	store   *Store
	handler Handler
	logger  *slog.Logger

	mu       sync.Mutex
	jobs     map[string]*Job
	inflight map[string]bool

	tick     time.Duration
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewService loads jobs from store. The handler is invoked for each due
// job from the tick loop.
func NewService(store *Store, handler Handler) (*Service, error) {
	jobs, err := store.Load()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*Job, len(jobs))
	for _, job := range jobs {
		byID[job.ID] = job
	}
	return &Service{
		store:    store,
		handler:  handler,
		logger:   slog.Default().With("component", "cron"),
		jobs:     byID,
		inflight: make(map[string]bool),
		tick:     time.Second,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

// SetHandler replaces the job handler. Must be called before Start.
func (s *Service) SetHandler(h Handler) { s.handler = h }

// Start runs the tick loop until Stop or context cancellation.
func (s *Service) Start(ctx context.Context) {
	// Recompute schedules on startup so jobs missed while the process
	// was down fire promptly rather than at stale times.
	s.mu.Lock()
	now := time.Now()
	for _, job := range s.jobs {
		if job.State == StateActive && job.NextRunMS == 0 {
			job.NextRunMS = nextRun(job.Schedule, now)
		}
	}
	s.persistLocked()
	s.mu.Unlock()

	go func() {
		defer close(s.doneChan)
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.runDue(ctx, time.Now())
			case <-s.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the tick loop, waits for it to exit, and drains any jobs
// still in flight.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	<-s.doneChan
	s.wg.Wait()
}

// runDue fires every active job whose next run time has passed. Each job
// runs in its own goroutine; a job still in flight from a previous tick
// is skipped, so at most one execution per job id runs at a time.
func (s *Service) runDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []*Job
	nowMS := now.UnixMilli()
	for _, job := range s.jobs {
		if job.State == StateActive && job.NextRunMS > 0 && job.NextRunMS <= nowMS && !s.inflight[job.ID] {
			s.inflight[job.ID] = true
			due = append(due, job)
		}
	}
	s.mu.Unlock()

	for _, job := range due {
		job := job
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.release(job.ID)
			s.fire(ctx, job, now)
		}()
	}
}

func (s *Service) release(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

func (s *Service) fire(ctx context.Context, job *Job, now time.Time) {
	s.logger.Info("running job", "id", job.ID, "name", job.Name)

	var runErr error
	if s.handler != nil {
		result, err := s.handler(ctx, job)
		if err != nil {
			runErr = err
			s.logger.Error("job failed", "id", job.ID, "name", job.Name, "error", err)
		} else {
			s.logger.Debug("job finished", "id", job.ID, "result_len", len(result))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	job.LastRunMS = now.UnixMilli()
	job.RunCount++
	if runErr != nil {
		job.LastError = trimError(runErr)
	} else {
		job.LastError = ""
	}
	job.UpdatedAtMS = time.Now().UnixMilli()
	if job.Schedule.Kind == KindAt {
		// One-shot: keep the record for history, never fire again.
		job.State = StateDisabled
		job.NextRunMS = 0
	} else {
		job.NextRunMS = nextRun(job.Schedule, time.Now())
	}
	s.persistLocked()
}

// trimError condenses a handler error for the job record.
func trimError(err error) string {
	msg := strings.TrimSpace(err.Error())
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// nextRun computes the next fire time in unix millis, 0 for never.
func nextRun(sched Schedule, from time.Time) int64 {
	switch sched.Kind {
	case KindEvery:
		if sched.EveryMS <= 0 {
			return 0
		}
		return from.UnixMilli() + sched.EveryMS
	case KindCron:
		spec, err := robfig.ParseStandard(sched.CronExpr)
		if err != nil {
			return 0
		}
		return spec.Next(from).UnixMilli()
	case KindAt:
		if sched.AtMS <= from.UnixMilli() {
			return 0
		}
		return sched.AtMS
	}
	return 0
}

// ValidateSchedule rejects malformed schedules before they reach the store.
func ValidateSchedule(sched Schedule) error {
	switch sched.Kind {
	case KindEvery:
		if sched.EveryMS <= 0 {
			return fmt.Errorf("every interval must be positive")
		}
	case KindCron:
		if _, err := robfig.ParseStandard(sched.CronExpr); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", sched.CronExpr, err)
		}
	case KindAt:
		if sched.AtMS <= 0 {
			return fmt.Errorf("at time must be set")
		}
	default:
		return fmt.Errorf("unknown schedule kind %q", sched.Kind)
	}
	return nil
}

// Add creates and persists a new active job.
func (s *Service) Add(name string, sched Schedule, payload Payload) (*Job, error) {
	if err := ValidateSchedule(sched); err != nil {
		return nil, err
	}
	now := time.Now()
	job := &Job{
		ID:          uuid.NewString()[:8],
		Name:        name,
		Schedule:    sched,
		Payload:     payload,
		State:       StateActive,
		NextRunMS:   nextRun(sched, now),
		CreatedAtMS: now.UnixMilli(),
		UpdatedAtMS: now.UnixMilli(),
	}
	if job.Schedule.Kind == KindAt && job.NextRunMS == 0 {
		return nil, fmt.Errorf("at time is in the past")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	if err := s.persistLocked(); err != nil {
		delete(s.jobs, job.ID)
		return nil, err
	}
	return job, nil
}

// List returns jobs sorted by creation time. Disabled one-shots are
// hidden unless includeDisabled is set.
func (s *Service) List(includeDisabled bool) []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Job
	for _, job := range s.jobs {
		if !includeDisabled && job.State == StateDisabled {
			continue
		}
		copied := *job
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAtMS < out[j].CreatedAtMS })
	return out
}

// Get returns a copy of one job.
func (s *Service) Get(id string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	copied := *job
	return &copied, true
}

// Remove deletes a job.
func (s *Service) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return fmt.Errorf("no job %q", id)
	}
	delete(s.jobs, id)
	return s.persistLocked()
}

// Enable resumes a paused or disabled job.
func (s *Service) Enable(id string) error {
	return s.setState(id, StateActive)
}

// Disable pauses a job without deleting it.
func (s *Service) Disable(id string) error {
	return s.setState(id, StatePaused)
}

func (s *Service) setState(id, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("no job %q", id)
	}
	job.State = state
	job.UpdatedAtMS = time.Now().UnixMilli()
	if state == StateActive {
		job.NextRunMS = nextRun(job.Schedule, time.Now())
	} else {
		job.NextRunMS = 0
	}
	return s.persistLocked()
}

// RunNow fires a job immediately. Paused and disabled jobs need force.
// A job already in flight is refused rather than overlapped.
func (s *Service) RunNow(ctx context.Context, id string, force bool) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("no job %q", id)
	}
	if job.State != StateActive && !force {
		s.mu.Unlock()
		return fmt.Errorf("job %q is %s; use force to run anyway", id, job.State)
	}
	if s.inflight[id] {
		s.mu.Unlock()
		return fmt.Errorf("job %q is already running", id)
	}
	s.inflight[id] = true
	s.mu.Unlock()

	defer s.release(id)
	s.fire(ctx, job, time.Now())
	return nil
}

// persistLocked saves the job list. Caller holds s.mu.
func (s *Service) persistLocked() error {
	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAtMS < jobs[j].CreatedAtMS })
	if err := s.store.Save(jobs); err != nil {
		s.logger.Error("persist jobs failed", "error", err)
		return err
	}
	return nil
}
