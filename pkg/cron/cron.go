package cron

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"skillhost/pkg/logger"
)

// Schedule kinds.
const (
	KindAt    = "at"
	KindEvery = "every"
	KindCron  = "cron"
)

// Status values for one-shot ("at") deliveries. A recurring job has no
// terminal state while the process runs.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusFired     JobStatus = "fired"
	StatusExpired   JobStatus = "expired"
	StatusCancelled JobStatus = "cancelled"
)

func (s JobStatus) Terminal() bool {
	return s == StatusFired || s == StatusExpired || s == StatusCancelled
}

type CronSchedule struct {
	Kind    string `json:"kind"`
	AtMS    *int64 `json:"at_ms,omitempty"`
	EveryMS *int64 `json:"every_ms,omitempty"`
	Expr    string `json:"expr,omitempty"`
}

type CronPayload struct {
	Message string `json:"message"`
	Deliver bool   `json:"deliver,omitempty"`
	Channel string `json:"channel,omitempty"`
	To      string `json:"to,omitempty"`
}

type CronJobState struct {
	NextRunAtMS *int64    `json:"next_run_at_ms,omitempty"`
	LastRunAtMS *int64    `json:"last_run_at_ms,omitempty"`
	FiredAtMS   *int64    `json:"fired_at_ms,omitempty"`
	Status      JobStatus `json:"status,omitempty"`
	Attempts    int       `json:"attempts,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

type CronJob struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Enabled     bool         `json:"enabled"`
	Schedule    CronSchedule `json:"schedule"`
	Payload     CronPayload  `json:"payload"`
	State       CronJobState `json:"state"`
	CreatedAtMS int64        `json:"created_at_ms"`
	UpdatedAtMS int64        `json:"updated_at_ms"`
}

func (j *CronJob) OneShot() bool {
	return j.Schedule.Kind == KindAt
}

type cronStore struct {
	Version int        `json:"version"`
	Jobs    []*CronJob `json:"jobs"`
}

// OnJob handles a due job: deliver the payload (or feed it through the
// agent pipeline) and report the outcome. A returned error counts
// against a one-shot job's retry budget.
type OnJob func(job *CronJob) (string, error)

const defaultRetryBudget = 3

// CronService persists scheduled jobs in a JSON store and fires them
// from a ticker. One-shot jobs fire at most once: the terminal status
// transition is the guard, not timestamp comparison, so clock jumps
// cannot re-fire a delivered job.
type CronService struct {
	storePath    string
	tickInterval time.Duration
	retryBudget  int
	now          func() time.Time

	mu    sync.Mutex
	onJob OnJob
	jobs  map[string]*CronJob

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewCronService(storePath string, onJob OnJob) *CronService {
	s := &CronService{
		storePath:    storePath,
		tickInterval: time.Second,
		retryBudget:  defaultRetryBudget,
		now:          time.Now,
		onJob:        onJob,
		jobs:         make(map[string]*CronJob),
	}
	if err := s.load(); err != nil {
		logger.WarnCF("cron", "Failed to load cron store", map[string]interface{}{
			"path":  storePath,
			"error": err.Error(),
		})
	}
	return s
}

func (s *CronService) SetOnJob(fn OnJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onJob = fn
}

// Start launches the ticker loop. Stop() shuts it down.
func (s *CronService) Start() {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				s.Tick(s.now())
			}
		}
	}()
	logger.InfoCF("cron", "Cron service started", map[string]interface{}{
		"jobs": len(s.jobs),
	})
}

func (s *CronService) Stop() {
	s.mu.Lock()
	stopCh, doneCh := s.stopCh, s.doneCh
	s.stopCh, s.doneCh = nil, nil
	s.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

// AddJob validates and persists a new job. A one-shot armed for a past
// timestamp is accepted and fires on the next tick.
func (s *CronService) AddJob(name string, schedule CronSchedule, message string, deliver bool, channel, to string) (*CronJob, error) {
	if name == "" {
		return nil, fmt.Errorf("job name is required")
	}
	if message == "" {
		return nil, fmt.Errorf("job message is required")
	}

	nowMS := s.now().UnixMilli()
	job := &CronJob{
		ID:       uuid.NewString(),
		Name:     name,
		Enabled:  true,
		Schedule: schedule,
		Payload: CronPayload{
			Message: message,
			Deliver: deliver,
			Channel: channel,
			To:      to,
		},
		CreatedAtMS: nowMS,
		UpdatedAtMS: nowMS,
	}

	switch schedule.Kind {
	case KindAt:
		if schedule.AtMS == nil {
			return nil, fmt.Errorf("at schedule requires a timestamp")
		}
		job.State.Status = StatusPending
		job.State.NextRunAtMS = schedule.AtMS
	case KindEvery:
		if schedule.EveryMS == nil || *schedule.EveryMS <= 0 {
			return nil, fmt.Errorf("every schedule requires a positive interval")
		}
		next := nowMS + *schedule.EveryMS
		job.State.NextRunAtMS = &next
	case KindCron:
		if !gronx.New().IsValid(schedule.Expr) {
			return nil, fmt.Errorf("invalid cron expression %q", schedule.Expr)
		}
		next, err := gronx.NextTickAfter(schedule.Expr, s.now(), false)
		if err != nil {
			return nil, fmt.Errorf("compute next run for %q: %w", schedule.Expr, err)
		}
		nextMS := next.UnixMilli()
		job.State.NextRunAtMS = &nextMS
	default:
		return nil, fmt.Errorf("unknown schedule kind %q", schedule.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	if err := s.saveLocked(); err != nil {
		delete(s.jobs, job.ID)
		return nil, err
	}
	return job, nil
}

// RemoveJob cancels a job. A pending one-shot moves to cancelled and is
// retained for audit; a recurring job is dropped from the store.
func (s *CronService) RemoveJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	if job.OneShot() {
		if job.State.Status == StatusPending {
			job.State.Status = StatusCancelled
			job.State.NextRunAtMS = nil
			job.Enabled = false
			job.UpdatedAtMS = s.now().UnixMilli()
		}
	} else {
		delete(s.jobs, id)
	}
	s.saveLocked()
	return true
}

// EnableJob toggles a recurring job. One-shots in a terminal state stay
// terminal; enabling them is a no-op.
func (s *CronService) EnableJob(id string, enabled bool) *CronJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	if job.OneShot() && job.State.Status.Terminal() {
		return job
	}
	job.Enabled = enabled
	job.UpdatedAtMS = s.now().UnixMilli()
	s.saveLocked()
	return job
}

// ListJobs returns jobs sorted by creation time. Disabled and terminal
// jobs are included only when includeAll is set.
func (s *CronService) ListJobs(includeAll bool) []*CronJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]*CronJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if !includeAll {
			if !job.Enabled {
				continue
			}
			if job.OneShot() && job.State.Status.Terminal() {
				continue
			}
		}
		jobCopy := *job
		jobs = append(jobs, &jobCopy)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAtMS != jobs[j].CreatedAtMS {
			return jobs[i].CreatedAtMS < jobs[j].CreatedAtMS
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs
}

func (s *CronService) GetJob(id string) *CronJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	jobCopy := *job
	return &jobCopy
}

// Tick fires every due job. Exposed so tests and catch-up logic can
// drive the clock explicitly.
func (s *CronService) Tick(now time.Time) {
	nowMS := now.UnixMilli()

	s.mu.Lock()
	onJob := s.onJob
	due := make([]*CronJob, 0)
	for _, job := range s.jobs {
		if !job.Enabled {
			continue
		}
		if job.OneShot() && job.State.Status != StatusPending {
			continue
		}
		if job.State.NextRunAtMS != nil && *job.State.NextRunAtMS <= nowMS {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAtMS < due[j].CreatedAtMS })
	s.mu.Unlock()

	if onJob == nil || len(due) == 0 {
		return
	}

	for _, job := range due {
		s.fire(job, onJob, nowMS)
	}

	s.mu.Lock()
	s.saveLocked()
	s.mu.Unlock()
}

func (s *CronService) fire(job *CronJob, onJob OnJob, nowMS int64) {
	// The snapshot and the pending re-check happen under the lock so a
	// RemoveJob racing with the tick cannot slip a cancelled one-shot
	// into delivery.
	s.mu.Lock()
	if job.OneShot() && job.State.Status != StatusPending {
		s.mu.Unlock()
		return
	}
	jobCopy := *job
	s.mu.Unlock()

	output, err := onJob(&jobCopy)

	s.mu.Lock()
	defer s.mu.Unlock()

	// A one-shot cancelled while delivery was in flight stays
	// cancelled; terminal states never transition again.
	if job.OneShot() && job.State.Status != StatusPending {
		return
	}

	job.State.LastRunAtMS = &nowMS
	job.UpdatedAtMS = nowMS

	if job.OneShot() {
		if err == nil {
			job.State.Status = StatusFired
			job.State.FiredAtMS = &nowMS
			job.State.NextRunAtMS = nil
			job.State.LastError = ""
			logger.InfoCF("cron", "One-shot delivery fired", map[string]interface{}{
				"job_id": job.ID,
				"name":   job.Name,
			})
			return
		}
		job.State.Attempts++
		job.State.LastError = err.Error()
		if job.State.Attempts >= s.retryBudget {
			job.State.Status = StatusExpired
			job.State.NextRunAtMS = nil
			logger.ErrorCF("cron", "One-shot delivery expired", map[string]interface{}{
				"job_id":   job.ID,
				"name":     job.Name,
				"attempts": job.State.Attempts,
				"error":    err.Error(),
			})
			return
		}
		logger.WarnCF("cron", "One-shot delivery failed, will retry", map[string]interface{}{
			"job_id":   job.ID,
			"attempts": job.State.Attempts,
			"error":    err.Error(),
		})
		return
	}

	if err != nil {
		job.State.LastError = err.Error()
		logger.WarnCF("cron", "Job run failed", map[string]interface{}{
			"job_id": job.ID,
			"name":   job.Name,
			"error":  err.Error(),
		})
	} else {
		job.State.LastError = ""
		logger.InfoCF("cron", "Job ran", map[string]interface{}{
			"job_id": job.ID,
			"name":   job.Name,
			"output": len(output),
		})
	}

	switch job.Schedule.Kind {
	case KindEvery:
		next := nowMS + *job.Schedule.EveryMS
		job.State.NextRunAtMS = &next
	case KindCron:
		next, nerr := gronx.NextTickAfter(job.Schedule.Expr, time.UnixMilli(nowMS), false)
		if nerr != nil {
			job.State.LastError = nerr.Error()
			job.Enabled = false
			return
		}
		nextMS := next.UnixMilli()
		job.State.NextRunAtMS = &nextMS
	}
}

func (s *CronService) load() error {
	data, err := os.ReadFile(s.storePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var store cronStore
	if err := json.Unmarshal(data, &store); err != nil {
		return fmt.Errorf("parse cron store: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range store.Jobs {
		s.jobs[job.ID] = job
	}
	return nil
}

// saveLocked writes the store atomically: temp file then rename.
func (s *CronService) saveLocked() error {
	jobs := make([]*CronJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAtMS < jobs[j].CreatedAtMS })

	data, err := json.MarshalIndent(cronStore{Version: 1, Jobs: jobs}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.storePath), 0755); err != nil {
		return err
	}
	tmp := s.storePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.storePath)
}
