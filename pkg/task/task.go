package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Failure reasons attached to terminal tasks.
const (
	ReasonTimeout   = "timeout"
	ReasonToolError = "tool_error"
	ReasonCancelled = "cancelled"
)

// Task is a single unit of requested work. The executor that runs it
// owns all state transitions; observers only see snapshots via Result.
// Once terminal a task never changes again.
type Task struct {
	ID        string
	ParentID  string
	Intent    string
	SkillName string

	mu         sync.Mutex
	status     Status
	output     string
	reason     string
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
}

func New(parentID, intent, skillName string) *Task {
	return &Task{
		ID:        uuid.NewString(),
		ParentID:  parentID,
		Intent:    intent,
		SkillName: skillName,
		status:    StatusPending,
		createdAt: time.Now(),
	}
}

func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Result is an immutable snapshot of a task, safe to hand to observers.
type Result struct {
	TaskID     string
	ParentID   string
	SkillName  string
	Intent     string
	Status     Status
	Output     string
	Reason     string
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r Result) Terminal() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed || r.Status == StatusCancelled
}

func (t *Task) Result() Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Result{
		TaskID:     t.ID,
		ParentID:   t.ParentID,
		SkillName:  t.SkillName,
		Intent:     t.Intent,
		Status:     t.status,
		Output:     t.output,
		Reason:     t.reason,
		StartedAt:  t.startedAt,
		FinishedAt: t.finishedAt,
	}
}

// start transitions pending->running. It fails on any other state, which
// is what makes Execute at-most-once.
func (t *Task) start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusPending {
		return fmt.Errorf("task %s: cannot start from %s", t.ID, t.status)
	}
	t.status = StatusRunning
	t.startedAt = time.Now()
	return nil
}

func (t *Task) succeed(output string) error {
	return t.finish(StatusSucceeded, output, "")
}

func (t *Task) fail(output, reason string) error {
	return t.finish(StatusFailed, output, reason)
}

// Cancel moves the task to cancelled. A pending task may be cancelled
// before it ever runs (it was still queued); a running task's partial
// output is discarded, never reported.
func (t *Task) Cancel(reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusPending && t.status != StatusRunning {
		return fmt.Errorf("task %s: cannot cancel from %s", t.ID, t.status)
	}
	if reason == "" {
		reason = ReasonCancelled
	}
	t.status = StatusCancelled
	t.output = ""
	t.reason = reason
	t.finishedAt = time.Now()
	return nil
}

// Fail drives a pending task straight to failed, for errors raised
// before any tool invocation exists (routing, template rendering).
func (t *Task) Fail(output, reason string) error {
	if err := t.start(); err != nil {
		return err
	}
	return t.finish(StatusFailed, output, reason)
}

func (t *Task) finish(status Status, output, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusRunning {
		return fmt.Errorf("task %s: cannot finish (%s) from %s", t.ID, status, t.status)
	}
	t.status = status
	t.output = output
	t.reason = reason
	t.finishedAt = time.Now()
	return nil
}
