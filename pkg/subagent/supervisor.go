package subagent

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"skillhost/pkg/logger"
	"skillhost/pkg/task"
	"skillhost/pkg/utils"
)

// Pipeline runs the routing+execution pipeline for one utterance and
// returns the terminal task result. The supervisor treats it as opaque;
// it must honor ctx cancellation.
type Pipeline func(ctx context.Context, t *task.Task) task.Result

// Handle tracks one spawned subagent. Await on it as many times as you
// like; the result is latched once the subagent reaches a terminal
// state.
type Handle struct {
	Task *task.Task

	done   chan struct{}
	final  task.Result
	cancel context.CancelFunc
}

func (h *Handle) settle(result task.Result) {
	h.final = result
	close(h.done)
}

// Supervisor spawns isolated, concurrency-bounded executions of the
// pipeline. Spawn requests beyond the bound queue in FIFO order rather
// than being rejected. Cancelling a parent cascades to all of its
// still-running children; a child's failure never touches its siblings.
type Supervisor struct {
	pipeline Pipeline
	sem      *semaphore.Weighted
	grace    time.Duration

	mu       sync.Mutex
	byParent map[string][]*Handle
	wg       sync.WaitGroup
}

func NewSupervisor(pipeline Pipeline, maxConcurrent int64, grace time.Duration) *Supervisor {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	if grace <= 0 {
		grace = 10 * time.Second
	}
	return &Supervisor{
		pipeline: pipeline,
		sem:      semaphore.NewWeighted(maxConcurrent),
		grace:    grace,
		byParent: make(map[string][]*Handle),
	}
}

// Spawn schedules a subagent for independent progress and returns
// immediately. The subagent waits for a concurrency slot before its
// pipeline runs; cancellation while queued resolves it to cancelled
// without ever running the pipeline.
func (s *Supervisor) Spawn(ctx context.Context, parentID, utterance string) *Handle {
	if ctx == nil {
		ctx = context.Background()
	}
	childCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		Task:   task.New(parentID, utterance, ""),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	s.mu.Lock()
	s.byParent[parentID] = append(s.byParent[parentID], h)
	s.mu.Unlock()

	logger.InfoCF("subagent", "Subagent spawned", map[string]interface{}{
		"task_id":   h.Task.ID,
		"parent_id": parentID,
		"utterance": utils.Truncate(utterance, 120),
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer s.forget(parentID, h)

		// Waiters are admitted in request order as capacity frees up.
		if err := s.sem.Acquire(childCtx, 1); err != nil {
			h.Task.Cancel(task.ReasonCancelled)
			h.settle(h.Task.Result())
			return
		}
		defer s.sem.Release(1)

		result := s.pipeline(childCtx, h.Task)
		if !result.Terminal() {
			h.Task.Cancel(task.ReasonCancelled)
			result = h.Task.Result()
		}
		h.settle(result)

		logger.InfoCF("subagent", "Subagent finished", map[string]interface{}{
			"task_id": h.Task.ID,
			"status":  string(result.Status),
		})
	}()

	return h
}

// Await blocks the caller, and only the caller, until the subagent is
// terminal or ctx expires.
func (s *Supervisor) Await(ctx context.Context, h *Handle) (task.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-h.done:
		return h.final, nil
	case <-ctx.Done():
		return task.Result{}, ctx.Err()
	}
}

// AwaitAll collects every handle's terminal result, preserving the
// input order regardless of completion order. A failed subagent is
// reported in place alongside its siblings, never dropped.
func (s *Supervisor) AwaitAll(ctx context.Context, handles []*Handle) ([]task.Result, error) {
	results := make([]task.Result, 0, len(handles))
	for _, h := range handles {
		result, err := s.Await(ctx, h)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// CancelParent propagates cancellation to all of a parent's live
// subagents and waits up to the grace period for them to settle.
func (s *Supervisor) CancelParent(parentID string) {
	s.mu.Lock()
	handles := make([]*Handle, len(s.byParent[parentID]))
	copy(handles, s.byParent[parentID])
	s.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}

	deadline := time.After(s.grace)
	for _, h := range handles {
		select {
		case <-h.done:
		case <-deadline:
			logger.WarnCF("subagent", "Subagent did not settle within grace period",
				map[string]interface{}{"task_id": h.Task.ID, "parent_id": parentID})
			return
		}
	}
}

// Shutdown cancels everything outstanding and waits for all subagent
// goroutines to exit.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	for _, handles := range s.byParent {
		for _, h := range handles {
			h.cancel()
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Supervisor) forget(parentID string, h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	handles := s.byParent[parentID]
	for i, other := range handles {
		if other == h {
			s.byParent[parentID] = append(handles[:i], handles[i+1:]...)
			break
		}
	}
	if len(s.byParent[parentID]) == 0 {
		delete(s.byParent, parentID)
	}
}
