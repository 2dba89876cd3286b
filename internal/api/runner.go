package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pauljones0/deal-aggregator/internal/clock"
	"github.com/pauljones0/deal-aggregator/internal/processor"
)

const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"

	maxRecordedRuns = 50
)

// RunStatus is the outcome of one background pipeline run.
type RunStatus struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Created    int        `json:"created"`
	Updated    int        `json:"updated"`
	Skipped    int        `json:"skipped"`
	Error      string     `json:"error,omitempty"`
}

// Runner starts pipeline runs in the background and remembers the most recent ones.
type Runner struct {
	processor processor.Processor
	timeout   time.Duration
	clock     clock.Clock

	mu    sync.Mutex
	runs  map[string]*RunStatus
	order []string
	wg    sync.WaitGroup
}

func NewRunner(p processor.Processor, timeout time.Duration, clk clock.Clock) *Runner {
	return &Runner{
		processor: p,
		timeout:   timeout,
		clock:     clk,
		runs:      make(map[string]*RunStatus),
	}
}

// Start launches a run detached from any request context and returns its ID.
func (r *Runner) Start() string {
	id := uuid.NewString()
	r.record(&RunStatus{ID: id, Status: RunStatusRunning, StartedAt: r.clock.Now()})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		var (
			res processor.Result
			err error
		)
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Panic in pipeline run", "run_id", id, "panic", rec)
				err = fmt.Errorf("panic: %v", rec)
			}
			r.finish(id, res, err)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		slog.Info("Pipeline run started", "run_id", id)
		res, err = r.processor.Run(ctx)
	}()
	return id
}

func (r *Runner) record(s *RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[s.ID] = s
	r.order = append(r.order, s.ID)
	for len(r.order) > maxRecordedRuns {
		delete(r.runs, r.order[0])
		r.order = r.order[1:]
	}
}

func (r *Runner) finish(id string, res processor.Result, err error) {
	now := r.clock.Now()
	if err != nil {
		slog.Error("Error processing deals", "run_id", id, "error", err,
			"created", res.Created, "updated", res.Updated, "skipped", res.Skipped)
	} else {
		slog.Info("Pipeline run finished", "run_id", id,
			"created", res.Created, "updated", res.Updated, "skipped", res.Skipped)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.runs[id]
	if !ok {
		return
	}
	s.FinishedAt = &now
	s.Created, s.Updated, s.Skipped = res.Created, res.Updated, res.Skipped
	s.Status = RunStatusSucceeded
	if err != nil {
		s.Status = RunStatusFailed
		s.Error = err.Error()
	}
}

// Get returns a copy of a recorded run.
func (r *Runner) Get(id string) (RunStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.runs[id]
	if !ok {
		return RunStatus{}, false
	}
	out := *s
	if s.FinishedAt != nil {
		finished := *s.FinishedAt
		out.FinishedAt = &finished
	}
	return out, true
}

// Wait blocks until every started run has finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
