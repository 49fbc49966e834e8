package cleanup

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Runner is one sweep execution; Sweeper implements it.
type Runner interface {
	Run(ctx context.Context) (Report, error)
}

// RunCounter counts sweep executions; telemetry.Metrics implements it.
type RunCounter interface {
	CleanupRun(ctx context.Context, failed bool)
}

// Status is a snapshot of the job's health for operational tooling.
type Status struct {
	LastRun             time.Time
	LastReport          Report
	LastError           error
	ConsecutiveFailures int
}

// Job runs the sweeper on fixed clock boundaries: with a 6h interval it fires at
// 00:00, 06:00, 12:00, 18:00 regardless of process start time. Sweep failures
// are counted, never fatal.
type Job struct {
	runner  Runner
	every   time.Duration
	metrics RunCounter
	nowF    func() time.Time

	mu     sync.Mutex
	status Status
}

// NewJob returns a Job. every must be positive; metrics may be nil.
func NewJob(runner Runner, every time.Duration, metrics RunCounter) *Job {
	return &Job{
		runner:  runner,
		every:   every,
		metrics: metrics,
		nowF:    func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock; for tests.
func (j *Job) SetNowFunc(f func() time.Time) { j.nowF = f }

// NextBoundary returns the first multiple of the interval after now.
func (j *Job) NextBoundary(now time.Time) time.Time {
	return now.Truncate(j.every).Add(j.every)
}

// Start blocks, sweeping at every clock boundary until ctx is cancelled.
func (j *Job) Start(ctx context.Context) {
	for {
		now := j.nowF()
		timer := time.NewTimer(j.NextBoundary(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			j.runOnce(ctx)
		}
	}
}

// TriggerNow runs one sweep immediately, outside the schedule. It shares the
// failure counter with scheduled runs.
func (j *Job) TriggerNow(ctx context.Context) (Report, error) {
	return j.runOnce(ctx)
}

// Status returns a copy of the job's health snapshot.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) runOnce(ctx context.Context) (rep Report, err error) {
	// A panicking sweep must not take the worker down.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panic: %v", r)
			log.Printf("cleanup: %v", err)
			j.record(ctx, rep, err)
		}
	}()

	rep, err = j.runner.Run(ctx)
	if err != nil {
		log.Printf("cleanup: sweep finished with errors: %v", err)
	}
	j.record(ctx, rep, err)
	return rep, err
}

func (j *Job) record(ctx context.Context, rep Report, err error) {
	j.mu.Lock()
	j.status.LastRun = j.nowF()
	j.status.LastReport = rep
	j.status.LastError = err
	if err != nil {
		j.status.ConsecutiveFailures++
	} else {
		j.status.ConsecutiveFailures = 0
	}
	j.mu.Unlock()
	if j.metrics != nil {
		j.metrics.CleanupRun(ctx, err != nil)
	}
}
