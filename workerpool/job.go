package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pitabwire/util"
	"github.com/rs/xid"
)

const (
	jobRetryBackoffBaseDelay    = 100 * time.Millisecond
	jobRetryBackoffMaxDelay     = 30 * time.Second
	jobRetryBackoffMaxRunNumber = 10
)

var (
	ErrNilJob      = errors.New("job function is nil")
	ErrJobPanicked = errors.New("job panicked")
)

// Job is a unit of background work retried with exponential backoff until it
// succeeds or exhausts its retries. Done is closed exactly once either way.
type Job struct {
	id      string
	retries int
	runs    atomic.Int64
	fn      func(ctx context.Context) error

	doneOnce sync.Once
	done     chan struct{}
	err      error
}

// NewJob creates a job that may run up to retries+1 times.
func NewJob(fn func(ctx context.Context) error, retries int) *Job {
	return &Job{
		id:      xid.New().String(),
		retries: max(retries, 0),
		fn:      fn,
		done:    make(chan struct{}),
	}
}

func (j *Job) ID() string {
	return j.id
}

func (j *Job) Runs() int {
	return int(j.runs.Load())
}

func (j *Job) canRun() bool {
	return j.retries >= j.Runs()
}

// Done is closed once the job finished, successfully or not.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Err returns the final error. Only meaningful after Done is closed.
func (j *Job) Err() error {
	<-j.done
	return j.err
}

func (j *Job) finish(err error) {
	j.doneOnce.Do(func() {
		j.err = err
		close(j.done)
	})
}

func jobRetryBackoffDelay(run int) time.Duration {
	run = min(max(run, 1), jobRetryBackoffMaxRunNumber)

	delay := jobRetryBackoffBaseDelay * time.Duration(1<<(run-1))
	return min(delay, jobRetryBackoffMaxDelay)
}

// SubmitJob hands job to the pool. A rejected first submission is returned to
// the caller and also finishes the job with that error.
func SubmitJob(ctx context.Context, pool WorkerPool, job *Job) error {
	if pool == nil {
		err := errors.New("worker pool is not configured")
		job.finish(err)
		return err
	}

	err := pool.Submit(ctx, executionTask(ctx, pool, job))
	if err != nil {
		job.finish(err)
	}
	return err
}

func executionTask(ctx context.Context, pool WorkerPool, job *Job) func() {
	return func() {
		log := util.Log(ctx).
			WithField("job", job.ID()).
			WithField("run", job.Runs())

		if job.fn == nil {
			log.Error("job function is nil")
			job.finish(ErrNilJob)
			return
		}

		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("job panicked; not retrying")
				job.finish(fmt.Errorf("%w: %v", ErrJobPanicked, r))
			}
		}()

		job.runs.Add(1)
		executionErr := job.fn(ctx)
		if executionErr == nil || errors.Is(executionErr, context.Canceled) {
			job.finish(executionErr)
			return
		}

		log = log.WithError(executionErr).WithField("can retry", job.canRun())
		if !job.canRun() {
			log.Error("job failed; retries exhausted")
			job.finish(executionErr)
			return
		}

		log.Warn("job failed, scheduling retry")
		go scheduleRetry(ctx, pool, job, jobRetryBackoffDelay(job.Runs()), executionErr)
	}
}

func scheduleRetry(ctx context.Context, pool WorkerPool, job *Job, delay time.Duration, executionErr error) {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		job.finish(executionErr)
		return
	case <-timer.C:
	}

	if err := pool.Submit(ctx, executionTask(ctx, pool, job)); err != nil {
		util.Log(ctx).WithError(err).WithField("job", job.ID()).Error("failed to resubmit job")
		job.finish(executionErr)
	}
}
