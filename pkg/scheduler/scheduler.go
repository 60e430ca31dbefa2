// Package scheduler runs the reconcile and verify jobs on independent
// cadences, with coalesced on-demand triggers and an explicit per-job
// state machine.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/wait"
)

type State string

const (
	StateIdle      State = "IDLE"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
)

// RunFunc does one batch run. The context carries the run deadline.
type RunFunc func(ctx context.Context) error

// Job is one scheduled unit: IDLE -> RUNNING -> SUCCEEDED|FAILED ->
// IDLE. A job already RUNNING is never re-entered; duplicate triggers
// coalesce into no-ops.
type Job struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	run      RunFunc
	log      *logrus.Entry

	mu        sync.Mutex
	state     State
	lastState State
	lastRun   time.Time
	lastErr   error
}

func NewJob(name string, interval, timeout time.Duration, run RunFunc) *Job {
	return &Job{
		name:     name,
		interval: interval,
		timeout:  timeout,
		run:      run,
		state:    StateIdle,
		log:      logrus.WithField("job", name),
	}
}

func (j *Job) Name() string { return j.name }

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// LastOutcome reports the terminal state and error of the most recent
// completed run.
func (j *Job) LastOutcome() (State, time.Time, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastState, j.lastRun, j.lastErr
}

// TryRun performs one run unless the job is already running, in which
// case the trigger is coalesced and false is returned.
func (j *Job) TryRun(ctx context.Context) bool {
	j.mu.Lock()
	if j.state == StateRunning {
		j.mu.Unlock()
		j.log.Info("run already in progress, coalescing trigger")
		return false
	}
	j.state = StateRunning
	j.mu.Unlock()

	start := time.Now()
	j.log.Info("run starting")

	rctx, cancel := context.WithTimeout(ctx, j.timeout)
	err := j.run(rctx)
	cancel()

	outcome := StateSucceeded
	if err != nil {
		outcome = StateFailed
		j.log.WithError(err).WithField("duration", time.Since(start)).Error("run failed")
	} else {
		j.log.WithField("duration", time.Since(start)).Info("run succeeded")
	}

	j.mu.Lock()
	j.state = StateIdle
	j.lastState = outcome
	j.lastRun = start
	j.lastErr = err
	j.mu.Unlock()

	return true
}

type Scheduler struct {
	jobs []*Job
	log  *logrus.Entry
}

func New(log *logrus.Entry, jobs ...*Job) *Scheduler {
	return &Scheduler{
		jobs: jobs,
		log:  log,
	}
}

// Start launches every job's cadence loop and blocks until ctx is done.
// Each job runs in isolation; a stuck probe in one cadence cannot delay
// the other.
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job *Job) {
			defer wg.Done()
			s.log.WithFields(logrus.Fields{
				"job":      job.name,
				"interval": job.interval,
			}).Info("starting job cadence")
			wait.JitterUntil(func() {
				job.TryRun(ctx)
			}, job.interval, .002, true, ctx.Done())
		}(job)
	}
	wg.Wait()
}

// RunNow triggers a job immediately, bypassing the cadence. Returns
// false if no such job exists or the trigger was coalesced.
func (s *Scheduler) RunNow(ctx context.Context, name string) bool {
	for _, job := range s.jobs {
		if job.name == name {
			return job.TryRun(ctx)
		}
	}
	return false
}

// Jobs exposes the jobs for status reporting.
func (s *Scheduler) Jobs() []*Job {
	return s.jobs
}
