package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/zmooth/zmooth/internal/platform/id"
	workerdomain "github.com/zmooth/zmooth/internal/services/worker/domain"
	"github.com/zmooth/zmooth/internal/storage"
)

const (
	defaultMaxAttempts   = 5
	defaultRetryBackoff  = 5 * time.Second
	defaultRetryMaxDelay = 5 * time.Minute
	maxRunErrorLength    = 500
)

// Config controls retry behavior shared by every job.
type Config struct {
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
}

func (c Config) normalized() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	if c.RetryMaxDelay < c.RetryBackoff {
		c.RetryMaxDelay = c.RetryBackoff
	}
	return c
}

// RunRecorder persists job outcomes.
type RunRecorder interface {
	PutJobRun(ctx context.Context, run storage.JobRun) error
}

// Scheduler runs each job on its own interval.
type Scheduler struct {
	jobs  []workerdomain.Job
	runs  RunRecorder
	cfg   Config
	clock func() time.Time
	newID func() (string, error)
	wait  func(ctx context.Context, d time.Duration) error
}

// NewScheduler validates jobs and applies config defaults.
func NewScheduler(runs RunRecorder, jobs []workerdomain.Job, cfg Config) (*Scheduler, error) {
	seen := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		if err := job.Validate(); err != nil {
			return nil, err
		}
		if _, ok := seen[job.Name]; ok {
			return nil, fmt.Errorf("duplicate job %s", job.Name)
		}
		seen[job.Name] = struct{}{}
	}
	return &Scheduler{
		jobs:  jobs,
		runs:  runs,
		cfg:   cfg.normalized(),
		clock: time.Now,
		newID: id.NewID,
		wait:  sleep,
	}, nil
}

// Run starts every job immediately and repeats it on its interval until
// ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.jobs) == 0 {
		return errors.New("no jobs scheduled")
	}
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, job)
		}()
	}
	wg.Wait()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, job workerdomain.Job) {
	log.Printf("job %s scheduled every %s", job.Name, job.Interval)
	for {
		s.Execute(ctx, job)
		if err := s.wait(ctx, job.Interval); err != nil {
			return
		}
	}
}

// Execute runs job once, retrying retryable failures with exponential
// backoff. It returns the final outcome.
func (s *Scheduler) Execute(ctx context.Context, job workerdomain.Job) string {
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return workerdomain.OutcomeDead
		}
		started := s.clock()
		detail, err := job.Run(ctx)
		err = workerdomain.Classify(err)
		outcome := s.outcome(err, attempt)
		s.record(ctx, job.Name, outcome, attempt, detail, err, started)

		switch outcome {
		case workerdomain.OutcomeSucceeded, workerdomain.OutcomeSkipped:
			if detail != "" {
				log.Printf("job %s %s: %s", job.Name, outcome, detail)
			}
			return outcome
		case workerdomain.OutcomeDead:
			log.Printf("job %s failed after %d attempt(s): %v", job.Name, attempt, err)
			return outcome
		}

		delay := s.backoff(attempt)
		log.Printf("job %s attempt %d failed, retrying in %s: %v", job.Name, attempt, delay, err)
		if err := s.wait(ctx, delay); err != nil {
			return workerdomain.OutcomeDead
		}
	}
}

func (s *Scheduler) outcome(err error, attempt int) string {
	switch {
	case err == nil:
		return workerdomain.OutcomeSucceeded
	case errors.Is(err, workerdomain.ErrSkipped):
		return workerdomain.OutcomeSkipped
	case workerdomain.IsPermanent(err), errors.Is(err, context.Canceled), attempt >= s.cfg.MaxAttempts:
		return workerdomain.OutcomeDead
	default:
		return workerdomain.OutcomeRetry
	}
}

// backoff doubles RetryBackoff per failed attempt, capped at RetryMaxDelay.
func (s *Scheduler) backoff(attempt int) time.Duration {
	delay := s.cfg.RetryBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.cfg.RetryMaxDelay {
			return s.cfg.RetryMaxDelay
		}
	}
	return delay
}

func (s *Scheduler) record(ctx context.Context, name, outcome string, attempt int, detail string, runErr error, started time.Time) {
	if s.runs == nil {
		return
	}
	runID, err := s.newID()
	if err != nil {
		log.Printf("job %s: generate run id: %v", name, err)
		return
	}
	run := storage.JobRun{
		ID:         runID,
		Job:        name,
		Outcome:    outcome,
		Attempt:    attempt,
		Detail:     detail,
		StartedAt:  started.UTC(),
		FinishedAt: s.clock().UTC(),
	}
	if runErr != nil && !errors.Is(runErr, workerdomain.ErrSkipped) {
		run.Error = truncate(runErr.Error(), maxRunErrorLength)
	}
	// Recording survives shutdown so the last attempt is not lost.
	if err := s.runs.PutJobRun(context.WithoutCancel(ctx), run); err != nil {
		log.Printf("job %s: record run: %v", name, err)
	}
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	// Back off to a rune boundary so the stored text stays valid UTF-8.
	for limit > 0 && !utf8.RuneStart(value[limit]) {
		limit--
	}
	return value[:limit]
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
