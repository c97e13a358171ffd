// Package trigger runs publish cycles one at a time no matter what started them:
// the scheduler, the API or the CLI.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/autopost/autopost"
	"github.com/autopost/autopost/config"
	redlock "github.com/autopost/autopost/internal/lock"
	"github.com/autopost/autopost/model"
)

// ErrCycleInProgress is returned when another cycle holds the lock.
var ErrCycleInProgress = errors.New("a publish cycle is already running")

const (
	LockKey        = "autopost:cycle"
	defaultLockTTL = 5 * time.Minute
)

// Options overrides parts of the configuration for a single run.
type Options struct {
	Reason   string
	DryRun   *bool
	MaxPosts int
}

// Report describes one finished run.
type Report struct {
	Reason     string                 `json:"reason"`
	DryRun     bool                   `json:"dry_run"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	Outcomes   []model.PublishOutcome `json:"outcomes"`
	Error      string                 `json:"error,omitempty"`
}

// Counts tallies the outcomes by status.
func (r *Report) Counts() map[model.PublishStatus]int {
	counts := make(map[model.PublishStatus]int, 3)
	for _, o := range r.Outcomes {
		counts[o.Status]++
	}
	return counts
}

type Runner struct {
	autopost *autopost.Autopost
	locker   *redlock.Locker
	local    sync.Mutex
	fetch    func() (*config.Configuration, error)
	lockTTL  time.Duration
	logger   logrus.FieldLogger
}

type RunnerOption func(*Runner)

// WithLocker serializes runs across processes through a Redis lease.
func WithLocker(l *redlock.Locker) RunnerOption {
	return func(r *Runner) { r.locker = l }
}

// WithConfigSource replaces config.Fetch as the source of the per-run configuration.
func WithConfigSource(fetch func() (*config.Configuration, error)) RunnerOption {
	return func(r *Runner) { r.fetch = fetch }
}

func WithLockTTL(ttl time.Duration) RunnerOption {
	return func(r *Runner) { r.lockTTL = ttl }
}

func WithLogger(logger logrus.FieldLogger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

func NewRunner(ap *autopost.Autopost, opts ...RunnerOption) *Runner {
	r := &Runner{
		autopost: ap,
		fetch:    config.Fetch,
		lockTTL:  defaultLockTTL,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one cycle. It never waits for a running cycle: a concurrent call
// returns ErrCycleInProgress straight away.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	if !r.local.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer r.local.Unlock()

	cnf, err := r.fetch()
	if err != nil {
		return nil, &autopost.ConfigurationError{Err: err}
	}
	runCnf := *cnf
	if opts.DryRun != nil {
		runCnf.DryRun = *opts.DryRun
	}
	if opts.MaxPosts != 0 {
		runCnf.MaxPostsPerCycle = opts.MaxPosts
	}

	if r.locker != nil {
		release, err := r.acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	logger := r.logger.WithField("reason", opts.Reason)
	report := &Report{Reason: opts.Reason, DryRun: runCnf.DryRun, StartedAt: time.Now().UTC()}
	report.Outcomes, err = r.autopost.RunCycle(ctx, &runCnf)
	report.FinishedAt = time.Now().UTC()
	if err != nil {
		report.Error = err.Error()
		logger.WithError(err).Error("cycle run failed")
		return report, err
	}
	logger.WithField("outcomes", len(report.Outcomes)).Info("cycle run complete")
	return report, nil
}

// acquire takes the Redis lease and keeps it alive until the returned release is called.
func (r *Runner) acquire(ctx context.Context) (func(), error) {
	if err := r.locker.Lock(ctx, r.lockTTL); err != nil {
		if errors.Is(err, redlock.ErrLockHeld) {
			return nil, ErrCycleInProgress
		}
		return nil, fmt.Errorf("acquire cycle lock: %w", err)
	}

	keepCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	errs := r.locker.KeepAlive(keepCtx, r.lockTTL)
	go func() {
		for err := range errs {
			r.logger.WithError(err).Warn("cycle lock lost")
		}
	}()

	return func() {
		stop()
		if err := r.locker.Unlock(context.WithoutCancel(ctx)); err != nil {
			r.logger.WithError(err).Warn("failed to release cycle lock")
		}
	}, nil
}
