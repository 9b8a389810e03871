// Package refresh re-fetches entity stores on a fixed interval. A store that
// is already loading is skipped for that tick.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"udpadijaya/posagent/internal/metrics"
)

const DefaultInterval = 5 * time.Minute

// Job is one refreshable store.
type Job struct {
	Name     string
	Resource string
	Busy     func() bool
	Run      func(ctx context.Context) error
}

type fetcher[T any] interface {
	Resource() string
	Loading() bool
	FetchAll(ctx context.Context) ([]T, error)
}

// FromCollection adapts an entity store to a Job. label distinguishes the
// same resource across terminals in logs.
func FromCollection[T any](label string, c fetcher[T]) Job {
	return Job{
		Name:     label + "/" + c.Resource(),
		Resource: c.Resource(),
		Busy:     c.Loading,
		Run: func(ctx context.Context) error {
			_, err := c.FetchAll(ctx)
			return err
		},
	}
}

// Source lists the jobs of the current tick. It is called on every tick so
// terminals opened after Start are picked up.
type Source func() []Job

type Result struct {
	Ran     int
	Skipped int
	Failed  int
}

type Option func(*Refresher)

func WithLogger(l *zap.Logger) Option {
	return func(r *Refresher) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTimeout bounds every job of a tick.
func WithTimeout(d time.Duration) Option {
	return func(r *Refresher) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(r *Refresher) {
		if loc != nil {
			r.location = loc
		}
	}
}

type Refresher struct {
	interval time.Duration
	source   Source
	logger   *zap.Logger
	timeout  time.Duration
	location *time.Location

	scheduler *gocron.Scheduler
}

func New(interval time.Duration, source Source, opts ...Option) *Refresher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	r := &Refresher{
		interval: interval,
		source:   source,
		logger:   zap.NewNop(),
		timeout:  30 * time.Second,
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start schedules the refresh in the background. Ticks never overlap.
func (r *Refresher) Start() error {
	if r.scheduler != nil {
		return errors.New("refresher already started")
	}
	s := gocron.NewScheduler(r.location)
	s.WaitForScheduleAll()
	if _, err := s.Every(r.interval).SingletonMode().Do(r.tick); err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}
	s.StartAsync()
	r.scheduler = s
	r.logger.Info("refresher started", zap.Duration("interval", r.interval))
	return nil
}

func (r *Refresher) Stop() {
	if r.scheduler == nil {
		return
	}
	r.scheduler.Stop()
	r.scheduler = nil
}

func (r *Refresher) tick() {
	res := r.RunOnce(context.Background())
	r.logger.Debug("refresh tick",
		zap.Int("ran", res.Ran),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed))
}

// RunOnce runs every job of the source once, sequentially.
func (r *Refresher) RunOnce(ctx context.Context) Result {
	var res Result
	if r.source == nil {
		return res
	}
	for _, job := range r.source() {
		if job.Busy != nil && job.Busy() {
			res.Skipped++
			metrics.SnapshotRefreshTotal.WithLabelValues(job.Resource, "skipped").Inc()
			continue
		}

		jobCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := job.Run(jobCtx)
		cancel()

		res.Ran++
		if err != nil {
			res.Failed++
			r.logger.Warn("scheduled refresh failed", zap.String("job", job.Name), zap.Error(err))
		}
	}
	return res
}
