// Package jobs runs the named batch jobs on their cron schedules.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"affiliate-tracking-system/internal/metrics"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	PurchaseSync   = "purchase-sync"
	TagReset       = "tag-reset"
	ContentPublish = "content-publish"
	SiteCheck      = "site-check"
)

var (
	ErrUnknownJob     = errors.New("unknown job")
	ErrAlreadyRunning = errors.New("job already running")
)

type Func func(ctx context.Context) error

type job struct {
	name    string
	spec    string
	run     Func
	running atomic.Bool
	entryID cron.EntryID
}

// Scheduler fires each job on its cron spec. A job whose previous run is
// still in flight skips the trigger; runs are never queued.
type Scheduler struct {
	logger *logrus.Logger
	cron   *cron.Cron
	parser cron.Parser
	jobs   map[string]*job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(location *time.Location, logger *logrus.Logger) *Scheduler {
	if location == nil {
		location = time.Local
	}
	// Standard 5-field cron (minute hour day month weekday).
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger: logger,
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithParser(parser),
			cron.WithChain(cron.Recover(cron.DefaultLogger)),
		),
		parser: parser,
		jobs:   make(map[string]*job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds a job. An empty spec registers it for manual triggers only.
func (s *Scheduler) Register(name, spec string, run Func) error {
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q registered twice", name)
	}
	j := &job{name: name, spec: spec, run: run}
	if spec != "" {
		if _, err := s.parser.Parse(spec); err != nil {
			return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
		}
		id, err := s.cron.AddFunc(spec, func() {
			if err := s.execute(s.ctx, j); errors.Is(err, ErrAlreadyRunning) {
				s.logger.WithField("job", name).Warn("Previous run still in flight, skipping trigger")
			}
		})
		if err != nil {
			return err
		}
		j.entryID = id
	}
	s.jobs[name] = j
	return nil
}

// Trigger starts a job in the background under the same in-flight guard as
// the schedule.
func (s *Scheduler) Trigger(name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return ErrUnknownJob
	}
	if !j.running.CompareAndSwap(false, true) {
		metrics.JobsSkipped.WithLabelValues(name).Inc()
		return ErrAlreadyRunning
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runClaimed(s.ctx, j)
	}()
	return nil
}

// RunNow runs a job synchronously.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return ErrUnknownJob
	}
	return s.execute(ctx, j)
}

func (s *Scheduler) execute(ctx context.Context, j *job) error {
	if !j.running.CompareAndSwap(false, true) {
		metrics.JobsSkipped.WithLabelValues(j.name).Inc()
		return ErrAlreadyRunning
	}
	return s.runClaimed(ctx, j)
}

func (s *Scheduler) runClaimed(ctx context.Context, j *job) (err error) {
	defer j.running.Store(false)

	log := s.logger.WithField("job", j.name)
	start := time.Now()
	log.Info("Job started")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.name, r)
		}
		status := "success"
		if err != nil {
			status = "failed"
			log.WithError(err).Error("Job failed")
		} else {
			log.WithField("duration", time.Since(start).String()).Info("Job finished")
		}
		metrics.JobRuns.WithLabelValues(j.name, status).Inc()
	}()

	return j.run(ctx)
}

func (s *Scheduler) Running(name string) bool {
	j, ok := s.jobs[name]
	return ok && j.running.Load()
}

// Names lists the registered jobs.
func (s *Scheduler) Names() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Next reports the next scheduled fire time of a job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	j, ok := s.jobs[name]
	if !ok || j.entryID == 0 {
		return time.Time{}, false
	}
	return s.cron.Entry(j.entryID).Next, true
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithField("jobs", s.Names()).Info("Cron scheduler started")
}

// Stop halts the schedule, cancels running jobs and waits for them.
func (s *Scheduler) Stop() {
	cronCtx := s.cron.Stop()
	s.cancel()
	<-cronCtx.Done()
	s.wg.Wait()
	s.logger.Info("Cron scheduler stopped")
}
