// Package scheduler fires the emergency broadcast on a fixed interval and
// exposes the same run for manual triggering.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"relief-alert-service/internal/logging"
	"relief-alert-service/internal/models"
	"relief-alert-service/internal/notification"
)

const (
	TriggerTimer  = "timer"
	TriggerManual = "manual"
)

// Broadcaster is the dispatch path both triggers share.
type Broadcaster interface {
	Broadcast(ctx context.Context, title, body string, category models.Category) (notification.Result, error)
}

// RunRecorder counts run results: ok, failed, skipped.
type RunRecorder interface {
	ScheduledRun(result string)
}

type Options struct {
	Interval time.Duration
	Title    string
	Body     string
}

// RunReport describes the most recent run of either trigger.
type RunReport struct {
	Trigger    string
	StartedAt  time.Time
	FinishedAt time.Time
	Summary    models.BroadcastSummary
	Err        error
}

// Scheduler runs one emergency broadcast per interval. A tick that fires while
// the previous run is still going is skipped. Manual triggers are never skipped.
type Scheduler struct {
	opts       Options
	dispatcher Broadcaster
	recorder   RunRecorder
	logger     *logging.Logger

	cron *cron.Cron
	job  cron.Job

	mu      sync.Mutex
	running bool
	last    RunReport
	hasLast bool
}

func New(dispatcher Broadcaster, opts Options, logger *logging.Logger, recorder RunRecorder) (*Scheduler, error) {
	if opts.Interval < time.Second {
		return nil, fmt.Errorf("scheduler interval must be at least 1s, got %s", opts.Interval)
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	s := &Scheduler{
		opts:       opts,
		dispatcher: dispatcher,
		recorder:   recorder,
		logger:     logger,
	}
	cl := cronLogger{logger: logger, recorder: recorder}
	s.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(s.scheduledRun))
	s.cron = cron.New(cron.WithLogger(cl))
	s.cron.Schedule(cron.Every(opts.Interval), s.job)
	return s, nil
}

// Start begins firing on the interval. Calling it while running is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Infof("Scheduler started, broadcasting every %s", s.opts.Interval)
}

// Stop prevents future ticks. A run in progress is left to finish; the
// returned context is done once it has.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.cron.Stop()
	if s.running {
		s.running = false
		s.logger.Infof("Scheduler stopped")
	}
	return ctx
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastRun returns the most recent run, if any.
func (s *Scheduler) LastRun() (RunReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.hasLast
}

// Trigger runs one broadcast now on the caller's goroutine.
func (s *Scheduler) Trigger(ctx context.Context) (notification.Result, error) {
	return s.run(ctx, TriggerManual)
}

func (s *Scheduler) scheduledRun() {
	// Stop must not abort a running broadcast, so timer runs are detached
	// from any caller context.
	if _, err := s.run(context.Background(), TriggerTimer); err != nil {
		s.recorder.ScheduledRun("failed")
		return
	}
	s.recorder.ScheduledRun("ok")
}

func (s *Scheduler) run(ctx context.Context, trigger string) (notification.Result, error) {
	report := RunReport{Trigger: trigger, StartedAt: time.Now()}
	res, err := s.dispatcher.Broadcast(ctx, s.opts.Title, s.opts.Body, models.CategoryEmergency)
	report.FinishedAt = time.Now()
	report.Summary = res.Summary
	report.Err = err
	if err != nil {
		s.logger.Errorf("Scheduled broadcast (%s) failed: %v", trigger, err)
	}

	s.mu.Lock()
	s.last, s.hasLast = report, true
	s.mu.Unlock()
	return res, err
}

type nopRecorder struct{}

func (nopRecorder) ScheduledRun(string) {}

// cronLogger routes cron's internal logging to logrus.
type cronLogger struct {
	logger   *logging.Logger
	recorder RunRecorder
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		l.recorder.ScheduledRun("skipped")
		l.logger.Warnf("Scheduled broadcast skipped: previous run still in progress")
		return
	}
	l.logger.Debugf("cron: %s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorf("cron: %s: %v %v", msg, err, keysAndValues)
}
