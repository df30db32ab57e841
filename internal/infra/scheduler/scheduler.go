package scheduler

import (
	"context"
	"fmt"
	"time"

	"partner_tracker/internal/infra/metrics"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Specs are the cron expressions of the background jobs. An empty spec disables its job.
type Specs struct {
	ClosureSweep  string
	TimerWarnings string
	Delivery      string
}

type Sweeper interface {
	CloseAllExpiredCycles(ctx context.Context) (int64, error)
}

type Warner interface {
	EvaluateAll(ctx context.Context) (int, error)
}

type Deliverer interface {
	DeliverPending(ctx context.Context) (int, error)
}

// Scheduler runs the periodic work that keeps cycles closed and partners warned
// even when nobody is reading.
type Scheduler struct {
	cronEngine *cron.Cron
	sweeper    Sweeper
	warner     Warner
	deliverer  Deliverer
	specs      Specs
	logger     *logrus.Entry
}

func New(sweeper Sweeper, warner Warner, deliverer Deliverer, specs Specs, loc *time.Location, logger *logrus.Entry) *Scheduler {
	logger = logger.WithField("component", "scheduler")
	return &Scheduler{
		cronEngine: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger{logger}),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
		),
		sweeper:   sweeper,
		warner:    warner,
		deliverer: deliverer,
		specs:     specs,
		logger:    logger,
	}
}

type job struct {
	name    string
	spec    string
	timeout time.Duration
	run     func(ctx context.Context) (int, error)
}

func (s *Scheduler) jobs() []job {
	return []job{
		{"closure_sweep", s.specs.ClosureSweep, 2 * time.Minute, func(ctx context.Context) (int, error) {
			n, err := s.sweeper.CloseAllExpiredCycles(ctx)
			return int(n), err
		}},
		{"timer_warnings", s.specs.TimerWarnings, 2 * time.Minute, s.warner.EvaluateAll},
		{"delivery", s.specs.Delivery, time.Minute, s.deliverer.DeliverPending},
	}
}

// Start registers every enabled job and starts the cron engine.
func (s *Scheduler) Start() error {
	for _, j := range s.jobs() {
		if j.spec == "" {
			s.logger.WithField("job", j.name).Info("Job disabled")
			continue
		}
		j := j
		if _, err := s.cronEngine.AddFunc(j.spec, func() { s.execute(j) }); err != nil {
			return fmt.Errorf("could not add %s job with spec %q: %w", j.name, j.spec, err)
		}
		s.logger.WithFields(logrus.Fields{"job": j.name, "spec": j.spec}).Info("Job registered")
	}
	s.cronEngine.Start()
	s.logger.Info("Scheduler started")
	return nil
}

func (s *Scheduler) execute(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	logCtx := s.logger.WithField("job", j.name)
	start := time.Now()
	n, err := j.run(ctx)
	logCtx = logCtx.WithFields(logrus.Fields{"count": n, "duration": time.Since(start)})
	if err != nil {
		metrics.SchedulerJobRuns.WithLabelValues(j.name, "error").Inc()
		logCtx.WithError(err).Error("Job finished with errors")
		return
	}
	metrics.SchedulerJobRuns.WithLabelValues(j.name, "ok").Inc()
	if n > 0 {
		logCtx.Info("Job finished")
	} else {
		logCtx.Debug("Job finished, nothing to do")
	}
}

// RunOnce executes every job a single time regardless of its spec.
func (s *Scheduler) RunOnce() {
	for _, j := range s.jobs() {
		s.execute(j)
	}
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.logger.Info("Stopping scheduler...")
	select {
	case <-s.cronEngine.Stop().Done():
		s.logger.Info("Scheduler gracefully stopped")
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out with jobs still running")
	}
}

// cronLogger routes cron's own logging through logrus. Cron's Info is chatty,
// so it is demoted to Debug.
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
