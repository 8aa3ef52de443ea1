// Package scheduler runs the background jobs: periodic inquiry sweeps, model health checks and
// history retention.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/mrwolf/align-server/internal/inquiry"
	"github.com/mrwolf/align-server/internal/journal"
	"github.com/mrwolf/align-server/internal/metrics"
	"github.com/mrwolf/align-server/internal/models"
)

// Job names, also used as scheduler_runs.job_type.
const (
	JobInquirySweep = "inquiry-sweep"
	JobHealthCheck  = "health-check"
	JobRetention    = "retention"
)

// systemActor records runs that are not tied to a single user.
const systemActor = "system"

// Store is the persistence the jobs need.
type Store interface {
	Snapshot(ctx context.Context, userID string) (models.InquiryRequest, error)
	ReplaceInquiries(ctx context.Context, userID string, inquiries []models.Inquiry) error
	PruneInteractions(ctx context.Context, cutoff time.Time) (int64, error)
	StartSchedulerRun(ctx context.Context, actor, jobType string) (int64, error)
	CompleteSchedulerRun(ctx context.Context, runID int64, errMsg string) error
}

// HealthChecker reports whether the language model is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds scheduler configuration
type Config struct {
	Timezone        *time.Location
	Users           []string
	InquiryInterval time.Duration
	RetentionDays   int
	Clock           clockwork.Clock
}

// Scheduler manages scheduled jobs
type Scheduler struct {
	scheduler gocron.Scheduler
	store     Store
	llm       HealthChecker
	journal   *journal.Journal
	metrics   *metrics.Metrics
	clock     clockwork.Clock
	timezone  *time.Location
	users     []string
	interval  time.Duration
	retention time.Duration
	logger    zerolog.Logger
}

// New creates a new scheduler. The journal may be nil.
func New(store Store, llm HealthChecker, j *journal.Journal, m *metrics.Metrics, cfg Config, logger zerolog.Logger) (*Scheduler, error) {
	tz := cfg.Timezone
	if tz == nil {
		tz = time.UTC
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	interval := cfg.InquiryInterval
	if interval <= 0 {
		interval = time.Hour
	}
	retentionDays := cfg.RetentionDays
	if retentionDays <= 0 {
		retentionDays = 90
	}

	s, err := gocron.NewScheduler(gocron.WithLocation(tz), gocron.WithClock(clock))
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		scheduler: s,
		store:     store,
		llm:       llm,
		journal:   j,
		metrics:   m,
		clock:     clock,
		timezone:  tz,
		users:     cfg.Users,
		interval:  interval,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Start registers all jobs and starts the scheduler
func (s *Scheduler) Start() error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.sweepInquiries),
		gocron.WithName(JobInquirySweep),
	)
	if err != nil {
		return err
	}

	_, err = s.scheduler.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(s.healthCheck),
		gocron.WithName(JobHealthCheck),
	)
	if err != nil {
		return err
	}

	// Retention at 03:00 local time
	_, err = s.scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(3, 0, 0))),
		gocron.NewTask(s.pruneHistory),
		gocron.WithName(JobRetention),
	)
	if err != nil {
		return err
	}

	s.scheduler.Start()
	s.logger.Info().Dur("inquiry_interval", s.interval).Int("users", len(s.users)).Msg("scheduler started")
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}

// JobNames lists the registered jobs
func (s *Scheduler) JobNames() []string {
	jobs := s.scheduler.Jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	return names
}

func (s *Scheduler) sweepInquiries() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	for _, user := range s.users {
		if _, err := s.SweepUser(ctx, user); err != nil {
			s.logger.Error().Err(err).Str("job", JobInquirySweep).Str("user", user).Msg("inquiry sweep failed")
		}
	}
}

// SweepUser ranks the user's stored snapshot now, stores the result as the current inquiries and
// writes the day's digest.
func (s *Scheduler) SweepUser(ctx context.Context, user string) ([]models.Inquiry, error) {
	var inquiries []models.Inquiry
	err := s.track(ctx, user, JobInquirySweep, func(ctx context.Context) error {
		snap, err := s.store.Snapshot(ctx, user)
		if err != nil {
			return err
		}
		now := s.clock.Now().In(s.timezone)
		inquiries = inquiry.Rank(snap, now)

		if err := s.store.ReplaceInquiries(ctx, user, inquiries); err != nil {
			return err
		}
		for _, inq := range inquiries {
			s.metrics.RecordInquiry(inq.Priority)
		}
		if _, err := s.journal.WriteDigest(user, now, inquiries); err != nil {
			return err
		}
		s.logger.Debug().Str("job", JobInquirySweep).Str("user", user).Int("inquiries", len(inquiries)).Msg("inquiries ranked")
		return nil
	})
	return inquiries, err
}

func (s *Scheduler) healthCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.CheckHealth(ctx); err != nil {
		s.logger.Warn().Err(err).Str("job", JobHealthCheck).Msg("ollama unreachable")
	}
}

// CheckHealth pings the language model
func (s *Scheduler) CheckHealth(ctx context.Context) error {
	return s.track(ctx, systemActor, JobHealthCheck, s.llm.HealthCheck)
}

func (s *Scheduler) pruneHistory() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := s.PruneHistory(ctx); err != nil {
		s.logger.Error().Err(err).Str("job", JobRetention).Msg("retention failed")
	}
}

// PruneHistory deletes interactions and alignments older than the retention window
func (s *Scheduler) PruneHistory(ctx context.Context) (int64, error) {
	var pruned int64
	err := s.track(ctx, systemActor, JobRetention, func(ctx context.Context) error {
		cutoff := s.clock.Now().Add(-s.retention)
		n, err := s.store.PruneInteractions(ctx, cutoff)
		pruned = n
		if err == nil && n > 0 {
			s.logger.Info().Str("job", JobRetention).Int64("rows", n).Time("cutoff", cutoff).Msg("history pruned")
		}
		return err
	})
	return pruned, err
}

// track records fn as a scheduler run for actor and counts its outcome.
func (s *Scheduler) track(ctx context.Context, actor, job string, fn func(context.Context) error) error {
	runID, startErr := s.store.StartSchedulerRun(ctx, actor, job)
	if startErr != nil {
		s.logger.Warn().Err(startErr).Str("job", job).Msg("recording run start failed")
	}

	err := fn(ctx)

	status, errMsg := "completed", ""
	if err != nil {
		status, errMsg = "failed", err.Error()
	}
	if startErr == nil {
		if cerr := s.store.CompleteSchedulerRun(ctx, runID, errMsg); cerr != nil {
			s.logger.Warn().Err(cerr).Str("job", job).Msg("recording run completion failed")
		}
	}
	s.metrics.RecordSchedulerRun(job, status)
	return err
}
