// Package jobs runs the clinic's scheduled background work.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ads/dental/internal/domain/scheduling"
)

// OverdueLister is the part of the scheduling service the sweep needs.
type OverdueLister interface {
	OverdueBills(ctx context.Context, now time.Time) ([]scheduling.OverdueBill, error)
}

// OverdueSweep reports every bill that is past due and not fully paid.
type OverdueSweep struct {
	bills   OverdueLister
	logger  zerolog.Logger
	now     func() time.Time
	timeout time.Duration
}

func NewOverdueSweep(bills OverdueLister, logger zerolog.Logger) *OverdueSweep {
	return &OverdueSweep{
		bills:   bills,
		logger:  logger.With().Str("job", "overdue-sweep").Logger(),
		now:     time.Now,
		timeout: 5 * time.Minute,
	}
}

// Run performs one sweep and returns the number of overdue bills found.
func (s *OverdueSweep) Run(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.now()
	overdue, err := s.bills.OverdueBills(ctx, start)
	if err != nil {
		return 0, fmt.Errorf("overdue sweep: %w", err)
	}
	for _, b := range overdue {
		s.logger.Warn().
			Str("appointment_id", b.AppointmentID.String()).
			Str("patient_id", b.PatientID.String()).
			Str("bill_id", b.BillID.String()).
			Str("due_date", b.DueDate).
			Str("balance", b.Balance.String()).
			Str("payment_status", string(b.Status)).
			Msg("bill overdue")
	}
	s.logger.Info().Int("overdue", len(overdue)).Dur("took", time.Since(start)).Msg("overdue sweep finished")
	return len(overdue), nil
}

// Scheduler wraps a cron runner for the sweep.
type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger
	// jobs is the context every sweep runs under; Run cancels it on shutdown.
	jobs     context.Context
	stopJobs context.CancelFunc
}

// NewScheduler registers sweep under the standard five-field spec, evaluated
// in loc.
func NewScheduler(spec string, loc *time.Location, sweep *OverdueSweep, logger zerolog.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{logger: logger}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger: logger})),
	)
	jobs, stopJobs := context.WithCancel(context.Background())
	_, err := c.AddFunc(spec, func() {
		if _, err := sweep.Run(jobs); err != nil {
			logger.Error().Err(err).Msg("overdue sweep failed")
		}
	})
	if err != nil {
		stopJobs()
		return nil, fmt.Errorf("schedule overdue sweep %q: %w", spec, err)
	}
	return &Scheduler{cron: c, logger: logger, jobs: jobs, stopJobs: stopJobs}, nil
}

// Run starts the scheduler and blocks until ctx is done. A sweep in flight is
// cancelled and Run waits for it to return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info().Msg("job scheduler started")
	<-ctx.Done()
	s.stopJobs()
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("job scheduler stopped")
	return nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
