package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Service defines the public interface for the scheduler
type Service interface {
	// Start runs due jobs until the context is canceled or Stop is called.
	// It blocks.
	Start(ctx context.Context) error

	// Stop signals Start to return and waits for running jobs
	Stop() error
}

type service struct {
	log     logrus.FieldLogger
	cfg     *Config
	ticker  *ticker
	elector LeaderElector

	done     chan struct{}
	stopOnce sync.Once
}

// NewService creates a scheduler. A nil elector runs jobs unconditionally.
func NewService(log logrus.FieldLogger, cfg *Config, tracker Tracker, elector LeaderElector, runner Runner) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t, err := newTicker(log, tracker, runner, cfg.JobTimeout, cfg.Jobs)
	if err != nil {
		return nil, err
	}

	return &service{
		log:     log.WithField("component", "scheduler"),
		cfg:     cfg,
		ticker:  t,
		elector: elector,
		done:    make(chan struct{}),
	}, nil
}

func (s *service) Start(ctx context.Context) error {
	if s.elector != nil {
		if err := s.elector.Start(ctx); err != nil {
			return err
		}

		if err := s.waitForLeadership(ctx); err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}

			if errors.Is(err, ErrElectorStopped) || ctx.Err() != nil {
				return nil
			}

			return err
		}
	}

	s.log.WithField("jobs", len(s.cfg.Jobs)).Info("Starting scheduler")

	tick := time.NewTicker(s.cfg.TickInterval)
	defer tick.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler context canceled, stopping")
			s.ticker.wait()

			return nil
		case <-s.done:
			s.log.Info("Scheduler stopped via Stop()")
			s.ticker.wait()

			return nil
		case <-tick.C:
			s.tick(ctx)
		}
	}
}

func (s *service) waitForLeadership(ctx context.Context) error {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-s.done:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	return s.elector.WaitForLeadership(waitCtx)
}

func (s *service) tick(ctx context.Context) {
	if s.elector != nil && !s.elector.IsLeader() {
		s.log.Debug("Not leader, skipping tick")
		return
	}

	s.ticker.checkSchedules(ctx)
}

func (s *service) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)
	})

	s.ticker.wait()

	if s.elector != nil {
		return s.elector.Stop()
	}

	return nil
}

// Verify interface compliance at compile time
var _ Service = (*service)(nil)
