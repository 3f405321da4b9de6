package worker

import (
	"context"
	"errors"
	"time"

	"github.com/sitegrade/sitegrade/internal/config"
	"github.com/sitegrade/sitegrade/internal/logger"
	"github.com/sitegrade/sitegrade/internal/queue"

	"github.com/hibiken/asynq"
)

// reservationSweepInterval is the fallback cleanup cadence. The sweep catches
// reservations whose per-reservation task was lost (queue restart, enqueue
// failure).
const reservationSweepInterval = time.Minute

// Service is the async queue service.
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService creates the async queue service.
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}, nil
}

// Name is the service name.
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start runs the asynq server and the reservation sweep loop.
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer != nil && s.consumer.Container != nil && s.consumer.ReservationRepo != nil {
		go s.runReservationSweepLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop shuts the asynq server down.
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

func (s *Service) runReservationSweepLoop(ctx context.Context) {
	runOnce := func() {
		n, err := s.consumer.ReservationRepo.ExpireStale(time.Now())
		if err != nil {
			logger.Warnw("worker_reservation_sweep_failed", "error", err)
			return
		}
		if n > 0 {
			logger.Infow("worker_reservation_sweep_expired", "count", n)
		}
	}
	runOnce()

	ticker := time.NewTicker(reservationSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
