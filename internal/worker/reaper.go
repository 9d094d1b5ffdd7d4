package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cinema-reservation/internal/usecase"
	"cinema-reservation/pkg/utils"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Cleaner releases expired holds.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (*usecase.CleanupResult, error)
}

// Reaper runs CleanupExpired on a fixed interval. Ticks never overlap and the first
// one fires at Start. A failed tick is logged and retried on the next one.
type Reaper struct {
	cleaner Cleaner
	config  utils.ReaperConfig
	log     *zap.Logger

	mu        sync.Mutex
	scheduler gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewReaper(cleaner Cleaner, config utils.ReaperConfig, log *zap.Logger) *Reaper {
	return &Reaper{
		cleaner: cleaner,
		config:  config,
		log:     log.With(zap.String("worker", "reaper")),
	}
}

func (r *Reaper) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scheduler != nil {
		return nil
	}
	if r.config.Interval <= 0 {
		return fmt.Errorf("reaper interval must be positive, got %s", r.config.Interval)
	}

	s, err := gocron.NewScheduler(gocron.WithStopTimeout(r.stopTimeout()))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())

	_, err = s.NewJob(
		gocron.DurationJob(r.config.Interval),
		gocron.NewTask(r.tick),
		gocron.WithName("expire-reservations"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		r.cancel()
		_ = s.Shutdown()
		return fmt.Errorf("schedule cleanup job: %w", err)
	}

	s.Start()
	r.scheduler = s

	r.log.Info("Reaper started", zap.Duration("interval", r.config.Interval))
	return nil
}

// Stop cancels a running tick and waits for the scheduler to drain.
func (r *Reaper) Stop() error {
	r.mu.Lock()
	s, cancel := r.scheduler, r.cancel
	r.scheduler = nil
	r.mu.Unlock()

	if s == nil {
		return nil
	}

	// a running tick takes r.mu, so shut down without holding it
	cancel()
	err := s.Shutdown()

	r.log.Info("Reaper stopped")
	return err
}

// RunOnce performs a single cleanup bounded by the tick timeout.
func (r *Reaper) RunOnce(ctx context.Context) (*usecase.CleanupResult, error) {
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}
	return r.cleaner.CleanupExpired(ctx)
}

func (r *Reaper) tick() {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	result, err := r.RunOnce(ctx)
	if err != nil {
		r.log.Error("Reaper tick failed", zap.Error(err))
		return
	}

	r.log.Debug("Reaper tick",
		zap.Int("expired", result.Expired),
		zap.Duration("duration", result.Duration),
	)
}

func (r *Reaper) stopTimeout() time.Duration {
	if r.config.Timeout > 0 {
		return r.config.Timeout + time.Second
	}
	return 10 * time.Second
}
