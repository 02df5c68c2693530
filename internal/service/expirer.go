package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultExpirerInterval = 10 * time.Minute
	defaultRetention       = 1 * time.Hour
)

// sessionEvictor is the part of RefinementService the expirer needs.
type sessionEvictor interface {
	EvictFinished(cutoff time.Time) int
}

// ExpirerService drops finished sessions from the in-process registry once
// they are older than the retention window. Persisted snapshots are kept.
type ExpirerService struct {
	sessions sessionEvictor
	logger   *zap.Logger

	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewExpirerService(sessions sessionEvictor, logger *zap.Logger) *ExpirerService {
	return &ExpirerService{
		sessions:  sessions,
		logger:    logger,
		interval:  defaultExpirerInterval,
		retention: defaultRetention,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

func (s *ExpirerService) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

func (s *ExpirerService) SetRetention(d time.Duration) {
	if d > 0 {
		s.retention = d
	}
}

// Start runs the expirer on a periodic schedule in a background goroutine.
func (s *ExpirerService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("session expirer started",
			zap.Duration("interval", s.interval),
			zap.Duration("retention", s.retention))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				s.run(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("session expirer stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the expirer.
func (s *ExpirerService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *ExpirerService) run(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	evicted := s.sessions.EvictFinished(s.now().Add(-s.retention))
	if evicted > 0 {
		s.logger.Info("evicted finished sessions", zap.Int("count", evicted))
	}
	return evicted
}
