package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driving"
	"github.com/custodia-labs/fabric-cli/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// defaultCheckInterval is how often the scheduler looks for stale fabrics.
const defaultCheckInterval = time.Minute

// BuildStarter starts fabric builds.
type BuildStarter interface {
	StartBuild(ctx context.Context, fabricID string) (*domain.BuildTicket, error)
}

// Scheduler rebuilds fabrics backed by remote sources once their last
// build is older than the refresh interval. Local sources are left to
// `fabric watch`.
type Scheduler struct {
	store    driven.FabricStore
	builds   BuildStarter
	interval time.Duration
	check    time.Duration
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. An interval <= 0 disables refreshes.
func NewScheduler(store driven.FabricStore, builds BuildStarter, interval time.Duration) *Scheduler {
	check := defaultCheckInterval
	if interval > 0 && interval < check {
		check = interval
	}
	return &Scheduler{
		store:    store,
		builds:   builds,
		interval: interval,
		check:    check,
		now:      time.Now,
	}
}

// Start runs the scheduler loop. It blocks until ctx is cancelled or Stop
// is called.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return nil
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	logger.Info("refreshing remote fabrics every %s", s.interval)
	return s.run(ctx, stopCh)
}

// Stop ends the loop and waits for build requests in progress.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}) error {
	s.checkAndRunDue(ctx)

	ticker := time.NewTicker(s.check)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDue(ctx)
		}
	}
}

// checkAndRunDue starts a build for every fabric that is due.
func (s *Scheduler) checkAndRunDue(ctx context.Context) {
	fabrics, err := s.store.List(ctx)
	if err != nil {
		logger.Warn("scheduler: list fabrics: %v", err)
		return
	}

	now := s.now()
	for _, f := range fabrics {
		if s.isDue(f, now) {
			s.runRefresh(ctx, f.ID)
		}
	}
}

// isDue reports whether f is a built remote fabric whose last build is
// older than the interval. Fabrics in the error state are not retried.
func (s *Scheduler) isDue(f *domain.Fabric, now time.Time) bool {
	switch f.Source.Kind {
	case domain.SourceKindServiceNow, domain.SourceKindSharePoint:
	default:
		return false
	}
	if f.Status != domain.FabricStatusReady || f.BuiltAt == nil {
		return false
	}
	return !now.Before(f.BuiltAt.Add(s.interval))
}

func (s *Scheduler) runRefresh(ctx context.Context, fabricID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		_, err := s.builds.StartBuild(ctx, fabricID)
		switch {
		case err == nil:
			logger.Info("scheduler: refreshing fabric %s", fabricID)
		case errors.Is(err, domain.ErrBuildInProgress), errors.Is(err, context.Canceled):
		default:
			logger.Warn("scheduler: refresh fabric %s: %v", fabricID, err)
		}
	}()
}
