package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"frameworks/api_compose/pkg/models"
	"frameworks/api_compose/pkg/monitoring"
)

// ServiceConfig configures the discovery pipeline.
type ServiceConfig struct {
	Scanner  ScannerConfig
	CacheTTL time.Duration
}

// Service ties the scanner, conflict resolution and the snapshot cache
// together. Everything above this package (matcher, handlers) goes through
// Snapshot and never touches the scanner directly.
type Service struct {
	scanner *Scanner
	cache   *SnapshotCache
	metrics *monitoring.DiscoveryMetrics
	logger  *logrus.Entry
}

// NewService builds the discovery service. Metrics may be nil in tests.
func NewService(cfg ServiceConfig, logger *logrus.Entry, metrics *monitoring.DiscoveryMetrics) (*Service, error) {
	scanner, err := NewScanner(cfg.Scanner, logger)
	if err != nil {
		return nil, fmt.Errorf("creating scanner: %w", err)
	}

	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 60 * time.Second
	}

	svc := &Service{
		scanner: scanner,
		metrics: metrics,
		logger:  logger,
	}
	svc.cache = NewSnapshotCache(cfg.CacheTTL, CacheHooks{
		OnHit:    func() { svc.cacheEvent("hit") },
		OnMiss:   func() { svc.cacheEvent("miss") },
		OnBypass: func() { svc.cacheEvent("bypass") },
		OnStore:  func() { svc.cacheEvent("store") },
		OnError:  func() { svc.cacheEvent("error") },
	})
	return svc, nil
}

// Root returns the absolute scan root.
func (s *Service) Root() string {
	return s.scanner.Root()
}

// Snapshot returns the current discovery snapshot, scanning the root when
// the cache is stale or bypass is set.
func (s *Service) Snapshot(ctx context.Context, bypass bool) (*models.DiscoverySnapshot, error) {
	trigger := "miss"
	if bypass {
		trigger = "bypass"
	}
	return s.cache.Get(ctx, bypass, func(ctx context.Context) (*models.DiscoverySnapshot, error) {
		return s.scan(ctx, trigger)
	})
}

// Invalidate drops the cached snapshot so the next Snapshot call scans.
func (s *Service) Invalidate() {
	s.cache.Invalidate()
	s.cacheEvent("invalidate")
	s.logger.Info("Discovery cache invalidated")
}

func (s *Service) scan(ctx context.Context, trigger string) (*models.DiscoverySnapshot, error) {
	start := time.Now()

	files, err := s.scanner.Scan(ctx)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ScansTotal.WithLabelValues(trigger, "error").Inc()
		}
		return nil, err
	}

	resolved, conflicts := ResolveConflicts(files)
	snap := &models.DiscoverySnapshot{
		Root:      s.scanner.Root(),
		Files:     files,
		Resolved:  resolved,
		Conflicts: conflicts,
		ScannedAt: time.Now(),
	}

	if s.metrics != nil {
		s.metrics.ScansTotal.WithLabelValues(trigger, "success").Inc()
		s.metrics.ScanDuration.WithLabelValues(trigger).Observe(time.Since(start).Seconds())
		s.metrics.FilesDiscovered.WithLabelValues(snap.Root).Set(float64(len(files)))
		s.metrics.ConflictsActive.WithLabelValues(snap.Root).Set(float64(len(conflicts)))
	}

	s.logger.WithFields(logrus.Fields{
		"files":       len(files),
		"resolved":    len(resolved),
		"conflicts":   len(conflicts),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Compose root scanned")

	return snap, nil
}

func (s *Service) cacheEvent(event string) {
	if s.metrics != nil {
		s.metrics.CacheEvents.WithLabelValues(event).Inc()
	}
}
