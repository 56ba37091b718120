package rubric

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/omecscore/internal/model"
)

// Store holds the current RuleSet snapshot. Readers get an immutable
// pointer; Reload swaps in a fully built replacement.
type Store struct {
	source  Source
	logger  *zap.Logger
	current atomic.Pointer[model.RuleSet]
	loadMu  sync.Mutex
}

// NewStore creates a store that loads lazily from source
func NewStore(source Source, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{source: source, logger: logger}
}

// Get returns the current snapshot, loading it on first use
func (s *Store) Get(ctx context.Context) (*model.RuleSet, error) {
	if rs := s.current.Load(); rs != nil {
		return rs, nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if rs := s.current.Load(); rs != nil {
		return rs, nil
	}
	return s.loadLocked(ctx)
}

// Reload fetches the rubric again and swaps the snapshot. On failure the
// previous snapshot stays in place.
func (s *Store) Reload(ctx context.Context) (*model.RuleSet, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return s.loadLocked(ctx)
}

// Invalidate drops the snapshot so the next Get loads again
func (s *Store) Invalidate() {
	s.current.Store(nil)
}

// Watch reloads every interval until ctx is done
func (s *Store) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Reload(ctx); err != nil {
				s.logger.Warn("periodic rubric reload failed, keeping previous rules", zap.Error(err))
			}
		}
	}
}

func (s *Store) loadLocked(ctx context.Context) (*model.RuleSet, error) {
	start := time.Now()

	records, err := s.source.FetchRecords(ctx)
	if err != nil {
		if !errors.Is(err, ErrDataUnavailable) {
			return nil, fmt.Errorf("%w: load rubric: %v", ErrDataUnavailable, err)
		}
		return nil, fmt.Errorf("load rubric: %w", err)
	}

	rs := Load(records)
	for _, r := range rs.Rules {
		if !r.Type.Known() {
			s.logger.Warn("rubric rule has unrecognised type, using exact match",
				zap.String("column", r.Column),
				zap.String("type", string(r.Type)))
		}
	}

	s.current.Store(rs)
	s.logger.Info("rubric loaded",
		zap.Int("records", len(records)),
		zap.Int("rules", rs.Len()),
		zap.Duration("took", time.Since(start)))

	return rs, nil
}
