package workspace

import (
	"context"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"agentflow/pkg/config"
	"agentflow/pkg/logx"
)

// Regenerator rebuilds the index file for a workspace.
type Regenerator interface {
	Regenerate(ctx context.Context, base, out string) error
}

// Manager keeps one workspace's index fresh. Regeneration is shared
// between concurrent callers and rate-limited by a start cooldown and a
// maximum file age.
type Manager struct {
	regen     Regenerator
	logger    *logx.Logger
	now       func() time.Time
	lastStart time.Time
	base      string
	file      string
	group     singleflight.Group
	cooldown  time.Duration
	maxAge    time.Duration
	mu        sync.Mutex
}

// NewManager creates a manager for base using cfg's intervals.
func NewManager(base string, regen Regenerator, cfg config.IndexConfig) *Manager {
	return &Manager{
		regen:    regen,
		logger:   logx.NewLogger("workspace"),
		now:      time.Now,
		base:     base,
		file:     IndexPath(base),
		cooldown: cfg.Cooldown.Std(),
		maxAge:   cfg.MaxAge.Std(),
	}
}

// Base returns the workspace root.
func (m *Manager) Base() string { return m.base }

// File returns the index file path.
func (m *Manager) File() string { return m.file }

// Ensure regenerates the index unless a regeneration started within the
// cooldown or the index file is younger than the max age. It reports
// whether a regeneration ran.
func (m *Manager) Ensure(ctx context.Context) (bool, error) {
	m.mu.Lock()
	now := m.now()
	if !m.lastStart.IsZero() && now.Sub(m.lastStart) < m.cooldown {
		m.mu.Unlock()
		logx.Debug(ctx, "workspace", "index regeneration skipped: cooldown")
		return false, nil
	}
	if info, err := os.Stat(m.file); err == nil && now.Sub(info.ModTime()) < m.maxAge {
		m.mu.Unlock()
		logx.Debug(ctx, "workspace", "index regeneration skipped: fresh")
		return false, nil
	}
	m.lastStart = now
	m.mu.Unlock()

	_, err, _ := m.group.Do(m.file, func() (any, error) {
		m.logger.Info("regenerating index for %s", m.base)
		return nil, m.regen.Regenerate(ctx, m.base, m.file)
	})
	if err != nil {
		m.logger.Warn("index regeneration failed: %v", err)
		return true, err
	}
	return true, nil
}

// Load reads the current snapshot. Failures yield an empty index.
func (m *Manager) Load() *Index {
	ix, err := Load(m.file)
	if err != nil {
		m.logger.Warn("index unreadable, using empty snapshot: %v", err)
	}
	return ix
}

// Snapshot ensures the index and loads it. A failed regeneration still
// returns whatever snapshot is on disk.
func (m *Manager) Snapshot(ctx context.Context) *Index {
	if _, err := m.Ensure(ctx); err != nil && ctx.Err() == nil {
		m.logger.Warn("using previous index: %v", err)
	}
	return m.Load()
}
