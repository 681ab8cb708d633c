package shardcache

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// StartPurge schedules the periodic staleness sweep when the backend lacks
// native expiry. Backends with their own TTL handling don't implement
// Sweeper, and for those this is a no-op: expiry strategy is the store's,
// not the manager's.
func (m *Manager) StartPurge(spec string) error {
	sweeper, ok := m.store.(Sweeper)
	if !ok {
		m.logger.Debug(map[string]any{"spec": spec}, "Backend expires natively, purge sweep not scheduled")
		return nil
	}
	if m.cron != nil {
		return fmt.Errorf("shardcache: purge already started")
	}

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		cutoff := m.clock.Now().Add(-m.staleWindow)
		n, err := sweeper.PurgeOlderThan(cutoff)
		if err != nil {
			m.logger.Error(map[string]any{"error": err.Error()}, "Shard purge sweep failed")
			return
		}
		if n > 0 {
			m.logger.Info(map[string]any{"evicted": n, "cutoff": cutoff}, "Shard purge sweep evicted stale shards")
		}
	})
	if err != nil {
		return fmt.Errorf("shardcache: invalid purge spec %q: %w", spec, err)
	}
	c.Start()
	m.cron = c
	return nil
}

// StopPurge halts the sweep schedule. Safe to call when never started.
func (m *Manager) StopPurge() {
	if m.cron != nil {
		m.cron.Stop()
		m.cron = nil
	}
}
