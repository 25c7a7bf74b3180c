package manager

import (
	"context"
	"time"
)

// ReapIdle closes sessions unused for longer than the idle timeout in every
// pool. It returns the number of sessions closed.
func (m *Manager) ReapIdle() int {
	if m.idleTimeout <= 0 {
		return 0
	}
	m.mu.RLock()
	pools := make([]*Pool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.mu.RUnlock()
	n := 0
	for _, p := range pools {
		n += p.Reap(m.idleTimeout)
	}
	return n
}

// StartReaper runs ReapIdle every half idle timeout until ctx is done. It is
// a no-op when no idle timeout is configured.
func (m *Manager) StartReaper(ctx context.Context) {
	if m.idleTimeout <= 0 {
		return
	}
	interval := m.idleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := m.ReapIdle(); n > 0 {
					m.logger().Debug().Str("event", "session_reap").Int("closed", n).Msg("manager")
				}
			}
		}
	}()
}
