package manager

import (
	"time"

	"ttsd/pkg/types"
)

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var cur *ModelInfo
	if m.cur != nil {
		c := *m.cur
		cur = &c
	}
	return Snapshot{State: m.state, CurrentModel: cur, Err: m.err}
}

// PoolSnapshot builds the diagnostics view of every pool. It never takes the
// lifecycle lock, so it stays available during a stuck reinitialize.
func (m *Manager) PoolSnapshot() types.SessionPoolsResponse {
	m.mu.RLock()
	cpu := m.pools[BackendCPU]
	gpu := m.pools[BackendGPU]
	cfg := m.poolCfg
	m.mu.RUnlock()

	now := time.Now()
	var resp types.SessionPoolsResponse
	if cpu != nil {
		resp.CPU = poolReport(cpu.View(), now)
	} else {
		resp.CPU = &types.PoolReport{MaxSessions: cfg.CPUMaxSessions, Sessions: []types.PoolSession{}}
	}
	if gpu != nil {
		resp.GPU = poolReport(gpu.View(), now)
	}
	return resp
}

func poolReport(v PoolView, now time.Time) *types.PoolReport {
	r := &types.PoolReport{
		ActiveSessions: len(v.Sessions),
		MaxSessions:    v.MaxSize,
		Sessions:       make([]types.PoolSession, 0, len(v.Sessions)),
	}
	if v.Backend == BackendGPU {
		avail := v.StreamsAvailable
		r.MaxStreams = v.StreamsTotal
		r.AvailableStreams = &avail
	}
	for _, s := range v.Sessions {
		ps := types.PoolSession{
			Model:      s.ArtifactID,
			AgeSeconds: now.Sub(s.LastUsed).Seconds(),
			InUse:      s.Inflight > 0,
		}
		if s.StreamID != noStream {
			id := s.StreamID
			ps.StreamID = &id
		}
		r.Sessions = append(r.Sessions, ps)
	}
	return r
}

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	resp := types.StatusResponse{
		State:     string(m.state),
		Device:    string(m.device),
		LastError: m.err,
	}
	if m.cur != nil {
		resp.CurrentModel = m.cur.ID
	}
	pools := make([]*Pool, 0, len(m.pools))
	for _, k := range []BackendKind{BackendCPU, BackendGPU} {
		if p := m.pools[k]; p != nil {
			pools = append(pools, p)
		}
	}
	m.mu.RUnlock()

	resp.Backends = make([]types.BackendStatus, 0, len(pools))
	loads := m.retiredLoads.Load()
	evictions := m.retiredEvictions.Load()
	for _, p := range pools {
		v := p.View()
		resp.Backends = append(resp.Backends, types.BackendStatus{
			Backend:          string(v.Backend),
			Sessions:         len(v.Sessions),
			MaxSessions:      v.MaxSize,
			Inflight:         v.Inflight,
			StreamsTotal:     v.StreamsTotal,
			StreamsAvailable: v.StreamsAvailable,
		})
		loads += p.loadsTotal.Load()
		evictions += p.evictionsTotal.Load()
	}
	resp.ActiveLeases = int64(m.leases.count())
	resp.LoadsTotal = loads
	resp.EvictionsTotal = evictions
	resp.InitsTotal = m.initsTotal.Load()
	resp.UptimeSeconds = int64(time.Since(m.startTime).Seconds())
	resp.ServerTimeUnix = time.Now().Unix()
	return resp
}
