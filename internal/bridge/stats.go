package bridge

import "time"

// Health summarizes the bridge's overall condition.
type Health string

const (
	HealthHealthy          Health = "healthy"
	HealthIdle             Health = "idle"
	HealthSessionsExpiring Health = "warning_sessions_expiring"
	HealthConnectionIssues Health = "warning_connection_issues"
)

// SessionStat describes one live session in a stats snapshot.
type SessionStat struct {
	ClientID string        `json:"clientId"`
	UserID   string        `json:"userId,omitempty"`
	State    string        `json:"state"`
	Age      time.Duration `json:"age"`
}

// Snapshot is a point-in-time view of the bridge.
type Snapshot struct {
	ActiveClients       int           `json:"activeClients"`
	ActiveUpstreams     int           `json:"activeUpstreams"`
	ActiveRenewalTimers int           `json:"activeRenewalTimers"`
	Sessions            []SessionStat `json:"sessions"`

	// SessionsNeedingRenewal counts sessions aged past the warning threshold.
	SessionsNeedingRenewal int `json:"sessionsNeedingRenewal"`

	// SessionsNearExpiration counts sessions aged past the renewal threshold.
	SessionsNearExpiration int `json:"sessionsNearExpiration"`

	Health Health `json:"health"`
}

// Stats returns a point-in-time snapshot of every live session.
func (b *Bridge) Stats() Snapshot {
	now := b.now()

	b.mu.Lock()
	live := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		live = append(live, s)
	}
	b.mu.Unlock()

	snap := Snapshot{Sessions: make([]SessionStat, 0, len(live))}
	connectionIssues := 0

	for _, s := range live {
		s.mu.Lock()
		state := s.state
		age := now.Sub(s.startedAt)
		hasUpstream := s.upstream != nil
		attempts := s.reconnectAttempts
		renewTimerArmed := s.renewTimer != nil && !s.closed
		userID := s.userID
		s.mu.Unlock()

		snap.ActiveClients++
		if hasUpstream {
			snap.ActiveUpstreams++
		}
		if renewTimerArmed {
			snap.ActiveRenewalTimers++
		}
		if age >= b.warnAfter {
			snap.SessionsNeedingRenewal++
		}
		if age >= b.renewAfter {
			snap.SessionsNearExpiration++
		}
		if attempts > 0 || state == StateRenewing {
			connectionIssues++
		}

		snap.Sessions = append(snap.Sessions, SessionStat{
			ClientID: s.clientID,
			UserID:   userID,
			State:    state.String(),
			Age:      age,
		})
	}

	switch {
	case snap.ActiveClients == 0:
		snap.Health = HealthIdle
	case connectionIssues > 0:
		snap.Health = HealthConnectionIssues
	case snap.SessionsNeedingRenewal > 0 || snap.SessionsNearExpiration > 0:
		snap.Health = HealthSessionsExpiring
	default:
		snap.Health = HealthHealthy
	}

	return snap
}
