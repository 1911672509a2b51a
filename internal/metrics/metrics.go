package metrics

import "sync"

// Event names.
const (
	SessionsAdmitted   = "sessions_admitted"
	SessionsRejected   = "sessions_rejected"
	SessionsSuperseded = "sessions_superseded"
	SessionsEvicted    = "sessions_evicted"
	SessionsClosed     = "sessions_closed"

	MessagesRouted     = "messages_routed"
	DroppedMalformed   = "messages_dropped_malformed"
	DroppedUnknown     = "messages_dropped_unknown"
	DroppedAbsent      = "messages_dropped_absent"
	DroppedRateLimited = "messages_dropped_rate_limited"
	PresenceBroadcasts = "presence_broadcasts"
	SendFailures       = "send_failures"
	PanelsDeactivated  = "panels_deactivated"
	DirectoryFailures  = "directory_failures"
	IdentityFailures   = "identity_failures"
)

// Metrics is a concurrency-safe counter registry. A nil *Metrics discards updates.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
