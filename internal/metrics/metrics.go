package metrics

import "sync"

// Event counter names used across the relay.
const (
	Join                           = "join"
	JoinRejectedFull               = "join_rejected_full"
	Departure                      = "departure"
	ForwardDroppedUnknownRecipient = "forward_dropped_unknown_recipient"
	ForwardDroppedBackpressure     = "forward_dropped_backpressure"
	MalformedMessage               = "malformed_message"
	ProtocolViolation              = "protocol_violation"
	RateLimited                    = "rate_limited"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// A production deployment is expected to scrape these via the Prometheus
// text handler; the registry itself stays simple so the relay logic remains
// testable without a metrics backend.
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
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Add(name string, delta uint64) {
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
