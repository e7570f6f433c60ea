// Package eventlog keeps the most recent stored events and visited domains in
// bounded, most-recent-first in-memory logs.
//
// The log is process state: empty at start, bounded while running, discarded
// on shutdown. All methods are safe for concurrent use.
package eventlog

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/mbd888/pagewatch/internal/events"
	"github.com/mbd888/pagewatch/internal/metrics"
	"github.com/mbd888/pagewatch/internal/validation"
)

// Default capacities.
const (
	EventCapacity  = 500
	DomainCapacity = 200
)

// StoredEvent is an event as recorded by a client (or synthesized from a
// phishing verdict). Meta is kept as free-form JSON.
type StoredEvent struct {
	TS      time.Time
	Type    events.EventType
	URL     string
	Meta    map[string]any
	Reasons []string
	OK      *bool
}

// MarshalJSON renders ts as UTC and reasons as [] when empty.
func (e StoredEvent) MarshalJSON() ([]byte, error) {
	reasons := e.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return json.Marshal(struct {
		TS      string           `json:"ts"`
		Type    events.EventType `json:"type"`
		URL     string           `json:"url"`
		Meta    map[string]any   `json:"meta"`
		Reasons []string         `json:"reasons"`
		OK      *bool            `json:"ok"`
	}{events.FormatTime(e.TS), e.Type, e.URL, e.Meta, reasons, e.OK})
}

// StoredDomain is a hostname and the last time it was seen.
type StoredDomain struct {
	Domain string
	TS     time.Time
}

// MarshalJSON renders ts as UTC.
func (d StoredDomain) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Domain string `json:"domain"`
		TS     string `json:"ts"`
	}{d.Domain, events.FormatTime(d.TS)})
}

// Log holds the event and domain logs behind one mutex.
type Log struct {
	mu        sync.Mutex
	events    []StoredEvent
	domains   []StoredDomain
	eventCap  int
	domainCap int
	now       func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the time source used for domain timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithCapacity overrides the default capacities. Non-positive values keep the default.
func WithCapacity(eventCap, domainCap int) Option {
	return func(l *Log) {
		if eventCap > 0 {
			l.eventCap = eventCap
		}
		if domainCap > 0 {
			l.domainCap = domainCap
		}
	}
}

// New creates an empty log.
func New(opts ...Option) *Log {
	l := &Log{
		eventCap:  EventCapacity,
		domainCap: DomainCapacity,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the log's current time in UTC.
func (l *Log) Now() time.Time {
	return l.now().UTC()
}

// PushEvent records e as the most recent event, evicting the oldest beyond capacity.
func (l *Log) PushEvent(e StoredEvent) {
	l.mu.Lock()
	l.events = append(l.events, StoredEvent{})
	copy(l.events[1:], l.events)
	l.events[0] = e
	if len(l.events) > l.eventCap {
		clear(l.events[l.eventCap:])
		l.events = l.events[:l.eventCap]
	}
	n := len(l.events)
	l.mu.Unlock()

	metrics.EventLogSize.WithLabelValues("events").Set(float64(n))
}

// PushDomain records the hostname of rawURL as the most recently seen domain.
// A hostname already present is moved to the front with a fresh timestamp.
// URLs without a hostname are ignored and reported with ok=false.
func (l *Log) PushDomain(rawURL string) (StoredDomain, bool) {
	host := validation.Hostname(rawURL)
	if host == "" {
		return StoredDomain{}, false
	}
	d := StoredDomain{Domain: host, TS: l.Now()}

	l.mu.Lock()
	for i, existing := range l.domains {
		if existing.Domain == host {
			l.domains = append(l.domains[:i], l.domains[i+1:]...)
			break
		}
	}
	l.domains = append(l.domains, StoredDomain{})
	copy(l.domains[1:], l.domains)
	l.domains[0] = d
	if len(l.domains) > l.domainCap {
		l.domains = l.domains[:l.domainCap]
	}
	n := len(l.domains)
	l.mu.Unlock()

	metrics.EventLogSize.WithLabelValues("domains").Set(float64(n))
	return d, true
}

// Events returns a copy of up to limit most recent events, newest first.
// Negative limits yield an empty list; limits above capacity are clamped.
func (l *Log) Events(limit int) []StoredEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := clamp(limit, l.eventCap, len(l.events))
	out := make([]StoredEvent, n)
	copy(out, l.events[:n])
	return out
}

// Domains returns a copy of up to limit most recent domains, newest first.
func (l *Log) Domains(limit int) []StoredDomain {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := clamp(limit, l.domainCap, len(l.domains))
	out := make([]StoredDomain, n)
	copy(out, l.domains[:n])
	return out
}

// Len returns the number of stored events and domains.
func (l *Log) Len() (eventCount, domainCount int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events), len(l.domains)
}

// Capacity returns the configured event and domain capacities.
func (l *Log) Capacity() (eventCap, domainCap int) {
	return l.eventCap, l.domainCap
}

func clamp(limit, capacity, size int) int {
	n := max(0, min(limit, capacity))
	return min(n, size)
}
