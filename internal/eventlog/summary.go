package eventlog

// Summary folds stored events into counts.
type Summary struct {
	TotalEvents int            `json:"total_events"`
	EventTypes  map[string]int `json:"event_types"`
	Reasons     map[string]int `json:"reasons"`
	Events      []StoredEvent  `json:"events"`
}

// BuildSummary counts event types (skipping empty ones) and every reason tag.
// Synthesized phishing events are counted like any other.
func BuildSummary(evs []StoredEvent) *Summary {
	s := &Summary{
		TotalEvents: len(evs),
		EventTypes:  make(map[string]int),
		Reasons:     make(map[string]int),
		Events:      evs,
	}
	if s.Events == nil {
		s.Events = []StoredEvent{}
	}
	for _, e := range evs {
		if e.Type != "" {
			s.EventTypes[string(e.Type)]++
		}
		for _, r := range e.Reasons {
			s.Reasons[r]++
		}
	}
	return s
}
