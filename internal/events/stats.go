package events

// Stats are the bus counters. All counters are monotone non-decreasing
// under every operation except ResetStats.
type Stats struct {
	// EventsEmitted counts events accepted by Emit.
	EventsEmitted uint64 `json:"events_emitted"`
	// EventsProcessed counts events dispatched by Process.
	EventsProcessed uint64 `json:"events_processed"`
	// EventsDropped counts events evicted by queue overflow.
	EventsDropped uint64 `json:"events_dropped"`
	// ActiveSubscriptions is the current subscription count.
	ActiveSubscriptions uint64 `json:"active_subscriptions"`
	// PerType counts emitted events by variant.
	PerType map[Variant]uint64 `json:"per_type"`
	// PerPriority counts emitted events by priority.
	PerPriority map[Priority]uint64 `json:"per_priority"`
}

// clone deep-copies the stats so callers never alias the live maps.
func (s Stats) clone() Stats {
	out := s
	out.PerType = make(map[Variant]uint64, len(s.PerType))
	for k, v := range s.PerType {
		out.PerType[k] = v
	}
	out.PerPriority = make(map[Priority]uint64, len(s.PerPriority))
	for k, v := range s.PerPriority {
		out.PerPriority[k] = v
	}
	return out
}
