package events

// Filter decides whether a subscription receives an event. Filters
// compose into a small algebra; Custom escapes to an arbitrary
// predicate.
type Filter interface {
	Matches(Event) bool
}

// All matches every event.
type All struct{}

func (All) Matches(Event) bool { return true }

// ByType matches one top-level variant.
type ByType struct {
	Variant Variant
}

func (f ByType) Matches(e Event) bool { return e.Variant == f.Variant }

// BySource matches the emitting component.
type BySource struct {
	Source string
}

func (f BySource) Matches(e Event) bool { return e.Context.Source == f.Source }

// ByPriority matches events at or above a minimum priority.
type ByPriority struct {
	Min Priority
}

func (f ByPriority) Matches(e Event) bool { return e.Context.Priority >= f.Min }

// And matches when every inner filter matches. An empty And matches
// everything, mirroring the empty condition list elsewhere.
type And struct {
	Filters []Filter
}

func (f And) Matches(e Event) bool {
	for _, inner := range f.Filters {
		if !inner.Matches(e) {
			return false
		}
	}
	return true
}

// Or matches when any inner filter matches.
type Or struct {
	Filters []Filter
}

func (f Or) Matches(e Event) bool {
	for _, inner := range f.Filters {
		if inner.Matches(e) {
			return true
		}
	}
	return false
}

// Not inverts its inner filter.
type Not struct {
	Inner Filter
}

func (f Not) Matches(e Event) bool { return !f.Inner.Matches(e) }

// Custom matches via an arbitrary predicate.
type Custom struct {
	Predicate func(Event) bool
}

func (f Custom) Matches(e Event) bool { return f.Predicate(e) }
