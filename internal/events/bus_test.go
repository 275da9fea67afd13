package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityOrdering(t *testing.T) {
	bus := NewBus(0)

	var seen []Priority
	bus.Subscribe(All{}, func(e Event) error {
		seen = append(seen, e.Context.Priority)
		return nil
	})

	// Emit in ascending priority; processing must come back descending.
	bus.Emit(New(VariantTask, "test", PriorityLow))
	bus.Emit(New(VariantTask, "test", PriorityNormal))
	bus.Emit(New(VariantTask, "test", PriorityCritical))
	bus.Emit(New(VariantTask, "test", PriorityHigh))

	n := bus.Process(4)
	assert.Equal(t, 4, n)
	assert.Equal(t, []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}, seen)
}

func TestFIFOWithinPriority(t *testing.T) {
	bus := NewBus(0)
	var seen []string
	bus.Subscribe(All{}, func(e Event) error {
		seen = append(seen, e.Context.Source)
		return nil
	})

	for _, source := range []string{"first", "second", "third"} {
		bus.Emit(New(VariantWorkflow, source, PriorityNormal))
	}
	bus.Process(3)
	assert.Equal(t, []string{"first", "second", "third"}, seen)
}

func TestFilterAdmission(t *testing.T) {
	bus := NewBus(0)

	var taskOnly, everything int
	bus.Subscribe(ByType{Variant: VariantTask}, func(Event) error { taskOnly++; return nil })
	bus.Subscribe(All{}, func(Event) error { everything++; return nil })

	bus.Emit(New(VariantTask, "runner", PriorityNormal))
	bus.Process(1)
	assert.Equal(t, 1, taskOnly)
	assert.Equal(t, 1, everything)

	bus.Emit(New(VariantConfig, "loader", PriorityNormal))
	bus.Process(1)
	assert.Equal(t, 1, taskOnly, "config event must not reach the task-only handler")
	assert.Equal(t, 2, everything)
}

func TestFilterAlgebra(t *testing.T) {
	task := New(VariantTask, "runner", PriorityHigh)
	config := New(VariantConfig, "loader", PriorityLow)

	tests := []struct {
		name   string
		filter Filter
		event  Event
		want   bool
	}{
		{"all", All{}, config, true},
		{"by type hit", ByType{VariantTask}, task, true},
		{"by type miss", ByType{VariantTask}, config, false},
		{"by source", BySource{"runner"}, task, true},
		{"by priority at least", ByPriority{PriorityNormal}, task, true},
		{"by priority below", ByPriority{PriorityNormal}, config, false},
		{"and", And{[]Filter{ByType{VariantTask}, BySource{"runner"}}}, task, true},
		{"and short-circuit", And{[]Filter{ByType{VariantConfig}, BySource{"runner"}}}, task, false},
		{"or", Or{[]Filter{ByType{VariantConfig}, BySource{"runner"}}}, task, true},
		{"not", Not{ByType{VariantTask}}, task, false},
		{"custom", Custom{func(e Event) bool { return e.Context.Source == "loader" }}, config, true},
		{"empty and matches", And{}, config, true},
		{"empty or rejects", Or{}, config, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(tt.event))
		})
	}
}

func TestHandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewBus(0)
	var called int
	bus.Subscribe(All{}, func(Event) error { return errors.New("boom") })
	bus.Subscribe(All{}, func(Event) error { panic("worse") })
	bus.Subscribe(All{}, func(Event) error { called++; return nil })

	bus.Emit(New(VariantHook, "test", PriorityNormal))
	bus.Process(1)
	assert.Equal(t, 1, called)
}

func TestOverflowDropsOldestOfLowestPriority(t *testing.T) {
	bus := NewBus(2)
	bus.Emit(New(VariantTask, "low-1", PriorityLow))
	bus.Emit(New(VariantTask, "high", PriorityHigh))
	// Queue full: this emit evicts low-1 (lowest priority, oldest).
	bus.Emit(New(VariantTask, "low-2", PriorityLow))

	var seen []string
	bus.Subscribe(All{}, func(e Event) error {
		seen = append(seen, e.Context.Source)
		return nil
	})
	bus.Process(3)
	assert.Equal(t, []string{"high", "low-2"}, seen)
	assert.Equal(t, uint64(1), bus.Stats().EventsDropped)
}

func TestObserveBestEffort(t *testing.T) {
	bus := NewBus(0)
	ch, stop := bus.Observe(1)
	defer stop()

	bus.Emit(New(VariantPackage, "bumper", PriorityNormal))
	bus.Emit(New(VariantPackage, "bumper", PriorityNormal)) // buffer full, missed

	first := <-ch
	assert.Equal(t, VariantPackage, first.Variant)
	select {
	case e := <-ch:
		t.Fatalf("slow observer should have missed the second event, got %v", e)
	default:
	}
}

func TestStatsMonotone(t *testing.T) {
	bus := NewBus(0)
	id := bus.Subscribe(All{}, func(Event) error { return nil })

	bus.Emit(New(VariantTask, "a", PriorityNormal))
	bus.Emit(New(VariantConfig, "b", PriorityCritical))
	bus.Process(2)

	s := bus.Stats()
	assert.Equal(t, uint64(2), s.EventsEmitted)
	assert.Equal(t, uint64(2), s.EventsProcessed)
	assert.Equal(t, uint64(1), s.ActiveSubscriptions)
	assert.Equal(t, uint64(1), s.PerType[VariantTask])
	assert.Equal(t, uint64(1), s.PerType[VariantConfig])
	assert.Equal(t, uint64(1), s.PerPriority[PriorityCritical])

	bus.Unsubscribe(id)
	assert.Zero(t, bus.Stats().ActiveSubscriptions)

	bus.ResetStats()
	assert.Zero(t, bus.Stats().EventsEmitted)
}

func TestEventSerializationStable(t *testing.T) {
	e := New(VariantChangeset, "bumper", PriorityHigh)
	e, err := e.WithData(ChangesetData{Description: "release", Packages: []string{"lib"}, Mode: "preview"})
	require.NoError(t, err)

	// event_id is a UUID v4.
	id, err := uuid.Parse(e.Context.EventID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), id.Version())

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var back Event
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, e.Variant, back.Variant)
	assert.Equal(t, PriorityHigh, back.Context.Priority)

	payload, err := back.ChangesetData()
	require.NoError(t, err)
	assert.Equal(t, "release", payload.Description)
	assert.Equal(t, []string{"lib"}, payload.Packages)
}

func TestPriorityJSON(t *testing.T) {
	data, err := json.Marshal(PriorityCritical)
	require.NoError(t, err)
	assert.Equal(t, `"critical"`, string(data))

	var p Priority
	require.NoError(t, json.Unmarshal([]byte(`"high"`), &p))
	assert.Equal(t, PriorityHigh, p)
	assert.Error(t, json.Unmarshal([]byte(`"urgent"`), &p))
}
