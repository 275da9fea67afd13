// Package events implements the in-process event bus that coordinates
// the platform's subsystems: typed events, a filter algebra, and
// prioritized, back-pressured dispatch.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Variant is the top-level event kind.
type Variant string

const (
	// VariantConfig indicates a configuration change or load.
	VariantConfig Variant = "config"
	// VariantTask indicates task scheduling or execution progress.
	VariantTask Variant = "task"
	// VariantChangeset indicates version-bump planning or application.
	VariantChangeset Variant = "changeset"
	// VariantHook indicates a lifecycle hook ran.
	VariantHook Variant = "hook"
	// VariantPackage indicates a package-level change (version write,
	// reference rewrite).
	VariantPackage Variant = "package"
	// VariantFileSystem indicates a file was created, modified,
	// deleted, or renamed.
	VariantFileSystem Variant = "filesystem"
	// VariantWorkflow indicates orchestration-level progress.
	VariantWorkflow Variant = "workflow"
)

// Variants lists every event variant, in declaration order.
var Variants = []Variant{
	VariantConfig, VariantTask, VariantChangeset, VariantHook,
	VariantPackage, VariantFileSystem, VariantWorkflow,
}

// Priority orders event processing. Higher values process first.
type Priority int

const (
	// PriorityLow is background noise: progress ticks, cache refreshes.
	PriorityLow Priority = iota
	// PriorityNormal is the default.
	PriorityNormal
	// PriorityHigh is for events a subscriber should see promptly.
	PriorityHigh
	// PriorityCritical preempts everything else in the queue.
	PriorityCritical
)

// priorityNames maps priorities to their wire form.
var priorityNames = map[Priority]string{
	PriorityLow:      "low",
	PriorityNormal:   "normal",
	PriorityHigh:     "high",
	PriorityCritical: "critical",
}

// String returns the wire form of the priority.
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// MarshalJSON writes the priority as its wire string.
func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON reads the wire string form.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for prio, name := range priorityNames {
		if name == s {
			*p = prio
			return nil
		}
	}
	return fmt.Errorf("unknown priority %q", s)
}

// Context carries the metadata every event shares.
type Context struct {
	// EventID is a UUID v4 assigned at construction.
	EventID string `json:"event_id"`
	// Source names the component that emitted the event.
	Source string `json:"source"`
	// Priority orders processing relative to other queued events.
	Priority Priority `json:"priority"`
	// Metadata carries free-form key/value annotations.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Event is one monorepo event. The Variant selects which payload the
// Data field carries; typed accessors live in payloads.go.
type Event struct {
	// Context is the shared event metadata.
	Context Context `json:"context"`
	// Variant is the top-level event kind.
	Variant Variant `json:"variant"`
	// Timestamp is when the event was constructed.
	Timestamp time.Time `json:"timestamp"`
	// Data is the variant-specific payload (JSON-serializable).
	Data map[string]any `json:"data,omitempty"`
}

// Handler consumes events admitted by a subscription's filter. Errors
// are logged by the bus and never stop other handlers.
type Handler func(Event) error
