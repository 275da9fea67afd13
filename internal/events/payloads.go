package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New constructs an event with a fresh UUID and the current time.
func New(variant Variant, source string, priority Priority) Event {
	return Event{
		Context: Context{
			EventID:  uuid.NewString(),
			Source:   source,
			Priority: priority,
		},
		Variant:   variant,
		Timestamp: time.Now(),
	}
}

// ConfigData is the payload of config events.
type ConfigData struct {
	// Path is the configuration file involved.
	Path string `json:"path,omitempty"`
	// Action is what happened: "loaded", "changed", "invalid".
	Action string `json:"action"`
	// Detail is a human-readable elaboration.
	Detail string `json:"detail,omitempty"`
}

// TaskData is the payload of task events.
type TaskData struct {
	// TaskName identifies the task definition.
	TaskName string `json:"task_name"`
	// Package is the workspace package being processed, if any.
	Package string `json:"package,omitempty"`
	// Status is the task state: "started", "succeeded", "failed",
	// "skipped", "timed_out".
	Status string `json:"status"`
	// DurationMs is the elapsed wall-clock time in milliseconds.
	DurationMs int64 `json:"duration_ms,omitempty"`
	// Reason elaborates failed and skipped statuses.
	Reason string `json:"reason,omitempty"`
}

// ChangesetData is the payload of changeset events.
type ChangesetData struct {
	// Description is the change-set description.
	Description string `json:"description"`
	// Packages are the primary target packages.
	Packages []string `json:"packages,omitempty"`
	// Mode is "preview" or "apply".
	Mode string `json:"mode"`
	// BumpCount is the total number of planned bumps.
	BumpCount int `json:"bump_count,omitempty"`
}

// HookData is the payload of hook events.
type HookData struct {
	// Hook is the lifecycle point: "pre-bump", "post-bump", "pre-task".
	Hook string `json:"hook"`
	// Script is the command that ran.
	Script string `json:"script,omitempty"`
	// ExitCode is the script's exit code.
	ExitCode int `json:"exit_code"`
}

// PackageData is the payload of package events.
type PackageData struct {
	// Package is the package name.
	Package string `json:"package"`
	// Action is what happened: "version_written", "reference_updated",
	// "discovered".
	Action string `json:"action"`
	// Version is the package version after the action.
	Version string `json:"version,omitempty"`
	// Detail elaborates the action (e.g. the rewritten dependency).
	Detail string `json:"detail,omitempty"`
}

// FileSystemData is the payload of filesystem events.
type FileSystemData struct {
	// Path is the affected file.
	Path string `json:"path"`
	// Operation is "created", "modified", "deleted", or "renamed".
	Operation string `json:"operation"`
	// Package is the owning workspace package, when known.
	Package string `json:"package,omitempty"`
}

// WorkflowData is the payload of workflow events.
type WorkflowData struct {
	// Workflow names the orchestration: "release", "ci", "development".
	Workflow string `json:"workflow"`
	// Phase is the current phase within the workflow.
	Phase string `json:"phase"`
	// Status is "started", "completed", "failed", or "cancelled".
	Status string `json:"status"`
	// Detail is a human-readable elaboration.
	Detail string `json:"detail,omitempty"`
}

// structToMap converts a payload struct to the generic Data form.
func structToMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// mapToStruct converts the generic Data form back to a payload struct.
func mapToStruct(m map[string]any, v any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// WithData returns a copy of e carrying the given payload. The payload
// must be one of the *Data structs matching e.Variant; mismatches are
// the caller's bug and surface as garbage on read, not here.
func (e Event) WithData(payload any) (Event, error) {
	m, err := structToMap(payload)
	if err != nil {
		return e, fmt.Errorf("encode %s payload: %w", e.Variant, err)
	}
	e.Data = m
	return e, nil
}

// TaskData decodes the payload of a task event.
func (e Event) TaskData() (*TaskData, error) {
	var d TaskData
	if err := mapToStruct(e.Data, &d); err != nil {
		return nil, fmt.Errorf("decode task payload: %w", err)
	}
	return &d, nil
}

// ChangesetData decodes the payload of a changeset event.
func (e Event) ChangesetData() (*ChangesetData, error) {
	var d ChangesetData
	if err := mapToStruct(e.Data, &d); err != nil {
		return nil, fmt.Errorf("decode changeset payload: %w", err)
	}
	return &d, nil
}

// PackageData decodes the payload of a package event.
func (e Event) PackageData() (*PackageData, error) {
	var d PackageData
	if err := mapToStruct(e.Data, &d); err != nil {
		return nil, fmt.Errorf("decode package payload: %w", err)
	}
	return &d, nil
}

// FileSystemData decodes the payload of a filesystem event.
func (e Event) FileSystemData() (*FileSystemData, error) {
	var d FileSystemData
	if err := mapToStruct(e.Data, &d); err != nil {
		return nil, fmt.Errorf("decode filesystem payload: %w", err)
	}
	return &d, nil
}

// WorkflowData decodes the payload of a workflow event.
func (e Event) WorkflowData() (*WorkflowData, error) {
	var d WorkflowData
	if err := mapToStruct(e.Data, &d); err != nil {
		return nil, fmt.Errorf("decode workflow payload: %w", err)
	}
	return &d, nil
}
