package entity

import "time"

type FieldSummary struct {
	Tag          string `json:"tag"`
	Type         string `json:"type,omitempty"`
	Name         string `json:"name,omitempty"`
	Autocomplete string `json:"autocomplete,omitempty"`
	TestID       string `json:"testid,omitempty"`
	Role         string `json:"role,omitempty"`
	Text         string `json:"text,omitempty"`
}

// DiagnosticsEntry is written once and never mutated. Refs are file paths; an
// empty ref means that artifact could not be captured.
type DiagnosticsEntry struct {
	ID             EvidenceRef    `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	Label          string         `json:"label"`
	URL            string         `json:"url,omitempty"`
	DOMSnapshotRef string         `json:"domSnapshotRef,omitempty"`
	ScreenshotRef  string         `json:"screenshotRef,omitempty"`
	Fields         []FieldSummary `json:"fields,omitempty"`
}
