// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
)

// FormatTag identifies one of the supported output formats.
type FormatTag string

const (
	FormatCSV FormatTag = "csv"
	FormatASC FormatTag = "asc"
	FormatTRC FormatTag = "trc"
)

// AllFormats lists the supported format tags in canonical order.
var AllFormats = []FormatTag{FormatCSV, FormatASC, FormatTRC}

// ParseFormatTag maps a user-supplied format name to its tag.
func ParseFormatTag(s string) (FormatTag, error) {
	switch FormatTag(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatASC:
		return FormatASC, nil
	case FormatTRC:
		return FormatTRC, nil
	}
	return "", fmt.Errorf("unknown output format %q (want csv, asc or trc)", s)
}

// Extension returns the output file extension for the tag, with leading dot.
func (t FormatTag) Extension() string {
	return "." + string(t)
}

// JobStage is the coordinator-visible lifecycle stage of a conversion job.
type JobStage string

const (
	StageQueued     JobStage = "queued"
	StageParsing    JobStage = "parsing"
	StageDecoding   JobStage = "decoding"
	StageExtracting JobStage = "extracting"
	StageEncoding   JobStage = "encoding"
	StageSucceeded  JobStage = "succeeded"
	StageFailed     JobStage = "failed"
	StageCancelled  JobStage = "cancelled"
)

// Terminal reports whether the stage is a final one.
func (s JobStage) Terminal() bool {
	return s == StageSucceeded || s == StageFailed || s == StageCancelled
}

// FormatState is the per-format outcome within one job.
type FormatState string

const (
	FormatPending FormatState = "pending"
	FormatWritten FormatState = "written"
	FormatFailed  FormatState = "failed"
	FormatSkipped FormatState = "skipped"
)

// FormatResult reports one output format's outcome for a job.
type FormatResult struct {
	// Format is the requested output format.
	Format FormatTag `json:"format" yaml:"format"`

	// State is the outcome for this format.
	State FormatState `json:"state" yaml:"state"`

	// Path is the output file path (set once encoding starts).
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Error holds the encoding failure, if any.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// JobStatus is the poll-visible snapshot of one conversion job.
type JobStatus struct {
	// ID is the job identifier returned by Submit.
	ID string `json:"id" yaml:"id"`

	// Input is the source file path.
	Input string `json:"input" yaml:"input"`

	// Stage is the current lifecycle stage.
	Stage JobStage `json:"stage" yaml:"stage"`

	// Fraction is the overall completion fraction in [0,1].
	Fraction float64 `json:"fraction" yaml:"fraction"`

	// Frames is the number of CAN frame events extracted so far.
	Frames int `json:"frames" yaml:"frames"`

	// Formats holds the per-format outcomes.
	Formats []FormatResult `json:"formats" yaml:"formats"`

	// GroupErrors lists per-channel-group extraction failures that did not
	// abort the job (the group's events are absent from the output).
	GroupErrors []string `json:"group_errors,omitempty" yaml:"group_errors,omitempty"`

	// Error holds the fatal error for failed jobs.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Succeeded reports whether the job reached the succeeded stage.
func (s JobStatus) Succeeded() bool {
	return s.Stage == StageSucceeded
}

// ProgressEvent is one best-effort progress notification. Consumers that do
// not keep up lose events; the job status remains authoritative.
type ProgressEvent struct {
	JobID    string   `json:"job_id"`
	Stage    JobStage `json:"stage"`
	Fraction float64  `json:"fraction"`
}
