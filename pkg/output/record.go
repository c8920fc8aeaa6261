// Package output provides the JSONL event stream for manifest runs.
//
// Every line is a typed record envelope carrying a partition outcome, an
// error, a progress update, or the final summary. Each line is a
// self-contained JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: objmanifest.<type>.v<version>
const (
	// TypePartition identifies per-partition outcome records.
	TypePartition = "objmanifest.partition.v1"

	// TypeError identifies error records.
	TypeError = "objmanifest.error.v1"

	// TypeProgress identifies progress update records.
	TypeProgress = "objmanifest.progress.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "objmanifest.summary.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "objmanifest.partition.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID is the correlation ID for this run.
	RunID string `json:"run_id"`

	// Provider identifies the storage provider (e.g., "s3", "minio").
	Provider string `json:"provider"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// PartitionRecord is the data payload for one finished partition.
type PartitionRecord struct {
	// Partition is the listed prefix, e.g. "00aa".
	Partition string `json:"partition"`

	// Status is one of "success", "empty" or "failed".
	Status string `json:"status"`

	// Objects is the number of objects written to the manifest.
	Objects int `json:"objects"`

	// Manifest is the manifest path, set only when one was written.
	Manifest string `json:"manifest,omitempty"`

	// DurationMS is the wall time spent on the partition.
	DurationMS int64 `json:"duration_ms"`

	// ErrorCode is a machine-readable code for failed partitions.
	ErrorCode string `json:"error_code,omitempty"`
}

// ErrorRecord is the data payload for errors.
//
// Errors are emitted as records rather than failing the run, so a stream
// consumer sees every failed partition.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Partition is the partition being processed, if applicable.
	Partition string `json:"partition,omitempty"`
}

// ProgressRecord is the data payload for progress updates.
type ProgressRecord struct {
	// Phase indicates the current run phase.
	Phase string `json:"phase"`

	// Finished is the number of partitions completed so far.
	Finished int64 `json:"finished"`

	// Total is the number of partitions in the run.
	Total int `json:"total"`

	// Objects is the running object count.
	Objects int64 `json:"objects"`
}

// Progress phase constants.
const (
	// PhaseStarting indicates the run is about to dispatch.
	PhaseStarting = "starting"

	// PhaseListing indicates partitions are being processed.
	PhaseListing = "listing"

	// PhaseComplete indicates the run has drained.
	PhaseComplete = "complete"
)

// SummaryRecord is the data payload for final summaries.
type SummaryRecord struct {
	Partitions int   `json:"partitions"`
	Succeeded  int   `json:"succeeded"`
	Empty      int   `json:"empty"`
	Failed     int   `json:"failed"`
	Objects    int64 `json:"objects"`

	// Undispatched counts partitions never started because the run was
	// cancelled. They are included in Failed.
	Undispatched int `json:"undispatched,omitempty"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`

	// FailedPartitions lists partitions to retry.
	FailedPartitions []string `json:"failed_partitions,omitempty"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
