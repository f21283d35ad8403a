// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// EngineConfig holds settings for the conversion engine.
type EngineConfig struct {
	// Workers is the size of the job worker pool (default 4). Each job runs
	// its whole pipeline on one worker.
	Workers int `json:"workers" yaml:"workers"`

	// MemoryCeiling caps the decoded record-buffer bytes held in memory per
	// chunk (default 64 MiB). Larger data blocks are processed in
	// record-aligned chunks.
	MemoryCeiling int64 `json:"memory_ceiling" yaml:"memory_ceiling"`

	// ProgressBuffer is the capacity of the progress notification channel
	// (default 64). Notifications beyond the buffer are dropped.
	ProgressBuffer int `json:"progress_buffer" yaml:"progress_buffer"`
}

// Defaults for EngineConfig fields left at zero.
const (
	DefaultWorkers        = 4
	DefaultMemoryCeiling  = 64 << 20
	DefaultProgressBuffer = 64
)

// Normalized returns a copy with zero fields replaced by defaults.
func (c EngineConfig) Normalized() EngineConfig {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.MemoryCeiling <= 0 {
		c.MemoryCeiling = DefaultMemoryCeiling
	}
	if c.ProgressBuffer <= 0 {
		c.ProgressBuffer = DefaultProgressBuffer
	}
	return c
}

// ConvertConfig holds settings for a batch conversion run.
type ConvertConfig struct {
	// OutputDir is the directory output files are written to.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// Formats lists the output formats to produce per input.
	Formats []FormatTag `json:"formats" yaml:"formats"`

	// KeyDir is an optional directory of per-file decryption keys
	// (hex-encoded, one file per input stem).
	KeyDir string `json:"key_dir,omitempty" yaml:"key_dir,omitempty"`

	// ReportPath, when set, is where the YAML batch report is written.
	ReportPath string `json:"report_path,omitempty" yaml:"report_path,omitempty"`
}
