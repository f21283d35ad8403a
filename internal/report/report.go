// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report writes the YAML batch report consumed by callers that want
// machine-readable conversion results.
package report

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/mf4bridge/pkg/types"
)

// Batch is the report document: one entry per job plus run totals.
type Batch struct {
	// GeneratedAt is the report creation time, RFC 3339 UTC.
	GeneratedAt string `yaml:"generated_at"`

	// Jobs holds the final status of every job in submit order.
	Jobs []types.JobStatus `yaml:"jobs"`

	// Converted and Failed are run totals over Jobs.
	Converted int `yaml:"converted"`
	Failed    int `yaml:"failed"`
}

// Write renders the batch report for the given job statuses to path.
func Write(path string, statuses []types.JobStatus) error {
	b := Batch{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Jobs:        statuses,
	}
	for _, st := range statuses {
		if st.Succeeded() {
			b.Converted++
		} else {
			b.Failed++
		}
	}

	data, err := yaml.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report %s: %w", path, err)
	}
	return nil
}
