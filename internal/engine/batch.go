// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/pdiddy/mf4bridge/pkg/types"
)

// BatchResult holds the outcome of a batch conversion run.
type BatchResult struct {
	Converted int
	Failed    int
	Cancelled int
	Rejected  int
}

// Total returns the total number of inputs processed.
func (r BatchResult) Total() int {
	return r.Converted + r.Failed + r.Cancelled + r.Rejected
}

// HasFailures reports whether any input failed or was rejected.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0 || r.Rejected > 0
}

// RunBatch submits every input against the configured formats, waits for
// completion and prints per-file status lines to w, returning the final job
// statuses and a summary. keys maps input stems to decryption keys.
func RunBatch(e *Engine, paths []string, cfg types.ConvertConfig, keys map[string][]byte, w io.Writer) ([]types.JobStatus, BatchResult) {
	var result BatchResult
	ids := make([]string, 0, len(paths))
	for _, path := range paths {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		id, err := e.Submit(path, cfg.Formats, cfg.OutputDir, keys[stem])
		if err != nil {
			fmt.Fprintf(w, "rejected:  %s (%v)\n", path, err)
			result.Rejected++
			continue
		}
		ids = append(ids, id)
	}

	statuses := make([]types.JobStatus, 0, len(ids))
	for _, id := range ids {
		st, err := e.Wait(id)
		if err != nil {
			fmt.Fprintf(w, "failed:    %s (%v)\n", id, err)
			result.Failed++
			continue
		}
		statuses = append(statuses, st)
		name := filepath.Base(st.Input)
		switch st.Stage {
		case types.StageSucceeded:
			written := 0
			for _, fr := range st.Formats {
				if fr.State == types.FormatWritten {
					written++
				}
			}
			fmt.Fprintf(w, "converted: %s (%d frames, %d/%d formats)\n", name, st.Frames, written, len(st.Formats))
			for _, fr := range st.Formats {
				if fr.State == types.FormatFailed {
					fmt.Fprintf(w, "  format %s failed: %s\n", fr.Format, fr.Error)
				}
			}
			for _, ge := range st.GroupErrors {
				fmt.Fprintf(w, "  skipped group: %s\n", ge)
			}
			result.Converted++
		case types.StageCancelled:
			fmt.Fprintf(w, "cancelled: %s\n", name)
			result.Cancelled++
		default:
			fmt.Fprintf(w, "failed:    %s (%s)\n", name, st.Error)
			result.Failed++
		}
	}
	fmt.Fprintf(w, "\nBatch summary: %d converted, %d failed, %d cancelled, %d rejected (total: %d)\n",
		result.Converted, result.Failed, result.Cancelled, result.Rejected, result.Total())
	return statuses, result
}
