// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/mf4bridge/pkg/types"
)

func TestWrite(t *testing.T) {
	statuses := []types.JobStatus{
		{
			ID:       "job-1",
			Input:    "/logs/drive.mf4",
			Stage:    types.StageSucceeded,
			Fraction: 1,
			Frames:   42,
			Formats: []types.FormatResult{
				{Format: types.FormatCSV, State: types.FormatWritten, Path: "out/drive.csv"},
			},
		},
		{
			ID:    "job-2",
			Input: "/logs/broken.mf4",
			Stage: types.StageFailed,
			Error: "mdf: corrupt container",
		},
	}

	path := filepath.Join(t.TempDir(), "report.yaml")
	require.NoError(t, Write(path, statuses))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Batch
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.NotEmpty(t, got.GeneratedAt)
	assert.Equal(t, 1, got.Converted)
	assert.Equal(t, 1, got.Failed)
	require.Len(t, got.Jobs, 2)
	assert.Equal(t, "job-1", got.Jobs[0].ID)
	assert.Equal(t, 42, got.Jobs[0].Frames)
	assert.Equal(t, types.StageFailed, got.Jobs[1].Stage)
}

func TestWrite_BadPath(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "missing", "report.yaml"), nil)
	assert.Error(t, err)
}
