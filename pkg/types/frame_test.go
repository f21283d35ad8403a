// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDLCLength(t *testing.T) {
	tests := []struct {
		dlc  uint8
		want int
	}{
		{0, 0},
		{1, 1},
		{8, 8},
		{9, 12},
		{10, 16},
		{12, 24},
		{15, 64},
		{16, -1},
		{255, -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DLCLength(tt.dlc), "dlc %d", tt.dlc)
	}
}

func TestFrameValidate(t *testing.T) {
	valid := Frame{Timestamp: 1.5, ID: 0x123, DLC: 2, Data: []byte{1, 2}}

	tests := []struct {
		name   string
		mutate func(*Frame)
		want   error
	}{
		{"valid", func(*Frame) {}, nil},
		{"standard ID too large", func(f *Frame) { f.ID = 0x800 }, ErrInvalidID},
		{"extended ID in range", func(f *Frame) { f.ID = 0x1FFFFFFF; f.Extended = true }, nil},
		{"extended ID too large", func(f *Frame) { f.ID = 0x20000000; f.Extended = true }, ErrInvalidID},
		{"DLC out of range", func(f *Frame) { f.DLC = 16 }, ErrInvalidDLC},
		{"payload shorter than DLC", func(f *Frame) { f.Data = f.Data[:1] }, ErrPayloadLength},
		{"FD payload length", func(f *Frame) { f.DLC = 9; f.Data = make([]byte, 12) }, nil},
		{"negative timestamp", func(f *Frame) { f.Timestamp = -0.001 }, ErrNegativeTime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid
			f.Data = append([]byte(nil), valid.Data...)
			tt.mutate(&f)
			if tt.want == nil {
				assert.NoError(t, f.Validate())
			} else {
				assert.ErrorIs(t, f.Validate(), tt.want)
			}
		})
	}
}

func TestParseFormatTag(t *testing.T) {
	for _, s := range []string{"csv", "CSV", " asc ", "Trc"} {
		tag, err := ParseFormatTag(s)
		require.NoError(t, err, s)
		assert.Contains(t, AllFormats, tag)
	}

	_, err := ParseFormatTag("xml")
	assert.Error(t, err)
}

func TestJobStageTerminal(t *testing.T) {
	terminal := map[JobStage]bool{
		StageQueued:     false,
		StageParsing:    false,
		StageDecoding:   false,
		StageExtracting: false,
		StageEncoding:   false,
		StageSucceeded:  true,
		StageFailed:     true,
		StageCancelled:  true,
	}
	for stage, want := range terminal {
		assert.Equal(t, want, stage.Terminal(), "stage %s", stage)
	}
}
