// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package encode

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/mf4bridge/pkg/types"
)

func testFrames() []types.Frame {
	return []types.Frame{
		{Timestamp: 1.0, Channel: 0, ID: 0x123, DLC: 2, Data: []byte{0xAB, 0xCD}},
		{Timestamp: 1.5, Channel: 0, ID: 0x456, DLC: 1, Data: []byte{0x01}},
	}
}

func testMeta() Meta {
	return Meta{
		Source: "drive.mf4",
		Start:  time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCSVEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, CSV{}.Encode(&buf, testFrames(), testMeta()))

	want := "Timestamp,Channel,ID,DLC,Data,Data_Hex\n" +
		"1.000000,0,291,2,171 205,ABCD\n" +
		"1.500000,0,1110,1,1,01\n"
	assert.Equal(t, want, buf.String())
}

func TestCSVEncode_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, CSV{}.Encode(&buf, nil, testMeta()))
	assert.Equal(t, "Timestamp,Channel,ID,DLC,Data,Data_Hex\n", buf.String())
}

func TestASCEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ASC{}.Encode(&buf, testFrames(), testMeta()))

	want := "date Mon Jan 01 12:00:00.000 2024\n" +
		"base hex timestamps absolute\n" +
		"no internal events logged\n" +
		"// version 9.0.0\n" +
		"// converted from drive.mf4\n" +
		"Begin Triggerblock Mon Jan 01 12:00:00.000 2024\n" +
		"0.000000 1 123x Rx d 2 AB CD\n" +
		"0.500000 1 456x Rx d 1 01\n" +
		"End TriggerBlock\n"
	assert.Equal(t, want, buf.String())
}

func TestTRCEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TRC{}.Encode(&buf, testFrames(), testMeta()))

	want := ";$FILEVERSION=1.1\n" +
		";$STARTTIME=45292.500000\n" +
		";$MESSAGECOUNT=2\n" +
		";\n" +
		";   N: message number\n" +
		";   O: time offset (ms)\n" +
		";   B: bus channel\n" +
		";   I: CAN-ID (hex)\n" +
		";   L: data length code\n" +
		";\n" +
		"1) 0 1 Rx 0123 2 AB CD\n" +
		"2) 500 1 Rx 0456 1 01\n"
	assert.Equal(t, want, buf.String())
}

func TestTRCEncode_ExtendedID(t *testing.T) {
	frames := []types.Frame{
		{Timestamp: 0, Channel: 1, ID: 0x18DAF110, Extended: true, DLC: 1, Data: []byte{0x7E}},
	}
	var buf bytes.Buffer
	require.NoError(t, TRC{}.Encode(&buf, frames, testMeta()))
	assert.Contains(t, buf.String(), "1) 0 2 Rx 18DAF110 1 7E\n")
}

// failWriter fails every write, standing in for a full disk.
type failWriter struct{}

func (failWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestEncode_WriteFailure(t *testing.T) {
	for _, tag := range types.AllFormats {
		enc, err := ForFormat(tag)
		require.NoError(t, err)
		err = enc.Encode(failWriter{}, testFrames(), testMeta())
		assert.ErrorIs(t, err, ErrEncodingFailed, "format %s", tag)
	}
}

func TestForFormat_Unknown(t *testing.T) {
	_, err := ForFormat(types.FormatTag("xml"))
	assert.Error(t, err)
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		input string
		tag   types.FormatTag
		want  string
	}{
		{"/logs/drive.mf4", types.FormatCSV, "drive.csv"},
		{"drive.MF4", types.FormatASC, "drive.asc"},
		{"trip.2024.mdf", types.FormatTRC, "trip.2024.trc"},
		{"noext", types.FormatCSV, "noext.csv"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OutputName(tt.input, tt.tag))
	}
}

func TestHexBytes(t *testing.T) {
	assert.Equal(t, "", hexBytes(nil))
	assert.Equal(t, "0A", hexBytes([]byte{0x0A}))
	assert.Equal(t, "DE AD BE EF", hexBytes([]byte{0xDE, 0xAD, 0xBE, 0xEF}))
}
