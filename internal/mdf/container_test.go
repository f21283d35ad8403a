// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mdf

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/mf4bridge/internal/mdf/mdftest"
)

// reader wraps a byte slice as an io.ReaderAt.
func reader(image []byte) *bytes.Reader {
	return bytes.NewReader(image)
}

func simpleContainer(kind mdftest.PayloadKind, records ...[]byte) []byte {
	var payload []byte
	for _, rec := range records {
		payload = append(payload, rec...)
	}
	return mdftest.Build(1700000000_000000000, mdftest.DataGroup{
		Groups:  []mdftest.ChannelGroup{mdftest.CANGroup(uint64(len(records)))},
		Payload: payload,
		Kind:    kind,
	})
}

func TestParse(t *testing.T) {
	image := simpleContainer(mdftest.Raw,
		mdftest.CANRecord(0.0, 0, 0x123, 2, []byte{0xAB, 0xCD}),
		mdftest.CANRecord(0.5, 0, 0x456, 1, []byte{0x01}),
	)

	c, err := Parse(reader(image))
	require.NoError(t, err)

	assert.Equal(t, uint16(410), c.Version)
	assert.Equal(t, "4.10", c.VersionString)
	assert.Equal(t, uint64(1700000000_000000000), c.StartTimeNs)
	require.Len(t, c.DataGroups, 1)

	dg := c.DataGroups[0]
	assert.False(t, dg.Compressed)
	assert.False(t, dg.Encrypted)
	require.Len(t, dg.Groups, 1)

	cg := dg.Groups[0]
	assert.Equal(t, uint64(2), cg.RecordCount)
	assert.Equal(t, mdftest.CANRecordSize, cg.RecordSize())
	require.Len(t, cg.Channels, 5)

	roles := map[Role]string{}
	for _, cn := range cg.Channels {
		roles[cn.Role] = cn.Name
	}
	assert.Equal(t, "t", roles[RoleTimestamp])
	assert.Equal(t, "CAN_DataFrame.ID", roles[RoleID])
	assert.Equal(t, "CAN_DataFrame.DLC", roles[RoleDLC])
	assert.Equal(t, "CAN_DataFrame.BusChannel", roles[RoleBusChannel])
	assert.Equal(t, "CAN_DataFrame.DataBytes", roles[RoleData])
}

func TestParse_DataBlockFlags(t *testing.T) {
	tests := []struct {
		name       string
		kind       mdftest.PayloadKind
		compressed bool
		encrypted  bool
	}{
		{"raw", mdftest.Raw, false, false},
		{"deflate", mdftest.Deflate, true, false},
		{"encrypted", mdftest.EncryptedRaw, false, true},
		{"segment list", mdftest.SegmentList, false, false},
	}
	key := bytes.Repeat([]byte{0x42}, 32)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			image := mdftest.Build(0, mdftest.DataGroup{
				Groups:  []mdftest.ChannelGroup{mdftest.CANGroup(1)},
				Payload: mdftest.CANRecord(0, 0, 1, 0, nil),
				Kind:    tt.kind,
				Key:     key,
			})
			c, err := Parse(reader(image))
			require.NoError(t, err)
			require.Len(t, c.DataGroups, 1)
			assert.Equal(t, tt.compressed, c.DataGroups[0].Compressed)
			assert.Equal(t, tt.encrypted, c.DataGroups[0].Encrypted)
		})
	}
}

func TestParse_BadMagic(t *testing.T) {
	image := simpleContainer(mdftest.Raw)
	copy(image[0:8], "NOTMDF  ")

	_, err := Parse(reader(image))
	assert.ErrorIs(t, err, ErrCorruptContainer)
}

func TestParse_UnsupportedVersion(t *testing.T) {
	image := simpleContainer(mdftest.Raw)
	binary.LittleEndian.PutUint16(image[28:], 330)

	_, err := Parse(reader(image))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestParse_Truncated(t *testing.T) {
	image := simpleContainer(mdftest.Raw,
		mdftest.CANRecord(0, 0, 1, 1, []byte{0xFF}))

	for _, cut := range []int{16, 70, len(image) / 2} {
		if _, err := Parse(reader(image[:cut])); err == nil {
			t.Errorf("cut at %d: expected error", cut)
		} else {
			assert.ErrorIs(t, err, ErrCorruptContainer, "cut at %d", cut)
		}
	}
}

func TestParse_TrailingUnknownBlocks(t *testing.T) {
	// Unknown block types in the file must not disturb the link walk.
	image := simpleContainer(mdftest.Raw,
		mdftest.CANRecord(0, 0, 1, 1, []byte{0xFF}))
	image = mdftest.RawBlock(image, "##AT", make([]byte, 40))
	image = mdftest.RawBlock(image, "##EV", make([]byte, 16))

	c, err := Parse(reader(image))
	require.NoError(t, err)
	assert.Len(t, c.DataGroups, 1)
}

func TestParse_MultipleDataGroups(t *testing.T) {
	dg := func(records int) mdftest.DataGroup {
		var payload []byte
		for i := 0; i < records; i++ {
			payload = append(payload, mdftest.CANRecord(float64(i), 0, 1, 0, nil)...)
		}
		return mdftest.DataGroup{
			Groups:  []mdftest.ChannelGroup{mdftest.CANGroup(uint64(records))},
			Payload: payload,
		}
	}
	image := mdftest.Build(0, dg(1), dg(2), dg(3))

	c, err := Parse(reader(image))
	require.NoError(t, err)
	require.Len(t, c.DataGroups, 3)
	for i, want := range []uint64{1, 2, 3} {
		assert.Equal(t, want, c.DataGroups[i].Groups[0].RecordCount)
	}
}

func TestParse_SortedGroupWithTwoChannelGroups(t *testing.T) {
	image := mdftest.Build(0, mdftest.DataGroup{
		RecordIDSize: 0,
		Groups:       []mdftest.ChannelGroup{mdftest.CANGroup(1), mdftest.CANGroup(1)},
		Payload:      mdftest.CANRecord(0, 0, 1, 0, nil),
	})

	_, err := Parse(reader(image))
	assert.ErrorIs(t, err, ErrCorruptContainer)
}

func TestConversion_Apply(t *testing.T) {
	var identity *Conversion
	assert.Equal(t, 2.5, identity.Apply(2.5))

	linear := &Conversion{Type: 1, Params: []float64{1.0, 0.001}}
	assert.InDelta(t, 1.25, linear.Apply(250), 1e-12)
}

func TestChannelRole(t *testing.T) {
	tests := []struct {
		name     string
		cnType   uint8
		syncType uint8
		chanName string
		want     Role
	}{
		{"time master", 2, 1, "t", RoleTimestamp},
		{"virtual master", 3, 1, "timestamp", RoleTimestamp},
		{"id", 0, 0, "CAN_DataFrame.ID", RoleID},
		{"dlc lower case", 0, 0, "CAN_DataFrame.dlc", RoleDLC},
		{"bus", 0, 0, "CAN_DataFrame.BusChannel", RoleBusChannel},
		{"data", 0, 0, "CAN_DataFrame.DataBytes", RoleData},
		{"unrelated", 0, 0, "EngineSpeed", RoleNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, channelRole(tt.cnType, tt.syncType, tt.chanName))
		})
	}
}
