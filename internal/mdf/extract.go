// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mdf

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pdiddy/mf4bridge/pkg/types"
)

// Extractor slices a channel group's fixed-size records into CAN frame
// events. Extraction is a pure function of the record buffer: re-extracting
// the same buffer yields the same events.
type Extractor struct {
	cg   ChannelGroup
	ts   *Channel
	bus  *Channel
	id   *Channel
	dlc  *Channel
	data *Channel
}

// NewExtractor validates that the group carries every required CAN frame
// role (timestamp, arbitration ID, DLC, payload). A missing role fails the
// group with ErrMalformedChannelGroup; the bus channel is optional and
// defaults to 0.
func NewExtractor(cg ChannelGroup) (*Extractor, error) {
	e := &Extractor{cg: cg}
	for i := range cg.Channels {
		c := &cg.Channels[i]
		switch c.Role {
		case RoleTimestamp:
			e.ts = c
		case RoleBusChannel:
			e.bus = c
		case RoleID:
			e.id = c
		case RoleDLC:
			e.dlc = c
		case RoleData:
			e.data = c
		}
	}
	for _, missing := range []struct {
		c    *Channel
		role string
	}{
		{e.ts, "timestamp"},
		{e.id, "arbitration ID"},
		{e.dlc, "DLC"},
		{e.data, "payload"},
	} {
		if missing.c == nil {
			return nil, fmt.Errorf("%w: no %s channel", ErrMalformedChannelGroup, missing.role)
		}
	}
	return e, nil
}

// Extract decodes every record in the buffer into a frame event. The buffer
// length must be a whole number of records.
func (e *Extractor) Extract(records []byte) ([]types.Frame, error) {
	recSize := e.cg.RecordSize()
	if recSize == 0 || len(records)%recSize != 0 {
		return nil, fmt.Errorf("%w: buffer of %d bytes is not a multiple of record size %d",
			ErrMalformedChannelGroup, len(records), recSize)
	}
	frames := make([]types.Frame, 0, len(records)/recSize)
	for off := 0; off < len(records); off += recSize {
		f, err := e.frame(records[off : off+recSize])
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", off/recSize, err)
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// frame decodes one record.
func (e *Extractor) frame(rec []byte) (types.Frame, error) {
	var f types.Frame

	raw, err := fieldValue(rec, e.ts)
	if err != nil {
		return f, err
	}
	f.Timestamp = e.ts.Conversion.Apply(raw)
	if f.Timestamp < 0 {
		return f, fmt.Errorf("%w: negative timestamp %g", ErrMalformedChannelGroup, f.Timestamp)
	}

	if e.bus != nil {
		ch, err := fieldUint(rec, e.bus)
		if err != nil {
			return f, err
		}
		f.Channel = uint8(ch)
	}

	rawID, err := fieldUint(rec, e.id)
	if err != nil {
		return f, err
	}
	// Bit 31 carries the IDE flag in bus-logging recordings.
	f.Extended = rawID&0x80000000 != 0
	f.ID = uint32(rawID) & types.MaxExtendedID
	if !f.Extended && f.ID > types.MaxStandardID {
		f.Extended = true
	}

	dlc, err := fieldUint(rec, e.dlc)
	if err != nil {
		return f, err
	}
	if dlc > 15 {
		return f, fmt.Errorf("%w: DLC %d out of range", ErrMalformedChannelGroup, dlc)
	}
	f.DLC = uint8(dlc)

	payload, err := fieldBytes(rec, e.data)
	if err != nil {
		return f, err
	}
	n := types.DLCLength(f.DLC)
	if n > len(payload) {
		return f, fmt.Errorf("%w: DLC %d implies %d bytes, payload field holds %d",
			ErrMalformedChannelGroup, f.DLC, n, len(payload))
	}
	f.Data = append([]byte(nil), payload[:n]...)
	return f, nil
}

// fieldUint extracts an unsigned integer field, honoring bit offset, bit
// length and the channel's byte order.
func fieldUint(rec []byte, c *Channel) (uint64, error) {
	switch c.DataType {
	case TypeUintLE, TypeUintBE:
		return extractBits(rec, c)
	default:
		return 0, fmt.Errorf("%w: channel %q: data type %d where unsigned integer expected",
			ErrMalformedChannelGroup, c.Name, c.DataType)
	}
}

// fieldValue extracts a numeric field as float64, used for timestamps.
func fieldValue(rec []byte, c *Channel) (float64, error) {
	bits, err := extractBits(rec, c)
	if err != nil {
		return 0, err
	}
	switch c.DataType {
	case TypeUintLE, TypeUintBE:
		return float64(bits), nil
	case TypeIntLE, TypeIntBE:
		return float64(signExtend(bits, c.BitCount)), nil
	case TypeFloatLE, TypeFloatBE:
		switch c.BitCount {
		case 32:
			return float64(math.Float32frombits(uint32(bits))), nil
		case 64:
			return math.Float64frombits(bits), nil
		}
		return 0, fmt.Errorf("%w: channel %q: %d-bit float", ErrMalformedChannelGroup, c.Name, c.BitCount)
	default:
		return 0, fmt.Errorf("%w: channel %q: non-numeric data type %d",
			ErrMalformedChannelGroup, c.Name, c.DataType)
	}
}

// fieldBytes extracts a byte-array field. Byte arrays must be byte-aligned.
func fieldBytes(rec []byte, c *Channel) ([]byte, error) {
	if c.BitOffset != 0 || c.BitCount%8 != 0 {
		return nil, fmt.Errorf("%w: channel %q: byte array is not byte-aligned", ErrMalformedChannelGroup, c.Name)
	}
	start := int(c.ByteOffset)
	end := start + int(c.BitCount)/8
	if end > len(rec) {
		return nil, fmt.Errorf("%w: channel %q extends past record end", ErrMalformedChannelGroup, c.Name)
	}
	return rec[start:end], nil
}

// extractBits assembles the field's raw bits: up to 8 bytes starting at the
// channel's byte offset, interpreted in the channel's byte order, shifted by
// the bit offset and masked to the bit count.
func extractBits(rec []byte, c *Channel) (uint64, error) {
	if c.BitCount == 0 || c.BitCount > 64 {
		return 0, fmt.Errorf("%w: channel %q: bit count %d", ErrMalformedChannelGroup, c.Name, c.BitCount)
	}
	nbytes := (int(c.BitOffset) + int(c.BitCount) + 7) / 8
	start := int(c.ByteOffset)
	if start+nbytes > len(rec) {
		return 0, fmt.Errorf("%w: channel %q extends past record end", ErrMalformedChannelGroup, c.Name)
	}
	var v uint64
	raw := rec[start : start+nbytes]
	if bigEndianType(c.DataType) {
		for _, b := range raw {
			v = v<<8 | uint64(b)
		}
	} else {
		for i := len(raw) - 1; i >= 0; i-- {
			v = v<<8 | uint64(raw[i])
		}
	}
	v >>= c.BitOffset
	if c.BitCount < 64 {
		v &= 1<<c.BitCount - 1
	}
	return v, nil
}

// bigEndianType reports whether the data type code declares big-endian
// sample bytes (odd codes 1, 3, 5).
func bigEndianType(dt uint8) bool {
	return dt == TypeUintBE || dt == TypeIntBE || dt == TypeFloatBE
}

// signExtend interprets the low bits of v as a two's-complement integer of
// the given width.
func signExtend(v uint64, bits uint32) int64 {
	if bits == 0 || bits >= 64 {
		return int64(v)
	}
	shift := 64 - bits
	return int64(v<<shift) >> shift
}

// Demux splits an unsorted data group's record buffer into per-channel-group
// buffers keyed by record ID. Records of a group keep their relative order.
func Demux(dg DataGroup, buf []byte) (map[uint64][]byte, error) {
	idSize := int(dg.RecordIDSize)
	if idSize == 0 {
		return nil, fmt.Errorf("%w: demux requires an unsorted data group", ErrCorruptContainer)
	}
	sizes := make(map[uint64]int, len(dg.Groups))
	out := make(map[uint64][]byte, len(dg.Groups))
	for _, g := range dg.Groups {
		sizes[g.RecordID] = g.RecordSize()
	}
	for off := 0; off < len(buf); {
		if off+idSize > len(buf) {
			return nil, fmt.Errorf("%w: truncated record ID at byte %d", ErrCorruptContainer, off)
		}
		var id uint64
		switch idSize {
		case 1:
			id = uint64(buf[off])
		case 2:
			id = uint64(binary.LittleEndian.Uint16(buf[off:]))
		case 4:
			id = uint64(binary.LittleEndian.Uint32(buf[off:]))
		case 8:
			id = binary.LittleEndian.Uint64(buf[off:])
		}
		size, ok := sizes[id]
		if !ok {
			return nil, fmt.Errorf("%w: record ID %d matches no channel group", ErrCorruptContainer, id)
		}
		off += idSize
		if off+size > len(buf) {
			return nil, fmt.Errorf("%w: truncated record at byte %d", ErrCorruptContainer, off)
		}
		out[id] = append(out[id], buf[off:off+size]...)
		off += size
	}
	return out, nil
}
