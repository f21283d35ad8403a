// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mdf

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
)

// Role tags a channel that carries one component of a CAN frame.
type Role uint8

const (
	RoleNone Role = iota
	RoleTimestamp
	RoleBusChannel
	RoleID
	RoleDLC
	RoleData
)

// Channel data type codes (cn_data_type).
const (
	TypeUintLE  = 0
	TypeUintBE  = 1
	TypeIntLE   = 2
	TypeIntBE   = 3
	TypeFloatLE = 4
	TypeFloatBE = 5
	TypeBytes   = 10
)

// Channel types (cn_type) and sync types relevant here.
const (
	chanTypeMaster        = 2
	chanTypeVirtualMaster = 3
	syncTypeTime          = 1
)

// Conversion maps raw channel values to physical values. Only identity and
// linear conversions occur in CAN bus recordings.
type Conversion struct {
	Type   uint8
	Params []float64
}

// Apply converts a raw value to its physical value.
func (c *Conversion) Apply(raw float64) float64 {
	if c == nil || c.Type != 1 || len(c.Params) < 2 {
		return raw
	}
	return c.Params[0] + c.Params[1]*raw
}

// Channel describes one field within a record.
type Channel struct {
	// Name is the channel name from its TX block.
	Name string

	// Role tags the CAN frame component this channel carries, if any.
	Role Role

	// ByteOffset and BitOffset locate the field's least significant bit
	// within the record.
	ByteOffset uint32
	BitOffset  uint8

	// BitCount is the field width in bits.
	BitCount uint32

	// DataType is the cn_data_type code.
	DataType uint8

	// Conversion is the raw-to-physical conversion, nil for identity.
	Conversion *Conversion
}

// ChannelGroup describes one fixed record layout and its sample count.
type ChannelGroup struct {
	// RecordID distinguishes this group's records in unsorted data groups.
	RecordID uint64

	// DataBytes and InvalBytes are the record's sample and invalidation
	// byte counts; their sum is the record size.
	DataBytes  uint32
	InvalBytes uint32

	// RecordCount is the declared number of records (cg_cycle_count).
	RecordCount uint64

	// Channels lists the fields of one record.
	Channels []Channel
}

// RecordSize returns the full record size in bytes.
func (g ChannelGroup) RecordSize() int {
	return int(g.DataBytes + g.InvalBytes)
}

// DataGroup groups channel groups sharing one physical data block.
type DataGroup struct {
	// RecordIDSize is the per-record ID prefix width in bytes: 0 for
	// sorted groups (exactly one channel group), 1/2/4/8 for unsorted.
	RecordIDSize uint8

	// DataBlock is the file offset of the group's data block (##DT, ##DZ,
	// ##DL or ##ED), 0 when the group has no data.
	DataBlock int64

	// Compressed and Encrypted report the data block's framing, derived
	// from the block types reachable from DataBlock.
	Compressed bool
	Encrypted  bool

	// Groups lists the channel groups multiplexed into the data block.
	Groups []ChannelGroup
}

// Container is the parsed, read-only index of one MDF4 file. All multi-byte
// container structures are little-endian; individual channels may still
// declare big-endian sample values.
type Container struct {
	// Version is the numeric format version (e.g. 410 for MDF 4.10).
	Version uint16

	// VersionString is the textual version from the identification block.
	VersionString string

	// Program identifies the writing tool.
	Program string

	// StartTimeNs is the absolute recording start time in nanoseconds
	// since the Unix epoch.
	StartTimeNs uint64

	// DataGroups lists the container's data groups in file order.
	DataGroups []DataGroup
}

// Parse reads the block graph of an MDF4 container into an index. It follows
// links from the header block and records data-block offsets for later
// targeted reads; sample payloads are not materialized. Blocks of unknown
// type encountered on a link chain are skipped via their declared length.
func Parse(r io.ReaderAt) (*Container, error) {
	id, err := readIdentification(r)
	if err != nil {
		return nil, err
	}
	c := &Container{
		Version:       id.version,
		VersionString: id.versionString,
		Program:       id.program,
	}

	_, links, data, err := readBlock(r, idBlockSize, blockHD)
	if err != nil {
		return nil, err
	}
	if len(links) < 1 {
		return nil, fmt.Errorf("%w: header block has no data group link", ErrCorruptContainer)
	}
	if len(data) >= 8 {
		c.StartTimeNs = binary.LittleEndian.Uint64(data[0:8])
	}

	for off := links[0]; off != 0; {
		dg, next, err := parseDataGroup(r, off)
		if err != nil {
			return nil, err
		}
		c.DataGroups = append(c.DataGroups, dg)
		off = next
	}
	return c, nil
}

// parseDataGroup parses one ##DG block and its channel group chain, returning
// the group and the offset of the next data group.
func parseDataGroup(r io.ReaderAt, off int64) (DataGroup, int64, error) {
	_, links, data, err := readBlock(r, off, blockDG)
	if err != nil {
		return DataGroup{}, 0, err
	}
	if len(links) < 3 || len(data) < 1 {
		return DataGroup{}, 0, fmt.Errorf("%w: short data group block at 0x%x", ErrCorruptContainer, off)
	}
	dg := DataGroup{
		RecordIDSize: data[0],
		DataBlock:    links[2],
	}
	switch dg.RecordIDSize {
	case 0, 1, 2, 4, 8:
	default:
		return DataGroup{}, 0, fmt.Errorf("%w: record ID size %d at 0x%x", ErrCorruptContainer, dg.RecordIDSize, off)
	}

	for cgOff := links[1]; cgOff != 0; {
		cg, next, err := parseChannelGroup(r, cgOff)
		if err != nil {
			return DataGroup{}, 0, err
		}
		dg.Groups = append(dg.Groups, cg)
		cgOff = next
	}
	if dg.RecordIDSize == 0 && len(dg.Groups) > 1 {
		return DataGroup{}, 0, fmt.Errorf("%w: sorted data group at 0x%x has %d channel groups", ErrCorruptContainer, off, len(dg.Groups))
	}

	if dg.DataBlock != 0 {
		if err := classifyDataBlock(r, dg.DataBlock, &dg); err != nil {
			return DataGroup{}, 0, err
		}
	}
	return dg, links[0], nil
}

// classifyDataBlock sets the compression/encryption flags from the block
// types reachable from off, following one level of ##DL list nesting.
func classifyDataBlock(r io.ReaderAt, off int64, dg *DataGroup) error {
	h, err := readBlockHeader(r, off)
	if err != nil {
		return err
	}
	switch h.id {
	case blockDT:
	case blockDZ:
		dg.Compressed = true
	case blockED:
		dg.Encrypted = true
	case blockDL:
		segs, err := listSegments(r, off)
		if err != nil {
			return err
		}
		for _, seg := range segs {
			sh, err := readBlockHeader(r, seg)
			if err != nil {
				return err
			}
			switch sh.id {
			case blockDZ:
				dg.Compressed = true
			case blockED:
				dg.Encrypted = true
			}
		}
	default:
		return fmt.Errorf("%w: unexpected data block %s at 0x%x", ErrCorruptContainer, h.id, off)
	}
	return nil
}

// parseChannelGroup parses one ##CG block and its channel chain.
func parseChannelGroup(r io.ReaderAt, off int64) (ChannelGroup, int64, error) {
	_, links, data, err := readBlock(r, off, blockCG)
	if err != nil {
		return ChannelGroup{}, 0, err
	}
	if len(links) < 2 || len(data) < 32 {
		return ChannelGroup{}, 0, fmt.Errorf("%w: short channel group block at 0x%x", ErrCorruptContainer, off)
	}
	cg := ChannelGroup{
		RecordID:    binary.LittleEndian.Uint64(data[0:8]),
		RecordCount: binary.LittleEndian.Uint64(data[8:16]),
		DataBytes:   binary.LittleEndian.Uint32(data[24:28]),
		InvalBytes:  binary.LittleEndian.Uint32(data[28:32]),
	}
	for cnOff := links[1]; cnOff != 0; {
		cn, next, err := parseChannel(r, cnOff)
		if err != nil {
			return ChannelGroup{}, 0, err
		}
		cg.Channels = append(cg.Channels, cn)
		cnOff = next
	}
	return cg, links[0], nil
}

// parseChannel parses one ##CN block, resolving its name and conversion.
func parseChannel(r io.ReaderAt, off int64) (Channel, int64, error) {
	_, links, data, err := readBlock(r, off, blockCN)
	if err != nil {
		return Channel{}, 0, err
	}
	if len(links) < 5 || len(data) < 16 {
		return Channel{}, 0, fmt.Errorf("%w: short channel block at 0x%x", ErrCorruptContainer, off)
	}
	cn := Channel{
		ByteOffset: binary.LittleEndian.Uint32(data[4:8]),
		BitCount:   binary.LittleEndian.Uint32(data[8:12]),
		BitOffset:  data[3],
		DataType:   data[2],
	}
	cnType := data[0]
	syncType := data[1]

	cn.Name, err = readText(r, links[2])
	if err != nil {
		return Channel{}, 0, err
	}
	if links[4] != 0 {
		cn.Conversion, err = parseConversion(r, links[4])
		if err != nil {
			return Channel{}, 0, err
		}
	}
	cn.Role = channelRole(cnType, syncType, cn.Name)
	return cn, links[0], nil
}

// parseConversion parses a ##CC block. Unknown conversion types degrade to
// identity rather than failing the container.
func parseConversion(r io.ReaderAt, off int64) (*Conversion, error) {
	_, _, data, err := readBlock(r, off, blockCC)
	if err != nil {
		return nil, err
	}
	if len(data) < 24 {
		return nil, fmt.Errorf("%w: short conversion block at 0x%x", ErrCorruptContainer, off)
	}
	cc := &Conversion{Type: data[0]}
	valCount := int(binary.LittleEndian.Uint16(data[6:8]))
	if want := 24 + valCount*8; len(data) < want {
		return nil, fmt.Errorf("%w: conversion block at 0x%x declares %d values", ErrCorruptContainer, off, valCount)
	}
	for i := 0; i < valCount; i++ {
		bits := binary.LittleEndian.Uint64(data[24+i*8 : 32+i*8])
		cc.Params = append(cc.Params, math.Float64frombits(bits))
	}
	return cc, nil
}

// channelRole maps a channel to the CAN frame component it carries. The time
// master channel is the timestamp; other roles follow the ASAM bus-logging
// naming convention (CAN_DataFrame.ID, .DLC, .DataBytes, .BusChannel).
func channelRole(cnType, syncType uint8, name string) Role {
	if (cnType == chanTypeMaster || cnType == chanTypeVirtualMaster) && syncType == syncTypeTime {
		return RoleTimestamp
	}
	suffix := name
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		suffix = name[i+1:]
	}
	switch strings.ToUpper(suffix) {
	case "ID", "CANID":
		return RoleID
	case "DLC":
		return RoleDLC
	case "BUSCHANNEL", "BUS":
		return RoleBusChannel
	case "DATABYTES", "DATA":
		return RoleData
	case "T", "TIME", "TIMESTAMP":
		return RoleTimestamp
	}
	return RoleNone
}
