// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package mdftest assembles synthetic MDF4 containers for tests. The builder
// produces the same block graph a bus logger writes: identification and
// header blocks, a data-group chain with channel groups and channels, and
// DT/DZ/DL/ED data blocks.
package mdftest

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"math"
	"os"
	"testing"

	"github.com/klauspost/compress/zlib"
)

// PayloadKind selects how a data group's record bytes are framed on disk.
type PayloadKind int

const (
	Raw PayloadKind = iota // plain ##DT block
	Deflate                // ##DZ, zip type 0
	Transpose              // ##DZ, zip type 1 (transpose + deflate)
	BadZip                 // ##DZ with an unsupported zip type
	EncryptedRaw           // ##ED wrapping raw records
	EncryptedDeflate       // ##ED wrapping a compressed payload
	SegmentList            // ##DL with two ##DT segments, split mid-record
)

// Channel describes one field of a record layout.
type Channel struct {
	Name       string
	Type       uint8 // cn_type: 0 fixed, 2 master
	Sync       uint8 // sync type: 1 time
	DataType   uint8
	BitOffset  uint8
	ByteOffset uint32
	BitCount   uint32
	Conversion []float64 // linear conversion values, nil for none
}

// ChannelGroup describes one record layout and its declared sample count.
type ChannelGroup struct {
	RecordID    uint64
	DataBytes   uint32
	RecordCount uint64
	Channels    []Channel
}

// DataGroup describes one data group and the raw record bytes of its data
// block (record-ID prefixes included for unsorted groups).
type DataGroup struct {
	RecordIDSize uint8
	Groups       []ChannelGroup
	Payload      []byte
	Kind         PayloadKind
	Key          []byte // AES key for Encrypted* kinds
	IV           []byte // 16 bytes; zero IV when nil
}

// Build assembles a complete container image with the given start time.
func Build(startNs uint64, dgs ...DataGroup) []byte {
	b := &builder{}
	b.identification()
	hdOff := b.block("##HD", make([]int64, 6), hdData(startNs))

	var nextDG int64
	for i := len(dgs) - 1; i >= 0; i-- {
		nextDG = b.dataGroup(dgs[i], nextDG)
	}
	// Patch the header's first data group link.
	binary.LittleEndian.PutUint64(b.buf[hdOff+24:], uint64(nextDG))
	return b.buf
}

// WriteFile builds a container and writes it to path.
func WriteFile(t testing.TB, path string, startNs uint64, dgs ...DataGroup) {
	t.Helper()
	if err := os.WriteFile(path, Build(startNs, dgs...), 0o644); err != nil {
		t.Fatal(err)
	}
}

// builder accumulates the container image.
type builder struct {
	buf []byte
}

// identification writes the 64-byte ID block.
func (b *builder) identification() {
	id := make([]byte, 64)
	copy(id, "MDF     ")
	copy(id[8:], "4.10    ")
	copy(id[16:], "mdftest ")
	binary.LittleEndian.PutUint16(id[28:], 410)
	b.buf = append(b.buf, id...)
}

// block appends one block and returns its offset. Blocks are 8-byte aligned
// like real writers produce.
func (b *builder) block(id string, links []int64, data []byte) int64 {
	off := int64(len(b.buf))
	hdr := make([]byte, 24)
	copy(hdr, id)
	binary.LittleEndian.PutUint64(hdr[8:], uint64(24+8*len(links)+len(data)))
	binary.LittleEndian.PutUint64(hdr[16:], uint64(len(links)))
	b.buf = append(b.buf, hdr...)
	for _, l := range links {
		var lb [8]byte
		binary.LittleEndian.PutUint64(lb[:], uint64(l))
		b.buf = append(b.buf, lb[:]...)
	}
	b.buf = append(b.buf, data...)
	for len(b.buf)%8 != 0 {
		b.buf = append(b.buf, 0)
	}
	return off
}

// RawBlock appends an arbitrary unlinked block, for tests that plant unknown
// block types in the file.
func RawBlock(image []byte, id string, data []byte) []byte {
	b := &builder{buf: image}
	b.block(id, nil, data)
	return b.buf
}

func hdData(startNs uint64) []byte {
	data := make([]byte, 31)
	binary.LittleEndian.PutUint64(data, startNs)
	return data
}

func (b *builder) dataGroup(dg DataGroup, next int64) int64 {
	var firstCG int64
	for i := len(dg.Groups) - 1; i >= 0; i-- {
		firstCG = b.channelGroup(dg.Groups[i], firstCG)
	}
	dataOff := b.dataBlock(dg)

	data := make([]byte, 8)
	data[0] = dg.RecordIDSize
	return b.block("##DG", []int64{next, firstCG, dataOff, 0}, data)
}

func (b *builder) channelGroup(cg ChannelGroup, next int64) int64 {
	var firstCN int64
	for i := len(cg.Channels) - 1; i >= 0; i-- {
		firstCN = b.channel(cg.Channels[i], firstCN)
	}
	data := make([]byte, 32)
	binary.LittleEndian.PutUint64(data[0:], cg.RecordID)
	binary.LittleEndian.PutUint64(data[8:], cg.RecordCount)
	binary.LittleEndian.PutUint32(data[24:], cg.DataBytes)
	return b.block("##CG", []int64{next, firstCN, 0, 0, 0, 0}, data)
}

func (b *builder) channel(cn Channel, next int64) int64 {
	txOff := b.block("##TX", nil, append([]byte(cn.Name), 0))
	var ccOff int64
	if cn.Conversion != nil {
		ccOff = b.conversion(cn.Conversion)
	}
	data := make([]byte, 76)
	data[0] = cn.Type
	data[1] = cn.Sync
	data[2] = cn.DataType
	data[3] = cn.BitOffset
	binary.LittleEndian.PutUint32(data[4:], cn.ByteOffset)
	binary.LittleEndian.PutUint32(data[8:], cn.BitCount)
	return b.block("##CN", []int64{next, 0, txOff, 0, ccOff, 0, 0, 0}, data)
}

func (b *builder) conversion(params []float64) int64 {
	data := make([]byte, 24+8*len(params))
	data[0] = 1 // linear
	binary.LittleEndian.PutUint16(data[6:], uint16(len(params)))
	for i, p := range params {
		binary.LittleEndian.PutUint64(data[24+i*8:], math.Float64bits(p))
	}
	return b.block("##CC", []int64{0, 0, 0, 0}, data)
}

// dataBlock frames the data group's payload per its kind.
func (b *builder) dataBlock(dg DataGroup) int64 {
	switch dg.Kind {
	case Raw:
		return b.block("##DT", nil, dg.Payload)
	case Deflate:
		return b.block("##DZ", nil, dzData(dg.Payload, 0, 0))
	case Transpose:
		cols := recordSize(dg)
		return b.block("##DZ", nil, dzData(transpose(dg.Payload, cols), 1, uint32(cols)))
	case BadZip:
		return b.block("##DZ", nil, dzData(dg.Payload, 9, 0))
	case EncryptedRaw:
		return b.block("##ED", nil, edData("DT", dg.Payload, dg.Key, dg.IV))
	case EncryptedDeflate:
		return b.block("##ED", nil, edData("DZ", dzData(dg.Payload, 0, 0), dg.Key, dg.IV))
	case SegmentList:
		// Split mid-record so readers must carry bytes across segments.
		cut := len(dg.Payload)/2 + 1
		if cut > len(dg.Payload) {
			cut = len(dg.Payload)
		}
		dt1 := b.block("##DT", nil, dg.Payload[:cut])
		dt2 := b.block("##DT", nil, dg.Payload[cut:])
		data := make([]byte, 8)
		binary.LittleEndian.PutUint32(data[4:], 2)
		return b.block("##DL", []int64{0, dt1, dt2}, data)
	}
	panic("mdftest: unknown payload kind")
}

func recordSize(dg DataGroup) int {
	if len(dg.Groups) == 0 {
		return 1
	}
	return int(dg.Groups[0].DataBytes)
}

// dzData builds a ##DZ data section around compressed payload bytes.
func dzData(payload []byte, zipType uint8, param uint32) []byte {
	var comp bytes.Buffer
	zw := zlib.NewWriter(&comp)
	zw.Write(payload)
	zw.Close()

	data := make([]byte, 24, 24+comp.Len())
	copy(data, "DT")
	data[2] = zipType
	binary.LittleEndian.PutUint32(data[4:], param)
	binary.LittleEndian.PutUint64(data[8:], uint64(len(payload)))
	binary.LittleEndian.PutUint64(data[16:], uint64(comp.Len()))
	return append(data, comp.Bytes()...)
}

// edData builds an ##ED data section: AES-256-CTR ciphertext with IV prefix.
func edData(orgID string, plain, key, iv []byte) []byte {
	if iv == nil {
		iv = make([]byte, 16)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	ct := make([]byte, len(plain))
	cipher.NewCTR(block, iv).XORKeyStream(ct, plain)

	data := make([]byte, 32, 32+len(ct))
	copy(data, orgID)
	binary.LittleEndian.PutUint64(data[8:], uint64(len(plain)))
	copy(data[16:32], iv)
	return append(data, ct...)
}

// transpose stores the row-major payload column-wise, the DZ zip type 1
// pre-pass. Trailing bytes beyond the last full row stay in place.
func transpose(b []byte, cols int) []byte {
	if cols <= 1 || len(b) < cols {
		return append([]byte(nil), b...)
	}
	rows := len(b) / cols
	n := rows * cols
	out := make([]byte, len(b))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out[c*rows+r] = b[r*cols+c]
		}
	}
	copy(out[n:], b[n:])
	return out
}

// CANRecordSize is the record size of the canonical CAN frame layout.
const CANRecordSize = 22

// CANChannels returns the canonical CAN frame record layout used across
// tests: float64 time master at byte 0, bus channel at 8, 32-bit ID at 9,
// DLC at 13, 8 payload bytes at 14.
func CANChannels() []Channel {
	return []Channel{
		{Name: "t", Type: 2, Sync: 1, DataType: 4, ByteOffset: 0, BitCount: 64},
		{Name: "CAN_DataFrame.BusChannel", DataType: 0, ByteOffset: 8, BitCount: 8},
		{Name: "CAN_DataFrame.ID", DataType: 0, ByteOffset: 9, BitCount: 32},
		{Name: "CAN_DataFrame.DLC", DataType: 0, ByteOffset: 13, BitCount: 8},
		{Name: "CAN_DataFrame.DataBytes", DataType: 10, ByteOffset: 14, BitCount: 64},
	}
}

// CANRecord encodes one record of the canonical layout.
func CANRecord(ts float64, bus uint8, id uint32, dlc uint8, data []byte) []byte {
	rec := make([]byte, CANRecordSize)
	binary.LittleEndian.PutUint64(rec[0:], math.Float64bits(ts))
	rec[8] = bus
	binary.LittleEndian.PutUint32(rec[9:], id)
	rec[13] = dlc
	copy(rec[14:], data)
	return rec
}

// CANGroup returns a channel group for the canonical layout with the given
// record count.
func CANGroup(count uint64) ChannelGroup {
	return ChannelGroup{DataBytes: CANRecordSize, RecordCount: count, Channels: CANChannels()}
}
