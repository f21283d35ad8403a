// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package mdf reads MDF4 measurement containers: the block graph, data-block
// payloads and CAN frame records. Parsing indexes block offsets without
// materializing sample payloads; payload bytes are only read when a Data
// Group is decoded.
package mdf

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// Block type identifiers. All MDF4 blocks start with a 4-byte "##xx" tag.
const (
	blockHD = "##HD"
	blockDG = "##DG"
	blockCG = "##CG"
	blockCN = "##CN"
	blockCC = "##CC"
	blockTX = "##TX"
	blockDT = "##DT"
	blockDZ = "##DZ"
	blockDL = "##DL"
	blockED = "##ED"
)

const (
	idBlockSize     = 64
	blockHeaderSize = 24

	// maxStructBlock caps the size of structural blocks read into memory.
	// Data blocks (DT/DZ/ED) are exempt; they are read by the decoder.
	maxStructBlock = 1 << 20
	// maxLinkCount guards against absurd link counts in corrupt headers.
	maxLinkCount = 1 << 16
)

// Supported major version range: 4.00 inclusive to 5.00 exclusive.
const (
	minVersion = 400
	maxVersion = 499
)

// blockHeader is the fixed 24-byte prefix of every MDF4 block.
type blockHeader struct {
	id        string
	length    uint64
	linkCount uint64
}

// dataOffset returns the file offset of the block's data section.
func (h blockHeader) dataOffset(off int64) int64 {
	return off + blockHeaderSize + int64(h.linkCount)*8
}

// dataLength returns the byte length of the block's data section.
func (h blockHeader) dataLength() int64 {
	return int64(h.length) - blockHeaderSize - int64(h.linkCount)*8
}

// readBlockHeader reads and validates the 24-byte block header at off.
func readBlockHeader(r io.ReaderAt, off int64) (blockHeader, error) {
	var buf [blockHeaderSize]byte
	if _, err := io.ReadFull(io.NewSectionReader(r, off, blockHeaderSize), buf[:]); err != nil {
		return blockHeader{}, fmt.Errorf("%w: truncated block header at 0x%x", ErrCorruptContainer, off)
	}
	h := blockHeader{
		id:        string(buf[0:4]),
		length:    binary.LittleEndian.Uint64(buf[8:16]),
		linkCount: binary.LittleEndian.Uint64(buf[16:24]),
	}
	if !strings.HasPrefix(h.id, "##") {
		return blockHeader{}, fmt.Errorf("%w: bad block tag %q at 0x%x", ErrCorruptContainer, h.id, off)
	}
	if h.linkCount > maxLinkCount || h.length < blockHeaderSize+h.linkCount*8 {
		return blockHeader{}, fmt.Errorf("%w: implausible %s block geometry at 0x%x", ErrCorruptContainer, h.id, off)
	}
	return h, nil
}

// readLinks reads the link list following the block header at off.
func readLinks(r io.ReaderAt, off int64, h blockHeader) ([]int64, error) {
	links := make([]int64, h.linkCount)
	buf := make([]byte, h.linkCount*8)
	if _, err := io.ReadFull(io.NewSectionReader(r, off+blockHeaderSize, int64(len(buf))), buf); err != nil {
		return nil, fmt.Errorf("%w: truncated %s link list at 0x%x", ErrCorruptContainer, h.id, off)
	}
	for i := range links {
		links[i] = int64(binary.LittleEndian.Uint64(buf[i*8 : i*8+8]))
	}
	return links, nil
}

// readBlock reads a structural block's header, links and data section. wantID
// of "" accepts any block type; otherwise a mismatch is a corrupt link.
func readBlock(r io.ReaderAt, off int64, wantID string) (blockHeader, []int64, []byte, error) {
	h, err := readBlockHeader(r, off)
	if err != nil {
		return blockHeader{}, nil, nil, err
	}
	if wantID != "" && h.id != wantID {
		return blockHeader{}, nil, nil, fmt.Errorf("%w: expected %s at 0x%x, found %s", ErrCorruptContainer, wantID, off, h.id)
	}
	if h.dataLength() > maxStructBlock {
		return blockHeader{}, nil, nil, fmt.Errorf("%w: oversized %s block at 0x%x", ErrCorruptContainer, h.id, off)
	}
	links, err := readLinks(r, off, h)
	if err != nil {
		return blockHeader{}, nil, nil, err
	}
	data := make([]byte, h.dataLength())
	if _, err := io.ReadFull(io.NewSectionReader(r, h.dataOffset(off), int64(len(data))), data); err != nil {
		return blockHeader{}, nil, nil, fmt.Errorf("%w: truncated %s block at 0x%x", ErrCorruptContainer, h.id, off)
	}
	return h, links, data, nil
}

// identification is the parsed 64-byte ID block at the start of the file.
type identification struct {
	versionString string
	program       string
	version       uint16
}

// readIdentification parses and validates the ID block at offset 0.
func readIdentification(r io.ReaderAt) (identification, error) {
	var buf [idBlockSize]byte
	if _, err := io.ReadFull(io.NewSectionReader(r, 0, idBlockSize), buf[:]); err != nil {
		return identification{}, fmt.Errorf("%w: file shorter than identification block", ErrCorruptContainer)
	}
	if string(buf[0:8]) != "MDF     " {
		return identification{}, fmt.Errorf("%w: bad magic %q", ErrCorruptContainer, string(buf[0:8]))
	}
	id := identification{
		versionString: strings.TrimRight(string(buf[8:16]), " \x00"),
		program:       strings.TrimRight(string(buf[16:24]), " \x00"),
		version:       binary.LittleEndian.Uint16(buf[28:30]),
	}
	if id.version < minVersion || id.version > maxVersion {
		return id, fmt.Errorf("%w: version %d (supported: %d-%d)", ErrUnsupportedVersion, id.version, minVersion, maxVersion)
	}
	return id, nil
}

// readText reads a ##TX block and returns its zero-terminated string.
func readText(r io.ReaderAt, off int64) (string, error) {
	if off == 0 {
		return "", nil
	}
	_, _, data, err := readBlock(r, off, blockTX)
	if err != nil {
		return "", err
	}
	if i := strings.IndexByte(string(data), 0); i >= 0 {
		data = data[:i]
	}
	return string(data), nil
}
