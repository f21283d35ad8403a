// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mdf

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// DZ zip types (dz_zip_type).
const (
	zipDeflate          = 0
	zipTransposeDeflate = 1
)

// ED cipher tags. AES-256-CTR with a 16-byte IV prefix is the only cipher
// the ##ED vendor extension defines.
const cipherAESCTR = 0

const edHeaderLen = 32 // org id (2) + cipher (1) + reserved (5) + org length (8) + IV (16)
const dzHeaderLen = 24 // org id (2) + zip type (1) + reserved (1) + parameter (4) + lengths (16)

// Decoder turns a Data Group's raw data block into plain record buffers,
// applying decryption and decompression as the block types require. Decoding
// is deterministic: the same input and key always yield identical plaintext.
type Decoder struct {
	r   io.ReaderAt
	key []byte
}

// NewDecoder returns a Decoder reading from r. key may be nil when the
// container is not encrypted.
func NewDecoder(r io.ReaderAt, key []byte) *Decoder {
	return &Decoder{r: r, key: key}
}

// RecordBuffer decodes the data group's entire data block into one
// contiguous record buffer. Use Chunks for bounded-memory processing of
// sorted groups.
func (d *Decoder) RecordBuffer(dg DataGroup) ([]byte, error) {
	if dg.DataBlock == 0 {
		return nil, nil
	}
	segs, err := d.segments(dg.DataBlock)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for _, seg := range segs {
		part, err := d.decodeSegment(seg)
		if err != nil {
			return nil, err
		}
		buf.Write(part)
	}
	return buf.Bytes(), nil
}

// segments resolves off into the flat list of data segment offsets,
// expanding ##DL list blocks.
func (d *Decoder) segments(off int64) ([]int64, error) {
	h, err := readBlockHeader(d.r, off)
	if err != nil {
		return nil, err
	}
	if h.id != blockDL {
		return []int64{off}, nil
	}
	return listSegments(d.r, off)
}

// listSegments walks a ##DL chain and returns the referenced data block
// offsets in order.
func listSegments(r io.ReaderAt, off int64) ([]int64, error) {
	var segs []int64
	for off != 0 {
		_, links, data, err := readBlock(r, off, blockDL)
		if err != nil {
			return nil, err
		}
		if len(data) < 8 {
			return nil, fmt.Errorf("%w: short data list block at 0x%x", ErrCorruptContainer, off)
		}
		count := int(binary.LittleEndian.Uint32(data[4:8]))
		if len(links) < 1+count {
			return nil, fmt.Errorf("%w: data list at 0x%x declares %d segments", ErrCorruptContainer, off, count)
		}
		for _, seg := range links[1 : 1+count] {
			if seg != 0 {
				segs = append(segs, seg)
			}
		}
		off = links[0]
	}
	return segs, nil
}

// decodeSegment decodes one data segment (##DT, ##DZ or ##ED) into plain
// record bytes.
func (d *Decoder) decodeSegment(off int64) ([]byte, error) {
	h, err := readBlockHeader(d.r, off)
	if err != nil {
		return nil, err
	}
	data := make([]byte, h.dataLength())
	if _, err := io.ReadFull(io.NewSectionReader(d.r, h.dataOffset(off), int64(len(data))), data); err != nil {
		return nil, fmt.Errorf("%w: truncated %s block at 0x%x", ErrCorruptContainer, h.id, off)
	}
	switch h.id {
	case blockDT:
		return data, nil
	case blockDZ:
		return inflate(data)
	case blockED:
		return d.decrypt(data)
	default:
		return nil, fmt.Errorf("%w: unexpected data segment %s at 0x%x", ErrCorruptContainer, h.id, off)
	}
}

// inflate decodes a ##DZ data section: deflate, optionally preceded by byte
// transposition (zip type 1, parameter = record length).
func inflate(data []byte) ([]byte, error) {
	if len(data) < dzHeaderLen {
		return nil, fmt.Errorf("%w: short DZ block", ErrCorruptContainer)
	}
	zipType := data[2]
	param := binary.LittleEndian.Uint32(data[4:8])
	orgLen := binary.LittleEndian.Uint64(data[8:16])

	switch zipType {
	case zipDeflate, zipTransposeDeflate:
	default:
		return nil, fmt.Errorf("%w: DZ zip type %d", ErrUnsupportedCompression, zipType)
	}

	zr, err := zlib.NewReader(bytes.NewReader(data[dzHeaderLen:]))
	if err != nil {
		return nil, fmt.Errorf("%w: DZ stream: %v", ErrCorruptContainer, err)
	}
	defer zr.Close()
	out := make([]byte, orgLen)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("%w: DZ stream ends before declared length %d", ErrCorruptContainer, orgLen)
	}
	if zipType == zipTransposeDeflate {
		out = untranspose(out, int(param))
	}
	return out, nil
}

// untranspose reverses the column-wise byte transposition applied before
// deflate. cols is the record length; trailing bytes beyond the last full
// matrix row are stored untransposed.
func untranspose(b []byte, cols int) []byte {
	if cols <= 1 || len(b) < cols {
		return b
	}
	rows := len(b) / cols
	n := rows * cols
	out := make([]byte, len(b))
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			out[r*cols+c] = b[c*rows+r]
		}
	}
	copy(out[n:], b[n:])
	return out
}

// decrypt decodes an ##ED data section, then hands the plaintext on
// according to the wrapped block type ("DT" raw records, "DZ" compressed).
func (d *Decoder) decrypt(data []byte) ([]byte, error) {
	if len(data) < edHeaderLen {
		return nil, fmt.Errorf("%w: short ED block", ErrCorruptContainer)
	}
	orgID := string(data[0:2])
	cipherTag := data[2]
	orgLen := binary.LittleEndian.Uint64(data[8:16])
	iv := data[16:32]
	ciphertext := data[32:]

	if cipherTag != cipherAESCTR {
		return nil, fmt.Errorf("%w: ED cipher tag %d", ErrCorruptContainer, cipherTag)
	}
	if len(d.key) == 0 {
		return nil, fmt.Errorf("%w: container data is encrypted", ErrMissingDecryptionKey)
	}
	block, err := aes.NewCipher(d.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingDecryptionKey, err)
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCTR(block, iv).XORKeyStream(plain, ciphertext)
	if orgLen > uint64(len(plain)) {
		return nil, fmt.Errorf("%w: ED declares %d plaintext bytes, holds %d", ErrCorruptContainer, orgLen, len(plain))
	}
	plain = plain[:orgLen]

	switch orgID {
	case "DT":
		return plain, nil
	case "DZ":
		return inflate(plain)
	default:
		return nil, fmt.Errorf("%w: ED wraps unknown block type %q", ErrCorruptContainer, orgID)
	}
}

// ChunkReader yields record-aligned chunks of a sorted data group's record
// buffer, bounding decoded memory by the configured ceiling. Raw ##DT
// segments are streamed straight from the file; compressed or encrypted
// segments are decoded one segment at a time.
type ChunkReader struct {
	d       *Decoder
	recSize int
	target  int
	segs    []int64
	pending []byte // decoded bytes not yet emitted
	fileOff int64  // current position within a file-backed DT segment
	fileEnd int64
}

// Chunks returns a ChunkReader over the data group. The group must be sorted
// (record ID size 0); unsorted groups are decoded whole via RecordBuffer and
// demultiplexed by the extractor.
func (d *Decoder) Chunks(dg DataGroup, ceiling int64) (*ChunkReader, error) {
	if dg.RecordIDSize != 0 {
		return nil, fmt.Errorf("%w: chunked decode requires a sorted data group", ErrCorruptContainer)
	}
	if len(dg.Groups) != 1 {
		return nil, fmt.Errorf("%w: sorted data group has %d channel groups", ErrCorruptContainer, len(dg.Groups))
	}
	recSize := dg.Groups[0].RecordSize()
	if recSize <= 0 {
		return nil, fmt.Errorf("%w: zero record size", ErrCorruptContainer)
	}
	target := int(ceiling) / recSize * recSize
	if target < recSize {
		target = recSize
	}
	cr := &ChunkReader{d: d, recSize: recSize, target: target}
	if dg.DataBlock != 0 {
		segs, err := d.segments(dg.DataBlock)
		if err != nil {
			return nil, err
		}
		cr.segs = segs
	}
	return cr, nil
}

// Next returns the next record-aligned chunk, or io.EOF after the last one.
// A trailing partial record fails as corrupt rather than being dropped.
func (cr *ChunkReader) Next() ([]byte, error) {
	for len(cr.pending) < cr.target {
		ok, err := cr.fill()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
	}
	if len(cr.pending) == 0 {
		return nil, io.EOF
	}
	n := len(cr.pending)
	if n > cr.target {
		n = cr.target
	}
	n = n / cr.recSize * cr.recSize
	if n == 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes do not form a record", ErrCorruptContainer, len(cr.pending))
	}
	chunk := cr.pending[:n]
	cr.pending = cr.pending[n:]
	return chunk, nil
}

// fill appends more decoded bytes to pending. It returns false when all
// segments are exhausted.
func (cr *ChunkReader) fill() (bool, error) {
	if cr.fileOff < cr.fileEnd {
		n := cr.fileEnd - cr.fileOff
		if limit := int64(cr.target); n > limit {
			n = limit
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(io.NewSectionReader(cr.d.r, cr.fileOff, n), buf); err != nil {
			return false, fmt.Errorf("%w: truncated DT data", ErrCorruptContainer)
		}
		cr.fileOff += n
		cr.pending = append(cr.pending, buf...)
		return true, nil
	}
	if len(cr.segs) == 0 {
		return false, nil
	}
	seg := cr.segs[0]
	cr.segs = cr.segs[1:]

	h, err := readBlockHeader(cr.d.r, seg)
	if err != nil {
		return false, err
	}
	if h.id == blockDT {
		cr.fileOff = h.dataOffset(seg)
		cr.fileEnd = cr.fileOff + h.dataLength()
		return true, nil
	}
	part, err := cr.d.decodeSegment(seg)
	if err != nil {
		return false, err
	}
	cr.pending = append(cr.pending, part...)
	return true, nil
}
