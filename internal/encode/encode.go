// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package encode serializes CAN frame event sequences into the analysis-tool
// text formats (CSV tables, Vector ASC traces, PEAK TRC traces). Downstream
// tools parse these files positionally, so each encoder reproduces its
// target layout byte-exactly; the only failure an encoder can report is a
// write error.
package encode

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/mf4bridge/pkg/types"
)

// ErrEncodingFailed wraps I/O failures during output writing. The domain of
// valid frame events cannot itself cause an encoding failure.
var ErrEncodingFailed = errors.New("encode: write failed")

// Meta carries the container-level facts the encoders put in file headers.
type Meta struct {
	// Source is the input file name, used in header comments.
	Source string

	// Start is the absolute recording start time.
	Start time.Time
}

// Encoder writes a frame sequence to w. The sequence is read-only and
// ordered by timestamp; encoders for the same job may run concurrently over
// the same slice.
type Encoder interface {
	Encode(w io.Writer, frames []types.Frame, meta Meta) error
}

// ForFormat returns the encoder for a format tag.
func ForFormat(tag types.FormatTag) (Encoder, error) {
	switch tag {
	case types.FormatCSV:
		return CSV{}, nil
	case types.FormatASC:
		return ASC{}, nil
	case types.FormatTRC:
		return TRC{}, nil
	}
	return nil, fmt.Errorf("no encoder for format %q", tag)
}

// OutputName derives the output file name for an input path and format:
// the input stem plus the format extension.
func OutputName(inputPath string, tag types.FormatTag) string {
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return stem + tag.Extension()
}

// finish flushes the buffered writer and converts the sticky write error, if
// any, into ErrEncodingFailed.
func finish(bw *bufio.Writer) error {
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrEncodingFailed, err)
	}
	return nil
}

// hexBytes formats payload bytes as space-separated upper-case hex pairs.
func hexBytes(data []byte) string {
	var b strings.Builder
	for i, d := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", d)
	}
	return b.String()
}
