// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package encode

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/pdiddy/mf4bridge/pkg/types"
)

// trcEpoch is the day-zero reference of PEAK's STARTTIME field
// (30 December 1899, the OLE automation epoch).
var trcEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// TRC writes the PEAK PCAN trace layout: a comment header stating the file
// version, start time and message count, then one line per event with a
// 1-based index, integer millisecond offset from the first event, 1-based
// bus channel, direction, hex ID, DLC and hex payload bytes.
type TRC struct{}

// Encode writes lines of the form
//
//	1) 0 1 Rx 0123 2 AB CD
func (TRC) Encode(w io.Writer, frames []types.Frame, meta Meta) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(";$FILEVERSION=1.1\n")
	fmt.Fprintf(bw, ";$STARTTIME=%.6f\n", oleDays(meta.Start))
	fmt.Fprintf(bw, ";$MESSAGECOUNT=%d\n", len(frames))
	bw.WriteString(";\n")
	bw.WriteString(";   N: message number\n")
	bw.WriteString(";   O: time offset (ms)\n")
	bw.WriteString(";   B: bus channel\n")
	bw.WriteString(";   I: CAN-ID (hex)\n")
	bw.WriteString(";   L: data length code\n")
	bw.WriteString(";\n")

	var base float64
	if len(frames) > 0 {
		base = frames[0].Timestamp
	}
	for i, f := range frames {
		offset := int64(math.Round((f.Timestamp - base) * 1000))
		fmt.Fprintf(bw, "%d) %d %d Rx %s %d %s\n",
			i+1, offset, f.Channel+1, trcID(f), f.DLC, hexBytes(f.Data))
	}
	return finish(bw)
}

// trcID formats the arbitration ID: 4 hex digits for standard frames,
// 8 for extended, matching PEAK's column width.
func trcID(f types.Frame) string {
	if f.Extended {
		return fmt.Sprintf("%08X", f.ID)
	}
	return fmt.Sprintf("%04X", f.ID)
}

// oleDays converts t to fractional days since the OLE automation epoch.
func oleDays(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return t.Sub(trcEpoch).Seconds() / 86400
}
