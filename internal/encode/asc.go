// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package encode

import (
	"bufio"
	"fmt"
	"io"

	"github.com/pdiddy/mf4bridge/pkg/types"
)

// ascTimeLayout is the date format Vector tools print in ASC headers.
const ascTimeLayout = "Mon Jan 02 15:04:05.000 2006"

// ASC writes the Vector ASCII trace layout: a header block naming the format
// version and base time, a trigger block of one line per event, and a
// closing marker. Event times are seconds relative to the first event,
// fixed 6 decimals. Bus channels are printed 1-based, as Vector numbers
// them.
type ASC struct{}

// Encode writes lines of the form
//
//	0.500000 1 123x Rx d 2 AB CD
func (ASC) Encode(w io.Writer, frames []types.Frame, meta Meta) error {
	bw := bufio.NewWriter(w)
	date := meta.Start.Format(ascTimeLayout)
	fmt.Fprintf(bw, "date %s\n", date)
	bw.WriteString("base hex timestamps absolute\n")
	bw.WriteString("no internal events logged\n")
	bw.WriteString("// version 9.0.0\n")
	fmt.Fprintf(bw, "// converted from %s\n", meta.Source)
	fmt.Fprintf(bw, "Begin Triggerblock %s\n", date)

	var base float64
	if len(frames) > 0 {
		base = frames[0].Timestamp
	}
	for _, f := range frames {
		fmt.Fprintf(bw, "%.6f %d %Xx Rx d %d %s\n",
			f.Timestamp-base, f.Channel+1, f.ID, f.DLC, hexBytes(f.Data))
	}
	bw.WriteString("End TriggerBlock\n")
	return finish(bw)
}
