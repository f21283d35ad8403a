// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package encode

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/mf4bridge/pkg/types"
)

// CSV writes one header row and one row per event. IDs and data bytes are
// decimal; Data_Hex repeats the payload as upper-case hex with no separator.
// None of the fields can contain a comma, so no quoting is ever emitted.
type CSV struct{}

const csvHeader = "Timestamp,Channel,ID,DLC,Data,Data_Hex\n"

// Encode writes the CSV layout: absolute timestamps with fixed 6-decimal
// seconds, e.g. "1.000000,0,291,2,171 205,ABCD".
func (CSV) Encode(w io.Writer, frames []types.Frame, meta Meta) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(csvHeader)
	for _, f := range frames {
		fmt.Fprintf(bw, "%.6f,%d,%d,%d,%s,%s\n",
			f.Timestamp, f.Channel, f.ID, f.DLC, decBytes(f.Data), compactHex(f.Data))
	}
	return finish(bw)
}

// decBytes formats payload bytes as space-separated decimal values.
func decBytes(data []byte) string {
	var b strings.Builder
	for i, d := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d", d)
	}
	return b.String()
}

// compactHex formats payload bytes as upper-case hex with no separator.
func compactHex(data []byte) string {
	var b strings.Builder
	for _, d := range data {
		fmt.Fprintf(&b, "%02X", d)
	}
	return b.String()
}
