package ctl

import (
	"fmt"
	"io"
	"strings"
)

// Hexdump prints data read from offset. A single byte is printed on one
// line; longer reads are laid out 16 per row on 16-byte aligned
// addresses, with "--" before the first byte.
func Hexdump(w io.Writer, offset uint32, data []byte) {
	if len(data) == 1 {
		fmt.Fprintf(w, "%04x: %02x\n", offset, data[0])
		return
	}
	lead := int(offset & 0xf)
	row := offset &^ 0xf
	cells := make([]string, 0, 16)
	for i := 0; i < lead+len(data); i++ {
		if i < lead {
			cells = append(cells, "--")
		} else {
			cells = append(cells, fmt.Sprintf("%02x", data[i-lead]))
		}
		if len(cells) == 16 || i == lead+len(data)-1 {
			fmt.Fprintf(w, "%04x: %s\n", row, strings.Join(cells, " "))
			row += 16
			cells = cells[:0]
		}
	}
}
