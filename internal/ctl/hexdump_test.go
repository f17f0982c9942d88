package ctl

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
)

func TestHexdumpGolden(t *testing.T) {
	seq := func(start byte, n int) []byte {
		b := make([]byte, n)
		for i := range b {
			b[i] = start + byte(i)
		}
		return b
	}
	cases := []struct {
		name   string
		offset uint32
		data   []byte
	}{
		{"rd_single", 0x580, []byte{0x03}},
		{"rd_aligned", 0x100, seq(0, 20)},
		{"rd_unaligned", 0x10c, seq(0xa0, 8)},
		{"rd_scsr", 0x2010c03c, seq(0xd0, 6)},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			Hexdump(&buf, tc.offset, tc.data)
			g.Assert(t, tc.name, buf.Bytes())
		})
	}
}
