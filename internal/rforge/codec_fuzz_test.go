package rforge

import "testing"

// FuzzBinaryParserFeed ensures arbitrary byte streams never panic the
// resynchronising parser and that the CRC error counter only ever grows.
func FuzzBinaryParserFeed(f *testing.F) {
	p := NewBinaryParser()
	wire, _ := p.BuildCommand(StreamData, []byte("1,2,3"))
	f.Add(wire)
	f.Add([]byte{0xAA, 0x55, 0x01, 0x20, 0xFF, 0xFF, 0xFF, 0xFF})
	f.Add([]byte{0xAA})
	f.Fuzz(func(t *testing.T, data []byte) {
		parser := NewBinaryParser()
		prev := 0
		for i := range data {
			parser.Feed(data[i : i+1])
			for {
				if _, ok := parser.TryPopFrame(); !ok {
					break
				}
			}
			if parser.CRCErrorCount() < prev {
				t.Fatalf("CRCErrorCount regressed: %d < %d", parser.CRCErrorCount(), prev)
			}
			prev = parser.CRCErrorCount()
		}
	})
}
