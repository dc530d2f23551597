package keyedarchive

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/appsworld/keyedarchive/cf"
)

// buildBplist assembles a document from pre-encoded objects using 1-byte
// offsets and object refs, which is enough for every fixture here.
func buildBplist(top uint64, objects ...[]byte) []byte {
	doc := []byte("bplist00")
	offsets := make([]uint64, len(objects))
	for i, obj := range objects {
		offsets[i] = uint64(len(doc))
		doc = append(doc, obj...)
	}
	trailer := bplistTrailer{
		OffsetIntSize:     1,
		ObjectRefSize:     1,
		NumObjects:        uint64(len(objects)),
		TopObject:         top,
		OffsetTableOffset: uint64(len(doc)),
	}
	buf := bytes.NewBuffer(doc)
	for _, off := range offsets {
		buf.WriteByte(byte(off))
	}
	binary.Write(buf, binary.BigEndian, &trailer)
	return buf.Bytes()
}

func parseBplist(t *testing.T, doc []byte) cf.Value {
	t.Helper()
	pval, err := newBplistParser(bytes.NewReader(doc)).parseDocument()
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return pval
}

func TestBplistParseFixture(t *testing.T) {
	pval := parseBplist(t, fixtureAsBplist)
	if d := cmp.Diff(fixtureTree, pval, valueComparer); d != "" {
		t.Errorf("fixture mismatch (-want +got):\n%s", d)
	}
}

func TestBplistBooleanTrue(t *testing.T) {
	pval := parseBplist(t, buildBplist(0, []byte{0x09}))
	if b, ok := pval.(cf.Boolean); !ok || !bool(b) {
		t.Errorf("expected Boolean(true), got %#v", pval)
	}
}

func TestBplistNull(t *testing.T) {
	pval := parseBplist(t, buildBplist(0, []byte{0x00}))
	if _, ok := pval.(cf.Null); !ok {
		t.Errorf("expected Null, got %#v", pval)
	}
}

func TestBplistUIDAtom(t *testing.T) {
	pval := parseBplist(t, buildBplist(0, []byte{0x80, 0x05}))
	want := testDict("CF$UID", unum(5))
	if d := cmp.Diff(cf.Value(want), pval, valueComparer); d != "" {
		t.Errorf("UID atom mismatch (-want +got):\n%s", d)
	}
}

func TestBplistIntegers(t *testing.T) {
	tests := []struct {
		name string
		obj  []byte
		want cf.Value
	}{
		{"one byte", []byte{0x10, 0xFF}, unum(255)},
		{"two bytes", []byte{0x11, 0x01, 0x00}, unum(256)},
		{"four bytes", []byte{0x12, 0xFF, 0xFF, 0xFF, 0xFF}, unum(0xFFFFFFFF)},
		{"eight bytes negative", []byte{0x13, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, snum(-1)},
		{"sixteen bytes positive", []byte{0x14,
			0, 0, 0, 0, 0, 0, 0, 0,
			0, 0, 0, 0, 0, 0, 0, 5}, unum(5)},
		{"sixteen bytes negative", []byte{0x14,
			0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
			0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFE}, snum(-2)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			pval := parseBplist(t, buildBplist(0, test.obj))
			if d := cmp.Diff(test.want, pval, valueComparer); d != "" {
				t.Errorf("(-want +got):\n%s", d)
			}
		})
	}
}

func TestBplistExtendedCount(t *testing.T) {
	// count == 0xF defers to a nested integer marker
	obj := append([]byte{0x4F, 0x10, 16}, bytes.Repeat([]byte{0xAB}, 16)...)
	pval := parseBplist(t, buildBplist(0, obj))
	data, ok := pval.(cf.Data)
	if !ok || len(data) != 16 {
		t.Errorf("expected 16 bytes of data, got %#v", pval)
	}
}

var invalidBplists = []struct {
	Name string
	Data []byte
}{
	{"Truncated document", []byte("bplist00")},
	{"Bad version", append([]byte("bplistXY"), make([]byte, 40)...)},
	{"Offset table inside header", func() []byte {
		doc := buildBplist(0, []byte{0x09})
		doc[len(doc)-1] = 3
		return doc
	}()},
	{"Top object out of range", func() []byte {
		doc := buildBplist(0, []byte{0x09})
		doc[len(doc)-9] = 7
		return doc
	}()},
	{"Object offset beyond offset table", func() []byte {
		doc := buildBplist(0, []byte{0x09})
		doc[9] = 0xF0 // offset table entry for object#0
		return doc
	}()},
	{"Object ref out of range", buildBplist(0, []byte{0xA1, 0x05})},
	{"Non-string dictionary key", buildBplist(0, []byte{0xD1, 1, 1}, []byte{0x10, 0x05})},
	{"Duplicate dictionary keys", buildBplist(0,
		[]byte{0xD2, 1, 1, 2, 2}, []byte{0x51, 'a'}, []byte{0x10, 0x05})},
	{"Self-referential array", buildBplist(0, []byte{0xA1, 0x00})},
	{"Unknown tag", buildBplist(0, []byte{0x70})},
	{"Non-ASCII byte in ASCII string", buildBplist(0, []byte{0x51, 0xC0})},
	{"Extended count is not an integer", buildBplist(0, []byte{0x4F, 0x50, 1})},
	{"Sixteen-byte integer beyond 64 bits", buildBplist(0, append([]byte{0x14},
		append(bytes.Repeat([]byte{0x00}, 7), append([]byte{0x01}, bytes.Repeat([]byte{0x00}, 8)...)...)...))},
}

func TestInvalidBplists(t *testing.T) {
	for _, test := range invalidBplists {
		t.Run(test.Name, func(t *testing.T) {
			_, err := newBplistParser(bytes.NewReader(test.Data)).parseDocument()
			if err == nil {
				t.Fatal("expected parse error")
			}
			perr, ok := err.(*Error)
			if !ok || perr.Kind != MalformedFormat {
				t.Errorf("expected MalformedFormat, got %v", err)
			}
		})
	}
}

func BenchmarkBplistParse(b *testing.B) {
	buf := bytes.NewReader(fixtureAsBplist)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StartTimer()
		d := newBplistParser(buf)
		d.parseDocument()
		b.StopTimer()
		buf.Seek(0, 0)
	}
}
