package keyedarchive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/text/encoding/unicode"

	"github.com/appsworld/keyedarchive/cf"
)

type bplistParser struct {
	reader        io.ReadSeeker
	version       int
	objects       []cf.Value // object ID to object
	offtable      []uint64
	trailer       bplistTrailer
	trailerOffset int64

	containerStack []uint64 // slice of object IDs; manipulated during container deserialization
}

func newBplistParser(r io.ReadSeeker) *bplistParser {
	return &bplistParser{reader: r}
}

func (p *bplistParser) validateObjectListLength(off int64, oid uint64, length uint64, context string) {
	if uint64(off)+(length*uint64(p.trailer.ObjectRefSize)) > p.trailer.OffsetTableOffset {
		panic(fmt.Errorf("%s#%d length (%v) puts its end beyond the offset table at 0x%x", context, oid, length, p.trailer.OffsetTableOffset))
	}
}

func (p *bplistParser) validateDocumentTrailer() {
	if p.trailer.OffsetTableOffset >= uint64(p.trailerOffset) {
		panic(fmt.Errorf("offset table beyond beginning of trailer (0x%x, trailer@0x%x)", p.trailer.OffsetTableOffset, p.trailerOffset))
	}

	if p.trailer.OffsetTableOffset < 9 {
		panic(fmt.Errorf("offset table begins inside header (0x%x)", p.trailer.OffsetTableOffset))
	}

	if uint64(p.trailerOffset) > (p.trailer.NumObjects*uint64(p.trailer.OffsetIntSize))+p.trailer.OffsetTableOffset {
		panic(errors.New("garbage between offset table and trailer"))
	}

	if p.trailer.NumObjects > uint64(p.trailerOffset) {
		panic(fmt.Errorf("more objects (%v) than there are non-trailer bytes in the file (%v)", p.trailer.NumObjects, p.trailerOffset))
	}

	objectRefSize := uint64(1) << (8 * p.trailer.ObjectRefSize)
	if p.trailer.NumObjects > objectRefSize {
		panic(fmt.Errorf("more objects (%v) than object ref size (%v bytes) can support", p.trailer.NumObjects, p.trailer.ObjectRefSize))
	}

	if p.trailer.OffsetIntSize < uint8(8) && (uint64(1)<<(8*p.trailer.OffsetIntSize)) <= p.trailer.OffsetTableOffset {
		panic(errors.New("offset size isn't big enough to address entire file"))
	}

	if p.trailer.TopObject >= p.trailer.NumObjects {
		panic(fmt.Errorf("top object #%d is out of range (only %d objects exist)", p.trailer.TopObject, p.trailer.NumObjects))
	}
}

func (p *bplistParser) parseDocument() (pval cf.Value, parseError error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(runtime.Error); ok {
				panic(r)
			}
			if e, ok := r.(*Error); ok {
				parseError = e
			} else {
				parseError = malformed("binary", r.(error))
			}
		}
	}()

	magic := make([]byte, 6)
	ver := make([]byte, 2)
	must2(p.reader.Seek(0, io.SeekStart))
	must2(io.ReadFull(p.reader, magic))
	if !bytes.Equal(magic, []byte("bplist")) {
		panic(malformedf("binary", "mismatched magic"))
	}

	must2(io.ReadFull(p.reader, ver))

	v, err := strconv.ParseInt(string(ver), 10, 0)
	if err != nil {
		panic(fmt.Errorf("invalid version %q", string(ver)))
	}
	p.version = int(v)

	if p.version > 1 {
		panic(fmt.Errorf("unexpected version %d", p.version))
	}

	p.trailerOffset, err = p.reader.Seek(-32, io.SeekEnd)
	if err != nil {
		panic(err)
	}

	must(binary.Read(p.reader, binary.BigEndian, &p.trailer))
	p.validateDocumentTrailer()

	// INVARIANTS:
	// - Entire offset table is before trailer
	// - Offset table begins after header
	// - Offset table can address entire file
	// - Object IDs are big enough to support the number of objects in this plist
	// - Top object is in range

	must2(p.reader.Seek(int64(p.trailer.OffsetTableOffset), io.SeekStart))

	p.objects = make([]cf.Value, p.trailer.NumObjects)
	p.offtable = make([]uint64, p.trailer.NumObjects)
	maxOffset := p.trailer.OffsetTableOffset - 1
	for i := uint64(0); i < p.trailer.NumObjects; i++ {
		off, _ := p.readSizedInt(int(p.trailer.OffsetIntSize))
		if off > maxOffset {
			panic(fmt.Errorf("object#%d starts beyond beginning of offset table (0x%x, table@0x%x)", i, off, maxOffset+1))
		}
		p.offtable[i] = off
	}

	pval = p.objectAtIndex(p.trailer.TopObject)
	return
}

// readSizedInt returns a 128-bit integer as low64, high64.
func (p *bplistParser) readSizedInt(nbytes int) (uint64, uint64) {
	switch nbytes {
	case 1:
		var val uint8
		must(binary.Read(p.reader, binary.BigEndian, &val))
		return uint64(val), 0
	case 2:
		var val uint16
		must(binary.Read(p.reader, binary.BigEndian, &val))
		return uint64(val), 0
	case 4:
		var val uint32
		must(binary.Read(p.reader, binary.BigEndian, &val))
		return uint64(val), 0
	case 8:
		var val uint64
		must(binary.Read(p.reader, binary.BigEndian, &val))
		return val, 0
	case 16:
		var high, low uint64
		must(binary.Read(p.reader, binary.BigEndian, &high))
		must(binary.Read(p.reader, binary.BigEndian, &low))
		return low, high
	}
	panic(errors.New("illegal integer size"))
}

func (p *bplistParser) countForTag(tag uint8) uint64 {
	cnt := uint64(tag & 0x0F)
	if cnt == 0xF {
		var intTag uint8
		must(binary.Read(p.reader, binary.BigEndian, &intTag))
		if intTag&0xF0 != bpTagInteger {
			panic(fmt.Errorf("extended count is not an integer (tag 0x%2.02x)", intTag))
		}
		cnt, _ = p.readSizedInt(1 << (intTag & 0xF))
	}
	return cnt
}

func (p *bplistParser) objectAtIndex(index uint64) cf.Value {
	if index >= p.trailer.NumObjects {
		panic(fmt.Errorf("invalid object #%d (max %d)", index, p.trailer.NumObjects))
	}

	if pval := p.objects[index]; pval != nil {
		return pval
	}
	pval := p.parseTagAtOffset(int64(p.offtable[index]), index)
	p.objects[index] = pval
	return pval
}

func (p *bplistParser) panicNestedObject(oid uint64) {
	oids := ""
	for _, v := range p.containerStack {
		oids += fmt.Sprintf("#%d > ", v)
	}

	// %s%d: oids above ends with " > "
	panic(fmt.Errorf("self-referential collection#%d (%s#%d) cannot be deserialized", oid, oids, oid))
}

func (p *bplistParser) parseTagAtOffset(off int64, oid uint64) cf.Value {
	for _, v := range p.containerStack {
		if v == oid {
			p.panicNestedObject(oid)
		}
	}
	p.containerStack = append(p.containerStack, oid)
	defer func() {
		p.containerStack = p.containerStack[:len(p.containerStack)-1]
	}()

	var tag uint8
	must2(p.reader.Seek(off, io.SeekStart))
	must(binary.Read(p.reader, binary.BigEndian, &tag))

	switch tag & 0xF0 {
	case bpTagNull:
		switch tag & 0x0F {
		case bpTagNull:
			return cf.Null{}
		case bpTagBoolTrue, bpTagBoolFalse:
			return cf.Boolean(tag == bpTagBoolTrue)
		}
	case bpTagInteger:
		nbytes := 1 << (tag & 0xF)
		lo, hi := p.readSizedInt(nbytes)
		switch {
		case nbytes <= 4:
			// 1-, 2- and 4-byte integers are unsigned.
			return &cf.Number{Signed: false, Value: lo}
		case nbytes == 8:
			return &cf.Number{Signed: int64(lo) < 0, Value: lo}
		case hi == 0:
			return &cf.Number{Signed: false, Value: lo}
		case hi == 0xFFFFFFFFFFFFFFFF && int64(lo) < 0:
			// a negative 16-byte integer is the sign extension of its low quad
			return &cf.Number{Signed: true, Value: lo}
		default:
			panic(fmt.Errorf("integer#%d exceeds 64 bits", oid))
		}
	case bpTagReal:
		nbytes := 1 << (tag & 0x0F)
		switch nbytes {
		case 4:
			var val float32
			must(binary.Read(p.reader, binary.BigEndian, &val))
			return &cf.Real{Wide: false, Value: float64(val)}
		case 8:
			var val float64
			must(binary.Read(p.reader, binary.BigEndian, &val))
			return &cf.Real{Wide: true, Value: val}
		}
		panic(errors.New("illegal float size"))
	case bpTagDate:
		if tag&0x0F != 0x3 {
			panic(fmt.Errorf("unexpected date tag 0x%2.02x", tag))
		}
		var val float64
		must(binary.Read(p.reader, binary.BigEndian, &val))

		// Dates are stored as seconds since the Apple epoch; adjust to UNIX time.
		val += appleEpochUnix

		sec, fsec := math.Modf(val)
		t := time.Unix(int64(sec), int64(fsec*float64(time.Second))).In(time.UTC)
		return cf.Date(t)
	case bpTagData:
		cnt := p.countForTag(tag)
		if uint64(off)+cnt > p.trailer.OffsetTableOffset {
			panic(fmt.Errorf("data#%d @ %x longer than file (%v bytes, max is %v)", oid, off, cnt, p.trailer.OffsetTableOffset))
		}

		b := make([]byte, cnt)
		must2(io.ReadFull(p.reader, b))
		return cf.Data(b)
	case bpTagASCIIString, bpTagUTF16String:
		cnt := p.countForTag(tag)
		characterWidth := uint64(1)
		if tag&0xF0 == bpTagUTF16String {
			characterWidth = 2
		}
		if uint64(off)+cnt*characterWidth > p.trailer.OffsetTableOffset {
			panic(fmt.Errorf("string#%d @ %x longer than file (%v bytes, max is %v)", oid, off, cnt*characterWidth, p.trailer.OffsetTableOffset))
		}

		b := make([]byte, cnt*characterWidth)
		must2(io.ReadFull(p.reader, b))

		if tag&0xF0 == bpTagASCIIString {
			for i, c := range b {
				if c > 0x7F {
					panic(fmt.Errorf("string#%d contains non-ASCII byte 0x%2.02x at %d", oid, c, i))
				}
			}
			return cf.String(b)
		}

		decoded, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
		if err != nil {
			panic(fmt.Errorf("string#%d is not valid UTF-16BE: %v", oid, err))
		}
		return cf.String(decoded)
	case bpTagUID: // Somehow different than int: low half is nbytes - 1 instead of log2(nbytes)
		val, _ := p.readSizedInt(int(tag&0xF) + 1)
		// UIDs surface in the same shape Apple's XML rendering gives them,
		// which is also what the unarchiver keys on.
		return &cf.Dictionary{Keys: []string{uidKey}, Values: []cf.Value{&cf.Number{Value: val}}}
	case bpTagDictionary:
		cnt := p.countForTag(tag)
		p.validateObjectListLength(off, oid, cnt*2, "dictionary")

		indices := make([]uint64, cnt*2)
		for i := uint64(0); i < cnt*2; i++ {
			indices[i], _ = p.readSizedInt(int(p.trailer.ObjectRefSize))
		}

		dict := &cf.Dictionary{
			Keys:   make([]string, 0, cnt),
			Values: make([]cf.Value, 0, cnt),
		}
		for i := uint64(0); i < cnt; i++ {
			kval := p.objectAtIndex(indices[i])
			vval := p.objectAtIndex(indices[i+cnt])

			str, ok := kval.(cf.String)
			if !ok {
				panic(fmt.Errorf("dictionary#%d contains non-string key at index %d", oid, i))
			}
			if err := dict.Append(string(str), vval); err != nil {
				panic(fmt.Errorf("dictionary#%d: %v", oid, err))
			}
		}

		return dict
	case bpTagArray:
		cnt := p.countForTag(tag)
		p.validateObjectListLength(off, oid, cnt, "array")

		// this is fully read in advance because objectAtIndex can seek.
		indices := make([]uint64, cnt)
		for i := uint64(0); i < cnt; i++ {
			indices[i], _ = p.readSizedInt(int(p.trailer.ObjectRefSize))
		}

		arr := make(cf.Array, cnt)
		for i, newOid := range indices {
			arr[i] = p.objectAtIndex(newOid)
		}

		return arr
	}
	panic(fmt.Errorf("unexpected atom#%d 0x%2.02x at offset %d", oid, tag, off))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func must2[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
