package keyedarchive

import (
	"bytes"
	"io"
	"os"

	"github.com/appsworld/keyedarchive/cf"
)

var (
	binaryMagic = []byte("bplist00")
	xmlHeads    = [][]byte{[]byte("<?xml"), []byte("<!doc")}
)

// ReadPlist decodes a binary or XML property list from data.
// The format is sniffed from the first 8 bytes.
func ReadPlist(data []byte) (cf.Value, error) {
	return ReadPlistFrom(bytes.NewReader(data))
}

// ReadPlistFrom decodes a property list from r, which is rewound before
// dispatch to the format parser.
func ReadPlistFrom(r io.ReadSeeker) (cf.Value, error) {
	head := make([]byte, 8)
	n, err := r.Read(head)
	if err != nil && err != io.EOF {
		return nil, &Error{Kind: IO, Err: err}
	}
	head = head[:n]
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, &Error{Kind: IO, Err: err}
	}

	switch {
	case bytes.Equal(head, binaryMagic):
		return newBplistParser(r).parseDocument()
	case isXMLHead(head):
		return newXMLPlistParser(r).parseDocument()
	}
	return nil, &Error{Kind: UnknownFormat}
}

// ReadPlistFromPath reads and decodes the property list file at path.
func ReadPlistFromPath(path string) (cf.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Kind: IO, Err: err}
	}
	return ReadPlist(data)
}

// isXMLHead matches "<?xml" and "<!DOC" case-insensitively. Arbitrary XML is
// deliberately not accepted; anything else is an unknown format.
func isXMLHead(head []byte) bool {
	lower := bytes.ToLower(head)
	for _, h := range xmlHeads {
		if bytes.HasPrefix(lower, h) {
			return true
		}
	}
	return false
}
