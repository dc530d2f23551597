package keyedarchive

import (
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/appsworld/keyedarchive/cf"
)

type xmlPlistParser struct {
	reader             io.Reader
	xmlDecoder         *xml.Decoder
	whitespaceReplacer *strings.Replacer
	ntags              int
}

func newXMLPlistParser(r io.Reader) *xmlPlistParser {
	return &xmlPlistParser{r, xml.NewDecoder(r), strings.NewReplacer("\t", "", "\n", "", " ", "", "\r", ""), 0}
}

func (p *xmlPlistParser) parseDocument() (pval cf.Value, parseError error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(runtime.Error); ok {
				panic(r)
			}
			if e, ok := r.(*Error); ok {
				parseError = e
			} else {
				parseError = malformed("XML", r.(error))
			}
		}
	}()
	for {
		token, err := p.xmlDecoder.Token()
		if err != nil {
			panic(err)
		}
		if element, ok := token.(xml.StartElement); ok {
			pval = p.parseXMLElement(element)
			if p.ntags == 0 || pval == nil {
				panic(errors.New("no elements encountered"))
			}
			return
		}
	}
}

func (p *xmlPlistParser) parseXMLElement(element xml.StartElement) cf.Value {
	var charData xml.CharData
	switch element.Name.Local {
	case "plist":
		p.ntags++
		for {
			token, err := p.xmlDecoder.Token()
			if err != nil {
				panic(err)
			}

			if el, ok := token.(xml.EndElement); ok && el.Name.Local == "plist" {
				break
			}

			if el, ok := token.(xml.StartElement); ok {
				return p.parseXMLElement(el)
			}
		}
		return nil
	case "string":
		p.ntags++
		must(p.xmlDecoder.DecodeElement(&charData, &element))

		return cf.String(charData)
	case "integer":
		p.ntags++
		must(p.xmlDecoder.DecodeElement(&charData, &element))

		s := string(charData)
		if len(s) == 0 {
			panic(errors.New("invalid empty <integer/>"))
		}

		if s[0] == '-' {
			s, base := unsignedGetBase(s[1:])
			n := must2(strconv.ParseInt("-"+s, base, 64))
			return &cf.Number{Signed: true, Value: uint64(n)}
		}
		s, base := unsignedGetBase(s)
		n := must2(strconv.ParseUint(s, base, 64))
		return &cf.Number{Signed: false, Value: n}
	case "real":
		p.ntags++
		must(p.xmlDecoder.DecodeElement(&charData, &element))

		n := must2(strconv.ParseFloat(string(charData), 64))
		return &cf.Real{Wide: true, Value: n}
	case "true", "false":
		p.ntags++
		p.xmlDecoder.Skip()

		return cf.Boolean(element.Name.Local == "true")
	case "date":
		p.ntags++
		must(p.xmlDecoder.DecodeElement(&charData, &element))

		t, err := time.ParseInLocation(time.RFC3339, string(charData), time.UTC)
		if err != nil {
			panic(err)
		}

		return cf.Date(t.UTC())
	case "data":
		p.ntags++
		must(p.xmlDecoder.DecodeElement(&charData, &element))

		str := p.whitespaceReplacer.Replace(string(charData))

		l := base64.StdEncoding.DecodedLen(len(str))
		b := make([]byte, l)
		l, err := base64.StdEncoding.Decode(b, []byte(str))
		if err != nil {
			panic(err)
		}

		return cf.Data(b[:l])
	case "dict":
		p.ntags++
		var key *string
		dict := &cf.Dictionary{
			Keys:   make([]string, 0, 32),
			Values: make([]cf.Value, 0, 32),
		}
		for {
			token, err := p.xmlDecoder.Token()
			if err != nil {
				panic(err)
			}

			if el, ok := token.(xml.EndElement); ok && el.Name.Local == "dict" {
				if key != nil {
					panic(errors.New("missing value in dictionary"))
				}
				break
			}

			if el, ok := token.(xml.StartElement); ok {
				if el.Name.Local == "key" {
					var k string
					p.xmlDecoder.DecodeElement(&k, &el)
					key = &k
				} else {
					if key == nil {
						panic(errors.New("missing key in dictionary"))
					}
					if err := dict.Append(*key, p.parseXMLElement(el)); err != nil {
						panic(err)
					}
					key = nil
				}
			}
		}

		return dict
	case "array":
		p.ntags++
		values := make(cf.Array, 0, 32)
		for {
			token, err := p.xmlDecoder.Token()
			if err != nil {
				panic(err)
			}

			if el, ok := token.(xml.EndElement); ok && el.Name.Local == "array" {
				break
			}

			if el, ok := token.(xml.StartElement); ok {
				values = append(values, p.parseXMLElement(el))
			}
		}
		return values
	}
	panic(fmt.Errorf("encountered unknown element %s", element.Name.Local))
}

// unsignedGetBase splits a leading base designator (0x) from an unsigned
// integer literal.
func unsignedGetBase(s string) (string, int) {
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:], 16
	}
	return s, 10
}
