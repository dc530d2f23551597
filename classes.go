package keyedarchive

import (
	"errors"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/appsworld/keyedarchive/cf"
)

// applyBuiltin decodes the collection and scalar classes every archive uses.
// dict is the enclosing dictionary with its class reference already consumed
// and every value resolved. The second return is false when name is not a
// built-in.
func (u *Unarchiver) applyBuiltin(name string, dict *cf.Dictionary) (cf.Value, bool, error) {
	badNode := func(key string, err error) error {
		return &Error{Kind: MalformedNode, Key: key, Node: dict.Copy(), Err: err}
	}

	switch name {
	case "NSArray", "NSMutableArray", "NSSet", "NSMutableSet":
		objects, ok := dict.Get("NS.objects")
		if !ok {
			return cf.Array{}, true, nil
		}
		arr, ok := objects.(cf.Array)
		if !ok {
			return nil, true, badNode("NS.objects", errors.New("not an array"))
		}
		return arr, true, nil

	case "NSDictionary", "NSMutableDictionary":
		keys, _ := dict.Get("NS.keys")
		objects, _ := dict.Get("NS.objects")
		keyArr, ok := keys.(cf.Array)
		if !ok {
			return nil, true, badNode("NS.keys", errors.New("missing or not an array"))
		}
		objArr, ok := objects.(cf.Array)
		if !ok || len(objArr) != len(keyArr) {
			return nil, true, badNode("NS.objects", errors.New("missing or mismatched with NS.keys"))
		}
		out := &cf.Dictionary{}
		for i, k := range keyArr {
			// Apple archives occasionally hold non-string keys; the tree
			// model has no place for them, so they are skipped.
			s, ok := k.(cf.String)
			if !ok {
				continue
			}
			if err := out.Append(string(s), objArr[i]); err != nil {
				return nil, true, badNode(string(s), err)
			}
		}
		return out, true, nil

	case "NSString", "NSMutableString":
		s, ok := dict.Get("NS.string")
		if !ok {
			return nil, true, badNode("NS.string", errors.New("missing"))
		}
		str, ok := s.(cf.String)
		if !ok {
			return nil, true, badNode("NS.string", errors.New("not a string"))
		}
		return str, true, nil

	case "NSDate":
		t, ok := dict.Get("NS.time")
		if !ok {
			return nil, true, badNode("NS.time", errors.New("missing"))
		}
		seconds, err := cf.AsFloat64(t)
		if err != nil {
			return nil, true, badNode("NS.time", err)
		}
		sec, fsec := math.Modf(seconds + appleEpochUnix)
		return cf.Date(time.Unix(int64(sec), int64(fsec*float64(time.Second))).In(time.UTC)), true, nil

	case "NSData", "NSMutableData":
		d, ok := dict.Get("NS.data")
		if !ok {
			return nil, true, badNode("NS.data", errors.New("missing"))
		}
		data, ok := d.(cf.Data)
		if !ok {
			return nil, true, badNode("NS.data", errors.New("not data"))
		}
		return data, true, nil
	}

	return nil, false, nil
}

func init() {
	RegisterClassHandler("NSColor", decodeNSColor)
	RegisterClassHandler("NSAttributedString", decodeNSAttributedString)
	RegisterClassHandler("NSMutableAttributedString", decodeNSAttributedString)
	RegisterClassHandler("NSURLRequest", decodeNSURLRequest)
	RegisterClassHandler("NSMutableURLRequest", decodeNSURLRequest)
	RegisterClassHandler("NSURL", decodeNSURL)
	RegisterClassHandler("NSValue", decodeNSValue)
	RegisterClassHandler("NSNumber", decodeNSNumber)
	RegisterClassHandler("NSDecimalNumber", decodeNSDecimalNumber)
	RegisterClassHandler("NSTimeZone", stringField("NS.name"))
	RegisterClassHandler("NSLocale", stringField("NS.identifier"))
	RegisterClassHandler("NSRange", decodeNSRange)
	RegisterClassHandler("NSPoint", decodeNSPoint)
	RegisterClassHandler("NSSize", decodeNSSize)
	RegisterClassHandler("NSRect", decodeNSRect)
}

// decodeNSColor reads an NSRGB component blob; each byte is one channel
// scaled to [0,1].
func decodeNSColor(dict *cf.Dictionary) cf.Value {
	v, ok := dict.Get("NSRGB")
	if !ok {
		return cf.Null{}
	}
	rgb, ok := v.(cf.Data)
	if !ok || len(rgb) < 3 {
		return cf.Null{}
	}
	channel := func(b byte) cf.Value {
		return &cf.Real{Wide: true, Value: float64(b) / 255}
	}
	out := &cf.Dictionary{}
	out.Append("Red", channel(rgb[0]))
	out.Append("Green", channel(rgb[1]))
	out.Append("Blue", channel(rgb[2]))
	if len(rgb) >= 4 {
		out.Append("Alpha", channel(rgb[3]))
	}
	return out
}

func decodeNSAttributedString(dict *cf.Dictionary) cf.Value {
	out := &cf.Dictionary{}
	if s, ok := dict.Get("NSString"); ok {
		out.Append("string", s)
	}
	if attrs, ok := dict.Get("NSAttributes"); ok {
		out.Append("attributes", attrs)
	}
	return out
}

func decodeNSURLRequest(dict *cf.Dictionary) cf.Value {
	out := &cf.Dictionary{}
	for _, key := range []string{"URL", "method", "body"} {
		if v, ok := dict.Get(key); ok {
			out.Append(key, v)
		}
	}
	return out
}

// decodeNSURL joins NS.base and NS.string with RFC 3986 reference
// resolution, falling back to NS.string alone.
func decodeNSURL(dict *cf.Dictionary) cf.Value {
	rel, ok := dict.Get("NS.string")
	relStr, strOK := rel.(cf.String)
	if !ok || !strOK {
		return cf.Null{}
	}

	if b, ok := dict.Get("NS.base"); ok {
		if baseStr, ok := b.(cf.String); ok {
			if base, err := url.Parse(string(baseStr)); err == nil {
				if resolved, err := base.Parse(string(relStr)); err == nil {
					return cf.String(resolved.String())
				}
			}
		}
	}
	return relStr
}

func decodeNSValue(dict *cf.Dictionary) cf.Value {
	st, ok := dict.Get("NS.special-type")
	if !ok {
		return cf.Null{}
	}
	name, ok := st.(cf.String)
	if !ok {
		return cf.Null{}
	}
	switch string(name) {
	case "CGPoint":
		return decodeNSPoint(dict)
	case "CGSize":
		return decodeNSSize(dict)
	case "CGRect":
		return decodeNSRect(dict)
	case "_NSRange":
		return decodeNSRange(dict)
	}
	return cf.Null{}
}

func decodeNSNumber(dict *cf.Dictionary) cf.Value {
	if n, ok := dict.Get("NS.number"); ok {
		return n
	}
	return cf.Null{}
}

// decodeNSDecimalNumber parses the NS.decimal string; integral values stay
// integers.
func decodeNSDecimalNumber(dict *cf.Dictionary) cf.Value {
	v, ok := dict.Get("NS.decimal")
	if !ok {
		return cf.Null{}
	}
	s, ok := v.(cf.String)
	if !ok {
		return cf.Null{}
	}
	text := strings.TrimSpace(string(s))
	if !strings.ContainsAny(text, ".eE") {
		if text != "" && text[0] == '-' {
			if n, err := strconv.ParseInt(text, 10, 64); err == nil {
				return &cf.Number{Signed: true, Value: uint64(n)}
			}
		} else if n, err := strconv.ParseUint(text, 10, 64); err == nil {
			return &cf.Number{Signed: false, Value: n}
		}
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return &cf.Real{Wide: true, Value: f}
	}
	return cf.Null{}
}

func stringField(key string) ClassHandler {
	return func(dict *cf.Dictionary) cf.Value {
		if v, ok := dict.Get(key); ok {
			if s, ok := v.(cf.String); ok {
				return s
			}
		}
		return cf.Null{}
	}
}

func fields(dict *cf.Dictionary, names ...string) (*cf.Dictionary, bool) {
	out := &cf.Dictionary{}
	for _, name := range names {
		v, ok := dict.Get(name)
		if !ok {
			return nil, false
		}
		out.Append(name, v)
	}
	return out, true
}

func decodeNSRange(dict *cf.Dictionary) cf.Value {
	if out, ok := fields(dict, "location", "length"); ok {
		return out
	}
	return cf.Null{}
}

func decodeNSPoint(dict *cf.Dictionary) cf.Value {
	if out, ok := fields(dict, "x", "y"); ok {
		return out
	}
	return cf.Null{}
}

func decodeNSSize(dict *cf.Dictionary) cf.Value {
	if out, ok := fields(dict, "width", "height"); ok {
		return out
	}
	return cf.Null{}
}

func decodeNSRect(dict *cf.Dictionary) cf.Value {
	origin := decodeNSPoint(dict)
	size := decodeNSSize(dict)
	if _, ok := origin.(cf.Null); ok {
		return cf.Null{}
	}
	if _, ok := size.(cf.Null); ok {
		return cf.Null{}
	}
	out := &cf.Dictionary{}
	out.Append("origin", origin)
	out.Append("size", size)
	return out
}
