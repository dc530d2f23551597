// Package cf models property list values as a closed family of types behind
// the Value interface. Trees built from these types are what the readers in
// the parent package produce and what the unarchiver consumes and returns.
package cf

import (
	"fmt"
	"time"
)

type Value interface {
	TypeName() string

	// Copy returns a deep copy sharing no mutable state with the receiver.
	Copy() Value
}

type Dictionary struct {
	Keys   []string
	Values []Value
}

func (*Dictionary) TypeName() string {
	return "dictionary"
}

func (p *Dictionary) Copy() Value {
	d := &Dictionary{
		Keys:   make([]string, len(p.Keys)),
		Values: make([]Value, len(p.Values)),
	}
	copy(d.Keys, p.Keys)
	for i, v := range p.Values {
		d.Values[i] = v.Copy()
	}
	return d
}

func (p *Dictionary) Len() int {
	return len(p.Keys)
}

// Get returns the value for key and whether it was present.
func (p *Dictionary) Get(key string) (Value, bool) {
	for i, k := range p.Keys {
		if k == key {
			return p.Values[i], true
		}
	}
	return nil, false
}

// Append adds a key/value pair, preserving insertion order. Empty and
// duplicate keys are rejected.
func (p *Dictionary) Append(key string, value Value) error {
	if key == "" {
		return fmt.Errorf("empty dictionary key")
	}
	if _, ok := p.Get(key); ok {
		return fmt.Errorf("duplicate dictionary key %q", key)
	}
	p.Keys = append(p.Keys, key)
	p.Values = append(p.Values, value)
	return nil
}

func (p *Dictionary) Range(r func(int, string, Value)) {
	for i, k := range p.Keys {
		r(i, k, p.Values[i])
	}
}

type Array []Value

func (Array) TypeName() string {
	return "array"
}

func (p Array) Copy() Value {
	a := make(Array, len(p))
	for i, v := range p {
		a[i] = v.Copy()
	}
	return a
}

func (p Array) Range(r func(int, Value)) {
	for i, v := range p {
		r(i, v)
	}
}

type String string

func (String) TypeName() string {
	return "string"
}

func (p String) Copy() Value {
	return p
}

// Number is an integer. bplist00 distinguishes signed storage from unsigned;
// the flag is kept so the full uint64 and int64 ranges both survive.
type Number struct {
	Signed bool
	Value  uint64
}

func (*Number) TypeName() string {
	return "integer"
}

func (p *Number) Copy() Value {
	n := *p
	return &n
}

type Real struct {
	Wide  bool
	Value float64
}

func (*Real) TypeName() string {
	return "real"
}

func (p *Real) Copy() Value {
	r := *p
	return &r
}

type Boolean bool

func (Boolean) TypeName() string {
	return "boolean"
}

func (p Boolean) Copy() Value {
	return p
}

type Data []byte

func (Data) TypeName() string {
	return "data"
}

func (p Data) Copy() Value {
	d := make(Data, len(p))
	copy(d, p)
	return d
}

type Date time.Time

func (Date) TypeName() string {
	return "date"
}

func (p Date) Copy() Value {
	return p
}

// Null is the distinguished absent value ("$null" in keyed archives, the
// 0x00 atom in bplist00).
type Null struct{}

func (Null) TypeName() string {
	return "null"
}

func (p Null) Copy() Value {
	return p
}

// Equal reports structural equality of two trees. Numbers compare by value;
// integer and real values are never equal to one another, preserving the
// distinction the formats make. Dictionaries compare ordered.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case *Dictionary:
		bv, ok := b.(*Dictionary)
		if !ok || len(av.Keys) != len(bv.Keys) {
			return false
		}
		for i, k := range av.Keys {
			if k != bv.Keys[i] || !Equal(av.Values[i], bv.Values[i]) {
				return false
			}
		}
		return true
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i, v := range av {
			if !Equal(v, bv[i]) {
				return false
			}
		}
		return true
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case *Number:
		bv, ok := b.(*Number)
		if !ok {
			return false
		}
		if av.Signed != bv.Signed {
			// 5 stored signed equals 5 stored unsigned; only the sign of
			// negative values matters.
			return av.Value == bv.Value && int64(av.Value) >= 0
		}
		return av.Value == bv.Value
	case *Real:
		bv, ok := b.(*Real)
		return ok && av.Value == bv.Value
	case Boolean:
		bv, ok := b.(Boolean)
		return ok && av == bv
	case Data:
		bv, ok := b.(Data)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case Date:
		bv, ok := b.(Date)
		return ok && time.Time(av).Equal(time.Time(bv))
	case Null:
		_, ok := b.(Null)
		return ok
	}
	return false
}
