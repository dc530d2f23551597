package keyedarchive

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/appsworld/keyedarchive/cf"
)

const (
	uidKey       = "CF$UID"
	archiverName = "NSKeyedArchiver"

	// recursionLimit bounds UID dereference depth.
	recursionLimit = 100
)

// An Unarchiver reconstructs an NSKeyedArchiver object table into a plain
// value tree. Each instance holds an immutable snapshot of the class-handler
// registry taken at construction; handlers registered later are not visible
// to it.
type Unarchiver struct {
	removeClassNames bool
	handlers         map[string]ClassHandler

	objects  cf.Array
	resolved map[uint64]cf.Value
	inFlight map[uint64]bool
}

// An Option configures an Unarchiver.
type Option func(*Unarchiver)

// KeepClassNames retains resolved $class entries in dictionaries that fall
// through the class machinery unhandled. The default is to strip them.
func KeepClassNames() Option {
	return func(u *Unarchiver) {
		u.removeClassNames = false
	}
}

// NewUnarchiver returns an Unarchiver with the registry snapshot of this
// moment.
func NewUnarchiver(opts ...Option) *Unarchiver {
	u := &Unarchiver{
		removeClassNames: true,
		handlers:         snapshotRegistry(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Unarchive unarchives root with a freshly constructed Unarchiver.
func Unarchive(root cf.Value, opts ...Option) (cf.Value, error) {
	return NewUnarchiver(opts...).Unarchive(root)
}

// UnarchiveData decodes a property list and unarchives it in one step.
func UnarchiveData(data []byte, opts ...Option) (cf.Value, error) {
	pval, err := ReadPlist(data)
	if err != nil {
		return nil, err
	}
	return Unarchive(pval, opts...)
}

// IsKeyedArchive reports whether root carries the NSKeyedArchiver envelope
// marker. It does not validate the rest of the envelope.
func IsKeyedArchive(root cf.Value) bool {
	dict, ok := root.(*cf.Dictionary)
	if !ok {
		return false
	}
	name, ok := dict.Get("$archiver")
	if !ok {
		return false
	}
	s, ok := name.(cf.String)
	return ok && string(s) == archiverName
}

func invalidArchive(key string, err error) *Error {
	return &Error{Kind: InvalidArchive, Key: key, Err: err}
}

// Unarchive validates the envelope and resolves $top into a plain tree.
// Aliased UID targets materialize as independent deep copies; the output is
// a tree, never a DAG.
func (u *Unarchiver) Unarchive(root cf.Value) (cf.Value, error) {
	env, ok := root.(*cf.Dictionary)
	if !ok {
		return nil, invalidArchive("", errors.New("top level is not a dictionary"))
	}

	name, ok := env.Get("$archiver")
	if !ok {
		return nil, invalidArchive("$archiver", errors.New("missing"))
	}
	if s, ok := name.(cf.String); !ok || string(s) != archiverName {
		return nil, invalidArchive("$archiver", fmt.Errorf("not %q", archiverName))
	}

	version, ok := env.Get("$version")
	if !ok {
		return nil, invalidArchive("$version", errors.New("missing"))
	}
	if _, ok := version.(*cf.Number); !ok {
		return nil, invalidArchive("$version", errors.New("not a number"))
	}

	objects, ok := env.Get("$objects")
	if !ok {
		return nil, invalidArchive("$objects", errors.New("missing"))
	}
	objectTable, ok := objects.(cf.Array)
	if !ok {
		return nil, invalidArchive("$objects", errors.New("not an array"))
	}

	top, ok := env.Get("$top")
	if !ok {
		return nil, invalidArchive("$top", errors.New("missing"))
	}
	topDict, ok := top.(*cf.Dictionary)
	if !ok {
		return nil, invalidArchive("$top", errors.New("not a dictionary"))
	}

	u.objects = objectTable
	u.resolved = make(map[uint64]cf.Value)
	u.inFlight = make(map[uint64]bool)

	if topDict.Len() == 1 && topDict.Keys[0] == "root" {
		return u.resolve(topDict.Values[0], 0)
	}

	out := &cf.Dictionary{}
	for i, k := range topDict.Keys {
		rv, err := u.resolve(topDict.Values[i], 0)
		if err != nil {
			return nil, err
		}
		out.Append(k, rv)
	}
	return out, nil
}

// uidIndex recognizes the single-key {CF$UID: n} dictionary that marks a
// reference into the object table.
func uidIndex(dict *cf.Dictionary) (uint64, bool) {
	if dict.Len() != 1 || dict.Keys[0] != uidKey {
		return 0, false
	}
	n, ok := dict.Values[0].(*cf.Number)
	if !ok || (n.Signed && int64(n.Value) < 0) {
		return 0, false
	}
	return n.Value, true
}

func (u *Unarchiver) resolve(node cf.Value, depth int) (cf.Value, error) {
	switch v := node.(type) {
	case *cf.Dictionary:
		if index, ok := uidIndex(v); ok {
			return u.resolveUID(index, depth)
		}
		return u.resolveDictionary(v, depth)
	case cf.Array:
		out := make(cf.Array, len(v))
		for i, el := range v {
			rv, err := u.resolve(el, depth)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	case cf.String:
		if v == "$null" {
			return cf.Null{}, nil
		}
		return v, nil
	}
	return node.Copy(), nil
}

func (u *Unarchiver) resolveUID(index uint64, depth int) (cf.Value, error) {
	depth++
	if depth > recursionLimit {
		partial := &cf.Dictionary{}
		partial.Append("error", cf.String("Recursion limit exceeded"))
		if cached, ok := u.resolved[index]; ok {
			partial.Append("partial", cached.Copy())
		} else {
			partial.Append("partial", cf.Null{})
		}
		return nil, &Error{Kind: RecursionLimit, Depth: depth, Partial: partial}
	}

	if u.inFlight[index] {
		// Cycle: hand back a sentinel the consumer can detect by prefix.
		return cf.String("$ref" + strconv.FormatUint(index, 10)), nil
	}

	if cached, ok := u.resolved[index]; ok {
		return cached.Copy(), nil
	}

	if index >= uint64(len(u.objects)) {
		return nil, &Error{
			Kind: MalformedNode,
			Key:  uidKey,
			Node: &cf.Number{Value: index},
			Err:  fmt.Errorf("reference #%d outside object table (%d entries)", index, len(u.objects)),
		}
	}

	u.inFlight[index] = true
	rv, err := u.resolve(u.objects[index], depth)
	delete(u.inFlight, index)
	if err != nil {
		return nil, err
	}
	u.resolved[index] = rv
	return rv, nil
}

func (u *Unarchiver) resolveDictionary(dict *cf.Dictionary, depth int) (cf.Value, error) {
	classRef, hasClass := dict.Get("$class")

	out := &cf.Dictionary{
		Keys:   make([]string, 0, dict.Len()),
		Values: make([]cf.Value, 0, dict.Len()),
	}
	for i, k := range dict.Keys {
		if k == "$class" {
			continue
		}
		rv, err := u.resolve(dict.Values[i], depth)
		if err != nil {
			return nil, err
		}
		out.Append(k, rv)
	}

	if !hasClass {
		// Plain child dictionaries are fine without $class; a dictionary
		// shaped like an archived object is not.
		for _, k := range dict.Keys {
			if strings.HasPrefix(k, "NS.") {
				return nil, &Error{
					Kind: MalformedNode,
					Key:  k,
					Node: dict.Copy(),
					Err:  errors.New("archived object lacks $class"),
				}
			}
		}
		return out, nil
	}

	className, err := u.classNameFor(classRef, depth)
	if err != nil {
		return nil, err
	}

	if rv, ok, err := u.applyBuiltin(className, out); err != nil {
		return nil, err
	} else if ok {
		return rv, nil
	}

	if handler, ok := u.handlers[className]; ok {
		return handler(out), nil
	}

	// No handler: fall back to a plain dictionary.
	if !u.removeClassNames {
		resolvedClass, err := u.resolve(classRef, depth)
		if err != nil {
			return nil, err
		}
		out.Append("$class", resolvedClass)
	}
	return out, nil
}

// classNameFor chases the $class UID to its metadata dictionary and returns
// $classes[0], the most-derived class name.
func (u *Unarchiver) classNameFor(classRef cf.Value, depth int) (string, error) {
	badClass := func(err error) error {
		return &Error{Kind: MalformedNode, Key: "$class", Node: classRef.Copy(), Err: err}
	}

	refDict, ok := classRef.(*cf.Dictionary)
	if !ok {
		return "", badClass(errors.New("not a UID reference"))
	}
	if _, ok := uidIndex(refDict); !ok {
		return "", badClass(errors.New("not a UID reference"))
	}

	meta, err := u.resolve(refDict, depth)
	if err != nil {
		return "", err
	}
	metaDict, ok := meta.(*cf.Dictionary)
	if !ok {
		return "", badClass(errors.New("class metadata is not a dictionary"))
	}
	classes, ok := metaDict.Get("$classes")
	if !ok {
		return "", badClass(errors.New("class metadata lacks $classes"))
	}
	hierarchy, ok := classes.(cf.Array)
	if !ok || len(hierarchy) == 0 {
		return "", badClass(errors.New("$classes is not a non-empty array"))
	}
	name, ok := hierarchy[0].(cf.String)
	if !ok {
		return "", badClass(errors.New("$classes[0] is not a string"))
	}
	return string(name), nil
}
