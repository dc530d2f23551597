// Package keyedarchive implements decoding of Apple's "property list" format
// and unarchiving of NSKeyedArchiver object graphs.
// Property lists come in two supported sorts: XML and binary (bplist00).
// Decoded documents are generic value trees (package cf); a keyed archive is a
// flattened object table inside such a tree, and Unarchive reconstructs it
// into a plain tree without linking against any Apple runtime.
package keyedarchive
