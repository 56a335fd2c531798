// Package settings defines the administrator override vocabulary: the tagged-union
// Value type, the nested override Tree addressed by dot-separated paths, the key
// allow-list (Policy) and the per-kind coercion rules applied to incoming writes.
//
// Every allow-listed key is declared once as a typed key (BoolKey, StringKey, ...)
// so application code reads and writes the tree through compile-time checked
// accessors, while the wire format stays a flexible string-keyed document.
package settings
