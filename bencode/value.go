package bencode

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind is the type of a bencoded value
type Kind uint8

const (
	KindInvalid Kind = iota
	KindDict
	KindList
	KindInt
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindDict:
		return "dictionary"
	case KindList:
		return "list"
	case KindInt:
		return "integer"
	case KindBytes:
		return "byte string"
	}
	return "invalid"
}

// Entry is a single key and value inside of a dictionary
type Entry struct {
	Key   string
	Value Value
}

// Value is a node of a bencode tree. A Value holds exactly one of the four bencode
// types, and the zero Value is invalid.
//
// Dictionary entries are always kept sorted by the raw bytes of their keys, so walking
// Entries gives the canonical order.
//
// Slices returned by the accessors belong to the Value and must not be modified.
type Value struct {
	kind    Kind
	integer int64
	bytes   []byte
	list    []Value
	dict    []Entry

	// raw is the exact span of source bytes the value was decoded from
	raw []byte
}

// Int creates an integer value
func Int(n int64) Value {
	return Value{kind: KindInt, integer: n}
}

// Bytes creates a byte string value
func Bytes(b []byte) Value {
	return Value{kind: KindBytes, bytes: b}
}

// String creates a byte string value from s
func String(s string) Value {
	return Value{kind: KindBytes, bytes: []byte(s)}
}

// List creates a list holding items in order
func List(items ...Value) Value {
	list := make([]Value, len(items))
	copy(list, items)
	return Value{kind: KindList, list: list}
}

// Dict creates a dictionary from entries. If a key is repeated the last entry wins.
func Dict(entries ...Entry) Value {
	dict := make([]Entry, 0, len(entries))
	for _, e := range entries {
		dict, _ = insert(dict, e)
	}
	return Value{kind: KindDict, dict: dict}
}

// insert puts e into the sorted dict, replacing an entry that has the same key
func insert(dict []Entry, e Entry) ([]Entry, bool) {
	n := len(dict)

	// Well formed documents are already sorted, so appending is the common case
	if n == 0 || dict[n-1].Key < e.Key {
		return append(dict, e), false
	}

	i := sort.Search(n, func(i int) bool { return dict[i].Key >= e.Key })
	if i < n && dict[i].Key == e.Key {
		dict[i] = e
		return dict, true
	}
	dict = append(dict, Entry{})
	copy(dict[i+1:], dict[i:])
	dict[i] = e
	return dict, false
}

func (v Value) Kind() Kind { return v.kind }

// IsValid is false only for the zero Value
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// Int returns the integer and true if v is an integer
func (v Value) Int() (int64, bool) {
	return v.integer, v.kind == KindInt
}

// Bytes returns the contents and true if v is a byte string
func (v Value) Bytes() ([]byte, bool) {
	return v.bytes, v.kind == KindBytes
}

// Str is Bytes converted to a string
func (v Value) Str() (string, bool) {
	if v.kind != KindBytes {
		return "", false
	}
	return string(v.bytes), true
}

// List returns the items and true if v is a list
func (v Value) List() ([]Value, bool) {
	return v.list, v.kind == KindList
}

// Entries returns the entries in ascending key order and true if v is a dictionary
func (v Value) Entries() ([]Entry, bool) {
	return v.dict, v.kind == KindDict
}

// Keys returns the sorted keys of a dictionary, or nil for any other kind
func (v Value) Keys() []string {
	if v.kind != KindDict {
		return nil
	}
	keys := make([]string, len(v.dict))
	for i, e := range v.dict {
		keys[i] = e.Key
	}
	return keys
}

// Get looks up key in a dictionary. It reports false when v is not a dictionary or
// the key is missing.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindDict {
		return Value{}, false
	}
	i := sort.Search(len(v.dict), func(i int) bool { return v.dict[i].Key >= key })
	if i < len(v.dict) && v.dict[i].Key == key {
		return v.dict[i].Value, true
	}
	return Value{}, false
}

// Len is the number of entries, items or bytes held by v
func (v Value) Len() int {
	switch v.kind {
	case KindDict:
		return len(v.dict)
	case KindList:
		return len(v.list)
	case KindBytes:
		return len(v.bytes)
	}
	return 0
}

// Raw returns the bytes v was decoded from, exactly as they appeared in the input.
// Values built in code have no raw form and return nil.
func (v Value) Raw() []byte { return v.raw }

// Equal reports whether v and o hold the same tree. Raw spans are not compared.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.integer == o.integer
	case KindBytes:
		return bytes.Equal(v.bytes, o.bytes)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
	case KindDict:
		if len(v.dict) != len(o.dict) {
			return false
		}
		for i := range v.dict {
			if v.dict[i].Key != o.dict[i].Key || !v.dict[i].Value.Equal(o.dict[i].Value) {
				return false
			}
		}
	}
	return true
}

// maxPrintable is the longest byte string String prints in full
const maxPrintable = 128

// String renders v on a single line for debugging, e.g. {cow: "moo", spam: ["a", 1]}.
// Binary or very long byte strings are shown by length only.
func (v Value) String() string {
	var sb strings.Builder
	v.format(&sb)
	return sb.String()
}

func (v Value) format(sb *strings.Builder) {
	switch v.kind {
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.integer, 10))
	case KindBytes:
		sb.WriteString(formatBytes(v.bytes))
	case KindList:
		sb.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				sb.WriteString(", ")
			}
			item.format(sb)
		}
		sb.WriteByte(']')
	case KindDict:
		sb.WriteByte('{')
		for i, e := range v.dict {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(e.Key)
			sb.WriteString(": ")
			e.Value.format(sb)
		}
		sb.WriteByte('}')
	default:
		sb.WriteString("<invalid>")
	}
}

func formatBytes(b []byte) string {
	if len(b) > maxPrintable || !utf8.Valid(b) {
		return fmt.Sprintf("<%d bytes>", len(b))
	}
	return strconv.Quote(string(b))
}
