package bencode

import (
	"fmt"
	"strconv"
)

// DefaultMaxDepth is the container nesting limit used when Decoder.MaxDepth is not set
const DefaultMaxDepth = 512

// Decoder holds the options for turning bytes into a Value. The zero Decoder is ready
// to use: duplicate keys overwrite earlier ones, bytes after the first value are
// ignored, and integers and lengths must not have leading zeros.
//
// A Decoder has no state between calls and may be shared between goroutines.
type Decoder struct {
	// MaxDepth bounds how deeply lists and dictionaries may nest
	MaxDepth int

	// DisallowDuplicateKeys fails with ErrDuplicateKey instead of keeping the last value
	DisallowDuplicateKeys bool

	// DisallowTrailing fails with ErrTrailingData when input remains after the value
	DisallowTrailing bool

	// Lenient accepts i-0e, i03e and 03:abc
	Lenient bool
}

// Decode parses a single value from data using the default Decoder
func Decode(data []byte) (Value, error) {
	return Decoder{}.Decode(data)
}

// Decode parses a single value from data. Decoded values share memory with data,
// which must not be modified afterwards.
func (d Decoder) Decode(data []byte) (Value, error) {
	v, n, err := d.DecodePrefix(data)
	if err != nil {
		return Value{}, err
	}
	if d.DisallowTrailing && n < len(data) {
		return Value{}, &SyntaxError{Offset: n, Err: ErrTrailingData}
	}
	return v, nil
}

// DecodePrefix parses the value at the start of data and returns the number of bytes
// it used. Anything after those bytes is not looked at.
func (d Decoder) DecodePrefix(data []byte) (Value, int, error) {
	p := parser{
		data:     data,
		maxDepth: d.MaxDepth,
		strict:   d.DisallowDuplicateKeys,
		lenient:  d.Lenient,
	}
	if p.maxDepth <= 0 {
		p.maxDepth = DefaultMaxDepth
	}

	v, err := p.value(0)
	if err != nil {
		return Value{}, 0, err
	}
	return v, p.pos, nil
}

type parser struct {
	data     []byte
	pos      int
	maxDepth int
	strict   bool
	lenient  bool
}

func (p *parser) fail(err error, offset int) error {
	return &SyntaxError{Offset: offset, Err: err}
}

func (p *parser) peek() (byte, error) {
	if p.pos >= len(p.data) {
		return 0, p.fail(ErrUnexpectedEnd, p.pos)
	}
	return p.data[p.pos], nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// value parses whatever starts at the cursor. depth is the number of containers
// that are currently open.
func (p *parser) value(depth int) (Value, error) {
	c, err := p.peek()
	if err != nil {
		return Value{}, err
	}

	start := p.pos
	var v Value
	switch {
	case c == 'd':
		v, err = p.dict(depth + 1)
	case c == 'l':
		v, err = p.list(depth + 1)
	case c == 'i':
		v, err = p.integer()
	case isDigit(c):
		var b []byte
		b, err = p.byteString()
		v = Value{kind: KindBytes, bytes: b}
	default:
		return Value{}, &SyntaxError{Offset: p.pos, Err: ErrInvalidStart, Detail: fmt.Sprintf("%q", c)}
	}
	if err != nil {
		return Value{}, err
	}

	v.raw = p.data[start:p.pos:p.pos]
	return v, nil
}

func (p *parser) list(depth int) (Value, error) {
	if depth > p.maxDepth {
		return Value{}, p.fail(ErrNestingTooDeep, p.pos)
	}
	p.pos++ // l

	items := []Value{}
	for {
		c, err := p.peek()
		if err != nil {
			return Value{}, err
		}
		if c == 'e' {
			p.pos++
			return Value{kind: KindList, list: items}, nil
		}

		item, err := p.value(depth)
		if err != nil {
			return Value{}, err
		}
		items = append(items, item)
	}
}

func (p *parser) dict(depth int) (Value, error) {
	if depth > p.maxDepth {
		return Value{}, p.fail(ErrNestingTooDeep, p.pos)
	}
	p.pos++ // d

	entries := []Entry{}
	for {
		c, err := p.peek()
		if err != nil {
			return Value{}, err
		}
		if c == 'e' {
			p.pos++
			return Value{kind: KindDict, dict: entries}, nil
		}
		if !isDigit(c) {
			return Value{}, &SyntaxError{Offset: p.pos, Err: ErrInvalidKey, Detail: fmt.Sprintf("%q", c)}
		}

		keyStart := p.pos
		key, err := p.byteString()
		if err != nil {
			return Value{}, err
		}
		val, err := p.value(depth)
		if err != nil {
			return Value{}, err
		}

		var replaced bool
		entries, replaced = insert(entries, Entry{Key: string(key), Value: val})
		if replaced && p.strict {
			return Value{}, &SyntaxError{Offset: keyStart, Err: ErrDuplicateKey, Detail: strconv.Quote(string(key))}
		}
	}
}

// integer parses i<digits>e with an optional minus sign
func (p *parser) integer() (Value, error) {
	p.pos++ // i
	start := p.pos

	c, err := p.peek()
	if err != nil {
		return Value{}, err
	}
	negative := c == '-'
	if negative {
		p.pos++
	}

	digitsStart := p.pos
	for {
		c, err = p.peek()
		if err != nil {
			return Value{}, err
		}
		if !isDigit(c) {
			break
		}
		p.pos++
	}
	digits := p.data[digitsStart:p.pos]

	if len(digits) == 0 || c != 'e' {
		return Value{}, &SyntaxError{Offset: p.pos, Err: ErrMalformedInteger, Detail: fmt.Sprintf("%q", c)}
	}
	if !p.lenient && digits[0] == '0' && (len(digits) > 1 || negative) {
		return Value{}, &SyntaxError{Offset: start, Err: ErrMalformedInteger, Detail: strconv.Quote(string(p.data[start:p.pos]))}
	}

	n, err := strconv.ParseInt(string(p.data[start:p.pos]), 10, 64)
	if err != nil {
		return Value{}, p.fail(ErrIntegerOverflow, start)
	}
	p.pos++ // e
	return Value{kind: KindInt, integer: n}, nil
}

// byteString parses <length>:<bytes> and returns the bytes without copying them
func (p *parser) byteString() ([]byte, error) {
	start := p.pos
	n := 0
	for {
		c, err := p.peek()
		if err != nil {
			return nil, err
		}
		if c == ':' {
			break
		}
		if !isDigit(c) {
			return nil, &SyntaxError{Offset: p.pos, Err: ErrInvalidLength, Detail: fmt.Sprintf("%q", c)}
		}
		// Anything longer than the input is truncated anyway, stop growing n so it can't overflow
		if n <= len(p.data) {
			n = n*10 + int(c-'0')
		}
		p.pos++
	}

	digits := p.pos - start
	if digits == 0 || (!p.lenient && digits > 1 && p.data[start] == '0') {
		return nil, p.fail(ErrInvalidLength, start)
	}
	p.pos++ // :

	if n > len(p.data)-p.pos {
		return nil, &SyntaxError{
			Offset: p.pos,
			Err:    ErrTruncatedInput,
			Detail: fmt.Sprintf("(want %d bytes, have %d)", n, len(p.data)-p.pos),
		}
	}
	b := p.data[p.pos : p.pos+n : p.pos+n]
	p.pos += n
	return b, nil
}
