package bencode

import (
	"io"
	"strconv"
)

// Encode returns the canonical encoding of v. Dictionary keys come out in ascending
// byte order no matter how the dictionary was built, so encoding the same tree always
// gives the same bytes.
func Encode(v Value) ([]byte, error) {
	return AppendValue(nil, v)
}

// AppendValue appends the canonical encoding of v to dst
func AppendValue(dst []byte, v Value) ([]byte, error) {
	var err error
	switch v.kind {
	case KindInt:
		dst = append(dst, 'i')
		dst = strconv.AppendInt(dst, v.integer, 10)
		return append(dst, 'e'), nil

	case KindBytes:
		return appendBytes(dst, v.bytes), nil

	case KindList:
		dst = append(dst, 'l')
		for _, item := range v.list {
			if dst, err = AppendValue(dst, item); err != nil {
				return dst, err
			}
		}
		return append(dst, 'e'), nil

	case KindDict:
		dst = append(dst, 'd')
		for _, e := range v.dict {
			dst = appendBytes(dst, []byte(e.Key))
			if dst, err = AppendValue(dst, e.Value); err != nil {
				return dst, err
			}
		}
		return append(dst, 'e'), nil
	}
	return dst, ErrInvalidValue
}

// Write writes the canonical encoding of v to w
func Write(w io.Writer, v Value) error {
	b, err := Encode(v)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func appendBytes(dst, b []byte) []byte {
	dst = strconv.AppendInt(dst, int64(len(b)), 10)
	dst = append(dst, ':')
	return append(dst, b...)
}
