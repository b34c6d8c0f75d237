package torrentfile

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/Squwid/squidinfo/bencode"
)

var (
	ErrInvalidRoot          = errors.New("metainfo is not a dictionary")
	ErrMissingInfoDict      = errors.New("metainfo has no info dictionary")
	ErrMissingField         = errors.New("required field is missing")
	ErrInvalidFieldType     = errors.New("field has the wrong type")
	ErrInvalidFieldValue    = errors.New("field has an invalid value")
	ErrMalformedPieceHashes = errors.New("pieces is not a multiple of 20 bytes")
	ErrUnsupportedLayout    = errors.New("multi file torrents are not supported")
	ErrPieceCountMismatch   = errors.New("piece hashes do not match file length")
)

// HashSize is the length of the info hash and of every piece hash
const HashSize = sha1.Size

// FieldError is a problem with one required field of the info dictionary
type FieldError struct {
	Key string
	Err error

	// Want and Got are set for ErrInvalidFieldType
	Want bencode.Kind
	Got  bencode.Kind
}

func (e *FieldError) Error() string {
	if errors.Is(e.Err, ErrInvalidFieldType) {
		return fmt.Sprintf("info field %q: %v: want %v, got %v", e.Key, e.Err, e.Want, e.Got)
	}
	return fmt.Sprintf("info field %q: %v", e.Key, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// TorrentFile contains all information read from a .torrent file. Optional string
// fields are empty when missing or of the wrong type.
type TorrentFile struct {
	Announce     string
	AnnounceList [][]string
	URLList      []string
	Comment      string
	CreatedBy    string
	Encoding     string

	// CreationDate is in seconds since the unix epoch, 0 when unknown
	CreationDate int64

	Info TorrentInfo
}

// TorrentInfo contains info about the single file a torrent describes
type TorrentInfo struct {
	InfoHash    [HashSize]byte
	Name        string
	Length      int64
	PieceLength int64
	Pieces      []byte
	NumPieces   int64
	Private     bool
}

// Extract turns a decoded metainfo document into a TorrentFile. The info hash is taken
// over the bytes the info dictionary was decoded from, or over its canonical encoding
// when root was built in code.
func Extract(root bencode.Value) (*TorrentFile, error) {
	return extract(root, false)
}

func extract(root bencode.Value, canonical bool) (*TorrentFile, error) {
	if root.Kind() != bencode.KindDict {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidRoot, root.Kind())
	}

	info, ok := root.Get("info")
	if !ok || info.Kind() != bencode.KindDict {
		return nil, ErrMissingInfoDict
	}

	ti, err := toTorrentInfo(info)
	if err != nil {
		return nil, err
	}
	if ti.InfoHash, err = infoHash(info, canonical); err != nil {
		return nil, err
	}

	tf := TorrentFile{
		Announce:     optionalString(root, "announce"),
		AnnounceList: announceList(root),
		URLList:      urlList(root),
		Comment:      optionalString(root, "comment"),
		CreatedBy:    optionalString(root, "created by"),
		Encoding:     optionalString(root, "encoding"),
		CreationDate: optionalInt(root, "creation date"),
		Info:         *ti,
	}
	return &tf, nil
}

func toTorrentInfo(info bencode.Value) (*TorrentInfo, error) {
	if _, ok := info.Get("files"); ok {
		return nil, ErrUnsupportedLayout
	}

	pieceLength, err := intField(info, "piece length")
	if err != nil {
		return nil, err
	}
	pieces, err := bytesField(info, "pieces")
	if err != nil {
		return nil, err
	}
	if len(pieces)%HashSize != 0 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrMalformedPieceHashes, len(pieces))
	}
	name, err := bytesField(info, "name")
	if err != nil {
		return nil, err
	}
	length, err := intField(info, "length")
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, &FieldError{Key: "length", Err: ErrInvalidFieldValue}
	}

	return &TorrentInfo{
		Name:        string(name),
		Length:      length,
		PieceLength: pieceLength,
		Pieces:      pieces,
		NumPieces:   pieceCount(length, pieceLength),
		Private:     private(info),
	}, nil
}

// infoHash is the sha1 of the info dictionary. The original bytes are used when the
// dictionary was decoded so the hash matches what every other client computes for the
// same file, even when the file has its keys out of order.
func infoHash(info bencode.Value, canonical bool) ([HashSize]byte, error) {
	b := info.Raw()
	if canonical || b == nil {
		var err error
		if b, err = bencode.Encode(info); err != nil {
			return [HashSize]byte{}, err
		}
	}
	return sha1.Sum(b), nil
}

// pieceCount is ceil(length / pieceLength), or 0 when the piece length is not positive
func pieceCount(length, pieceLength int64) int64 {
	if pieceLength <= 0 || length <= 0 {
		return 0
	}
	n := length / pieceLength
	if length%pieceLength != 0 {
		n++
	}
	return n
}

func intField(dict bencode.Value, key string) (int64, error) {
	v, ok := dict.Get(key)
	if !ok {
		return 0, &FieldError{Key: key, Err: ErrMissingField}
	}
	n, ok := v.Int()
	if !ok {
		return 0, &FieldError{Key: key, Err: ErrInvalidFieldType, Want: bencode.KindInt, Got: v.Kind()}
	}
	return n, nil
}

func bytesField(dict bencode.Value, key string) ([]byte, error) {
	v, ok := dict.Get(key)
	if !ok {
		return nil, &FieldError{Key: key, Err: ErrMissingField}
	}
	b, ok := v.Bytes()
	if !ok {
		return nil, &FieldError{Key: key, Err: ErrInvalidFieldType, Want: bencode.KindBytes, Got: v.Kind()}
	}
	return b, nil
}

// verifyPieces checks that there is exactly one piece hash per piece
func (ti TorrentInfo) verifyPieces() error {
	hashes := int64(len(ti.Pieces) / HashSize)
	if hashes != ti.NumPieces {
		return fmt.Errorf("%w: %d hashes for %d pieces", ErrPieceCountMismatch, hashes, ti.NumPieces)
	}
	return nil
}

// PieceHash returns the expected sha1 of piece index, or nil if there is no such piece
func (ti TorrentInfo) PieceHash(index int) []byte {
	if index < 0 || index >= len(ti.Pieces)/HashSize {
		return nil
	}
	begin := index * HashSize
	return ti.Pieces[begin : begin+HashSize]
}

// PieceHashes splits Pieces into individual hashes
func (ti TorrentInfo) PieceHashes() [][HashSize]byte {
	hashes := make([][HashSize]byte, len(ti.Pieces)/HashSize)
	for i := range hashes {
		copy(hashes[i][:], ti.Pieces[i*HashSize:])
	}
	return hashes
}

// PieceSize is the length of piece index. All pieces are PieceLength except the last
// one which can be shorter.
func (ti TorrentInfo) PieceSize(index int64) int64 {
	if index < 0 || index >= ti.NumPieces {
		return 0
	}
	begin := index * ti.PieceLength
	return min(ti.PieceLength, ti.Length-begin)
}

// SafeName is Name made usable as a file name. A blank name is replaced with the hex
// info hash.
func (ti TorrentInfo) SafeName() string {
	if strings.TrimSpace(ti.Name) == "" || strings.TrimSpace(ti.Name) == ".." {
		return fmt.Sprintf("%x", ti.InfoHash)
	}
	return clean(ti.Name)
}

// CreationTime is CreationDate as a time, zero when the date is unknown
func (tf TorrentFile) CreationTime() time.Time {
	if tf.CreationDate == 0 {
		return time.Time{}
	}
	return time.Unix(tf.CreationDate, 0).UTC()
}

func clean(s string, max ...int) string {
	// Trim file name to correct length while keeping the extension
	trim := func(s string, max int) string {
		if len(s) <= max {
			return s
		}

		ext := path.Ext(s)
		if len(ext) > max {
			return s[:max]
		}

		return s[:max-len(ext)] + ext
	}

	replaceSep := func(s string) string {
		return strings.Map(func(r rune) rune {
			if r == '/' || r == '\\' || r == 0 {
				return '_'
			}
			return r
		}, s)
	}

	// Default clean to 255
	var maxLength = 255
	if len(max) > 0 {
		maxLength = max[0]
	}
	s = strings.ToValidUTF8(s, string(unicode.ReplacementChar))
	s = trim(s, maxLength)
	s = strings.ToValidUTF8(s, "")

	return replaceSep(s)
}
