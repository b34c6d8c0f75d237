package magnet

import (
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Squwid/squidinfo/torrentfile"
)

var ErrInvalidMagnet = errors.New("invalid magnet link")

const btihPrefix = "urn:btih:"

// Magnet is a magnet link for a single torrent
type Magnet struct {
	InfoHash [torrentfile.HashSize]byte
	Name     string
	Length   int64
	Trackers []string
}

// FromTorrent creates a magnet link for tf, listing every tracker of every tier
func FromTorrent(tf *torrentfile.TorrentFile) *Magnet {
	m := Magnet{
		InfoHash: tf.Info.InfoHash,
		Name:     tf.Info.Name,
		Length:   tf.Info.Length,
	}
	for _, tier := range tf.Trackers() {
		m.Trackers = append(m.Trackers, tier...)
	}
	return &m
}

// String formats the link as magnet:?xt=urn:btih:<hex>&dn=...&xl=...&tr=...
func (m Magnet) String() string {
	var sb strings.Builder
	sb.WriteString("magnet:?xt=" + btihPrefix)
	sb.WriteString(hex.EncodeToString(m.InfoHash[:]))
	if m.Name != "" {
		sb.WriteString("&dn=" + url.QueryEscape(m.Name))
	}
	if m.Length > 0 {
		sb.WriteString("&xl=" + strconv.FormatInt(m.Length, 10))
	}
	for _, tr := range m.Trackers {
		sb.WriteString("&tr=" + url.QueryEscape(tr))
	}
	return sb.String()
}

// Parse parses a magnet url and returns a magnet object. The info hash may be hex or
// base32 encoded.
func Parse(s string) (*Magnet, error) {
	uri, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMagnet, err)
	}

	if uri.Scheme != "magnet" {
		return nil, fmt.Errorf("%w: expected scheme 'magnet' but got %q", ErrInvalidMagnet, uri.Scheme)
	}

	q := uri.Query()
	var m Magnet
	found := false
	for _, xt := range q["xt"] {
		if !strings.HasPrefix(xt, btihPrefix) {
			continue
		}
		if err := decodeInfoHash(strings.TrimPrefix(xt, btihPrefix), &m.InfoHash); err != nil {
			return nil, err
		}
		found = true
		break
	}
	if !found {
		return nil, fmt.Errorf("%w: no %s exact topic", ErrInvalidMagnet, btihPrefix)
	}

	m.Name = q.Get("dn")
	m.Trackers = q["tr"]
	if xl := q.Get("xl"); xl != "" {
		if m.Length, err = strconv.ParseInt(xl, 10, 64); err != nil {
			return nil, fmt.Errorf("%w: bad length %q", ErrInvalidMagnet, xl)
		}
	}
	return &m, nil
}

func decodeInfoHash(s string, dst *[torrentfile.HashSize]byte) error {
	var (
		b   []byte
		err error
	)
	switch len(s) {
	case hex.EncodedLen(torrentfile.HashSize):
		b, err = hex.DecodeString(s)
	case base32.StdEncoding.EncodedLen(torrentfile.HashSize):
		b, err = base32.StdEncoding.DecodeString(strings.ToUpper(s))
	default:
		return fmt.Errorf("%w: info hash %q has length %d", ErrInvalidMagnet, s, len(s))
	}
	if err != nil {
		return fmt.Errorf("%w: info hash %q: %v", ErrInvalidMagnet, s, err)
	}
	copy(dst[:], b)
	return nil
}
