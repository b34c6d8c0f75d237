package torrentfile

import (
	"strings"

	"github.com/Squwid/squidinfo/bencode"
	zbencode "github.com/zeebo/bencode"
)

// Optional fields are permissive, anything missing or of the wrong type is treated as
// if it wasn't there.

func optionalString(dict bencode.Value, key string) string {
	v, ok := dict.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.Str()
	return s
}

func optionalInt(dict bencode.Value, key string) int64 {
	v, ok := dict.Get(key)
	if !ok {
		return 0
	}
	n, _ := v.Int()
	return n
}

// rawMessage is the encoded form of v, the source bytes if v was decoded
func rawMessage(v bencode.Value) (zbencode.RawMessage, error) {
	if raw := v.Raw(); raw != nil {
		return raw, nil
	}
	return bencode.Encode(v)
}

// decodeOptional decodes the value stored at key into dst, reporting false if the key
// is missing or doesn't fit dst
func decodeOptional(dict bencode.Value, key string, dst interface{}) bool {
	v, ok := dict.Get(key)
	if !ok {
		return false
	}
	raw, err := rawMessage(v)
	if err != nil {
		return false
	}
	return zbencode.DecodeBytes(raw, dst) == nil
}

// announceList reads the tiers of announce-list, keeping only supported trackers
func announceList(root bencode.Value) [][]string {
	var al [][]string
	if !decodeOptional(root, "announce-list", &al) {
		return nil
	}

	var tiers [][]string
	for _, tier := range al {
		var ti []string
		for _, t := range tier {
			if isTrackerSupported(t) {
				ti = append(ti, t)
			}
		}
		if len(ti) > 0 {
			tiers = append(tiers, ti)
		}
	}
	return tiers
}

// urlList reads url-list, which is either a single url or a list of them
func urlList(root bencode.Value) []string {
	var list []string
	if decodeOptional(root, "url-list", &list) {
		return list
	}
	var s string
	if decodeOptional(root, "url-list", &s) && s != "" {
		return []string{s}
	}
	return nil
}

// private reads the private flag, which some clients write as a string
func private(info bencode.Value) bool {
	v, ok := info.Get("private")
	if !ok {
		return false
	}
	if i, ok := v.Int(); ok {
		return i != 0
	}
	if s, ok := v.Str(); ok {
		return !(s == "" || s == "0")
	}
	return false
}

func isTrackerSupported(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "udp://")
}

// Trackers returns announce-list, or announce as a single tier when there is no list
func (tf TorrentFile) Trackers() [][]string {
	if len(tf.AnnounceList) > 0 {
		return tf.AnnounceList
	}
	if isTrackerSupported(tf.Announce) {
		return [][]string{{tf.Announce}}
	}
	return nil
}
