package torrentfile

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Squwid/squidinfo/bencode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPieces is four piece hashes, each filled with its own index
func testPieces() []byte {
	var b []byte
	for i := 0; i < 4; i++ {
		b = append(b, bytes.Repeat([]byte{byte(i)}, HashSize)...)
	}
	return b
}

func testInfo() bencode.Value {
	return bencode.Dict(
		bencode.Entry{Key: "name", Value: bencode.String("file.txt")},
		bencode.Entry{Key: "length", Value: bencode.Int(1000)},
		bencode.Entry{Key: "piece length", Value: bencode.Int(256)},
		bencode.Entry{Key: "pieces", Value: bencode.Bytes(testPieces())},
	)
}

func testTorrent(info bencode.Value, extra ...bencode.Entry) []byte {
	entries := append([]bencode.Entry{
		{Key: "announce", Value: bencode.String("http://tracker.example.com/announce")},
		{Key: "comment", Value: bencode.String("a test file")},
		{Key: "created by", Value: bencode.String("squidinfo")},
		{Key: "creation date", Value: bencode.Int(1700000000)},
		{Key: "encoding", Value: bencode.String("UTF-8")},
		{Key: "info", Value: info},
	}, extra...)
	b, err := bencode.Encode(bencode.Dict(entries...))
	if err != nil {
		panic(err)
	}
	return b
}

func TestLoad(t *testing.T) {
	tf, err := Load(testTorrent(testInfo()))
	require.NoError(t, err)

	assert.Equal(t, "http://tracker.example.com/announce", tf.Announce)
	assert.Equal(t, "a test file", tf.Comment)
	assert.Equal(t, "squidinfo", tf.CreatedBy)
	assert.Equal(t, "UTF-8", tf.Encoding)
	assert.Equal(t, int64(1700000000), tf.CreationDate)
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), tf.CreationTime())

	assert.Equal(t, "file.txt", tf.Info.Name)
	assert.Equal(t, int64(1000), tf.Info.Length)
	assert.Equal(t, int64(256), tf.Info.PieceLength)
	assert.Equal(t, int64(4), tf.Info.NumPieces)
	assert.Equal(t, testPieces(), tf.Info.Pieces)
	assert.False(t, tf.Info.Private)
	assert.Equal(t, "70c779990d9b91a34381e8689ad0dc99d5dd2ec6", hex.EncodeToString(tf.Info.InfoHash[:]))
	assert.Equal(t, [][]string{{"http://tracker.example.com/announce"}}, tf.Trackers())
}

func TestInfoHashStable(t *testing.T) {
	data := testTorrent(testInfo())
	first, err := Load(data)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		tf, err := Load(data)
		require.NoError(t, err)
		assert.Equal(t, first.Info.InfoHash, tf.Info.InfoHash)
	}

	// Building the same tree in code hashes its canonical encoding, which is the same
	root, err := bencode.Decode(data)
	require.NoError(t, err)
	fromTree, err := Extract(bencode.Dict(bencode.Entry{Key: "info", Value: testInfo()}))
	require.NoError(t, err)
	fromFile, err := Extract(root)
	require.NoError(t, err)
	assert.Equal(t, fromFile.Info.InfoHash, fromTree.Info.InfoHash)
}

func TestInfoHashUnsortedKeys(t *testing.T) {
	// Same info dictionary with its keys out of order
	var info bytes.Buffer
	info.WriteString("d4:name8:file.txt6:lengthi1000e12:piece lengthi256e6:pieces80:")
	info.Write(testPieces())
	info.WriteString("e")
	data := append(append([]byte("d4:info"), info.Bytes()...), 'e')

	tf, err := Load(data)
	require.NoError(t, err)
	assert.Equal(t, "8df4064bdc988b801b57092723984c9c19a77bb1", hex.EncodeToString(tf.Info.InfoHash[:]))

	tf, err = Loader{CanonicalInfoHash: true}.Load(data)
	require.NoError(t, err)
	assert.Equal(t, "70c779990d9b91a34381e8689ad0dc99d5dd2ec6", hex.EncodeToString(tf.Info.InfoHash[:]))
}

func infoWith(key string, v bencode.Value) bencode.Value {
	entries, _ := testInfo().Entries()
	entries = append(append([]bencode.Entry{}, entries...), bencode.Entry{Key: key, Value: v})
	return bencode.Dict(entries...)
}

func infoWithout(key string) bencode.Value {
	entries, _ := testInfo().Entries()
	var kept []bencode.Entry
	for _, e := range entries {
		if e.Key != key {
			kept = append(kept, e)
		}
	}
	return bencode.Dict(kept...)
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]struct {
		input []byte
		err   error
		key   string
	}{
		"root is a list": {
			input: []byte("le"),
			err:   ErrInvalidRoot,
		},
		"no info": {
			input: []byte("d8:announce4:httpe"),
			err:   ErrMissingInfoDict,
		},
		"info is a string": {
			input: []byte("d4:info4:spame"),
			err:   ErrMissingInfoDict,
		},
		"pieces not a multiple of 20": {
			input: testTorrent(infoWith("pieces", bencode.Bytes(make([]byte, 21)))),
			err:   ErrMalformedPieceHashes,
		},
		"piece length is a string": {
			input: testTorrent(infoWith("piece length", bencode.String("256"))),
			err:   ErrInvalidFieldType,
			key:   "piece length",
		},
		"name is an integer": {
			input: testTorrent(infoWith("name", bencode.Int(1))),
			err:   ErrInvalidFieldType,
			key:   "name",
		},
		"pieces is a list": {
			input: testTorrent(infoWith("pieces", bencode.List())),
			err:   ErrInvalidFieldType,
			key:   "pieces",
		},
		"missing length": {
			input: testTorrent(infoWithout("length")),
			err:   ErrMissingField,
			key:   "length",
		},
		"missing name": {
			input: testTorrent(infoWithout("name")),
			err:   ErrMissingField,
			key:   "name",
		},
		"negative length": {
			input: testTorrent(infoWith("length", bencode.Int(-1))),
			err:   ErrInvalidFieldValue,
			key:   "length",
		},
		"multi file": {
			input: testTorrent(infoWith("files", bencode.List(bencode.Dict(
				bencode.Entry{Key: "length", Value: bencode.Int(1)},
				bencode.Entry{Key: "path", Value: bencode.List(bencode.String("a"))},
			)))),
			err: ErrUnsupportedLayout,
		},
		"truncated": {
			input: []byte("d4:infod4:name"),
			err:   bencode.ErrUnexpectedEnd,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			tf, err := Load(test.input)
			assert.Nil(t, tf)
			require.Error(t, err)
			assert.True(t, errors.Is(err, test.err), "got %v", err)

			if test.key != "" {
				var fe *FieldError
				require.True(t, errors.As(err, &fe))
				assert.Equal(t, test.key, fe.Key)
				assert.Contains(t, err.Error(), test.key)
			}
		})
	}
}

func TestOptionalFieldsPermissive(t *testing.T) {
	root := bencode.Dict(
		bencode.Entry{Key: "announce", Value: bencode.Int(7)},
		bencode.Entry{Key: "comment", Value: bencode.List()},
		bencode.Entry{Key: "created by", Value: bencode.Dict()},
		bencode.Entry{Key: "creation date", Value: bencode.String("yesterday")},
		bencode.Entry{Key: "announce-list", Value: bencode.String("nope")},
		bencode.Entry{Key: "url-list", Value: bencode.Int(1)},
		bencode.Entry{Key: "info", Value: testInfo()},
	)

	tf, err := Extract(root)
	require.NoError(t, err)
	assert.Empty(t, tf.Announce)
	assert.Empty(t, tf.Comment)
	assert.Empty(t, tf.CreatedBy)
	assert.Empty(t, tf.Encoding)
	assert.Zero(t, tf.CreationDate)
	assert.True(t, tf.CreationTime().IsZero())
	assert.Nil(t, tf.AnnounceList)
	assert.Nil(t, tf.URLList)
	assert.Nil(t, tf.Trackers())
}

func TestAnnounceList(t *testing.T) {
	data := testTorrent(testInfo(),
		bencode.Entry{Key: "announce-list", Value: bencode.List(
			bencode.List(bencode.String("http://a/announce"), bencode.String("wss://b/announce")),
			bencode.List(bencode.String("ftp://c")),
			bencode.List(bencode.String("udp://d:80"), bencode.String("https://e/announce")),
		)},
		bencode.Entry{Key: "url-list", Value: bencode.String("http://mirror/file.txt")},
	)

	tf, err := Load(data)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"http://a/announce"},
		{"udp://d:80", "https://e/announce"},
	}, tf.AnnounceList)
	assert.Equal(t, tf.AnnounceList, tf.Trackers())
	assert.Equal(t, []string{"http://mirror/file.txt"}, tf.URLList)

	// A tier with a non string entry drops the whole list
	data = testTorrent(testInfo(),
		bencode.Entry{Key: "announce-list", Value: bencode.List(bencode.List(bencode.Int(1)))},
		bencode.Entry{Key: "url-list", Value: bencode.List(bencode.String("http://x"), bencode.String("http://y"))},
	)
	tf, err = Load(data)
	require.NoError(t, err)
	assert.Nil(t, tf.AnnounceList)
	assert.Equal(t, []string{"http://x", "http://y"}, tf.URLList)
}

func TestPrivate(t *testing.T) {
	tests := map[string]struct {
		value bencode.Value
		want  bool
	}{
		"one":          {value: bencode.Int(1), want: true},
		"zero":         {value: bencode.Int(0), want: false},
		"string one":   {value: bencode.String("1"), want: true},
		"string zero":  {value: bencode.String("0"), want: false},
		"empty string": {value: bencode.String(""), want: false},
		"list":         {value: bencode.List(), want: false},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			tf, err := Load(testTorrent(infoWith("private", test.value)))
			require.NoError(t, err)
			assert.Equal(t, test.want, tf.Info.Private)
		})
	}
}

func TestPieceCount(t *testing.T) {
	tests := map[string]struct {
		length, pieceLength, want int64
	}{
		"partial last piece": {length: 1000, pieceLength: 256, want: 4},
		"exact":              {length: 1024, pieceLength: 256, want: 4},
		"single piece":       {length: 1, pieceLength: 256, want: 1},
		"empty file":         {length: 0, pieceLength: 256, want: 0},
		"zero piece length":  {length: 1000, pieceLength: 0, want: 0},
		"negative":           {length: 1000, pieceLength: -5, want: 0},
		"huge":               {length: 1<<62 + 1, pieceLength: 1 << 61, want: 3},
	}

	for name, test := range tests {
		assert.Equal(t, test.want, pieceCount(test.length, test.pieceLength), name)
	}
}

func TestVerifyPieceCount(t *testing.T) {
	strict := Loader{VerifyPieceCount: true}

	_, err := strict.Load(testTorrent(testInfo()))
	assert.NoError(t, err)

	_, err = strict.Load(testTorrent(infoWith("length", bencode.Int(2000))))
	assert.True(t, errors.Is(err, ErrPieceCountMismatch), "got %v", err)

	// Without verification the mismatch is allowed
	tf, err := Load(testTorrent(infoWith("length", bencode.Int(2000))))
	require.NoError(t, err)
	assert.Equal(t, int64(8), tf.Info.NumPieces)
}

func TestPieces(t *testing.T) {
	tf, err := Load(testTorrent(testInfo()))
	require.NoError(t, err)

	assert.Equal(t, bytes.Repeat([]byte{2}, HashSize), tf.Info.PieceHash(2))
	assert.Nil(t, tf.Info.PieceHash(4))
	assert.Nil(t, tf.Info.PieceHash(-1))
	assert.Nil(t, tf.Info.PieceHash(math.MaxInt/10))

	hashes := tf.Info.PieceHashes()
	require.Len(t, hashes, 4)
	assert.Equal(t, byte(3), hashes[3][19])

	assert.Equal(t, int64(256), tf.Info.PieceSize(0))
	assert.Equal(t, int64(232), tf.Info.PieceSize(3))
	assert.Equal(t, int64(0), tf.Info.PieceSize(4))

	huge := TorrentInfo{Length: math.MaxInt64, PieceLength: 1 << 62}
	huge.NumPieces = pieceCount(huge.Length, huge.PieceLength)
	assert.Equal(t, int64(2), huge.NumPieces)
	assert.Equal(t, int64(1<<62), huge.PieceSize(0))
	assert.Equal(t, int64(1<<62-1), huge.PieceSize(1))
}

func TestLoadTree(t *testing.T) {
	data := testTorrent(testInfo())
	tf, root, err := Loader{}.LoadTree(data)
	require.NoError(t, err)
	assert.Equal(t, "file.txt", tf.Info.Name)
	assert.Equal(t, data, root.Raw())

	_, root, err = Loader{}.LoadTree([]byte("i1e"))
	assert.True(t, errors.Is(err, ErrInvalidRoot), "got %v", err)
	assert.False(t, root.IsValid())
}

func TestSafeName(t *testing.T) {
	tests := map[string]struct {
		name string
		want string
	}{
		"plain":      {name: "file.txt", want: "file.txt"},
		"separators": {name: "../etc/passwd", want: ".._etc_passwd"},
		"long": {
			name: strings.Repeat("a", 300) + ".iso",
			want: strings.Repeat("a", 251) + ".iso",
		},
		"invalid utf8": {name: "a\xffb", want: "a�b"},
		"blank":        {name: " ", want: "70c779990d9b91a34381e8689ad0dc99d5dd2ec6"},
	}

	for name, test := range tests {
		ti := TorrentInfo{Name: test.name}
		copy(ti.InfoHash[:], mustHex("70c779990d9b91a34381e8689ad0dc99d5dd2ec6"))
		assert.Equal(t, test.want, ti.SafeName(), name)
	}
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.torrent")
	require.NoError(t, os.WriteFile(path, testTorrent(testInfo()), 0o644))

	tf, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "file.txt", tf.Info.Name)

	tf, err = Loader{}.Read(bytes.NewReader(testTorrent(testInfo())))
	require.NoError(t, err)
	assert.Equal(t, int64(4), tf.Info.NumPieces)

	_, err = Open(filepath.Join(dir, "missing.torrent"))
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr), "got %v", err)
	assert.Equal(t, "open", ioErr.Op)
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	_, err = Open(dir)
	assert.True(t, errors.As(err, &ioErr), "got %v", err)

	// Parse errors are not IO errors and name the file
	bad := filepath.Join(dir, "bad.torrent")
	require.NoError(t, os.WriteFile(bad, []byte("d4:infoi1ee"), 0o644))
	_, err = Open(bad)
	assert.False(t, errors.As(err, &ioErr))
	assert.True(t, errors.Is(err, ErrMissingInfoDict))
	assert.Contains(t, err.Error(), bad)
}
