package torrentfile

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/Squwid/squidinfo/bencode"
	"github.com/sirupsen/logrus"
)

// IOError is a failure to read a torrent file, before any decoding happened
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Loader reads torrent files. The zero Loader uses the default decoder and hashes the
// info dictionary as it appears in the file.
type Loader struct {
	Decoder bencode.Decoder

	// CanonicalInfoHash re-encodes the info dictionary before hashing it
	CanonicalInfoHash bool

	// VerifyPieceCount fails torrents whose piece hashes don't cover the file length
	VerifyPieceCount bool

	Logger *logrus.Entry
}

// Open parses the torrent file at path with the default Loader
func Open(path string) (*TorrentFile, error) {
	return Loader{}.Open(path)
}

// Load parses an in memory torrent file with the default Loader
func Load(data []byte) (*TorrentFile, error) {
	return Loader{}.Load(data)
}

// Open reads and parses the torrent file at path
func (l Loader) Open(path string) (*TorrentFile, error) {
	data, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	tf, _, err := l.load(l.logger().WithField("Path", path), data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tf, nil
}

// Read parses a torrent file from r
func (l Loader) Read(r io.Reader) (*TorrentFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &IOError{Op: "read", Path: "-", Err: err}
	}
	return l.Load(data)
}

// Load parses a torrent file that is already in memory
func (l Loader) Load(data []byte) (*TorrentFile, error) {
	tf, _, err := l.load(l.logger(), data)
	return tf, err
}

// LoadTree is Load that also returns the decoded bencode tree
func (l Loader) LoadTree(data []byte) (*TorrentFile, bencode.Value, error) {
	return l.load(l.logger(), data)
}

func (l Loader) logger() *logrus.Entry {
	if l.Logger == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return l.Logger
}

func (l Loader) load(log *logrus.Entry, data []byte) (*TorrentFile, bencode.Value, error) {
	root, err := l.Decoder.Decode(data)
	if err != nil {
		log.WithError(err).Debugf("Could not decode torrent file")
		return nil, bencode.Value{}, err
	}

	tf, err := extract(root, l.CanonicalInfoHash)
	if err != nil {
		log.WithError(err).Debugf("Invalid torrent metainfo")
		return nil, bencode.Value{}, err
	}

	if l.VerifyPieceCount {
		if err := tf.Info.verifyPieces(); err != nil {
			return nil, bencode.Value{}, err
		}
	}

	log.WithFields(logrus.Fields{
		"Name":     tf.Info.Name,
		"InfoHash": hex.EncodeToString(tf.Info.InfoHash[:]),
		"Pieces":   tf.Info.NumPieces,
		"Bytes":    len(data),
	}).Debugf("Loaded torrent metainfo")
	return tf, root, nil
}

// ReadFile reads a whole torrent file into memory. Failures are returned as *IOError.
func ReadFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	defer file.Close()

	fi, err := file.Stat()
	if err != nil {
		return nil, &IOError{Op: "stat", Path: path, Err: err}
	}
	if fi.IsDir() {
		return nil, &IOError{Op: "read", Path: path, Err: fmt.Errorf("is a directory")}
	}

	buf := make([]byte, fi.Size())
	if _, err := io.ReadFull(file, buf); err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	return buf, nil
}
