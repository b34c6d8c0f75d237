package torrentfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Squwid/squidinfo/peers"
	"github.com/jackpal/bencode-go"
	"github.com/sirupsen/logrus"
)

// Port is the port announced to trackers when none is given
const Port uint16 = 6881

var (
	ErrNoTrackers     = errors.New("torrent has no http trackers")
	ErrTrackerFailure = errors.New("tracker returned a failure")
)

type bencodeTrackerResp struct {
	FailureReason string `bencode:"failure reason"`
	Interval      int    `bencode:"interval"` // How often to reconnect to the tracker to refresh list of peers (in seconds)

	// Peers is a blob that contains ip addresses of each peer, by groups of 6 bytes, (first 4 ip, last 2 port)
	Peers  string `bencode:"peers"`
	Peers6 string `bencode:"peers6"`
}

// TrackerResponse is the useful part of a tracker announce response
type TrackerResponse struct {
	Interval time.Duration
	Peers    []peers.Peer
}

// ParseTrackerResponse reads a bencoded tracker response with a compact peer list
func ParseTrackerResponse(r io.Reader) (*TrackerResponse, error) {
	var resp bencodeTrackerResp
	if err := bencode.Unmarshal(r, &resp); err != nil {
		return nil, err
	}
	if resp.FailureReason != "" {
		return nil, fmt.Errorf("%w: %s", ErrTrackerFailure, resp.FailureReason)
	}

	ps, err := peers.Unmarshal([]byte(resp.Peers))
	if err != nil {
		return nil, err
	}
	ps6, err := peers.Unmarshal6([]byte(resp.Peers6))
	if err != nil {
		return nil, err
	}

	return &TrackerResponse{
		Interval: time.Duration(resp.Interval) * time.Second,
		Peers:    append(ps, ps6...),
	}, nil
}

// Build GET request url to hit tracker to announce presence as a peer and receive list of other peers
func (tf *TorrentFile) buildTrackerURL(announce string, peerID [20]byte, port uint16) (string, error) {
	base, err := url.Parse(announce)
	if err != nil {
		return "", err
	}

	// https://www.bittorrent.org/beps/bep_0003.html
	params := url.Values{
		"info_hash":  []string{string(tf.Info.InfoHash[:])}, // Identifies the file that is gonna get downloaded
		"peer_id":    []string{string(peerID[:])},
		"port":       []string{strconv.Itoa(int(port))},
		"uploaded":   []string{"0"},
		"downloaded": []string{"0"},
		"compact":    []string{"1"},
		"left":       []string{strconv.FormatInt(tf.Info.Length, 10)},
	}

	// Private trackers put a passkey in the query, keep it
	if base.RawQuery != "" {
		base.RawQuery += "&" + params.Encode()
	} else {
		base.RawQuery = params.Encode()
	}
	return base.String(), nil
}

// RequestPeers announces to the http trackers of tf in tier order and returns the
// answer of the first one that responds. A nil client uses a 15 second timeout and
// a nil log the standard logger.
func (tf *TorrentFile) RequestPeers(ctx context.Context, c *http.Client, log *logrus.Entry, peerID [20]byte, port uint16) (*TrackerResponse, error) {
	if c == nil {
		c = &http.Client{Timeout: 15 * time.Second}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	logger := log.WithField("Name", tf.Info.Name)

	var lastErr error = ErrNoTrackers
	for _, tier := range tf.Trackers() {
		for _, announce := range tier {
			if !strings.HasPrefix(announce, "http://") && !strings.HasPrefix(announce, "https://") {
				continue
			}

			resp, err := tf.announce(ctx, c, announce, peerID, port)
			if err != nil {
				logger.WithError(err).WithField("Tracker", announce).Warnf("Tracker request failed")
				lastErr = err
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}

			logger.WithFields(logrus.Fields{
				"Tracker": announce,
				"Peers":   len(resp.Peers),
			}).Debugf("Received peers")
			return resp, nil
		}
	}
	return nil, lastErr
}

func (tf *TorrentFile) announce(ctx context.Context, c *http.Client, announce string, peerID [20]byte, port uint16) (*TrackerResponse, error) {
	u, err := tf.buildTrackerURL(announce, peerID, port)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tracker responded with %s", resp.Status)
	}
	return ParseTrackerResponse(resp.Body)
}
