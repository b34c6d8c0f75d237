package peers

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrMalformedPeers is returned when a compact peer list has a partial entry
var ErrMalformedPeers = errors.New("malformed compact peer list")

// Peer is the address of a single peer
type Peer struct {
	IP   net.IP
	Port uint16
}

// Unmarshal parses the compact IPv4 peer list returned by trackers
func Unmarshal(pbs []byte) ([]Peer, error) {
	return unmarshal(pbs, net.IPv4len)
}

// Unmarshal6 parses a compact IPv6 peer list (the peers6 key)
func Unmarshal6(pbs []byte) ([]Peer, error) {
	return unmarshal(pbs, net.IPv6len)
}

func unmarshal(pbs []byte, ipLen int) ([]Peer, error) {
	size := ipLen + 2 // ip followed by a 2 byte port
	if len(pbs)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrMalformedPeers, len(pbs), size)
	}

	peers := make([]Peer, len(pbs)/size)
	for i := range peers {
		offset := i * size
		ip := make(net.IP, ipLen)
		copy(ip, pbs[offset:offset+ipLen])
		peers[i].IP = ip
		peers[i].Port = binary.BigEndian.Uint16(pbs[offset+ipLen : offset+size])
	}
	return peers, nil
}

func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}
