package peers

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshal(t *testing.T) {
	tests := map[string]struct {
		input []byte
		v6    bool
		want  []string
		fails bool
	}{
		"two peers": {
			input: []byte{127, 0, 0, 1, 0x1a, 0xe1, 10, 0, 0, 2, 0, 80},
			want:  []string{"127.0.0.1:6881", "10.0.0.2:80"},
		},
		"empty": {
			input: []byte{},
			want:  []string{},
		},
		"partial peer": {
			input: []byte{127, 0, 0, 1, 0x1a},
			fails: true,
		},
		"ipv6": {
			input: append(net.ParseIP("::1").To16(), 0x1a, 0xe1),
			v6:    true,
			want:  []string{"[::1]:6881"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			unmarshal := Unmarshal
			if test.v6 {
				unmarshal = Unmarshal6
			}
			peers, err := unmarshal(test.input)
			if test.fails {
				assert.True(t, errors.Is(err, ErrMalformedPeers))
				return
			}
			require.NoError(t, err)

			got := make([]string, len(peers))
			for i, p := range peers {
				got[i] = p.String()
			}
			assert.Equal(t, test.want, got)
		})
	}
}
