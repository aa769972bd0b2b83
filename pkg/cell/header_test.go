package cell

import (
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/shisoft/Nebuchadnezzar/pkg/ids"
	"github.com/stretchr/testify/assert"
)

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{Version: 7, Size: 128, Schema: 3, Hash: 0xdeadbeef, Partition: 42}
	buf := EncodeHeader(h)
	got := DecodeHeader(buf[:])
	assert.Equal(t, h, got)
}

func TestHashIdIsDeterministicAndDistinguishesIds(t *testing.T) {
	a := ids.New(1)
	b := ids.New(2)
	assert.Equal(t, HashId(a), HashId(a))
	assert.NotEqual(t, HashId(a), HashId(b))
}

func TestHashRoutingKeyMatchesXXHash(t *testing.T) {
	assert.Equal(t, xxhash.Sum64([]byte("abc")), HashRoutingKey([]byte("abc")))
	assert.NotEqual(t, HashRoutingKey([]byte("abc")), HashRoutingKey([]byte("abd")))
}
