package pools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetReturnsRequestedCapacity(t *testing.T) {
	b := Get(100)
	assert.Equal(t, 0, len(b))
	assert.GreaterOrEqual(t, cap(b), 100)
}

func TestGetSizedReturnsExactLength(t *testing.T) {
	b := GetSized(123)
	assert.Equal(t, 123, len(b))
}

func TestPutAcceptsEveryPooledSizeClass(t *testing.T) {
	p := NewBytePool()
	for _, size := range []int{EntrySize, RecordSize, SegmentChunk} {
		b := p.GetSized(size)
		p.Put(b) // must not panic for any in-range size class
	}
}

func TestOversizedBufferIsNotPooled(t *testing.T) {
	b := Get(MaxPool + 1)
	assert.GreaterOrEqual(t, cap(b), MaxPool+1)
	Put(b) // must not panic
}
