// Package ids implements Neb's 128-bit record identifier.
package ids

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Id is a 128-bit identifier split into a routing half and a local half.
// Higher carries partition/routing information (which chunk/server a cell
// lives on); Lower disambiguates records within that partition.
type Id struct {
	Higher uint64
	Lower  uint64
}

// Unit is the reserved sentinel id.
var Unit = Id{Higher: 0, Lower: 0}

// IsUnit reports whether id is the reserved sentinel.
func (id Id) IsUnit() bool {
	return id.Higher == 0 && id.Lower == 0
}

func (id Id) String() string {
	return fmt.Sprintf("%016x%016x", id.Higher, id.Lower)
}

// Partition returns the routing component used to pick a chunk or server.
func (id Id) Partition() uint64 {
	return id.Higher
}

var localCounter uint64

// New builds an id for partition, with a process-local monotonic lower
// half. Good enough for single-process tests and demos; a real deployment
// derives Higher from the consistent-hash ring, which is out of scope here.
func New(partition uint64) Id {
	lower := atomic.AddUint64(&localCounter, 1)
	return Id{Higher: partition, Lower: lower}
}

// NewRandom builds an id for partition using a random lower half, derived
// from a v4 UUID, for callers that need collision resistance rather than
// strict monotonicity.
func NewRandom(partition uint64) Id {
	u := uuid.New()
	lower := uint64(0)
	for i := 0; i < 8; i++ {
		lower = lower<<8 | uint64(u[i])
	}
	return Id{Higher: partition, Lower: lower}
}
