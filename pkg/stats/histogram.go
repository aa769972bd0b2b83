package stats

import "sort"

// LocalBuckets is the boundary count for a per-block local histogram.
const LocalBuckets = 128

// GlobalBuckets is the boundary count for the merged, approximate global
// histogram.
const GlobalBuckets = 100

// Histogram is an equi-depth histogram: boundaries such that each
// interval [Boundaries[i], Boundaries[i+1]) holds approximately Depth
// values.
type Histogram struct {
	Boundaries []uint64
	Depth      float64 // values represented per boundary
}

// BuildEquiDepth computes a local equi-depth histogram with numBuckets
// boundaries over an unsorted slice of 64-bit features. values is sorted
// in place.
func BuildEquiDepth(values []uint64, numBuckets int) Histogram {
	if len(values) == 0 || numBuckets <= 0 {
		return Histogram{}
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	depth := float64(len(values)) / float64(numBuckets)
	boundaries := make([]uint64, 0, numBuckets)
	for i := 1; i <= numBuckets; i++ {
		idx := int(float64(i)*depth) - 1
		if idx < 0 {
			idx = 0
		}
		if idx >= len(values) {
			idx = len(values) - 1
		}
		boundaries = append(boundaries, values[idx])
	}
	return Histogram{Boundaries: dedupAscending(boundaries), Depth: depth}
}

func dedupAscending(vals []uint64) []uint64 {
	out := vals[:0:0]
	for i, v := range vals {
		if i == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// MergePartitioned merges a set of per-partition (per-block) equi-depth
// histograms into one approximate global histogram of numBuckets
// boundaries, by partition-weighted merge: advance through partition
// boundary pointers in key order, charging each step by its partition's
// depth (the number of values its histogram summarizes per boundary
// crossed), and emit a global boundary whenever the accumulated weight
// reaches the target bucket width.
func MergePartitioned(partitions []Histogram, numBuckets int) Histogram {
	type step struct {
		val   uint64
		depth float64
	}
	var steps []step
	totalWeight := 0.0
	for _, p := range partitions {
		for _, b := range p.Boundaries {
			steps = append(steps, step{val: b, depth: p.Depth})
			totalWeight += p.Depth
		}
	}
	if len(steps) == 0 || numBuckets <= 0 {
		return Histogram{}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].val < steps[j].val })

	targetWidth := totalWeight / float64(numBuckets)
	var out []uint64
	acc := 0.0
	for _, s := range steps {
		acc += s.depth
		if acc >= targetWidth {
			out = append(out, s.val)
			acc = 0
		}
	}
	if len(out) == 0 {
		out = []uint64{steps[len(steps)-1].val}
	}
	return Histogram{Boundaries: dedupAscending(out), Depth: targetWidth}
}
