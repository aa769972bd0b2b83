package stats

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is an immutable, published view of every schema's statistics,
// indexed under its schema id.
type Snapshot struct {
	Schemas map[uint32]*SchemaStats
	order   []uint32 // sorted schema ids, for deterministic iteration
}

// SchemaIds returns the snapshot's schema ids in ascending order.
func (s *Snapshot) SchemaIds() []uint32 { return s.order }

// AsGaugeVec exposes the snapshot's per-schema cell counts as a
// prometheus GaugeVec labeled by schema id. No HTTP endpoint is wired;
// callers register the returned vector with whatever registry they run.
func (s *Snapshot) AsGaugeVec() *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "neb",
		Subsystem: "stats",
		Name:      "schema_cell_count",
		Help:      "Live cell count observed for a schema in the most recent statistics pass.",
	}, []string{"schema_id"})
	for _, id := range s.order {
		gv.WithLabelValues(strconv.FormatUint(uint64(id), 10)).Set(float64(s.Schemas[id].CellCount))
	}
	return gv
}
