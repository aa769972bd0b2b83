package txn

// Router maps a cell id's partition to the DataSite that owns it. This
// interface is the seam a real deployment plugs a consistent-hash ring
// into; the core itself never depends on ring membership.
type Router interface {
	Site(partition uint64) *DataSite
}

// PartitionRouter is the default Router: a fixed list of data sites,
// selected by partition modulo site count.
type PartitionRouter struct {
	sites []*DataSite
}

// NewPartitionRouter builds a router over sites. It selects a site from
// the same partition (Id.Higher) that pkg/slab uses to select a chunk, so
// cells that share a partition share a site. Cells of one chunk land on
// one site only when the site count divides the chunk count.
func NewPartitionRouter(sites ...*DataSite) *PartitionRouter {
	return &PartitionRouter{sites: sites}
}

// Site returns the DataSite responsible for partition.
func (r *PartitionRouter) Site(partition uint64) *DataSite {
	return r.sites[partition%uint64(len(r.sites))]
}

// SingleSiteRouter routes every partition to one DataSite, the common
// case for a standalone server where every transaction's cells are
// coordinated by one manager.
func SingleSiteRouter(site *DataSite) *PartitionRouter {
	return &PartitionRouter{sites: []*DataSite{site}}
}
