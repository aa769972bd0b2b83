package txn

import (
	"fmt"
	"sync"
	"time"

	nebcell "github.com/shisoft/Nebuchadnezzar/pkg/cell"
	"github.com/shisoft/Nebuchadnezzar/pkg/ids"
	"github.com/shisoft/Nebuchadnezzar/pkg/logging"
)

// transaction is a coordinator-side workspace: staged writes plus the
// read set needed for prepare-time revalidation.
type transaction struct {
	mu        sync.Mutex
	id        TxnId
	state     TxnState
	startTime int64

	reads  map[ids.Id]uint64   // id -> version observed at read time
	writes map[ids.Id]*stagedOp // id -> most recent staged mutation
}

func newTransaction(id TxnId) *transaction {
	return &transaction{
		id:        id,
		state:     Started,
		startTime: time.Now().UnixNano(),
		reads:     make(map[ids.Id]uint64),
		writes:    make(map[ids.Id]*stagedOp),
	}
}

// Manager is the transaction coordinator: it mints transaction ids, stages
// reads/writes into per-transaction workspaces, and drives prepare/commit/
// abort across every DataSite a transaction touched.
type Manager struct {
	router Router
	log    logging.Logger

	mu   sync.Mutex
	txns map[TxnId]*transaction
}

// NewManager builds a Manager that routes cells through router. It logs
// nowhere until SetLogger is called.
func NewManager(router Router) *Manager {
	return &Manager{router: router, txns: make(map[TxnId]*transaction), log: logging.NopLogger{}}
}

// SetLogger attaches l as the Manager's logger.
func (m *Manager) SetLogger(l logging.Logger) { m.log = l }

// Begin starts a new transaction and returns its id.
func (m *Manager) Begin() TxnId {
	id := newTxnId()
	m.mu.Lock()
	m.txns[id] = newTransaction(id)
	m.mu.Unlock()
	return id
}

func (m *Manager) get(tid TxnId) (*transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[tid]
	return t, ok
}

// Read returns the cell for id as tid's workspace currently sees it: a
// staged write shadows the authoritative copy; otherwise it is read from
// id's DataSite and recorded in the read set for prepare-time
// revalidation.
func (m *Manager) Read(tid TxnId, id ids.Id) TxnExecResult[nebcell.Cell] {
	t, ok := m.get(tid)
	if !ok {
		return failed[nebcell.Cell](fmt.Errorf("txn: %w", ErrTransactionNotFound))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Started {
		return failed[nebcell.Cell](fmt.Errorf("txn: %w", ErrWrongState))
	}

	if op, staged := t.writes[id]; staged {
		if op.kind == opRemove {
			return failed[nebcell.Cell](nebcell.ErrCellDoesNotExist)
		}
		return accepted(op.cell)
	}

	site := m.router.Site(id.Partition())
	c, err := site.Read(id)
	if err != nil {
		return failed[nebcell.Cell](err)
	}
	t.reads[id] = c.Header.Version
	return accepted(c)
}

// Write stages the creation of a new cell. It rejects immediately with
// ErrCellAlreadyExisted if a committed version is already visible; write
// is insert-only, matching pkg/slab.Store.WriteCell's semantics.
func (m *Manager) Write(tid TxnId, c nebcell.Cell) TxnExecResult[struct{}] {
	t, ok := m.get(tid)
	if !ok {
		return failed[struct{}](fmt.Errorf("txn: %w", ErrTransactionNotFound))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Started {
		return failed[struct{}](fmt.Errorf("txn: %w", ErrWrongState))
	}

	site := m.router.Site(c.Id.Partition())
	if _, staged := t.writes[c.Id]; !staged {
		if _, err := site.HeadVersion(c.Id); err == nil {
			return failed[struct{}](nebcell.ErrCellAlreadyExisted)
		}
	}
	t.writes[c.Id] = &stagedOp{kind: opWrite, id: c.Id, cell: c}
	return accepted(struct{}{})
}

// Update stages a mutation of an existing cell.
func (m *Manager) Update(tid TxnId, c nebcell.Cell) TxnExecResult[struct{}] {
	t, ok := m.get(tid)
	if !ok {
		return failed[struct{}](fmt.Errorf("txn: %w", ErrTransactionNotFound))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Started {
		return failed[struct{}](fmt.Errorf("txn: %w", ErrWrongState))
	}
	t.writes[c.Id] = &stagedOp{kind: opUpdate, id: c.Id, cell: c}
	return accepted(struct{}{})
}

// Remove stages a deletion of id.
func (m *Manager) Remove(tid TxnId, id ids.Id) TxnExecResult[struct{}] {
	t, ok := m.get(tid)
	if !ok {
		return failed[struct{}](fmt.Errorf("txn: %w", ErrTransactionNotFound))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Started {
		return failed[struct{}](fmt.Errorf("txn: %w", ErrWrongState))
	}
	t.writes[id] = &stagedOp{kind: opRemove, id: id}
	return accepted(struct{}{})
}

// sitesFor groups tid's read set and write set by the DataSite each id
// routes to.
func (m *Manager) sitesFor(t *transaction) map[*DataSite]struct {
	reads  map[ids.Id]uint64
	writes []*stagedOp
} {
	grouped := make(map[*DataSite]struct {
		reads  map[ids.Id]uint64
		writes []*stagedOp
	})
	ensure := func(site *DataSite) {
		if _, ok := grouped[site]; !ok {
			grouped[site] = struct {
				reads  map[ids.Id]uint64
				writes []*stagedOp
			}{reads: make(map[ids.Id]uint64)}
		}
	}
	for id, v := range t.reads {
		site := m.router.Site(id.Partition())
		ensure(site)
		g := grouped[site]
		g.reads[id] = v
		grouped[site] = g
	}
	for id, op := range t.writes {
		site := m.router.Site(id.Partition())
		ensure(site)
		g := grouped[site]
		g.writes = append(g.writes, op)
		grouped[site] = g
	}
	return grouped
}

// Prepare asks every DataSite tid touched to revalidate its read set and
// lock its staged writes. If every site votes success, tid moves to
// Prepared; otherwise any sites that had voted success are asked to
// release their locks before PrepareNotRealizable (or PrepareDataSiteError)
// is returned, so the caller never needs to call Abort itself on a failed
// prepare.
func (m *Manager) Prepare(tid TxnId) TMPrepareResult {
	t, ok := m.get(tid)
	if !ok {
		return TMPrepareResult{Vote: PrepareDataSiteError, Err: fmt.Errorf("txn: %w", ErrTransactionNotFound)}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Started {
		return TMPrepareResult{Vote: PrepareDataSiteError, Err: fmt.Errorf("txn: %w", ErrWrongState)}
	}

	grouped := m.sitesFor(t)
	succeeded := make([]*DataSite, 0, len(grouped))
	var verdict = PrepareSuccess
	var hardErr error

	for site, g := range grouped {
		vote := site.Prepare(tid, g.reads, g.writes)
		if vote == PrepareSuccess {
			succeeded = append(succeeded, site)
			continue
		}
		verdict = vote
		if vote == PrepareDataSiteError {
			hardErr = fmt.Errorf("txn: %w", ErrDataSiteError)
		}
		break
	}

	if verdict != PrepareSuccess {
		for _, site := range succeeded {
			site.Abort(tid, grouped[site].writes)
		}
		m.log.Debug("prepare failed, released partial locks",
			logging.TxnID(uint64(tid)), logging.String("vote", verdict.String()))
		return TMPrepareResult{Vote: verdict, Err: hardErr}
	}

	t.state = Prepared
	return TMPrepareResult{Vote: PrepareSuccess}
}

// Commit applies every staged write at every touched site and retires the
// transaction. Only valid from Prepared; calling Commit again afterward
// returns EndTransactionNotFound.
func (m *Manager) Commit(tid TxnId) EndResult {
	t, ok := m.get(tid)
	if !ok {
		return EndTransactionNotFound
	}
	t.mu.Lock()
	if t.state != Prepared {
		t.mu.Unlock()
		return EndTransactionNotFound
	}
	grouped := m.sitesFor(t)
	t.mu.Unlock()

	for site, g := range grouped {
		if len(g.writes) == 0 {
			continue
		}
		if err := site.Commit(tid, g.writes); err != nil {
			// A commit-phase failure here is a structural bug: prepare
			// already locked these cells, so staged writes should always
			// apply. Surface it as an abort rather than leaving the
			// transaction half-applied.
			m.log.Error("commit failed after successful prepare, aborting",
				logging.TxnID(uint64(tid)), logging.Error(err))
			m.finish(tid)
			return EndAborted
		}
	}
	m.finish(tid)
	return EndCommitted
}

// Abort discards tid's workspace and releases every lock it holds.
// Idempotent: aborting an unknown or already-finished transaction id is a
// no-op success.
func (m *Manager) Abort(tid TxnId) {
	t, ok := m.get(tid)
	if !ok {
		return
	}
	t.mu.Lock()
	grouped := m.sitesFor(t)
	t.mu.Unlock()

	for site, g := range grouped {
		site.Abort(tid, g.writes)
	}
	m.finish(tid)
}

func (m *Manager) finish(tid TxnId) {
	m.mu.Lock()
	delete(m.txns, tid)
	m.mu.Unlock()
}

// State returns tid's current state, for tests and diagnostics.
func (m *Manager) State(tid TxnId) (TxnState, bool) {
	t, ok := m.get(tid)
	if !ok {
		return Aborted, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, true
}
