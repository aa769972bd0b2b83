package rpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shisoft/Nebuchadnezzar/pkg/btree"
	"github.com/shisoft/Nebuchadnezzar/pkg/cell"
	"github.com/shisoft/Nebuchadnezzar/pkg/ids"
	"github.com/shisoft/Nebuchadnezzar/pkg/lsm"
	"github.com/shisoft/Nebuchadnezzar/pkg/slab"
	"github.com/shisoft/Nebuchadnezzar/pkg/txn"
)

// LocalCellService is an in-process CellService backed directly by a
// pkg/slab.Store, for tests and single-process deployments that don't go
// through a transport.
type LocalCellService struct {
	store *slab.Store
}

// NewLocalCellService builds a CellService directly over store.
func NewLocalCellService(store *slab.Store) *LocalCellService {
	return &LocalCellService{store: store}
}

func (s *LocalCellService) ReadCell(_ context.Context, id ids.Id) (cell.Cell, error) {
	return s.store.ReadCell(id)
}

func (s *LocalCellService) WriteCell(_ context.Context, c cell.Cell) (cell.Header, error) {
	if err := s.store.WriteCell(&c); err != nil {
		return cell.Header{}, err
	}
	return c.Header, nil
}

func (s *LocalCellService) UpdateCell(_ context.Context, c cell.Cell) (cell.Header, error) {
	if err := s.store.UpdateCell(&c); err != nil {
		return cell.Header{}, err
	}
	return c.Header, nil
}

func (s *LocalCellService) RemoveCell(_ context.Context, id ids.Id) error {
	return s.store.RemoveCell(id)
}

var _ CellService = (*LocalCellService)(nil)

// LocalTransactionService is an in-process TransactionService backed
// directly by a pkg/txn.Manager.
type LocalTransactionService struct {
	manager *txn.Manager
}

// NewLocalTransactionService builds a TransactionService over manager.
func NewLocalTransactionService(manager *txn.Manager) *LocalTransactionService {
	return &LocalTransactionService{manager: manager}
}

func (s *LocalTransactionService) Begin(context.Context) (txn.TxnId, error) {
	return s.manager.Begin(), nil
}

func (s *LocalTransactionService) Read(_ context.Context, tid txn.TxnId, id ids.Id) txn.TxnExecResult[cell.Cell] {
	return s.manager.Read(tid, id)
}

func (s *LocalTransactionService) Write(_ context.Context, tid txn.TxnId, c cell.Cell) txn.TxnExecResult[struct{}] {
	return s.manager.Write(tid, c)
}

func (s *LocalTransactionService) Update(_ context.Context, tid txn.TxnId, c cell.Cell) txn.TxnExecResult[struct{}] {
	return s.manager.Update(tid, c)
}

func (s *LocalTransactionService) Remove(_ context.Context, tid txn.TxnId, id ids.Id) txn.TxnExecResult[struct{}] {
	return s.manager.Remove(tid, id)
}

func (s *LocalTransactionService) Prepare(_ context.Context, tid txn.TxnId) txn.TMPrepareResult {
	return s.manager.Prepare(tid)
}

func (s *LocalTransactionService) Commit(_ context.Context, tid txn.TxnId) txn.EndResult {
	return s.manager.Commit(tid)
}

func (s *LocalTransactionService) Abort(_ context.Context, tid txn.TxnId) error {
	s.manager.Abort(tid)
	return nil
}

var _ TransactionService = (*LocalTransactionService)(nil)

// managedTree pairs an LSM engine with the placement bound it was created
// for and the cursor registry backing its seeks.
type managedTree struct {
	engine   *lsm.Engine
	boundary lsm.Placement
	cursors  *lsm.CursorRegistry
}

// LocalLSMTreeService is an in-process LSMTreeService managing many
// placement-bound trees, each with its own TTL'd cursor registry.
type LocalLSMTreeService struct {
	defaultTTL time.Duration

	mu    sync.RWMutex
	trees map[ids.Id]*managedTree
}

// NewLocalLSMTreeService builds an LSMTreeService whose cursors all expire
// after defaultTTL; the ttl a caller passes to Seek is not used.
func NewLocalLSMTreeService(defaultTTL time.Duration) *LocalLSMTreeService {
	return &LocalLSMTreeService{defaultTTL: defaultTTL, trees: make(map[ids.Id]*managedTree)}
}

func (s *LocalLSMTreeService) CreateTree(_ context.Context, id ids.Id, boundary lsm.Placement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trees[id]; ok {
		return fmt.Errorf("rpc: tree %s already exists", id)
	}
	s.trees[id] = &managedTree{
		engine:   lsm.NewEngine(),
		boundary: boundary,
		cursors:  lsm.NewCursorRegistry(s.defaultTTL),
	}
	return nil
}

func (s *LocalLSMTreeService) LoadTree(ctx context.Context, id ids.Id, boundary lsm.Placement) error {
	s.mu.RLock()
	_, exists := s.trees[id]
	s.mu.RUnlock()
	if exists {
		return nil
	}
	return s.CreateTree(ctx, id, boundary)
}

func (s *LocalLSMTreeService) tree(id ids.Id) (*managedTree, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trees[id]
	return t, ok
}

func (s *LocalLSMTreeService) Insert(_ context.Context, id ids.Id, key btree.EntryKey) OpResult[struct{}] {
	t, ok := s.tree(id)
	if !ok {
		return OpResult[struct{}]{Err: ErrTreeNotFound}
	}
	if !t.boundary.Contains(key) {
		return OpResult[struct{}]{Err: ErrOutOfBound}
	}
	if err := t.engine.Insert(key); err != nil {
		return OpResult[struct{}]{Err: err}
	}
	return OpResult[struct{}]{Ok: true}
}

func (s *LocalLSMTreeService) Delete(_ context.Context, id ids.Id, key btree.EntryKey) OpResult[struct{}] {
	t, ok := s.tree(id)
	if !ok {
		return OpResult[struct{}]{Err: ErrTreeNotFound}
	}
	if !t.boundary.Contains(key) {
		return OpResult[struct{}]{Err: ErrOutOfBound}
	}
	found := t.engine.Delete(key)
	return OpResult[struct{}]{Ok: found}
}

func (s *LocalLSMTreeService) Seek(_ context.Context, id ids.Id, key btree.EntryKey, ord btree.Ordering, ttl time.Duration) OpResult[lsm.CursorHandle] {
	t, ok := s.tree(id)
	if !ok {
		return OpResult[lsm.CursorHandle]{Err: ErrTreeNotFound}
	}
	cur := t.engine.Seek(key, ord)
	// The registry's TTL is fixed at tree-creation time; a uniform TTL is
	// what keeps its LRU eviction order correct, so a per-seek ttl is
	// accepted for wire compatibility but not applied.
	_ = ttl
	handle := t.cursors.Register(cur)
	return OpResult[lsm.CursorHandle]{Ok: true, Value: handle}
}

// findCursor locates the registry holding handle by scanning every tree.
// Handles are minted process-wide, so at most one registry matches. A
// real deployment would route by tree id encoded in the handle's high
// bits; the in-process stand-in only ever manages a handful of trees.
func (s *LocalLSMTreeService) findCursor(handle lsm.CursorHandle) (*lsm.Cursor, *lsm.CursorRegistry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.trees {
		if c, ok := t.cursors.Get(handle); ok {
			return c, t.cursors, true
		}
	}
	return nil, nil, false
}

func (s *LocalLSMTreeService) CursorNext(_ context.Context, handle lsm.CursorHandle, pageSize int) (*Block, bool) {
	cur, _, ok := s.findCursor(handle)
	if !ok {
		return nil, false
	}
	block := &Block{}
	for len(block.Keys) < pageSize && cur.Valid() {
		block.Keys = append(block.Keys, cur.Key())
		cur.Next()
	}
	return block, true
}

func (s *LocalLSMTreeService) RenewCursor(_ context.Context, handle lsm.CursorHandle) bool {
	_, registry, ok := s.findCursor(handle)
	if !ok {
		return false
	}
	return registry.Renew(handle)
}

func (s *LocalLSMTreeService) DisposeCursor(_ context.Context, handle lsm.CursorHandle) {
	if _, registry, ok := s.findCursor(handle); ok {
		registry.Dispose(handle)
	}
}

var _ LSMTreeService = (*LocalLSMTreeService)(nil)
