// Package rpc captures Neb's external service contracts as Go interfaces
// only; no transport is implemented here. A real deployment satisfies
// these interfaces over whatever wire protocol it chooses. The package
// exists so pkg/txn, pkg/slab, and pkg/lsm have a stable contract to be
// served behind, and so tests can exercise the core against an in-process
// implementation without a network.
package rpc

import (
	"context"
	"time"

	"github.com/shisoft/Nebuchadnezzar/pkg/btree"
	"github.com/shisoft/Nebuchadnezzar/pkg/cell"
	"github.com/shisoft/Nebuchadnezzar/pkg/ids"
	"github.com/shisoft/Nebuchadnezzar/pkg/lsm"
	"github.com/shisoft/Nebuchadnezzar/pkg/txn"
)

// CellService is the RPC surface for direct, non-transactional cell
// access.
type CellService interface {
	ReadCell(ctx context.Context, id ids.Id) (cell.Cell, error)
	WriteCell(ctx context.Context, c cell.Cell) (cell.Header, error)
	UpdateCell(ctx context.Context, c cell.Cell) (cell.Header, error)
	RemoveCell(ctx context.Context, id ids.Id) error
}

// TransactionService is the RPC surface for the two-phase-commit
// transaction protocol.
type TransactionService interface {
	Begin(ctx context.Context) (txn.TxnId, error)
	Read(ctx context.Context, tid txn.TxnId, id ids.Id) txn.TxnExecResult[cell.Cell]
	Write(ctx context.Context, tid txn.TxnId, c cell.Cell) txn.TxnExecResult[struct{}]
	Update(ctx context.Context, tid txn.TxnId, c cell.Cell) txn.TxnExecResult[struct{}]
	Remove(ctx context.Context, tid txn.TxnId, id ids.Id) txn.TxnExecResult[struct{}]
	Prepare(ctx context.Context, tid txn.TxnId) txn.TMPrepareResult
	Commit(ctx context.Context, tid txn.TxnId) txn.EndResult
	Abort(ctx context.Context, tid txn.TxnId) error
}

// OpResult is the wire-level result of an LSM tree mutation or seek,
// distinguishing a found/placed key from tree-lookup and placement
// errors.
type OpResult[T any] struct {
	Ok    bool
	Value T
	Err   error
}

// ErrTreeNotFound and ErrOutOfBound are LSMTreeService's error cases for
// unknown trees and placement-bound inserts.
var (
	ErrTreeNotFound = errNotFound{}
	ErrOutOfBound   = errOutOfBound{}
)

type errNotFound struct{}

func (errNotFound) Error() string { return "lsm tree not found" }

type errOutOfBound struct{}

func (errOutOfBound) Error() string { return "key out of placement bound" }

// Block is a page of entry keys returned from one CursorNext call.
type Block struct {
	Keys []btree.EntryKey
}

// LSMTreeService is the RPC surface for creating, loading, and scanning
// placement-bound LSM trees.
type LSMTreeService interface {
	CreateTree(ctx context.Context, id ids.Id, boundary lsm.Placement) error
	LoadTree(ctx context.Context, id ids.Id, boundary lsm.Placement) error
	Insert(ctx context.Context, id ids.Id, key btree.EntryKey) OpResult[struct{}]
	Delete(ctx context.Context, id ids.Id, key btree.EntryKey) OpResult[struct{}]
	Seek(ctx context.Context, id ids.Id, key btree.EntryKey, ord btree.Ordering, ttl time.Duration) OpResult[lsm.CursorHandle]
	CursorNext(ctx context.Context, handle lsm.CursorHandle, pageSize int) (*Block, bool)
	RenewCursor(ctx context.Context, handle lsm.CursorHandle) bool
	DisposeCursor(ctx context.Context, handle lsm.CursorHandle)
}
