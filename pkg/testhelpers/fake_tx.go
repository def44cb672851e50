package testhelpers

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
)

// FakeTx is a pgx.Tx for unit tests that only tracks Commit and Rollback.
// Any other pgx.Tx method panics, so repositories must be mocked.
type FakeTx struct {
	pgx.Tx

	mu         sync.Mutex
	CommitErr  error
	committed  bool
	rolledBack bool
}

func (f *FakeTx) Commit(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.committed || f.rolledBack {
		return pgx.ErrTxClosed
	}
	if f.CommitErr != nil {
		f.rolledBack = true
		return f.CommitErr
	}
	f.committed = true
	return nil
}

func (f *FakeTx) Rollback(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.committed || f.rolledBack {
		return pgx.ErrTxClosed
	}
	f.rolledBack = true
	return nil
}

// Committed reports whether Commit succeeded
func (f *FakeTx) Committed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.committed
}

// RolledBack reports whether the transaction ended without a commit
func (f *FakeTx) RolledBack() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rolledBack
}

// FakeTxManager hands out FakeTx values and remembers them
type FakeTxManager struct {
	mu       sync.Mutex
	BeginErr error
	Txs      []*FakeTx
}

func (m *FakeTxManager) BeginTx(_ context.Context) (pgx.Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BeginErr != nil {
		return nil, m.BeginErr
	}
	tx := &FakeTx{}
	m.Txs = append(m.Txs, tx)
	return tx, nil
}

// Last returns the most recently started transaction
func (m *FakeTxManager) Last() *FakeTx {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Txs) == 0 {
		return nil
	}
	return m.Txs[len(m.Txs)-1]
}
