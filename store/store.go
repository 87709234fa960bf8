// Package store provides the unconfirmed transaction store consulted by the relay.
// 아직 블록에 포함되지 않은 트랜잭션을 보관하고 조회하는 기능을 제공
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

var (
	ErrNilTx       = errors.New("transaction is nil")
	ErrStoreClosed = errors.New("store is closed")
)

// Metadata는 미확인 트랜잭션에 붙는 부가 정보
type Metadata struct {
	Received time.Time `json:"received"` // 저장소에 들어온 시각
	Source   string    `json:"source"`   // "local", "rpc" 등
	Note     string    `json:"note"`     // 자유 메모
}

// Unconfirmed is a transaction known locally but not yet in a finalized ledger state.
type Unconfirmed struct {
	Tx   *wire.MsgTx
	Meta Metadata
}

// Hash returns the txid of the record.
func (u Unconfirmed) Hash() chainhash.Hash {
	return u.Tx.TxHash()
}

// Backend is the storage engine behind Shared.
// Implementations need not be safe for concurrent use; Shared serializes access.
type Backend interface {
	ReadUnconfirmed() ([]Unconfirmed, error)
	PutUnconfirmed(u Unconfirmed) error
	RemoveUnconfirmed(hash chainhash.Hash) error
	Close() error
}

// ================================================================================
//                          Shared (접근 락)
// ================================================================================

// Shared guards a Backend with the store's access lock.
//
// Every method acquires the lock for the duration of one backend call and releases it
// before returning. ReadUnconfirmed hands back a slice owned by the caller, so no caller
// can keep the lock while it talks to the network.
type Shared struct {
	mu      sync.Mutex
	backend Backend
	closed  bool
}

// NewShared wraps backend.
func NewShared(backend Backend) *Shared {
	return &Shared{backend: backend}
}

// ReadUnconfirmed returns every unconfirmed transaction.
func (s *Shared) ReadUnconfirmed() ([]Unconfirmed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	records, err := s.backend.ReadUnconfirmed()
	if err != nil {
		return nil, fmt.Errorf("read unconfirmed: %w", err)
	}
	return records, nil
}

// PutUnconfirmed stores tx with meta. Re-putting a known txid replaces its metadata.
func (s *Shared) PutUnconfirmed(tx *wire.MsgTx, meta Metadata) error {
	if tx == nil {
		return ErrNilTx
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if err := s.backend.PutUnconfirmed(Unconfirmed{Tx: tx, Meta: meta}); err != nil {
		return fmt.Errorf("put unconfirmed %s: %w", tx.TxHash(), err)
	}
	return nil
}

// RemoveUnconfirmed drops hash from the unconfirmed set, for example once it confirms.
// Removing an unknown hash is not an error.
func (s *Shared) RemoveUnconfirmed(hash chainhash.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if err := s.backend.RemoveUnconfirmed(hash); err != nil {
		return fmt.Errorf("remove unconfirmed %s: %w", hash, err)
	}
	return nil
}

// Count returns the number of unconfirmed transactions.
func (s *Shared) Count() (int, error) {
	records, err := s.ReadUnconfirmed()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Close closes the backend. Later calls return ErrStoreClosed.
func (s *Shared) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.backend.Close()
}

// ================================================================================
//                          Memory Store
// ================================================================================

// MemoryStore는 메모리 기반 저장소 (테스트 및 임시 노드용)
type MemoryStore struct {
	order   []chainhash.Hash
	records map[chainhash.Hash]Unconfirmed
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[chainhash.Hash]Unconfirmed),
	}
}

// ReadUnconfirmed returns records in insertion order.
func (ms *MemoryStore) ReadUnconfirmed() ([]Unconfirmed, error) {
	out := make([]Unconfirmed, 0, len(ms.order))
	for _, h := range ms.order {
		out = append(out, ms.records[h])
	}
	return out, nil
}

// PutUnconfirmed adds or replaces a record.
func (ms *MemoryStore) PutUnconfirmed(u Unconfirmed) error {
	if u.Tx == nil {
		return ErrNilTx
	}
	h := u.Hash()
	if _, ok := ms.records[h]; !ok {
		ms.order = append(ms.order, h)
	}
	ms.records[h] = u
	return nil
}

// RemoveUnconfirmed deletes a record.
func (ms *MemoryStore) RemoveUnconfirmed(hash chainhash.Hash) error {
	if _, ok := ms.records[hash]; !ok {
		return nil
	}
	delete(ms.records, hash)
	for i, h := range ms.order {
		if h == hash {
			ms.order = append(ms.order[:i], ms.order[i+1:]...)
			break
		}
	}
	return nil
}

// Close closes the store.
func (ms *MemoryStore) Close() error {
	// 메모리 저장소는 특별한 종료 로직이 필요 없음
	return nil
}
