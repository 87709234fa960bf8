package relay

import (
	"testing"

	"github.com/btcsuite/btcd/wire"

	"github.com/ahwlsqja/txrelay/p2p"
	"github.com/ahwlsqja/txrelay/types"
)

// BenchmarkCacheInsert benchmarks inserts into a full cache.
func BenchmarkCacheInsert(b *testing.B) {
	c, err := NewCache(DefaultCacheSize, nil)
	if err != nil {
		b.Fatal(err)
	}
	txs := make([]*wire.MsgTx, 4*DefaultCacheSize)
	for i := range txs {
		txs[i] = newTx(uint32(i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tx := txs[i%len(txs)]
		c.Insert(tx.TxHash(), tx)
	}
}

// BenchmarkHandleTx benchmarks the incoming tx path including the announcement.
func BenchmarkHandleTx(b *testing.B) {
	peers := p2p.NewMockTransport("a", "b", "c")
	r, err := New(DefaultConfig(), newFakeStore(), peers)
	if err != nil {
		b.Fatal(err)
	}
	txs := make([]*wire.MsgTx, 2*DefaultCacheSize)
	for i := range txs {
		txs[i] = newTx(uint32(i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.handleTx("a", txs[i%len(txs)])
		if i%1024 == 0 {
			peers.ClearSentMessages()
		}
	}
}

// BenchmarkHandleInv benchmarks inv filtering against the cache.
func BenchmarkHandleInv(b *testing.B) {
	peers := p2p.NewMockTransport("a")
	r, err := New(DefaultConfig(), newFakeStore(), peers)
	if err != nil {
		b.Fatal(err)
	}
	inv := wire.NewMsgInv()
	for i := 0; i < 100; i++ {
		tx := newTx(uint32(i))
		if i%2 == 0 {
			r.cache.Insert(tx.TxHash(), tx)
		}
		inv.AddInvVect(types.TxInv(tx.TxHash()))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.handleInv("a", inv)
		if i%1024 == 0 {
			peers.ClearSentMessages()
		}
	}
}
