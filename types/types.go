// Package types defines core data structures shared by the relay, the store and the transport.
package types

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// PeerID identifies one connected peer. The transport assigns it during the handshake.
type PeerID string

// String returns the peer id as a string.
func (p PeerID) String() string {
	return string(p)
}

// TxID returns the double-SHA256 identifier of a transaction.
func TxID(tx *wire.MsgTx) chainhash.Hash {
	return tx.TxHash()
}

// TxInv builds a transaction inventory entry for hash.
func TxInv(hash chainhash.Hash) *wire.InvVect {
	return wire.NewInvVect(wire.InvTypeTx, &hash)
}

// NewTxInv builds an inv message announcing a single transaction.
func NewTxInv(hash chainhash.Hash) *wire.MsgInv {
	msg := wire.NewMsgInv()
	// 항목 하나는 MaxInvPerMsg를 넘지 않음
	_ = msg.AddInvVect(TxInv(hash))
	return msg
}

// FilterTx keeps the transaction-kind entries of list, preserving order.
// Witness, block and filtered-block entries are dropped.
func FilterTx(list []*wire.InvVect) []*wire.InvVect {
	var out []*wire.InvVect
	for _, iv := range list {
		if iv != nil && iv.Type == wire.InvTypeTx {
			out = append(out, iv)
		}
	}
	return out
}

// Hashes returns the hashes of list in order.
func Hashes(list []*wire.InvVect) []chainhash.Hash {
	out := make([]chainhash.Hash, 0, len(list))
	for _, iv := range list {
		out = append(out, iv.Hash)
	}
	return out
}

// Command returns the wire command of msg, or "unknown" for nil.
func Command(msg wire.Message) string {
	if msg == nil {
		return "unknown"
	}
	return msg.Command()
}
