package relay

import (
	"github.com/btcsuite/btcd/wire"

	"github.com/ahwlsqja/txrelay/types"
)

// Event is one item of the relay inbox.
type Event interface {
	event()
}

// Incoming is a message received from a peer.
type Incoming struct {
	Peer types.PeerID
	Msg  wire.Message
}

// Outgoing is a message originated by the local node, such as its own transaction.
type Outgoing struct {
	Msg wire.Message
}

// PeerConnected and PeerDisconnected come from the transport. The relay ignores them.
type PeerConnected struct {
	Peer types.PeerID
}

type PeerDisconnected struct {
	Peer types.PeerID
}

func (Incoming) event()         {}
func (Outgoing) event()         {}
func (PeerConnected) event()    {}
func (PeerDisconnected) event() {}
