package p2p

import (
	"sort"
	"sync"

	"github.com/btcsuite/btcd/wire"

	"github.com/ahwlsqja/txrelay/types"
)

// SentMessage is one message recorded by MockTransport.
type SentMessage struct {
	Peer   types.PeerID
	Msg    wire.Message
	Random bool // SendToRandomPeer로 보낸 메시지
}

// MockTransport is a mock peer output port for testing.
type MockTransport struct {
	mu       sync.RWMutex
	peers    []types.PeerID
	picker   *Picker
	failures map[types.PeerID]error
	sent     []SentMessage
}

// NewMockTransport creates a mock with the given connected peers and a seeded picker.
func NewMockTransport(peers ...types.PeerID) *MockTransport {
	mt := &MockTransport{
		picker:   NewSeededPicker(1),
		failures: make(map[types.PeerID]error),
	}
	mt.SetPeers(peers...)
	return mt
}

// SetPeers replaces the connected peer list.
func (mt *MockTransport) SetPeers(peers ...types.PeerID) {
	sorted := append([]types.PeerID(nil), peers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.peers = sorted
}

// FailSendsTo makes every send to peer return err. A nil err clears the failure.
func (mt *MockTransport) FailSendsTo(peer types.PeerID, err error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if err == nil {
		delete(mt.failures, peer)
		return
	}
	mt.failures[peer] = err
}

// SendTo records the message, or returns the configured failure.
func (mt *MockTransport) SendTo(peer types.PeerID, msg wire.Message) error {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if err := mt.failures[peer]; err != nil {
		return err
	}
	mt.sent = append(mt.sent, SentMessage{Peer: peer, Msg: msg})
	return nil
}

// SendToRandomPeer picks a peer outside exclude and records the message.
func (mt *MockTransport) SendToRandomPeer(msg wire.Message, exclude ...types.PeerID) (types.PeerID, bool) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	peer, ok := mt.picker.Pick(without(mt.peers, exclude))
	if !ok {
		return "", false
	}
	if mt.failures[peer] == nil {
		mt.sent = append(mt.sent, SentMessage{Peer: peer, Msg: msg, Random: true})
	}
	return peer, true
}

// Peers returns the connected peers.
func (mt *MockTransport) Peers() []types.PeerID {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return append([]types.PeerID(nil), mt.peers...)
}

// PeerCount returns the number of connected peers.
func (mt *MockTransport) PeerCount() int {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return len(mt.peers)
}

// GetSentMessages returns all recorded messages.
func (mt *MockTransport) GetSentMessages() []SentMessage {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return append([]SentMessage(nil), mt.sent...)
}

// ClearSentMessages clears the recorded messages.
func (mt *MockTransport) ClearSentMessages() {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.sent = nil
}
