package p2p

import (
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/cometbft/cometbft/libs/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahwlsqja/txrelay/types"
)

type received struct {
	peer types.PeerID
	msg  wire.Message
}

func startTransport(t *testing.T, nodeID string) (*Transport, chan received) {
	t.Helper()

	ch := make(chan received, 16)
	tr := NewTransport(DefaultConfig(nodeID, "127.0.0.1:0"), NewSeededPicker(7), log.TestingLogger())
	tr.SetMessageHandler(func(peer types.PeerID, msg wire.Message) {
		ch <- received{peer: peer, msg: msg}
	})
	require.NoError(t, tr.Start())
	t.Cleanup(func() { tr.Stop() })
	return tr, ch
}

func TestPickerDeterministic(t *testing.T) {
	peers := []types.PeerID{"a", "b", "c", "d"}

	p1, p2 := NewSeededPicker(42), NewSeededPicker(42)
	for i := 0; i < 20; i++ {
		x, ok1 := p1.Pick(peers)
		y, ok2 := p2.Pick(peers)
		require.True(t, ok1)
		require.True(t, ok2)
		assert.Equal(t, x, y)
	}

	_, ok := p1.Pick(nil)
	assert.False(t, ok)
}

func TestWithout(t *testing.T) {
	peers := []types.PeerID{"a", "b", "c"}
	assert.Equal(t, []types.PeerID{"a", "c"}, without(peers, []types.PeerID{"b"}))
	assert.Equal(t, peers, without(peers, nil))
	assert.Empty(t, without(peers, peers))
}

func TestTransportSendAndReceive(t *testing.T) {
	a, _ := startTransport(t, "node-a")
	b, bIn := startTransport(t, "node-b")

	require.NoError(t, a.Connect("node-b", b.Addr().String()))
	assert.Equal(t, []types.PeerID{"node-b"}, a.Peers())
	require.Eventually(t, func() bool { return b.PeerCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hash := chainhash.HashH([]byte("tx-1"))
	require.NoError(t, a.SendTo("node-b", types.NewTxInv(hash)))

	select {
	case got := <-bIn:
		assert.Equal(t, types.PeerID("node-a"), got.peer)
		inv, ok := got.msg.(*wire.MsgInv)
		require.True(t, ok)
		require.Len(t, inv.InvList, 1)
		assert.Equal(t, hash, inv.InvList[0].Hash)
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}
}

func TestTransportRandomPeer(t *testing.T) {
	a, _ := startTransport(t, "node-a")
	b, bIn := startTransport(t, "node-b")

	_, ok := a.SendToRandomPeer(wire.NewMsgPing(1))
	assert.False(t, ok, "no peers connected")

	require.NoError(t, a.Connect("node-b", b.Addr().String()))

	_, ok = a.SendToRandomPeer(wire.NewMsgPing(2), "node-b")
	assert.False(t, ok, "only candidate excluded")

	peer, ok := a.SendToRandomPeer(wire.NewMsgPing(3))
	require.True(t, ok)
	assert.Equal(t, types.PeerID("node-b"), peer)

	select {
	case got := <-bIn:
		ping, ok := got.msg.(*wire.MsgPing)
		require.True(t, ok)
		assert.Equal(t, uint64(3), ping.Nonce)
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}
}

func TestTransportPeerEvents(t *testing.T) {
	events := make(chan bool, 4)
	b := NewTransport(DefaultConfig("node-b", "127.0.0.1:0"), nil, nil)
	b.SetPeerHandler(func(peer types.PeerID, connected bool) {
		if peer == "node-a" {
			events <- connected
		}
	})
	require.NoError(t, b.Start())
	defer b.Stop()

	a, _ := startTransport(t, "node-a")
	require.NoError(t, a.Connect("", b.Addr().String()))

	select {
	case connected := <-events:
		assert.True(t, connected)
	case <-time.After(2 * time.Second):
		t.Fatal("no connect event")
	}

	require.NoError(t, a.Stop())

	select {
	case connected := <-events:
		assert.False(t, connected)
	case <-time.After(2 * time.Second):
		t.Fatal("no disconnect event")
	}
}

func TestTransportErrors(t *testing.T) {
	a, _ := startTransport(t, "node-a")
	b, _ := startTransport(t, "node-b")

	err := a.SendTo("ghost", wire.NewMsgPing(1))
	assert.True(t, errors.Is(err, ErrPeerNotFound))

	err = a.Connect("someone-else", b.Addr().String())
	assert.ErrorIs(t, err, ErrHandshake)

	require.NoError(t, a.Stop())
	assert.ErrorIs(t, a.Connect("node-b", b.Addr().String()), ErrTransportStopped)
}

func TestMockTransport(t *testing.T) {
	mt := NewMockTransport("p1", "p2")
	boom := errors.New("gone")
	mt.FailSendsTo("p2", boom)

	require.NoError(t, mt.SendTo("p1", wire.NewMsgPing(1)))
	assert.ErrorIs(t, mt.SendTo("p2", wire.NewMsgPing(2)), boom)

	peer, ok := mt.SendToRandomPeer(wire.NewMsgPing(3), "p2")
	require.True(t, ok)
	assert.Equal(t, types.PeerID("p1"), peer)

	sent := mt.GetSentMessages()
	require.Len(t, sent, 2)
	assert.False(t, sent[0].Random)
	assert.True(t, sent[1].Random)

	mt.ClearSentMessages()
	assert.Empty(t, mt.GetSentMessages())
}
