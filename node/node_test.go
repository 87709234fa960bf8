package node

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/cometbft/cometbft/libs/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahwlsqja/txrelay/rpc"
	"github.com/ahwlsqja/txrelay/types"
)

func testNodeConfig(id string, peers ...string) *Config {
	cfg := DefaultConfig()
	cfg.NodeID = id
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.RPCAddr = ""
	cfg.MetricsEnabled = false
	cfg.StoreBackend = StoreMemory
	cfg.Network = "regtest"
	cfg.RNGSeed = 1
	cfg.Peers = peers
	return cfg
}

func startNode(t *testing.T, cfg *Config) *Node {
	t.Helper()
	n, err := NewNode(cfg, log.TestingLogger())
	require.NoError(t, err)
	require.NoError(t, n.Start())
	t.Cleanup(func() {
		if n.IsRunning() {
			require.NoError(t, n.Stop())
		}
	})
	return n
}

func nodeTx(n uint32) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{0x11}, n), []byte{0x00}, nil))
	tx.AddTxOut(wire.NewTxOut(2500, []byte{0x51}))
	return tx
}

func TestNewNodeRejectsInvalidConfig(t *testing.T) {
	_, err := NewNode(DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrEmptyNodeID)
}

func TestNodeLevelDBStore(t *testing.T) {
	cfg := testNodeConfig("solo")
	cfg.StoreBackend = StoreLevelDB
	cfg.DataDir = t.TempDir()

	n := startNode(t, cfg)
	require.NoError(t, n.SubmitTx(nodeTx(1), "first"))

	status, err := n.Status()
	require.NoError(t, err)
	assert.Equal(t, "solo", status.NodeID)
	assert.Equal(t, 1, status.Unconfirmed)
	assert.Equal(t, 0, status.PeerCount)
	assert.Equal(t, 0, status.CacheSize, "local transactions are not cached")

	require.NoError(t, n.Stop())

	// 재시작해도 미확인 tx가 남아 있음
	n2, err := NewNode(cfg, log.TestingLogger())
	require.NoError(t, err)
	require.NoError(t, n2.Start())
	defer n2.Stop()

	status, err = n2.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, status.Unconfirmed)
}

func TestLocalTransactionReachesPeer(t *testing.T) {
	a := startNode(t, testNodeConfig("node-a"))
	b := startNode(t, testNodeConfig("node-b", "node-a@"+a.Addr()))

	require.Eventually(t, func() bool {
		return a.transport.PeerCount() == 1 && b.transport.PeerCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	// b: inv → a: getdata → b: tx (저장소에서) → a 캐시
	tx := nodeTx(7)
	require.NoError(t, b.SubmitTx(tx, "hello"))

	require.Eventually(t, func() bool {
		return a.relay.CacheLen() == 1
	}, 5*time.Second, 10*time.Millisecond)

	status, err := a.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, status.CacheSize)
	assert.Equal(t, 0, status.Unconfirmed, "relayed transactions are not persisted")
}

func TestNodeServesRPC(t *testing.T) {
	cfg := testNodeConfig("rpc-node")
	cfg.RPCAddr = "127.0.0.1:0"
	n := startNode(t, cfg)

	client, err := rpc.NewClient(n.RPCAddr())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx := nodeTx(3)
	raw, err := types.EncodeTxHex(tx)
	require.NoError(t, err)

	txid, err := client.SubmitTx(ctx, raw, "via rpc")
	require.NoError(t, err)
	assert.Equal(t, tx.TxHash().String(), txid)

	status, err := client.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rpc-node", status.NodeID)
	assert.Equal(t, 1, status.Unconfirmed)
}

func TestNodeStopClosesRelay(t *testing.T) {
	n := startNode(t, testNodeConfig("stopper"))
	require.NoError(t, n.Stop())

	select {
	case <-n.relay.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("relay loop still running after Stop")
	}
	assert.Error(t, n.SubmitTx(nodeTx(1), ""))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "info")
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "k=v")

	_, err = NewLogger(&buf, "loud")
	assert.Error(t, err)
}
