package node

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/cometbft/cometbft/libs/log"
	"github.com/cometbft/cometbft/libs/service"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ahwlsqja/txrelay/metrics"
	"github.com/ahwlsqja/txrelay/p2p"
	"github.com/ahwlsqja/txrelay/relay"
	"github.com/ahwlsqja/txrelay/rpc"
	"github.com/ahwlsqja/txrelay/store"
	"github.com/ahwlsqja/txrelay/types"
)

// Node represents a transaction relay node.
type Node struct {
	service.BaseService

	config    *Config
	store     *store.Shared    // 미확인 tx 저장소 (접근 락 포함)
	transport *p2p.Transport   // P2P 통신
	relay     *relay.Relay     // 트랜잭션 릴레이
	rpc       *rpc.Server      // 로컬 제출 API
	metrics   *metrics.Metrics // nil이면 비활성

	registry      *prometheus.Registry
	metricsServer *metrics.Server

	fatal chan error
}

// NewNode builds a node from config. The store is opened and the relay performs its
// bootstrap read here, so a broken store is reported before anything listens.
func NewNode(config *Config, logger log.Logger) (*Node, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	net, err := config.BitcoinNet()
	if err != nil {
		return nil, err
	}

	backend, err := openBackend(config)
	if err != nil {
		return nil, err
	}
	shared := store.NewShared(backend)

	n := &Node{
		config: config,
		store:  shared,
		fatal:  make(chan error, 1),
	}

	// Create metrics
	relayOpts := []relay.Option{relay.WithLogger(logger.With("module", "relay"))}
	if config.MetricsEnabled {
		n.registry = prometheus.NewRegistry()
		n.metrics = metrics.NewMetrics("txrelay", n.registry)
		n.metricsServer = metrics.NewServer(config.MetricsAddr, n.registry)
		relayOpts = append(relayOpts, relay.WithMetrics(n.metrics))
	}

	// Create transport
	p2pConfig := p2p.DefaultConfig(config.NodeID, config.ListenAddr)
	p2pConfig.Net = net
	var picker *p2p.Picker
	if config.RNGSeed != 0 {
		picker = p2p.NewSeededPicker(config.RNGSeed)
	}
	n.transport = p2p.NewTransport(p2pConfig, picker, logger.With("module", "p2p"))

	// Create relay (bootstrap read)
	relayConfig := relay.DefaultConfig()
	relayConfig.BackPressure = config.BackPressure
	r, err := relay.New(relayConfig, shared, n.transport, relayOpts...)
	if err != nil {
		shared.Close()
		return nil, fmt.Errorf("failed to create relay: %w", err)
	}
	n.relay = r

	// 수신 메시지는 릴레이 큐로. 큐가 가득 차면 소켓 읽기가 멈춤
	n.transport.SetMessageHandler(func(peer types.PeerID, msg wire.Message) {
		if err := n.relay.Send(relay.Incoming{Peer: peer, Msg: msg}); err != nil {
			n.Logger.Debug("Dropped inbound message", "peer", peer, "cmd", msg.Command(), "err", err)
		}
	})
	n.transport.SetPeerHandler(func(peer types.PeerID, connected bool) {
		var ev relay.Event = relay.PeerDisconnected{Peer: peer}
		if connected {
			ev = relay.PeerConnected{Peer: peer}
		}
		if err := n.relay.Send(ev); err != nil {
			n.Logger.Debug("Dropped peer event", "peer", peer, "err", err)
		}
	})

	if config.RPCAddr != "" {
		n.rpc = rpc.NewServer(config.RPCAddr, n, logger.With("module", "rpc"))
	}

	n.BaseService = *service.NewBaseService(logger.With("module", "node"), "Node", n)
	return n, nil
}

func openBackend(config *Config) (store.Backend, error) {
	switch config.StoreBackend {
	case StoreMemory:
		return store.NewMemoryStore(), nil
	case StoreLevelDB:
		ls, err := store.OpenLevelStore(filepath.Join(config.DataDir, "unconfirmed"))
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		return ls, nil
	default:
		return nil, ErrUnknownStoreBackend
	}
}

// OnStart implements service.Service.
func (n *Node) OnStart() error {
	n.Logger.Info("Starting relay node", "node_id", n.config.NodeID, "network", n.config.Network)

	go n.runRelay()

	// Start transport
	if err := n.transport.Start(); err != nil {
		n.shutdownRelay()
		return fmt.Errorf("failed to start transport: %w", err)
	}
	n.Logger.Info("Transport started", "addr", n.transport.Addr().String())

	// Connect to peers
	peers, _ := ParsePeers(n.config.Peers)
	for _, peer := range peers {
		// Skip self
		if peer.ID == n.config.NodeID {
			continue
		}
		if err := n.transport.Connect(types.PeerID(peer.ID), peer.Address); err != nil {
			n.Logger.Error("Failed to connect to peer", "peer", peer.ID, "addr", peer.Address, "err", err)
		}
	}

	if n.rpc != nil {
		if err := n.rpc.Start(); err != nil {
			n.transport.Stop()
			n.shutdownRelay()
			return err
		}
	}

	// Start metrics server if enabled
	if n.metricsServer != nil {
		errCh := n.metricsServer.Start()
		go func() {
			for err := range errCh {
				n.Logger.Error("Metrics server error", "err", err)
			}
		}()
		n.Logger.Info("Metrics server started", "addr", n.metricsServer.Addr())
	}

	n.Logger.Info("Relay node started", "peers", n.transport.PeerCount())
	return nil
}

// OnStop implements service.Service.
func (n *Node) OnStop() {
	n.Logger.Info("Stopping relay node", "node_id", n.config.NodeID)

	// 전송 계층을 먼저 멈춰 새 이벤트 유입을 막음
	if err := n.transport.Stop(); err != nil {
		n.Logger.Error("Failed to stop transport", "err", err)
	}
	if n.rpc != nil {
		n.rpc.Stop()
	}
	n.shutdownRelay()

	if n.metricsServer != nil {
		n.metricsServer.Stop()
	}
	n.Logger.Info("Relay node stopped")
}

func (n *Node) runRelay() {
	if err := n.relay.Run(); err != nil {
		n.fatal <- err
	}
}

// shutdownRelay closes the relay inbox, waits for the loop and closes the store.
func (n *Node) shutdownRelay() {
	n.relay.Close()
	<-n.relay.Done()
	if err := n.store.Close(); err != nil {
		n.Logger.Error("Failed to close store", "err", err)
	}
}

// Fatal delivers the relay's fatal error, if it ever stops on one.
func (n *Node) Fatal() <-chan error {
	return n.fatal
}

// SubmitTx stores a locally created transaction and queues it for announcement.
func (n *Node) SubmitTx(tx *wire.MsgTx, note string) error {
	meta := store.Metadata{
		Received: time.Now().UTC(),
		Source:   "rpc",
		Note:     note,
	}
	if err := n.store.PutUnconfirmed(tx, meta); err != nil {
		return fmt.Errorf("failed to store tx: %w", err)
	}
	if err := n.relay.Send(relay.Outgoing{Msg: tx}); err != nil {
		return fmt.Errorf("failed to queue tx: %w", err)
	}
	n.Logger.Debug("Submitted local transaction", "txid", tx.TxHash())
	return nil
}

// Status implements rpc.Backend.
func (n *Node) Status() (*rpc.GetStatusResponse, error) {
	count, err := n.store.Count()
	if err != nil {
		return nil, err
	}
	return &rpc.GetStatusResponse{
		NodeID:      n.config.NodeID,
		PeerCount:   n.transport.PeerCount(),
		CacheSize:   n.relay.CacheLen(),
		Unconfirmed: count,
	}, nil
}

// Addr returns the P2P listen address once started.
func (n *Node) Addr() string {
	if addr := n.transport.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

// RPCAddr returns the RPC listen address once started.
func (n *Node) RPCAddr() string {
	if n.rpc == nil {
		return ""
	}
	if addr := n.rpc.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}
