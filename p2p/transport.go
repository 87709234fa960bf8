package p2p

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/cometbft/cometbft/libs/log"

	"github.com/ahwlsqja/txrelay/types"
)

var (
	ErrPeerNotFound     = errors.New("peer not found")
	ErrNotConnected     = errors.New("no connection to peer")
	ErrTransportStopped = errors.New("transport is stopped")
	ErrHandshake        = errors.New("handshake failed")
)

// MessageHandler receives every decoded inbound message. It may block; the
// connection's reader waits for it, which pushes back on the remote sender.
type MessageHandler func(peer types.PeerID, msg wire.Message)

// PeerHandler is told when a peer connects or disconnects.
type PeerHandler func(peer types.PeerID, connected bool)

// Config holds configuration for the transport layer.
type Config struct {
	NodeID          string
	Address         string
	Net             wire.BitcoinNet // 네트워크 매직
	ProtocolVersion uint32
	DialTimeout     time.Duration
	WriteTimeout    time.Duration
}

// DefaultConfig returns a transport config for nodeID listening on address.
func DefaultConfig(nodeID, address string) *Config {
	return &Config{
		NodeID:          nodeID,
		Address:         address,
		Net:             wire.TestNet3,
		ProtocolVersion: wire.ProtocolVersion,
		DialTimeout:     10 * time.Second,
		WriteTimeout:    5 * time.Second,
	}
}

// handshake is the first line each side writes on a new connection.
type handshake struct {
	NodeID string `json:"node_id"`
}

// Peer represents a remote peer in the network.
type Peer struct {
	ID      types.PeerID
	Address string

	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex // 같은 연결에 동시 쓰기 방지
}

// Transport handles peer connections and implements the relay's peer output port.
type Transport struct {
	mu sync.RWMutex

	config   *Config
	listener net.Listener

	// Connected peers (id -> Peer)
	peers map[types.PeerID]*Peer

	picker *Picker

	onMessage MessageHandler
	onPeer    PeerHandler

	logger log.Logger

	// Running state
	running bool
	wg      sync.WaitGroup
}

// NewTransport creates a new transport. A nil picker uses a clock-seeded one.
func NewTransport(config *Config, picker *Picker, logger log.Logger) *Transport {
	if picker == nil {
		picker = NewPicker(nil)
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Transport{
		config: config,
		peers:  make(map[types.PeerID]*Peer),
		picker: picker,
		logger: logger,
	}
}

// SetMessageHandler sets the callback for incoming messages. Call before Start.
func (t *Transport) SetMessageHandler(handler MessageHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMessage = handler
}

// SetPeerHandler sets the callback for connect and disconnect. Call before Start.
func (t *Transport) SetPeerHandler(handler PeerHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPeer = handler
}

// Start starts listening.
func (t *Transport) Start() error {
	listener, err := net.Listen("tcp", t.config.Address)
	if err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}

	t.mu.Lock()
	t.listener = listener
	t.running = true
	t.mu.Unlock()

	t.logger.Info("Listening", "addr", listener.Addr().String())

	t.wg.Add(1)
	go t.acceptConnections()

	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (t *Transport) Addr() net.Addr {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Stop closes the listener and every peer connection, then waits for readers to exit.
func (t *Transport) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	if t.listener != nil {
		t.listener.Close()
	}
	for _, peer := range t.peers {
		peer.conn.Close()
	}
	t.mu.Unlock()

	t.wg.Wait()
	t.logger.Info("Stopped")
	return nil
}

func (t *Transport) isRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// acceptConnections accepts incoming connections.
func (t *Transport) acceptConnections() {
	defer t.wg.Done()
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if !t.isRunning() {
				return
			}
			t.logger.Error("Accept error", "err", err)
			continue
		}

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			peer, err := t.acceptHandshake(conn)
			if err != nil {
				t.logger.Debug("Inbound handshake failed", "remote", conn.RemoteAddr().String(), "err", err)
				conn.Close()
				return
			}
			if !t.register(peer) {
				conn.Close()
				return
			}
			t.readLoop(peer)
		}()
	}
}

// acceptHandshake reads the dialer's hello, then answers with ours.
func (t *Transport) acceptHandshake(conn net.Conn) (*Peer, error) {
	reader := bufio.NewReader(conn)
	remote, err := readHandshake(conn, reader, t.config.DialTimeout)
	if err != nil {
		return nil, err
	}
	if err := t.writeHandshake(conn); err != nil {
		return nil, err
	}
	return &Peer{
		ID:      types.PeerID(remote.NodeID),
		Address: conn.RemoteAddr().String(),
		conn:    conn,
		reader:  reader,
	}, nil
}

// Connect dials a remote peer. An empty peerID accepts whatever id the remote announces.
func (t *Transport) Connect(peerID types.PeerID, address string) error {
	if !t.isRunning() {
		return ErrTransportStopped
	}

	conn, err := net.DialTimeout("tcp", address, t.config.DialTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	if err := t.writeHandshake(conn); err != nil {
		conn.Close()
		return err
	}
	reader := bufio.NewReader(conn)
	remote, err := readHandshake(conn, reader, t.config.DialTimeout)
	if err != nil {
		conn.Close()
		return err
	}
	if peerID != "" && types.PeerID(remote.NodeID) != peerID {
		conn.Close()
		return fmt.Errorf("%w: expected %s, remote says %s", ErrHandshake, peerID, remote.NodeID)
	}

	peer := &Peer{
		ID:      types.PeerID(remote.NodeID),
		Address: address,
		conn:    conn,
		reader:  reader,
	}

	if !t.register(peer) {
		conn.Close()
		return ErrTransportStopped
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.readLoop(peer)
	}()

	return nil
}

func (t *Transport) writeHandshake(conn net.Conn) error {
	data, err := json.Marshal(handshake{NodeID: t.config.NodeID})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	conn.SetWriteDeadline(time.Now().Add(t.config.DialTimeout))
	defer conn.SetWriteDeadline(time.Time{})
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	return nil
}

func readHandshake(conn net.Conn, reader *bufio.Reader, timeout time.Duration) (*handshake, error) {
	conn.SetReadDeadline(time.Now().Add(timeout))
	defer conn.SetReadDeadline(time.Time{})

	line, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	var hs handshake
	if err := json.Unmarshal(line, &hs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if hs.NodeID == "" {
		return nil, fmt.Errorf("%w: empty node id", ErrHandshake)
	}
	return &hs, nil
}

// register adds peer to the peer table and fires the connect callback.
// It reports false when the transport is already stopped.
func (t *Transport) register(peer *Peer) bool {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return false
	}
	if old, ok := t.peers[peer.ID]; ok {
		// 같은 ID로 재접속하면 이전 연결을 끊음
		old.conn.Close()
	}
	t.peers[peer.ID] = peer
	onPeer := t.onPeer
	t.mu.Unlock()

	t.logger.Info("Connected to peer", "peer", peer.ID, "addr", peer.Address)
	if onPeer != nil {
		onPeer(peer.ID, true)
	}
	return true
}

// readLoop reads messages from a registered peer until the connection drops.
func (t *Transport) readLoop(peer *Peer) {
	t.mu.RLock()
	onMessage := t.onMessage
	t.mu.RUnlock()

	for {
		msg, _, err := wire.ReadMessage(peer.reader, t.config.ProtocolVersion, t.config.Net)
		if err != nil {
			if !isConnError(err) {
				// 알 수 없는 커맨드나 잘못된 페이로드는 건너뜀
				t.logger.Debug("Dropping malformed message", "peer", peer.ID, "err", err)
				continue
			}
			if t.isRunning() {
				t.logger.Debug("Read error", "peer", peer.ID, "err", err)
			}
			break
		}
		if onMessage != nil {
			onMessage(peer.ID, msg)
		}
	}

	t.mu.Lock()
	current, ok := t.peers[peer.ID]
	removed := ok && current == peer
	if removed {
		delete(t.peers, peer.ID)
	}
	onPeer := t.onPeer
	t.mu.Unlock()
	peer.conn.Close()

	t.logger.Info("Disconnected from peer", "peer", peer.ID)
	if removed && onPeer != nil {
		onPeer(peer.ID, false)
	}
}

// isConnError reports whether err came from the connection rather than from decoding.
// wire.ReadMessage discards the payload of messages it cannot decode, so the stream
// stays aligned after a decode error.
func isConnError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// SendTo sends msg to one peer. Failures are returned and not retried.
func (t *Transport) SendTo(peerID types.PeerID, msg wire.Message) error {
	t.mu.RLock()
	peer, exists := t.peers[peerID]
	t.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrPeerNotFound, peerID)
	}
	return t.sendToPeer(peer, msg)
}

// SendToRandomPeer sends msg to one peer chosen by the picker among connected peers
// not listed in exclude. It reports the chosen peer, or false if none was available.
// A failed write is logged; the peer still counts as chosen.
func (t *Transport) SendToRandomPeer(msg wire.Message, exclude ...types.PeerID) (types.PeerID, bool) {
	peerID, ok := t.picker.Pick(without(t.Peers(), exclude))
	if !ok {
		return "", false
	}
	if err := t.SendTo(peerID, msg); err != nil {
		t.logger.Debug("Random send failed", "peer", peerID, "cmd", msg.Command(), "err", err)
	}
	return peerID, true
}

// sendToPeer writes one framed message under the peer's write lock.
func (t *Transport) sendToPeer(peer *Peer, msg wire.Message) error {
	peer.mu.Lock()
	defer peer.mu.Unlock()

	if peer.conn == nil {
		return fmt.Errorf("%w: %s", ErrNotConnected, peer.ID)
	}

	if t.config.WriteTimeout > 0 {
		peer.conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
		defer peer.conn.SetWriteDeadline(time.Time{})
	}
	if err := wire.WriteMessage(peer.conn, msg, t.config.ProtocolVersion, t.config.Net); err != nil {
		return fmt.Errorf("failed to write %s to %s: %w", msg.Command(), peer.ID, err)
	}
	return nil
}

// Peers returns the connected peer ids, sorted.
func (t *Transport) Peers() []types.PeerID {
	t.mu.RLock()
	peers := make([]types.PeerID, 0, len(t.peers))
	for id := range t.peers {
		peers = append(peers, id)
	}
	t.mu.RUnlock()

	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

// PeerCount returns the number of connected peers.
func (t *Transport) PeerCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}
