// Package relay implements the transaction relay actor of a lightweight node.
package relay

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/cometbft/cometbft/libs/log"

	"github.com/ahwlsqja/txrelay/metrics"
	"github.com/ahwlsqja/txrelay/store"
	"github.com/ahwlsqja/txrelay/types"
)

/*
================================================================================
                              TRANSACTION RELAY
================================================================================

릴레이는 하나의 고루틴에서 수신 큐의 이벤트를 순서대로 처리함.
캐시와 마지막 공지 시각은 이 고루틴만 만지므로 락이 필요 없음.

   Transport / RPC                Relay loop                    Peers
        │                             │                           │
        │  Send(Incoming / Outgoing)  │                           │
        │────────────────────────────►│ (큐가 가득 차면 블록)      │
        │                             │                           │
        │                             │  getdata → tx (캐시/저장소) │
        │                             │──────────────────────────►│
        │                             │  inv → getdata (미보유분)  │
        │                             │──────────────────────────►│
        │                             │  tx(신규) → inv (랜덤 1명) │
        │                             │──────────────────────────►│
        │                             │                           │
        │                             │  60초마다: 캐시에 없는     │
        │                             │  미확인 tx 재공지          │
        │                             │──────────────────────────►│

================================================================================
*/

// UnconfirmedReader is the read side of the unconfirmed transaction store.
// Implementations take and release their own lock inside the call.
type UnconfirmedReader interface {
	ReadUnconfirmed() ([]store.Unconfirmed, error)
}

// PeerOutput is the outbound port of the relay.
type PeerOutput interface {
	// SendTo sends msg to one peer. Errors are not retried.
	SendTo(peer types.PeerID, msg wire.Message) error

	// SendToRandomPeer sends msg to one pseudo-random connected peer not in exclude
	// and reports which peer was chosen, or false if none was available.
	SendToRandomPeer(msg wire.Message, exclude ...types.PeerID) (types.PeerID, bool)
}

// Metrics is the set of counters the relay reports.
type Metrics interface {
	IncrementMessagesReceived(command string)
	IncrementMessagesSent(command string)
	IncrementSendFailures(command string)
	AddCacheHits(n int)
	AddCacheMisses(n int)
	IncrementCacheEvictions()
	SetCacheEntries(n int)
	IncrementAnnouncements(reason string)
	RecordSweep(d time.Duration)
	IncrementStoreReads(op string)
}

// Option configures a Relay.
type Option func(*Relay)

// WithClock sets the time source of the periodic announcer.
func WithClock(c clock.Clock) Option {
	return func(r *Relay) { r.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// Relay is the transaction relay actor.
type Relay struct {
	config *Config

	store UnconfirmedReader
	peers PeerOutput

	// 루프 고루틴 전용 상태
	cache     *Cache
	announcer *announcer

	clock   clock.Clock
	logger  log.Logger
	metrics Metrics

	// 수신 큐
	inbox   chan Event
	closeMu sync.RWMutex
	closed  bool

	started      atomic.Bool
	cacheEntries atomic.Int64
	done         chan struct{}
	err          error
}

// New creates a relay. It reads the whole unconfirmed set once to make sure the store
// is usable; the cache still starts empty. The announcement timer starts now.
//
// A failed bootstrap read returns a *StoreError.
func New(config *Config, unconfirmed UnconfirmedReader, peers PeerOutput, opts ...Option) (*Relay, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid relay config: %w", err)
	}

	r := &Relay{
		config:  config,
		store:   unconfirmed,
		peers:   peers,
		clock:   clock.New(),
		logger:  log.NewNopLogger(),
		metrics: metrics.NullMetrics{},
		inbox:   make(chan Event, config.BackPressure),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	cache, err := NewCache(config.CacheSize, func(chainhash.Hash) {
		r.metrics.IncrementCacheEvictions()
	})
	if err != nil {
		return nil, err
	}
	r.cache = cache

	records, err := r.readUnconfirmed(opBootstrap)
	if err != nil {
		return nil, err
	}
	own := make(map[chainhash.Hash]struct{}, len(records))
	for _, rec := range records {
		own[rec.Hash()] = struct{}{}
	}
	r.logger.Info("Relay bootstrapped", "unconfirmed", len(own))

	r.announcer = newAnnouncer(config.AnnounceInterval, r.clock.Now())
	return r, nil
}

// Send enqueues ev. It blocks while the inbox is full; the relay never drops events.
// It returns ErrClosed after Close and ErrStopped once the loop has exited.
func (r *Relay) Send(ev Event) error {
	r.closeMu.RLock()
	defer r.closeMu.RUnlock()

	if r.closed {
		return ErrClosed
	}
	select {
	case <-r.done:
		return ErrStopped
	default:
	}

	select {
	case r.inbox <- ev:
		return nil
	case <-r.done:
		return ErrStopped
	}
}

// Close closes the inbox. Run drains what is queued and returns nil.
// Close waits for senders blocked in Send, so the loop must be running.
func (r *Relay) Close() {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.inbox)
	}
}

// Done is closed when Run returns.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

// Err returns the error Run returned. Only meaningful after Done is closed.
func (r *Relay) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// CacheLen returns the number of cached transactions. Safe from any goroutine.
func (r *Relay) CacheLen() int {
	return int(r.cacheEntries.Load())
}

// Run processes events until the inbox is closed (nil) or a store read fails
// (*StoreError). It must be called once.
func (r *Relay) Run() error {
	if !r.started.CompareAndSwap(false, true) {
		return fmt.Errorf("relay: Run called twice")
	}
	defer close(r.done)

	r.logger.Info("Relay started", "cache_size", r.config.CacheSize, "announce_interval", r.config.AnnounceInterval)
	for ev := range r.inbox {
		if err := r.process(ev); err != nil {
			r.err = err
			r.logger.Error("Relay stopped", "err", err)
			return err
		}
	}
	r.logger.Info("Relay inbox closed")
	return nil
}

// process handles one event to completion, then runs the periodic check.
func (r *Relay) process(ev Event) error {
	if err := r.handle(ev); err != nil {
		return err
	}
	return r.maybeAnnounce()
}

func (r *Relay) handle(ev Event) error {
	switch ev := ev.(type) {
	case Incoming:
		r.metrics.IncrementMessagesReceived(types.Command(ev.Msg))
		switch msg := ev.Msg.(type) {
		case *wire.MsgGetData:
			return r.handleGetData(ev.Peer, msg)
		case *wire.MsgInv:
			r.handleInv(ev.Peer, msg)
		case *wire.MsgTx:
			r.handleTx(ev.Peer, msg)
		}
	case Outgoing:
		if tx, ok := ev.Msg.(*wire.MsgTx); ok {
			r.handleLocalTx(tx)
		}
	}
	// 그 밖의 이벤트는 무시
	return nil
}

// handleGetData serves requested transactions, from the cache first, then from the
// store in a single read. Unknown hashes get no answer.
func (r *Relay) handleGetData(peer types.PeerID, msg *wire.MsgGetData) error {
	wanted := types.FilterTx(msg.InvList)
	if len(wanted) == 0 {
		return nil
	}

	var missing []chainhash.Hash
	for _, iv := range wanted {
		if tx, ok := r.cache.Get(iv.Hash); ok {
			r.send(peer, tx)
			continue
		}
		missing = append(missing, iv.Hash)
	}
	r.metrics.AddCacheHits(len(wanted) - len(missing))
	r.metrics.AddCacheMisses(len(missing))

	if len(missing) == 0 {
		return nil
	}

	records, err := r.readUnconfirmed(opGetData)
	if err != nil {
		return err
	}
	need := make(map[chainhash.Hash]struct{}, len(missing))
	for _, h := range missing {
		need[h] = struct{}{}
	}
	for _, rec := range records {
		hash := rec.Hash()
		if _, ok := need[hash]; !ok {
			continue
		}
		r.send(peer, rec.Tx)
		r.logger.Debug("Sent our transaction at request of peer", "txid", hash, "peer", peer)
	}
	return nil
}

// handleInv asks the announcing peer for every transaction we have not cached.
func (r *Relay) handleInv(peer types.PeerID, msg *wire.MsgInv) {
	var want []*wire.InvVect
	for _, iv := range types.FilterTx(msg.InvList) {
		if !r.cache.Contains(iv.Hash) {
			want = append(want, wire.NewInvVect(iv.Type, &iv.Hash))
		}
	}
	if len(want) == 0 {
		return
	}
	r.send(peer, &wire.MsgGetData{InvList: want})
}

// handleTx caches a transaction from the network and, the first time it is seen,
// announces it to one random peer other than the sender.
func (r *Relay) handleTx(peer types.PeerID, tx *wire.MsgTx) {
	hash := tx.TxHash()
	if !r.cache.Insert(hash, tx) {
		r.logger.Debug("Duplicate transaction", "txid", hash, "peer", peer)
		return
	}
	r.cacheEntries.Store(int64(r.cache.Len()))
	r.metrics.SetCacheEntries(r.cache.Len())

	r.announce(hash, metrics.ReasonRelay, peer)
}

// handleLocalTx announces a transaction created by this node, whatever the cache says.
func (r *Relay) handleLocalTx(tx *wire.MsgTx) {
	r.announce(tx.TxHash(), metrics.ReasonLocal)
}

// announce sends a single-entry inv for hash to one random peer.
func (r *Relay) announce(hash chainhash.Hash, reason string, exclude ...types.PeerID) (types.PeerID, bool) {
	peer, ok := r.peers.SendToRandomPeer(types.NewTxInv(hash), exclude...)
	if !ok {
		r.logger.Debug("No peer to announce to", "txid", hash, "reason", reason)
		return "", false
	}
	r.metrics.IncrementMessagesSent(wire.CmdInv)
	r.metrics.IncrementAnnouncements(reason)
	r.logger.Debug("Announced transaction", "txid", hash, "peer", peer, "reason", reason)
	return peer, true
}

// send is fire-and-forget: a failure is logged and counted, never retried.
func (r *Relay) send(peer types.PeerID, msg wire.Message) {
	cmd := msg.Command()
	if err := r.peers.SendTo(peer, msg); err != nil {
		r.metrics.IncrementSendFailures(cmd)
		r.logger.Debug("Send failed", "peer", peer, "cmd", cmd, "err", err)
		return
	}
	r.metrics.IncrementMessagesSent(cmd)
}

func (r *Relay) readUnconfirmed(op string) ([]store.Unconfirmed, error) {
	r.metrics.IncrementStoreReads(op)
	records, err := r.store.ReadUnconfirmed()
	if err != nil {
		return nil, &StoreError{Op: op, Err: err}
	}
	return records, nil
}
