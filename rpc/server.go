package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/btcsuite/btcd/wire"
	"github.com/cometbft/cometbft/libs/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ahwlsqja/txrelay/relay"
	"github.com/ahwlsqja/txrelay/types"
)

// Backend is what the RPC service needs from the node.
type Backend interface {
	// SubmitTx persists a locally originated transaction and hands it to the relay.
	SubmitTx(tx *wire.MsgTx, note string) error
	Status() (*GetStatusResponse, error)
}

// Server serves txrelay.v1.RelayService.
type Server struct {
	mu sync.Mutex

	addr     string
	backend  Backend
	logger   log.Logger
	server   *grpc.Server
	listener net.Listener
}

// NewServer creates a server for backend listening on addr.
func NewServer(addr string, backend Backend, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Server{
		addr:    addr,
		backend: backend,
		logger:  logger,
	}
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.StartListener(listener)
	return nil
}

// StartListener serves on an existing listener.
func (s *Server) StartListener(listener net.Listener) {
	srv := grpc.NewServer(
		grpc.MaxRecvMsgSize(4*1024*1024), // 4MB
		grpc.MaxSendMsgSize(4*1024*1024),
	)
	RegisterRelayServiceServer(srv, &service{backend: s.backend, logger: s.logger})

	s.mu.Lock()
	s.server = srv
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error("RPC server error", "err", err)
		}
	}()
	s.logger.Info("RPC server started", "addr", listener.Addr().String())
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the server.
func (s *Server) Stop() {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	if srv != nil {
		srv.GracefulStop()
		s.logger.Info("RPC server stopped")
	}
}

// service adapts a Backend to RelayServiceServer.
type service struct {
	backend Backend
	logger  log.Logger
}

func (s *service) SubmitTx(_ context.Context, req *SubmitTxRequest) (*SubmitTxResponse, error) {
	tx, err := types.DecodeTxHex(req.RawTx)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.backend.SubmitTx(tx, req.Note); err != nil {
		return nil, toStatus(err)
	}

	txid := tx.TxHash()
	s.logger.Info("Accepted local transaction", "txid", txid)
	return &SubmitTxResponse{TxID: txid.String()}, nil
}

func (s *service) GetStatus(_ context.Context, _ *GetStatusRequest) (*GetStatusResponse, error) {
	resp, err := s.backend.Status()
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

// toStatus maps backend errors to gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, relay.ErrClosed), errors.Is(err, relay.ErrStopped):
		return status.Error(codes.Unavailable, err.Error())
	case relay.IsFatal(err):
		return status.Error(codes.Internal, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}
