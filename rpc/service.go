package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "txrelay.v1.RelayService"

// SubmitTxRequest carries a hex encoded raw transaction.
type SubmitTxRequest struct {
	RawTx string `json:"raw_tx"`
	Note  string `json:"note,omitempty"`
}

type SubmitTxResponse struct {
	TxID string `json:"txid"`
}

type GetStatusRequest struct{}

// GetStatusResponse is a snapshot of the node.
type GetStatusResponse struct {
	NodeID      string `json:"node_id"`
	PeerCount   int    `json:"peer_count"`
	CacheSize   int    `json:"cache_size"`
	Unconfirmed int    `json:"unconfirmed"`
}

// RelayServiceServer is the server API of txrelay.v1.RelayService.
type RelayServiceServer interface {
	SubmitTx(context.Context, *SubmitTxRequest) (*SubmitTxResponse, error)
	GetStatus(context.Context, *GetStatusRequest) (*GetStatusResponse, error)
}

// RegisterRelayServiceServer registers srv on s.
func RegisterRelayServiceServer(s grpc.ServiceRegistrar, srv RelayServiceServer) {
	s.RegisterService(&relayServiceDesc, srv)
}

func submitTxHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SubmitTxRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RelayServiceServer).SubmitTx(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + serviceName + "/SubmitTx",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RelayServiceServer).SubmitTx(ctx, req.(*SubmitTxRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RelayServiceServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + serviceName + "/GetStatus",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RelayServiceServer).GetStatus(ctx, req.(*GetStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// relayServiceDesc는 protoc 없이 직접 작성한 서비스 정의
var relayServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*RelayServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitTx", Handler: submitTxHandler},
		{MethodName: "GetStatus", Handler: getStatusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "txrelay/v1/relay.proto",
}
