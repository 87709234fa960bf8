package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client talks to a running node's RelayService.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient creates a client for target. Extra options are appended to the defaults
// (insecure credentials, JSON content subtype).
func NewClient(target string, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// SubmitTx submits a hex encoded raw transaction and returns its txid.
func (c *Client) SubmitTx(ctx context.Context, rawTx, note string) (string, error) {
	resp := new(SubmitTxResponse)
	err := c.conn.Invoke(ctx, "/"+serviceName+"/SubmitTx", &SubmitTxRequest{RawTx: rawTx, Note: note}, resp)
	if err != nil {
		return "", err
	}
	return resp.TxID, nil
}

// GetStatus returns the node status.
func (c *Client) GetStatus(ctx context.Context) (*GetStatusResponse, error) {
	resp := new(GetStatusResponse)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/GetStatus", &GetStatusRequest{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
