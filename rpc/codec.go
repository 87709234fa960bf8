// Package rpc provides the local gRPC API used to submit transactions to the relay
// and to query node status.
package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content subtype of the JSON codec.
const codecName = "json"

func init() {
	// JSON 코덱 등록 - 생성된 proto 메시지 없이 직접 정의한 struct를 주고받음
	encoding.RegisterCodec(JSONCodec{})
}

// JSONCodec은 gRPC 메시지를 JSON으로 직렬화하는 코덱
type JSONCodec struct{}

// Name returns the content subtype the codec is registered under.
func (JSONCodec) Name() string {
	return codecName
}

// Marshal serializes the message to JSON
func (JSONCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json marshal error: %w", err)
	}
	return data, nil
}

// Unmarshal deserializes the message from JSON
func (JSONCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json unmarshal error: %w", err)
	}
	return nil
}
