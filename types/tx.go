package types

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

// SerializeTx encodes tx in the wire format used for hashing and storage.
func SerializeTx(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(tx.SerializeSize())
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize tx: %w", err)
	}
	return buf.Bytes(), nil
}

// DeserializeTx decodes a transaction from its wire encoding.
func DeserializeTx(raw []byte) (*wire.MsgTx, error) {
	tx := new(wire.MsgTx)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to deserialize tx: %w", err)
	}
	return tx, nil
}

// DecodeTxHex decodes a hex encoded raw transaction.
func DecodeTxHex(s string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid tx hex: %w", err)
	}
	return DeserializeTx(raw)
}

// EncodeTxHex returns the hex encoding of tx.
func EncodeTxHex(tx *wire.MsgTx) (string, error) {
	raw, err := SerializeTx(tx)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
