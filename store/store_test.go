package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTx(value int64) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	prev := wire.NewOutPoint(&chainhash.Hash{0x01}, 0)
	tx.AddTxIn(wire.NewTxIn(prev, []byte{0x00}, nil))
	tx.AddTxOut(wire.NewTxOut(value, []byte{0x51}))
	return tx
}

// backendSuite runs the same checks against every Backend.
func backendSuite(t *testing.T, backend Backend) {
	s := NewShared(backend)

	a, b := testTx(1), testTx(2)

	// 저장
	require.NoError(t, s.PutUnconfirmed(a, Metadata{Received: time.Unix(100, 0).UTC(), Source: "local"}))
	require.NoError(t, s.PutUnconfirmed(b, Metadata{Received: time.Unix(200, 0).UTC(), Source: "rpc", Note: "second"}))

	t.Run("ReadInOrder", func(t *testing.T) {
		records, err := s.ReadUnconfirmed()
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, a.TxHash(), records[0].Hash())
		assert.Equal(t, b.TxHash(), records[1].Hash())
		assert.Equal(t, "second", records[1].Meta.Note)
		assert.True(t, records[0].Meta.Received.Equal(time.Unix(100, 0)))
	})

	t.Run("PutIsIdempotent", func(t *testing.T) {
		require.NoError(t, s.PutUnconfirmed(a, Metadata{Received: time.Unix(100, 0).UTC(), Note: "again"}))
		n, err := s.Count()
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("Remove", func(t *testing.T) {
		require.NoError(t, s.RemoveUnconfirmed(a.TxHash()))
		require.NoError(t, s.RemoveUnconfirmed(chainhash.Hash{0xff}))

		records, err := s.ReadUnconfirmed()
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, b.TxHash(), records[0].Hash())
	})

	t.Run("NilTx", func(t *testing.T) {
		assert.ErrorIs(t, s.PutUnconfirmed(nil, Metadata{}), ErrNilTx)
	})

	t.Run("Closed", func(t *testing.T) {
		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		_, err := s.ReadUnconfirmed()
		assert.ErrorIs(t, err, ErrStoreClosed)
		assert.ErrorIs(t, s.PutUnconfirmed(a, Metadata{}), ErrStoreClosed)
	})
}

func TestMemoryStore(t *testing.T) {
	backendSuite(t, NewMemoryStore())
}

func TestLevelStore(t *testing.T) {
	ls, err := OpenLevelStore(filepath.Join(t.TempDir(), "utx"))
	require.NoError(t, err)
	backendSuite(t, ls)
}

func TestLevelStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "utx")

	ls, err := OpenLevelStore(path)
	require.NoError(t, err)
	tx := testTx(7)
	require.NoError(t, ls.PutUnconfirmed(Unconfirmed{Tx: tx, Meta: Metadata{Source: "local"}}))
	require.NoError(t, ls.Close())

	ls, err = OpenLevelStore(path)
	require.NoError(t, err)
	defer ls.Close()

	records, err := ls.ReadUnconfirmed()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, tx.TxHash(), records[0].Hash())
	assert.Equal(t, "local", records[0].Meta.Source)
}

type failingBackend struct {
	*MemoryStore
	err error
}

func (f *failingBackend) ReadUnconfirmed() ([]Unconfirmed, error) {
	return nil, f.err
}

func TestSharedWrapsBackendError(t *testing.T) {
	boom := errors.New("disk on fire")
	s := NewShared(&failingBackend{MemoryStore: NewMemoryStore(), err: boom})

	_, err := s.ReadUnconfirmed()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
