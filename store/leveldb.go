package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/ahwlsqja/txrelay/types"
)

// 키 접두사: utx:<txid bytes>
var unconfirmedPrefix = []byte("utx:")

// record is the JSON value stored per transaction.
type record struct {
	Raw  []byte   `json:"raw"` // btcd 직렬화 바이트
	Meta Metadata `json:"meta"`
}

// LevelStore keeps unconfirmed transactions in LevelDB.
type LevelStore struct {
	db *leveldb.DB
}

// OpenLevelStore opens (or creates) a LevelDB database at path.
func OpenLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %s: %w", path, err)
	}
	return NewLevelStore(db), nil
}

// NewLevelStore wraps an already opened database.
func NewLevelStore(db *leveldb.DB) *LevelStore {
	return &LevelStore{db: db}
}

func unconfirmedKey(hash chainhash.Hash) []byte {
	key := make([]byte, 0, len(unconfirmedPrefix)+chainhash.HashSize)
	key = append(key, unconfirmedPrefix...)
	return append(key, hash[:]...)
}

// ReadUnconfirmed returns every stored record ordered by receive time, then txid.
func (ls *LevelStore) ReadUnconfirmed() ([]Unconfirmed, error) {
	iter := ls.db.NewIterator(util.BytesPrefix(unconfirmedPrefix), nil)
	defer iter.Release()

	var out []Unconfirmed
	for iter.Next() {
		var rec record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record %x: %w", iter.Key(), err)
		}
		tx, err := types.DeserializeTx(rec.Raw)
		if err != nil {
			return nil, err
		}
		out = append(out, Unconfirmed{Tx: tx, Meta: rec.Meta})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate unconfirmed: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Meta.Received.Before(out[j].Meta.Received)
	})
	return out, nil
}

// PutUnconfirmed writes a record.
func (ls *LevelStore) PutUnconfirmed(u Unconfirmed) error {
	if u.Tx == nil {
		return ErrNilTx
	}
	raw, err := types.SerializeTx(u.Tx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(record{Raw: raw, Meta: u.Meta})
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := ls.db.Put(unconfirmedKey(u.Hash()), data, nil); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// RemoveUnconfirmed deletes a record. LevelDB treats missing keys as success.
func (ls *LevelStore) RemoveUnconfirmed(hash chainhash.Hash) error {
	if err := ls.db.Delete(unconfirmedKey(hash), nil); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// Close closes the database.
func (ls *LevelStore) Close() error {
	return ls.db.Close()
}
