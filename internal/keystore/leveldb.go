package keystore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/decred/dcrd/container/lru"
	"github.com/mahdiidarabi/keyladder/internal/keyspace"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// DefaultCacheSize is the default number of rows kept in the LRU row cache.
const DefaultCacheSize = 256

// -----------------------------------------------------------------------------
// Rows are stored under the key 'k' || <index uint16 big endian> with the
// value:
//
//   Field      Type     Size
//   version    uint8    1 byte
//   flags      uint8    1 byte (bit 0 set when solved)
//   key        [32]byte 32 bytes (big endian, zero when unsolved)
//   address    string   remaining bytes
// -----------------------------------------------------------------------------

const (
	rowVersion    = 1
	rowFlagSolved = 1 << 0
	rowHeaderLen  = 2 + keyspace.Width
)

var rowKeySet = []byte{'k'}

func rowKey(n uint) []byte {
	k := make([]byte, len(rowKeySet)+2)
	copy(k, rowKeySet)
	binary.BigEndian.PutUint16(k[len(rowKeySet):], uint16(n))
	return k
}

func serializeRow(e *keyspace.Entry) []byte {
	b := make([]byte, rowHeaderLen+len(e.Address))
	b[0] = rowVersion
	if e.Solved {
		b[1] |= rowFlagSolved
		raw := e.Key.Bytes()
		copy(b[2:], raw[:])
	}
	copy(b[rowHeaderLen:], e.Address)
	return b
}

func deserializeRow(n uint, b []byte) (keyspace.Entry, error) {
	if len(b) < rowHeaderLen || b[0] != rowVersion {
		str := fmt.Sprintf("malformed stored row for puzzle %d", n)
		return keyspace.Entry{}, makeError(ErrStore, str)
	}
	e := keyspace.Entry{
		Index:   n,
		Solved:  b[1]&rowFlagSolved != 0,
		Address: string(b[rowHeaderLen:]),
	}
	if e.Solved {
		e.Key, _ = keyspace.FromBytes(b[2:rowHeaderLen])
	}
	return e, nil
}

// LevelDB is a persistent Source backed by a leveldb database with an LRU
// cache of recently read rows.
type LevelDB struct {
	db    *leveldb.DB
	cache *lru.Map[uint, keyspace.Entry]
}

// Ensure LevelDB implements the Source interface.
var _ Source = (*LevelDB)(nil)

// convertLdbErr converts a leveldb error into an ErrStore error that includes
// the passed description.
func convertLdbErr(ldbErr error, desc string) Error {
	if ldberrors.IsCorrupted(ldbErr) {
		desc = "corrupted key store: " + desc
	}
	return makeError(ErrStore, fmt.Sprintf("%s: %v", desc, ldbErr))
}

// OpenLevelDB opens (or creates when needed) the key store at path.  A
// cacheSize of zero selects DefaultCacheSize.
func OpenLevelDB(path string, cacheSize uint32) (*LevelDB, error) {
	if cacheSize == 0 {
		cacheSize = DefaultCacheSize
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		_ = os.MkdirAll(path, 0700)
	}

	log.Infof("Loading key store from '%s'", path)
	opts := opt.Options{
		Strict:      opt.DefaultStrict,
		Compression: opt.NoCompression,
		Filter:      filter.NewBloomFilter(10),
	}
	db, err := leveldb.OpenFile(path, &opts)
	if err != nil {
		return nil, convertLdbErr(err, "failed to open key store")
	}
	return &LevelDB{
		db:    db,
		cache: lru.NewMap[uint, keyspace.Entry](cacheSize),
	}, nil
}

// Get returns the row for sequence index n.  Indices outside
// [1, keyspace.MaxIndex] have no row.
func (l *LevelDB) Get(n uint) (keyspace.Entry, bool, error) {
	if n < 1 || n > keyspace.MaxIndex {
		return keyspace.Entry{}, false, nil
	}
	if e, ok := l.cache.Get(n); ok {
		return e, true, nil
	}
	v, err := l.db.Get(rowKey(n), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return keyspace.Entry{}, false, nil
		}
		str := fmt.Sprintf("failed to get puzzle %d", n)
		return keyspace.Entry{}, false, convertLdbErr(err, str)
	}
	e, err := deserializeRow(n, v)
	if err != nil {
		return keyspace.Entry{}, false, err
	}
	l.cache.Put(n, e)
	return e, true, nil
}

// List returns the rows with indices in [low, high].
func (l *LevelDB) List(low, high uint) ([]keyspace.Entry, error) {
	if high > keyspace.MaxIndex {
		high = keyspace.MaxIndex
	}
	if low > high {
		return nil, nil
	}
	rng := &util.Range{Start: rowKey(low), Limit: rowKey(high + 1)}
	iter := l.db.NewIterator(rng, nil)
	defer iter.Release()

	var out []keyspace.Entry
	for iter.Next() {
		key := iter.Key()
		if len(key) != len(rowKeySet)+2 {
			continue
		}
		n := uint(binary.BigEndian.Uint16(key[len(rowKeySet):]))
		e, err := deserializeRow(n, iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := iter.Error(); err != nil {
		return nil, convertLdbErr(err, "failed to iterate rows")
	}
	return out, nil
}

// Put validates and stores a row, replacing any existing row for its index.
func (l *LevelDB) Put(e keyspace.Entry) error {
	if err := validateEntry(&e); err != nil {
		return err
	}
	if err := l.db.Put(rowKey(e.Index), serializeRow(&e), nil); err != nil {
		str := fmt.Sprintf("failed to put puzzle %d", e.Index)
		return convertLdbErr(err, str)
	}
	l.cache.Put(e.Index, e)
	return nil
}

// Import validates every entry and writes them in a single batch.  Nothing is
// written when any entry is invalid.
func (l *LevelDB) Import(entries []keyspace.Entry) error {
	batch := new(leveldb.Batch)
	for i := range entries {
		if err := validateEntry(&entries[i]); err != nil {
			return err
		}
		batch.Put(rowKey(entries[i].Index), serializeRow(&entries[i]))
	}
	if err := l.db.Write(batch, nil); err != nil {
		return convertLdbErr(err, "failed to import rows")
	}
	for i := range entries {
		l.cache.Delete(entries[i].Index)
	}
	log.Infof("Imported %d rows into the key store", len(entries))
	return nil
}

// ImportFile loads a CSV or JSON datastore file and imports its rows.  It
// returns the number of rows imported.
func (l *LevelDB) ImportFile(path string) (int, error) {
	mem, err := LoadMemory(path)
	if err != nil {
		return 0, err
	}
	entries, err := mem.List(1, keyspace.MaxIndex)
	if err != nil {
		return 0, err
	}
	if err := l.Import(entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Close closes the database.
func (l *LevelDB) Close() error {
	if err := l.db.Close(); err != nil {
		return convertLdbErr(err, "failed to close key store")
	}
	return nil
}
