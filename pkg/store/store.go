package store

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/klauspost/compress/zstd"
	"github.com/multiformats/go-multihash"

	"github.com/kvasir-vcs/kvasir/pkg/object"
)

// Key prefixes inside the Pebble keyspace.
const (
	PrefixObject = "obj:" // obj:<hex hash> -> [type byte][compressed data]
	PrefixCID    = "cid:" // cid:<b58 multihash> -> hex hash, dedup index
)

const compressionMagic = "KVZ1"

// Store is the durable object store: Pebble-backed, content addressed,
// zstd-compressed at rest. It satisfies both collaborator interfaces the
// pack engine consumes (Get as a source, Put as a sink).
type Store struct {
	db       *pebble.DB
	hashAlgo string
	ownsDB   bool
}

// Open opens (creating if needed) a store in the given directory.
func Open(dir, hashAlgo string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	s, err := NewStore(db, hashAlgo)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewStore wraps an already-open Pebble instance.
func NewStore(db *pebble.DB, hashAlgo string) (*Store, error) {
	switch hashAlgo {
	case "sha256", "blake3":
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", hashAlgo)
	}
	return &Store{db: db, hashAlgo: hashAlgo}, nil
}

// Close closes the underlying database if this store opened it.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

// computeCID computes the secondary content identifier used for
// cluster-scope dedup lookups.
func (s *Store) computeCID(data []byte) (string, error) {
	var hashType uint64
	switch s.hashAlgo {
	case "sha256":
		hashType = multihash.SHA2_256
	case "blake3":
		hashType = multihash.BLAKE3
	default:
		return "", fmt.Errorf("unsupported hash algorithm: %s", s.hashAlgo)
	}

	mh, err := multihash.Sum(data, hashType, -1)
	if err != nil {
		return "", fmt.Errorf("failed to compute multihash: %w", err)
	}
	return mh.B58String(), nil
}

// Put stores a typed object and returns its hash. Re-putting an existing
// object is a no-op.
func (s *Store) Put(t object.Type, data []byte) (object.Hash, error) {
	if !t.Concrete() {
		return object.ZeroHash, fmt.Errorf("cannot store object of type %s", t)
	}

	hash := object.Compute(t, data)
	exists, err := s.Has(hash)
	if err != nil {
		return object.ZeroHash, err
	}
	if exists {
		return hash, nil
	}

	compressed, err := compressForStorage(data)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("failed to compress object: %w", err)
	}

	cid, err := s.computeCID(data)
	if err != nil {
		return object.ZeroHash, err
	}

	record := make([]byte, 0, 1+len(compressed))
	record = append(record, byte(t))
	record = append(record, compressed...)

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(objectKey(hash), record, pebble.NoSync); err != nil {
		return object.ZeroHash, fmt.Errorf("write object %s: %w", hash, err)
	}
	if err := batch.Set([]byte(PrefixCID+cid), []byte(hash.String()), pebble.NoSync); err != nil {
		return object.ZeroHash, fmt.Errorf("write cid index for %s: %w", hash, err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return object.ZeroHash, fmt.Errorf("commit object %s: %w", hash, err)
	}

	return hash, nil
}

// Get retrieves an object by hash. The second return is false when the
// object is absent.
func (s *Store) Get(hash object.Hash) (object.Object, bool, error) {
	value, closer, err := s.db.Get(objectKey(hash))
	if err == pebble.ErrNotFound {
		return object.Object{}, false, nil
	}
	if err != nil {
		return object.Object{}, false, fmt.Errorf("read object %s: %w", hash, err)
	}
	defer closer.Close()

	if len(value) < 1 {
		return object.Object{}, false, fmt.Errorf("object %s: empty record", hash)
	}
	t := object.Type(value[0])
	data, err := decompressFromStorage(value[1:])
	if err != nil {
		return object.Object{}, false, fmt.Errorf("decompress object %s: %w", hash, err)
	}

	return object.Object{Hash: hash, Type: t, Data: data}, true, nil
}

// Has checks whether an object exists.
func (s *Store) Has(hash object.Hash) (bool, error) {
	_, closer, err := s.db.Get(objectKey(hash))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("probe object %s: %w", hash, err)
	}
	_ = closer.Close()
	return true, nil
}

// Delete removes an object. The CID index entry is left behind; it is
// rebuilt on the next Put of the same content.
func (s *Store) Delete(hash object.Hash) error {
	if err := s.db.Delete(objectKey(hash), pebble.Sync); err != nil {
		return fmt.Errorf("delete object %s: %w", hash, err)
	}
	return nil
}

// List returns every stored object. Intended for pack assembly over a
// whole store; large deployments would iterate instead.
func (s *Store) List() ([]object.Object, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(PrefixObject),
		UpperBound: []byte(PrefixObject + "\xff"),
	})
	if err != nil {
		return nil, fmt.Errorf("iterate objects: %w", err)
	}
	defer iter.Close()

	var objects []object.Object
	for iter.First(); iter.Valid(); iter.Next() {
		hash, err := object.HashFromHex(string(iter.Key()[len(PrefixObject):]))
		if err != nil {
			return nil, fmt.Errorf("corrupt object key %q: %w", iter.Key(), err)
		}
		value := iter.Value()
		if len(value) < 1 {
			return nil, fmt.Errorf("object %s: empty record", hash)
		}
		data, err := decompressFromStorage(value[1:])
		if err != nil {
			return nil, fmt.Errorf("decompress object %s: %w", hash, err)
		}
		objects = append(objects, object.Object{
			Hash: hash,
			Type: object.Type(value[0]),
			Data: data,
		})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate objects: %w", err)
	}
	return objects, nil
}

// Stats summarizes the store contents.
type Stats struct {
	TotalObjects    int
	TotalBytes      int64 // compressed, at rest
	ObjectsByType   map[object.Type]int
	CIDIndexEntries int
}

// GetStats walks the keyspace and returns store statistics.
func (s *Store) GetStats() (Stats, error) {
	stats := Stats{ObjectsByType: make(map[object.Type]int)}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(PrefixObject),
		UpperBound: []byte(PrefixObject + "\xff"),
	})
	if err != nil {
		return stats, fmt.Errorf("iterate objects: %w", err)
	}
	for iter.First(); iter.Valid(); iter.Next() {
		stats.TotalObjects++
		value := iter.Value()
		stats.TotalBytes += int64(len(value))
		if len(value) > 0 {
			stats.ObjectsByType[object.Type(value[0])]++
		}
	}
	if err := iter.Close(); err != nil {
		return stats, err
	}

	cidIter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(PrefixCID),
		UpperBound: []byte(PrefixCID + "\xff"),
	})
	if err != nil {
		return stats, fmt.Errorf("iterate cid index: %w", err)
	}
	for cidIter.First(); cidIter.Valid(); cidIter.Next() {
		stats.CIDIndexEntries++
	}
	if err := cidIter.Close(); err != nil {
		return stats, err
	}

	return stats, nil
}

func objectKey(hash object.Hash) []byte {
	return []byte(PrefixObject + hash.String())
}

var (
	zstdEncoderOnce sync.Once
	zstdDecoderOnce sync.Once
	zstdEncoder     *zstd.Encoder
	zstdDecoder     *zstd.Decoder
	zstdInitErr     error
)

func getZstdEncoder() (*zstd.Encoder, error) {
	zstdEncoderOnce.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			zstdInitErr = err
			return
		}
		zstdEncoder = enc
	})
	return zstdEncoder, zstdInitErr
}

func getZstdDecoder() (*zstd.Decoder, error) {
	zstdDecoderOnce.Do(func() {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			zstdInitErr = err
			return
		}
		zstdDecoder = dec
	})
	return zstdDecoder, zstdInitErr
}

func compressForStorage(data []byte) ([]byte, error) {
	enc, err := getZstdEncoder()
	if err != nil {
		return nil, err
	}
	dst := enc.EncodeAll(data, nil)
	return append([]byte(compressionMagic), dst...), nil
}

func decompressFromStorage(data []byte) ([]byte, error) {
	if len(data) < len(compressionMagic) || !bytes.Equal(data[:len(compressionMagic)], []byte(compressionMagic)) {
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}

	dec, err := getZstdDecoder()
	if err != nil {
		return nil, err
	}
	return dec.DecodeAll(data[len(compressionMagic):], nil)
}
