package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketEmbeddings = []byte("embeddings")
	bucketMeta       = []byte("meta")
)

// BoltCache persists embedding vectors keyed by model and text so repeated
// ingestion of the same content does not call the embedding service again.
// It never stores documents or index state.
type BoltCache struct {
	db *bbolt.DB
}

type storedVector struct {
	Vector []float32 `json:"v"`
}

// OpenBoltCache opens or creates the cache file at path.
func OpenBoltCache(path string) (*BoltCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketEmbeddings, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltCache{db: db}, nil
}

func (s *BoltCache) Close() error {
	return s.db.Close()
}

func vectorKey(model, text string) []byte {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return h.Sum(nil)
}

// GetMany returns the cached vectors for texts, keyed by input position.
func (s *BoltCache) GetMany(model string, texts []string) (map[int][]float32, error) {
	found := make(map[int][]float32)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEmbeddings)
		for i, text := range texts {
			data := b.Get(vectorKey(model, text))
			if data == nil {
				continue
			}
			var sv storedVector
			if err := json.Unmarshal(data, &sv); err != nil {
				// Unreadable entries are treated as misses and overwritten later.
				continue
			}
			found[i] = sv.Vector
		}
		return nil
	})
	return found, err
}

// PutMany stores one vector per text in a single transaction.
func (s *BoltCache) PutMany(model string, texts []string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return fmt.Errorf("put %d texts with %d vectors", len(texts), len(vectors))
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEmbeddings)
		for i, text := range texts {
			data, err := json.Marshal(storedVector{Vector: vectors[i]})
			if err != nil {
				return err
			}
			if err := b.Put(vectorKey(model, text), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Len returns the number of cached vectors.
func (s *BoltCache) Len() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketEmbeddings).Stats().KeyN
		return nil
	})
	return n, err
}
