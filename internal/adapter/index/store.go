package index

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/phuslu/log"
	"go.etcd.io/bbolt"

	"docchat/internal/adapter/cache"
	"docchat/internal/domain"
	"docchat/internal/port"
)

var (
	bucketVectors = []byte("vectors")
	bucketDocs    = []byte("docs")
)

// statsSampleSize bounds how many records the expensive per-document
// statistics are computed from.
const statsSampleSize = 100

// Store is a bbolt-backed vector index. Every record is persisted in bolt
// and mirrored in memory in insertion order; search is a brute-force cosine
// scan over the mirror, which is plenty for a single-node document corpus.
type Store struct {
	db       *bbolt.DB
	embedder port.Embedder
	results  *cache.Cache[[]domain.SearchResult]
	ttl      time.Duration
	logger   log.Logger

	mu      sync.RWMutex
	recs    []record
	byID    map[string]int
	nextSeq uint64
}

type record struct {
	chunk  domain.Chunk
	vector []float32
	seq    uint64
}

type storedRecord struct {
	Chunk  domain.Chunk `json:"chunk"`
	Vector []float32    `json:"vector"`
	Seq    uint64       `json:"seq"`
}

// Open opens (or creates) the index at path. A store that cannot open its
// backing file is unusable: the error wraps ErrIndexUnavailable and callers
// are expected to treat it as fatal.
func Open(path string, embedder port.Embedder, searchTTL time.Duration, logger log.Logger) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrIndexUnavailable, path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketVectors, bucketDocs} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}

	s := &Store{
		db:       db,
		embedder: embedder,
		results:  cache.New[[]domain.SearchResult](500),
		ttl:      searchTTL,
		logger:   logger,
		byID:     make(map[string]int),
	}

	if err := s.load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: load records: %v", domain.ErrIndexUnavailable, err)
	}

	s.logger.Info().Int("chunks", len(s.recs)).Str("path", path).Msg("vector index opened")
	return s, nil
}

// load rebuilds the in-memory mirror from bolt, restoring insertion order.
func (s *Store) load() error {
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVectors).ForEach(func(k, v []byte) error {
			var stored storedRecord
			if err := json.Unmarshal(v, &stored); err != nil {
				s.logger.Warn().Str("chunk", string(k)).Msg("skipping corrupt index record")
				return nil
			}
			s.recs = append(s.recs, record{
				chunk:  stored.Chunk,
				vector: stored.Vector,
				seq:    stored.Seq,
			})
			if stored.Seq >= s.nextSeq {
				s.nextSeq = stored.Seq + 1
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	sort.Slice(s.recs, func(i, j int) bool { return s.recs[i].seq < s.recs[j].seq })
	for i, r := range s.recs {
		s.byID[r.chunk.ID] = i
	}
	return nil
}

// Upsert embeds the chunks (batched, through the caching embedder) and
// inserts them in one transaction. Duplicate ids overwrite in place, keeping
// their original insertion position. The returned count never exceeds what
// was committed: a failed transaction reports zero.
func (s *Store) Upsert(chunks []domain.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.Embed(texts)
	if err != nil {
		return 0, &domain.StorageError{Op: "upsert", Document: chunks[0].Document, Err: err}
	}
	if len(vectors) != len(chunks) {
		return 0, &domain.StorageError{Op: "upsert", Document: chunks[0].Document,
			Err: fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Assign sequence numbers up front so the bolt write and the mirror
	// agree; overwrites keep the sequence they already had.
	seqs := make([]uint64, len(chunks))
	for i, c := range chunks {
		if pos, ok := s.byID[c.ID]; ok {
			seqs[i] = s.recs[pos].seq
		} else {
			seqs[i] = s.nextSeq
			s.nextSeq++
		}
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		vb := tx.Bucket(bucketVectors)
		db := tx.Bucket(bucketDocs)

		for i, c := range chunks {
			data, err := json.Marshal(storedRecord{Chunk: c, Vector: vectors[i], Seq: seqs[i]})
			if err != nil {
				return err
			}
			if err := vb.Put([]byte(c.ID), data); err != nil {
				return err
			}
			if err := addDocChunk(db, c.Document, c.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, &domain.StorageError{Op: "upsert", Document: chunks[0].Document, Err: err}
	}

	for i, c := range chunks {
		rec := record{chunk: c, vector: vectors[i], seq: seqs[i]}
		if pos, ok := s.byID[c.ID]; ok {
			s.recs[pos] = rec
		} else {
			s.byID[c.ID] = len(s.recs)
			s.recs = append(s.recs, rec)
		}
	}

	s.results.Clear()
	return len(chunks), nil
}

func addDocChunk(db *bbolt.Bucket, document, chunkID string) error {
	var ids []string
	if existing := db.Get([]byte(document)); existing != nil {
		if err := json.Unmarshal(existing, &ids); err != nil {
			return err
		}
	}
	for _, id := range ids {
		if id == chunkID {
			return nil
		}
	}
	ids = append(ids, chunkID)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return db.Put([]byte(document), data)
}

// Search embeds the query and returns up to k results ordered by descending
// similarity, ties kept in insertion order. Results for identical (query, k)
// pairs are served from the TTL cache.
func (s *Store) Search(query string, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}

	key := cache.Key("search", query, fmt.Sprintf("%d", k))
	if cached, ok := s.results.Get(key); ok {
		return append([]domain.SearchResult(nil), cached...), nil
	}

	vectors, err := s.embedder.Embed([]string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	queryVec := vectors[0]

	s.mu.RLock()
	scored := make([]domain.SearchResult, 0, len(s.recs))
	for _, rec := range s.recs {
		scored = append(scored, domain.SearchResult{
			Chunk:      rec.chunk,
			Similarity: cosineSimilarity(queryVec, rec.vector),
		})
	}
	s.mu.RUnlock()

	// Stable sort keeps insertion order for equal scores.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if k > len(scored) {
		k = len(scored)
	}
	results := scored[:k:k]

	// The cache keeps its own slice; callers are free to mutate theirs.
	s.results.Put(key, results, s.ttl)
	return append([]domain.SearchResult(nil), results...), nil
}

// DeleteByDocument removes every chunk of the named document. The bolt
// transaction and the mirror update both happen under the write lock, so a
// concurrent search sees either all of the document's records or none.
func (s *Store) DeleteByDocument(document string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	err := s.db.Update(func(tx *bbolt.Tx) error {
		db := tx.Bucket(bucketDocs)
		data := db.Get([]byte(document))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &ids); err != nil {
			return err
		}

		vb := tx.Bucket(bucketVectors)
		for _, id := range ids {
			if err := vb.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return db.Delete([]byte(document))
	})
	if err != nil {
		return 0, &domain.StorageError{Op: "delete", Document: document, Err: err}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.recs[:0]
	for _, rec := range s.recs {
		if !drop[rec.chunk.ID] {
			kept = append(kept, rec)
		}
	}
	s.recs = kept
	s.byID = make(map[string]int, len(s.recs))
	for i, rec := range s.recs {
		s.byID[rec.chunk.ID] = i
	}

	s.results.Clear()
	s.logger.Info().Str("document", document).Int("chunks", len(ids)).Msg("document removed from index")
	return len(ids), nil
}

// Clear drops the whole index and leaves the store ready for new upserts.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketVectors, bucketDocs} {
			if err := tx.DeleteBucket(b); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &domain.StorageError{Op: "clear", Err: err}
	}

	s.recs = nil
	s.byID = make(map[string]int)
	s.nextSeq = 0
	s.results.Clear()
	return nil
}

// Stats returns index aggregates. Average word count and the top-document
// ranking are computed from a bounded sample rather than a full scan.
func (s *Store) Stats() (domain.IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.IndexStats{
		TotalChunks:    len(s.recs),
		EmbeddingModel: s.embedder.ModelName(),
		Dimensions:     s.embedder.Dimension(),
	}

	err := s.db.View(func(tx *bbolt.Tx) error {
		stats.DocumentsCount = tx.Bucket(bucketDocs).Stats().KeyN
		return nil
	})
	if err != nil {
		return domain.IndexStats{}, err
	}

	sample := s.recs
	if len(sample) > statsSampleSize {
		sample = sample[:statsSampleSize]
	}
	if len(sample) > 0 {
		totalWords := 0
		perDoc := make(map[string]int)
		for _, rec := range sample {
			totalWords += rec.chunk.WordCount
			perDoc[rec.chunk.Document]++
		}
		stats.AvgWordCount = totalWords / len(sample)

		for doc, n := range perDoc {
			stats.TopDocuments = append(stats.TopDocuments, domain.DocumentCount{Document: doc, Chunks: n})
		}
		sort.Slice(stats.TopDocuments, func(i, j int) bool {
			if stats.TopDocuments[i].Chunks != stats.TopDocuments[j].Chunks {
				return stats.TopDocuments[i].Chunks > stats.TopDocuments[j].Chunks
			}
			return stats.TopDocuments[i].Document < stats.TopDocuments[j].Document
		})
		if len(stats.TopDocuments) > 5 {
			stats.TopDocuments = stats.TopDocuments[:5]
		}
	}

	return stats, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// cosineSimilarity is the similarity reported on search results:
// 1 - cosine distance, range [-1, 1].
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
