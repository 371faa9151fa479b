// Package vectorindex maintains one HNSW graph per project for
// semantic chunk search. It assigns each inserted vector its own
// int64 identifier — the same value persisted as code_chunks.vector_id
// and vector_index.vector_id — so no separate string<->key mapping is
// needed the way a content-addressed vector store would require.
package vectorindex

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// Metric selects the HNSW distance function.
type Metric string

const (
	MetricCosine    Metric = "cos"
	MetricEuclidean Metric = "l2"
)

// Config configures an Index.
type Config struct {
	Dimensions     int
	Metric         Metric
	M              int
	EfSearch       int
	EfConstruction int
}

// DefaultConfig returns sensible defaults for the given dimensionality.
func DefaultConfig(dimensions int) Config {
	return Config{
		Dimensions: dimensions,
		Metric:     MetricCosine,
		M:          16,
		EfSearch:   20,
	}
}

// Result is a single nearest-neighbor match.
type Result struct {
	VectorID int64
	Distance float32
	Score    float32
}

// ErrDimensionMismatch is returned when a vector's length does not
// match the index's configured dimensionality.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector index: expected %d dimensions, got %d", e.Expected, e.Got)
}

// ErrClosed is returned by any operation on a closed Index.
var ErrClosed = fmt.Errorf("vector index is closed")

// Index is a single project's HNSW vector index. It is safe for
// concurrent use.
type Index struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config Config

	nextID  int64
	deleted map[uint64]struct{}
	closed  bool
}

// persisted holds everything Save/Load needs beyond the graph bytes
// themselves.
type persisted struct {
	NextID  int64
	Deleted map[uint64]struct{}
	Config  Config
}

// New creates an empty Index.
func New(cfg Config) *Index {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}

	graph := hnsw.NewGraph[uint64]()
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25
	switch cfg.Metric {
	case MetricEuclidean:
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}

	return &Index{
		graph:   graph,
		config:  cfg,
		deleted: make(map[uint64]struct{}),
	}
}

// Add inserts a vector and returns the id assigned to it. The caller
// persists this id alongside the entity it embeds (a chunk row's
// vector_id, a vector_index row) in the same database transaction
// that produced the embedding.
func (idx *Index) Add(ctx context.Context, vector []float32) (int64, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return 0, ErrClosed
	}
	if len(vector) != idx.config.Dimensions {
		return 0, ErrDimensionMismatch{Expected: idx.config.Dimensions, Got: len(vector)}
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)
	if idx.config.Metric == MetricCosine {
		normalize(vec)
	}

	id := idx.nextID
	idx.nextID++

	idx.graph.Add(hnsw.MakeNode(uint64(id), vec))
	return id, nil
}

// Search returns up to k nearest neighbors to query, excluding any id
// removed by Delete.
func (idx *Index) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, ErrClosed
	}
	if len(query) != idx.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: idx.config.Dimensions, Got: len(query)}
	}
	if idx.graph.Len() == 0 {
		return nil, nil
	}

	vec := make([]float32, len(query))
	copy(vec, query)
	if idx.config.Metric == MetricCosine {
		normalize(vec)
	}

	// Over-fetch to absorb lazily deleted nodes, then trim to k.
	raw := idx.graph.Search(vec, k+len(idx.deleted))

	results := make([]Result, 0, k)
	for _, node := range raw {
		if _, gone := idx.deleted[node.Key]; gone {
			continue
		}
		distance := idx.graph.Distance(vec, node.Value)
		results = append(results, Result{
			VectorID: int64(node.Key),
			Distance: distance,
			Score:    scoreFromDistance(distance, idx.config.Metric),
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Delete lazily removes vectors by id. The underlying graph node is
// left in place — coder/hnsw's own Delete corrupts the graph when the
// removed node is its last one — and is instead skipped by Search and
// counted as an orphan by Stats until a future rebuild compacts it.
func (idx *Index) Delete(ctx context.Context, ids []int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ErrClosed
	}
	for _, id := range ids {
		idx.deleted[uint64(id)] = struct{}{}
	}
	return nil
}

// Stats reports index size for compaction decisions.
type Stats struct {
	GraphNodes int
	Orphans    int
}

func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return Stats{}
	}
	return Stats{GraphNodes: idx.graph.Len(), Orphans: len(idx.deleted)}
}

// Len returns the number of nodes physically present in the graph,
// including orphans not yet compacted away.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return 0
	}
	return idx.graph.Len()
}

// Save persists the graph and its bookkeeping atomically: each file is
// written to a temp path and renamed into place, so a crash mid-save
// never leaves a half-written index behind.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return ErrClosed
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	if err := atomicWrite(path, func(f *os.File) error {
		return idx.graph.Export(f)
	}); err != nil {
		return fmt.Errorf("export graph: %w", err)
	}

	meta := persisted{NextID: idx.nextID, Deleted: idx.deleted, Config: idx.config}
	if err := atomicWrite(path+".meta", func(f *os.File) error {
		return gob.NewEncoder(f).Encode(meta)
	}); err != nil {
		return fmt.Errorf("save index metadata: %w", err)
	}
	return nil
}

// Load returns a new Index holding a graph previously written by Save.
func Load(path string) (*Index, error) {
	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return nil, fmt.Errorf("open index metadata: %w", err)
	}
	defer metaFile.Close()

	var meta persisted
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode index metadata: %w", err)
	}

	idx := New(meta.Config)
	idx.nextID = meta.NextID
	idx.deleted = meta.Deleted
	if idx.deleted == nil {
		idx.deleted = make(map[uint64]struct{})
	}

	graphFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index graph: %w", err)
	}
	defer graphFile.Close()

	if err := idx.graph.Import(bufio.NewReader(graphFile)); err != nil {
		return nil, fmt.Errorf("import graph: %w", err)
	}
	return idx, nil
}

// Dimensions reports the index's configured vector dimensionality.
func Dimensions(path string) (int, error) {
	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open index metadata: %w", err)
	}
	defer metaFile.Close()

	var meta persisted
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return 0, fmt.Errorf("decode index metadata: %w", err)
	}
	return meta.Config.Dimensions, nil
}

// Close releases the index. A closed Index rejects all further calls.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true
	idx.graph = nil
	return nil
}

func atomicWrite(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func normalize(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

func scoreFromDistance(distance float32, metric Metric) float32 {
	if metric == MetricEuclidean {
		return 1.0 / (1.0 + distance)
	}
	return 1.0 - distance/2.0
}
