package index

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/ragcore/internal/pkg/errors"
)

// Record is one vector owned by the Manager, 1:1 with an indexed chunk.
// VectorID doubles as the insertion sequence, which keeps search ordering
// stable across rebuilds.
type Record struct {
	VectorID   int64
	ChunkID    string
	Vector     []float32
	InsertedAt int64
}

// Match is one search hit, score descending, VectorID ascending on ties.
type Match struct {
	VectorID int64
	ChunkID  string
	Score    float64
}

// Store is the durable side of the write-behind path. Append must persist the
// record and assign its vector id before the in-memory buffer accepts it.
type Store interface {
	Append(ctx context.Context, chunkID string, vector []float32, insertedAt int64) (int64, error)
	MarkDeleted(ctx context.Context, vectorID int64) error
	DeleteTombstoned(ctx context.Context) (int64, error)
	LoadLive(ctx context.Context) ([]Record, error)
}

// snapshot is an immutable, fully-formed index generation. Searches scan
// whichever snapshot they loaded; Rebuild swaps in a fresh one atomically.
type snapshot struct {
	records []Record
}

// Manager owns the active index snapshot plus a write-behind buffer. Inserts
// are single-writer (mu), searches read the active snapshot lock-free and the
// buffer under a read lock, and Rebuild is the only operation that swaps the
// active pointer.
type Manager struct {
	dim            int
	mergeThreshold int
	store          Store

	mu         sync.RWMutex
	buffer     []Record
	tombstones map[int64]struct{}
	nextID     atomic.Int64

	active atomic.Pointer[snapshot]
}

func NewManager(dim int, mergeThreshold int, store Store) *Manager {
	if mergeThreshold <= 0 {
		mergeThreshold = 256
	}
	m := &Manager{
		dim:            dim,
		mergeThreshold: mergeThreshold,
		store:          store,
		tombstones:     make(map[int64]struct{}),
	}
	m.active.Store(&snapshot{})
	return m
}

// Load restores the live records from the durable store into a fresh
// snapshot. Called once at startup before the manager serves searches.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	records, err := m.store.LoadLive(ctx)
	if err != nil {
		return err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].VectorID < records[j].VectorID
	})
	var maxID int64
	for _, rec := range records {
		if rec.VectorID > maxID {
			maxID = rec.VectorID
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID.Store(maxID)
	m.buffer = nil
	m.tombstones = make(map[int64]struct{})
	m.active.Store(&snapshot{records: records})
	logutil.GetLogger(ctx).Info("vector index loaded", zap.Int("vectors", len(records)))
	return nil
}

// Insert persists the vector and accepts it into the write-behind buffer.
// The buffer is merged into the active snapshot once it crosses the merge
// threshold; buffered vectors are searchable before the merge.
func (m *Manager) Insert(ctx context.Context, chunkID string, vector []float32, insertedAt int64) (int64, error) {
	if len(vector) != m.dim {
		return 0, appErr.ErrDimensionMismatch
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var vectorID int64
	if m.store != nil {
		id, err := m.store.Append(ctx, chunkID, vector, insertedAt)
		if err != nil {
			return 0, err
		}
		vectorID = id
		if id > m.nextID.Load() {
			m.nextID.Store(id)
		}
	} else {
		vectorID = m.nextID.Add(1)
	}
	m.buffer = append(m.buffer, Record{
		VectorID:   vectorID,
		ChunkID:    chunkID,
		Vector:     vector,
		InsertedAt: insertedAt,
	})
	if len(m.buffer) >= m.mergeThreshold {
		m.mergeLocked()
	}
	return vectorID, nil
}

// Remove tombstones a vector. The index structure keeps the entry until the
// next rebuild; searches filter it out immediately.
func (m *Manager) Remove(ctx context.Context, vectorID int64) error {
	m.mu.Lock()
	m.tombstones[vectorID] = struct{}{}
	m.mu.Unlock()
	if m.store != nil {
		return m.store.MarkDeleted(ctx, vectorID)
	}
	return nil
}

// Search returns at most k live vectors with score >= minScore, score
// descending, earliest insertion first on equal scores.
func (m *Manager) Search(queryVector []float32, k int, minScore float64) ([]Match, error) {
	if len(queryVector) != m.dim {
		return nil, appErr.ErrDimensionMismatch
	}
	snap := m.active.Load()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(snap.records)+len(m.buffer) == 0 {
		return nil, appErr.ErrIndexNotReady
	}
	live := 0
	matches := make([]Match, 0, k)
	scan := func(records []Record) {
		for _, rec := range records {
			if _, dead := m.tombstones[rec.VectorID]; dead {
				continue
			}
			live++
			score := Cosine(queryVector, rec.Vector)
			if score < minScore {
				continue
			}
			matches = append(matches, Match{
				VectorID: rec.VectorID,
				ChunkID:  rec.ChunkID,
				Score:    score,
			})
		}
	}
	scan(snap.records)
	scan(m.buffer)
	if live == 0 {
		return nil, appErr.ErrIndexNotReady
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].VectorID < matches[j].VectorID
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Rebuild compacts tombstones and flushes the buffer into a fresh snapshot,
// then swaps it in atomically. In-flight searches keep scanning the snapshot
// they started with.
func (m *Manager) Rebuild(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)
	m.mu.Lock()
	old := m.active.Load()
	fresh := &snapshot{records: make([]Record, 0, len(old.records)+len(m.buffer))}
	dropped := 0
	for _, rec := range append(append([]Record{}, old.records...), m.buffer...) {
		if _, dead := m.tombstones[rec.VectorID]; dead {
			dropped++
			continue
		}
		fresh.records = append(fresh.records, rec)
	}
	sort.Slice(fresh.records, func(i, j int) bool {
		return fresh.records[i].VectorID < fresh.records[j].VectorID
	})
	m.active.Store(fresh)
	m.buffer = nil
	m.tombstones = make(map[int64]struct{})
	m.mu.Unlock()

	if m.store != nil {
		if _, err := m.store.DeleteTombstoned(ctx); err != nil {
			logger.Error("compact tombstoned vectors failed", zap.Error(err))
			return err
		}
	}
	logger.Info("vector index rebuilt",
		zap.Int("vectors", len(fresh.records)),
		zap.Int("dropped", dropped),
	)
	return nil
}

// LiveCount reports the number of searchable (non-tombstoned) vectors.
func (m *Manager) LiveCount() int {
	snap := m.active.Load()
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, rec := range snap.records {
		if _, dead := m.tombstones[rec.VectorID]; !dead {
			count++
		}
	}
	for _, rec := range m.buffer {
		if _, dead := m.tombstones[rec.VectorID]; !dead {
			count++
		}
	}
	return count
}

// mergeLocked folds the buffer into a new snapshot generation. Caller holds mu.
func (m *Manager) mergeLocked() {
	old := m.active.Load()
	records := make([]Record, 0, len(old.records)+len(m.buffer))
	records = append(records, old.records...)
	records = append(records, m.buffer...)
	m.active.Store(&snapshot{records: records})
	m.buffer = nil
}
