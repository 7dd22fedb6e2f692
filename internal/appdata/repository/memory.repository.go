package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"appsync/internal/appdata/model"
)

// MemoryRepository is a process-local Store with the same ordering and
// versioning rules as the Postgres one.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[int64]model.Record
	nextID  int64
	version int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[int64]model.Record)}
}

func clone(r model.Record) model.Record {
	if r.Title != nil {
		t := *r.Title
		r.Title = &t
	}
	return r
}

func (m *MemoryRepository) Insert(_ context.Context, ownerID int64, in model.CreateInput, now time.Time) (*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	m.version++
	rec := model.Record{
		ID:        m.nextID,
		OwnerID:   ownerID,
		Kind:      in.Kind,
		Title:     in.Title,
		Body:      in.Body,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   m.version,
	}
	rec = clone(rec)
	m.records[rec.ID] = rec
	out := clone(rec)
	return &out, nil
}

func (m *MemoryRepository) Get(_ context.Context, id int64) (*model.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	out := clone(rec)
	return &out, nil
}

func (m *MemoryRepository) filter(keep func(model.Record) bool) []model.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []model.Record{}
	for _, r := range m.records {
		if keep(r) {
			out = append(out, clone(r))
		}
	}
	return out
}

func byCreatedDesc(rs []model.Record) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.After(rs[j].CreatedAt)
		}
		return rs[i].ID > rs[j].ID
	})
}

func (m *MemoryRepository) ListByOwner(_ context.Context, ownerID int64) ([]model.Record, error) {
	out := m.filter(func(r model.Record) bool { return r.OwnerID == ownerID })
	byCreatedDesc(out)
	return out, nil
}

func (m *MemoryRepository) CountByOwner(_ context.Context, ownerID int64, kind string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.records {
		if r.OwnerID == ownerID && (kind == "" || r.Kind == kind) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) ListPage(_ context.Context, ownerID int64, page model.Page) ([]model.Record, int, error) {
	out := m.filter(func(r model.Record) bool {
		return r.OwnerID == ownerID && (page.Kind == "" || r.Kind == page.Kind)
	})
	byCreatedDesc(out)

	total := len(out)
	start := min(max(page.Offset, 0), total)
	end := total
	if page.Limit > 0 {
		end = min(start+page.Limit, total)
	}
	return out[start:end], total, nil
}

func (m *MemoryRepository) ListByOwnerAndKind(_ context.Context, ownerID int64, kind string) ([]model.Record, error) {
	out := m.filter(func(r model.Record) bool { return r.OwnerID == ownerID && r.Kind == kind })
	byCreatedDesc(out)
	return out, nil
}

func (m *MemoryRepository) ListSince(_ context.Context, ownerID int64, cutoff time.Time) ([]model.Record, error) {
	out := m.filter(func(r model.Record) bool { return r.OwnerID == ownerID && r.UpdatedAt.After(cutoff) })
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryRepository) ListSinceVersion(_ context.Context, ownerID int64, version int64) ([]model.Record, error) {
	out := m.filter(func(r model.Record) bool { return r.OwnerID == ownerID && r.Version > version })
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (m *MemoryRepository) Update(_ context.Context, id int64, patch model.Patch, now time.Time) (*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	rec = patch.Apply(rec)
	rec.UpdatedAt = bump(rec.UpdatedAt, now)
	m.version++
	rec.Version = m.version
	m.records[id] = rec

	out := clone(rec)
	return &out, nil
}

func (m *MemoryRepository) TouchAllByOwner(_ context.Context, ownerID int64, now time.Time) ([]model.Record, error) {
	m.mu.Lock()
	out := []model.Record{}
	for id, rec := range m.records {
		if rec.OwnerID != ownerID {
			continue
		}
		rec.UpdatedAt = bump(rec.UpdatedAt, now)
		m.version++
		rec.Version = m.version
		m.records[id] = rec
		out = append(out, clone(rec))
	}
	m.mu.Unlock()

	byCreatedDesc(out)
	return out, nil
}

func (m *MemoryRepository) Delete(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return false, nil
	}
	delete(m.records, id)
	return true, nil
}

func (m *MemoryRepository) deleteWhere(match func(model.Record) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, rec := range m.records {
		if match(rec) {
			delete(m.records, id)
			n++
		}
	}
	return n
}

func (m *MemoryRepository) DeleteByOwner(_ context.Context, ownerID int64) (int64, error) {
	return m.deleteWhere(func(r model.Record) bool { return r.OwnerID == ownerID }), nil
}

func (m *MemoryRepository) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return m.deleteWhere(func(r model.Record) bool { return r.CreatedAt.Before(cutoff) }), nil
}
