package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"taptimise/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu    sync.Mutex
	runs  map[string]model.Run
	order []string // insertion order, oldest first
}

func NewMemory() *Memory {
	return &Memory{runs: map[string]model.Run{}}
}

func (m *Memory) SaveRun(ctx context.Context, run model.Run) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if prev, ok := m.runs[run.ID]; ok {
		run.CreatedAt = prev.CreatedAt
	} else {
		if run.CreatedAt.IsZero() {
			run.CreatedAt = now
		}
		m.order = append(m.order, run.ID)
	}
	run.UpdatedAt = now
	m.runs[run.ID] = run
	return run, nil
}

func (m *Memory) GetRun(ctx context.Context, id string) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return model.Run{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListRuns(ctx context.Context, cursor string, limit int) ([]model.RunSummary, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	start := len(m.order) - 1
	if cursor != "" {
		for i, id := range m.order {
			if id == cursor {
				start = i - 1
				break
			}
		}
	}
	out := []model.RunSummary{}
	var next string
	for i := start; i >= 0 && len(out) < limit; i-- {
		r := m.runs[m.order[i]]
		out = append(out, r.Summary())
		next = r.ID
	}
	if len(out) < limit || start-len(out) < 0 {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) FindByFingerprint(ctx context.Context, fp string) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fp == "" {
		return model.Run{}, ErrNotFound
	}
	for i := len(m.order) - 1; i >= 0; i-- {
		r := m.runs[m.order[i]]
		if r.Fingerprint == fp && r.Status == model.StatusDone {
			return r, nil
		}
	}
	return model.Run{}, ErrNotFound
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
