package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps records in process memory for the lifetime of the
// service. Requests are served on parallel goroutines, so all access goes
// through a mutex; without it two concurrent updates to the same id could
// lose writes. The order slice preserves insertion order for iteration.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*Record)}
}

func (s *InMemoryStore) Create(_ context.Context, description, content string) (Record, error) {
	now := time.Now().UTC()
	rec := &Record{
		ID:          uuid.NewString(),
		Description: description,
		Content:     content,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	return *rec, nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (s *InMemoryStore) All(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		if rec, ok := s.records[id]; ok {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Update(_ context.Context, id string, fields UpdateFields) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	if fields.Description != nil {
		rec.Description = *fields.Description
	}
	if fields.Content != nil {
		rec.Content = *fields.Content
	}
	rec.UpdatedAt = time.Now().UTC()
	out := *rec
	return &out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	delete(s.records, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *InMemoryStore) Search(_ context.Context, query string) ([]Record, error) {
	needle := strings.ToLower(query)

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, id := range s.order {
		rec, ok := s.records[id]
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(rec.Description), needle) ||
			strings.Contains(strings.ToLower(rec.Content), needle) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
