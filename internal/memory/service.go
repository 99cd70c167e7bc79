package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/seclab-demos/memjack/internal/keywords"
	"github.com/seclab-demos/memjack/internal/policy"
)

// ValidationError rejects bad, missing, or oversized input before it reaches
// the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ServiceConfig bounds field sizes and selects the write-side content policy.
type ServiceConfig struct {
	MaxDescriptionLen int
	MaxContentLen     int

	// SanitizeOnWrite strips script/HTML-like substrings before storage.
	// Off by default: storing raw text is the vulnerable posture this
	// project exists to demonstrate.
	SanitizeOnWrite bool
}

// DefaultServiceConfig mirrors the HTTP layer's request size expectations.
var DefaultServiceConfig = ServiceConfig{
	MaxDescriptionLen: 200,
	MaxContentLen:     2000,
}

// Service is the validated façade over a Store. All reads and writes from
// the rest of the system go through it; records are copied in and out, so
// callers never hold a reference into the store.
type Service struct {
	store Store
	cfg   ServiceConfig
}

func NewService(store Store, cfg ServiceConfig) *Service {
	if cfg.MaxDescriptionLen <= 0 {
		cfg.MaxDescriptionLen = DefaultServiceConfig.MaxDescriptionLen
	}
	if cfg.MaxContentLen <= 0 {
		cfg.MaxContentLen = DefaultServiceConfig.MaxContentLen
	}
	return &Service{store: store, cfg: cfg}
}

// StoreMemory validates both fields and creates a new record.
func (s *Service) StoreMemory(ctx context.Context, description, content string) (Record, error) {
	if err := s.validateField("description", description, s.cfg.MaxDescriptionLen); err != nil {
		return Record{}, err
	}
	if err := s.validateField("content", content, s.cfg.MaxContentLen); err != nil {
		return Record{}, err
	}
	if s.cfg.SanitizeOnWrite {
		description, _ = policy.SanitizeContent(description)
		content, _ = policy.SanitizeContent(content)
	}
	return s.store.Create(ctx, description, content)
}

// GetMemory returns nil when the id does not exist.
func (s *Service) GetMemory(ctx context.Context, id string) (*Record, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) AllMemories(ctx context.Context) ([]Record, error) {
	return s.store.All(ctx)
}

// DeleteMemory reports whether a record existed and was removed.
func (s *Service) DeleteMemory(ctx context.Context, id string) (bool, error) {
	return s.store.Delete(ctx, id)
}

// UpdateMemory validates any provided fields and applies a partial update.
// It returns nil when the id does not exist.
func (s *Service) UpdateMemory(ctx context.Context, id string, fields UpdateFields) (*Record, error) {
	if fields.Description != nil {
		if err := s.validateField("description", *fields.Description, s.cfg.MaxDescriptionLen); err != nil {
			return nil, err
		}
		if s.cfg.SanitizeOnWrite {
			clean, _ := policy.SanitizeContent(*fields.Description)
			fields.Description = &clean
		}
	}
	if fields.Content != nil {
		if err := s.validateField("content", *fields.Content, s.cfg.MaxContentLen); err != nil {
			return nil, err
		}
		if s.cfg.SanitizeOnWrite {
			clean, _ := policy.SanitizeContent(*fields.Content)
			fields.Content = &clean
		}
	}
	return s.store.Update(ctx, id, fields)
}

// SearchMemories validates the query and delegates to the store's substring
// search.
func (s *Service) SearchMemories(ctx context.Context, query string) ([]Record, error) {
	if err := s.validateField("query", query, s.cfg.MaxContentLen); err != nil {
		return nil, err
	}
	return s.store.Search(ctx, query)
}

// RelevantMemories extracts keywords from input and ranks stored records by
// how many keywords appear in "description content". Records matching zero
// keywords are dropped; ties keep store iteration order (stable sort). No
// keywords means no results.
func (s *Service) RelevantMemories(ctx context.Context, input string) ([]Record, error) {
	kws := keywords.Extract(input)
	if len(kws) == 0 {
		return nil, nil
	}

	all, err := s.store.All(ctx)
	if err != nil {
		return nil, err
	}

	type scored struct {
		rec   Record
		score int
	}
	var matches []scored
	for _, rec := range all {
		score := keywords.Score(rec.Description+" "+rec.Content, kws)
		if score > 0 {
			matches = append(matches, scored{rec: rec, score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	out := make([]Record, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.rec)
	}
	return out, nil
}

func (s *Service) validateField(field, value string, maxLen int) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Reason: "must be a non-empty string"}
	}
	if len(value) > maxLen {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("exceeds %d characters", maxLen)}
	}
	return nil
}
