package importer

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/aristath/famledger/internal/domain"
)

// Comparison is the outcome of comparing an uploaded sheet with the stored records.
type Comparison struct {
	SessionID  string      `json:"sessionId"`
	Filename   string      `json:"filename"`
	Total      int         `json:"total"`
	New        []Candidate `json:"new"`
	Duplicates []Candidate `json:"duplicates"`
	Candidates []Candidate `json:"candidates"` // all rows, newest first
	Errors     []RowError  `json:"errors"`
}

// Compare reconciles candidates against existing records.
func Compare(filename string, candidates []Candidate, rowErrors []RowError, existing []domain.Record) *Comparison {
	res := Reconcile(candidates, existing)
	return &Comparison{
		Filename:   filename,
		Total:      len(candidates) + len(rowErrors),
		New:        res.New,
		Duplicates: res.Duplicates,
		Candidates: res.Combined(),
		Errors:     rowErrors,
	}
}

// Select returns the candidates for the given rows. No rows means every new candidate.
func (c *Comparison) Select(rows []int) []Candidate {
	if len(rows) == 0 {
		return append([]Candidate(nil), c.New...)
	}
	wanted := make(map[int]bool, len(rows))
	for _, r := range rows {
		wanted[r] = true
	}
	out := make([]Candidate, 0, len(rows))
	for _, cand := range c.Candidates {
		if wanted[cand.Row] {
			out = append(out, cand)
		}
	}
	return out
}

// Sessions keeps comparisons between the compare and import requests.
type Sessions struct {
	cache *cache.Cache
}

// NewSessions creates a store whose entries expire after ttl.
func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{cache: cache.New(ttl, 2*ttl)}
}

// Put stores c under a new session id and returns it.
func (s *Sessions) Put(c *Comparison) string {
	c.SessionID = uuid.NewString()
	s.cache.SetDefault(c.SessionID, c)
	return c.SessionID
}

// Get returns a stored comparison.
func (s *Sessions) Get(id string) (*Comparison, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	c, ok := v.(*Comparison)
	return c, ok
}

// Delete drops a session once it has been imported.
func (s *Sessions) Delete(id string) {
	s.cache.Delete(id)
}
