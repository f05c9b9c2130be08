package records

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/famledger/internal/domain"
	"github.com/aristath/famledger/internal/events"
	"github.com/aristath/famledger/internal/modules/importer"
)

// maxSaveAttempts bounds read-modify-write retries after a sha conflict.
const maxSaveAttempts = 3

// Service is the single owner of the in-memory record set. Every mutation
// reloads from the store, applies the change and saves under one lock.
type Service struct {
	store   Store
	bus     *events.Bus
	members []string
	log     zerolog.Logger

	mu       sync.Mutex
	records  []domain.Record
	location string
	loaded   bool
}

// NewService creates the service. bus may be nil.
func NewService(store Store, bus *events.Bus, members []string, log zerolog.Logger) *Service {
	return &Service{
		store:   store,
		bus:     bus,
		members: members,
		log:     log.With().Str("service", "records").Logger(),
	}
}

// Members returns the configured household members (empty means any).
func (s *Service) Members() []string {
	return s.members
}

// Refresh reloads the record set from the store.
func (s *Service) Refresh(ctx context.Context) LoadResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *Service) refreshLocked(ctx context.Context) LoadResult {
	res := s.store.Load(ctx)
	s.records = res.Records
	s.location = res.Location
	s.loaded = true
	return LoadResult{Records: cloneRecords(res.Records), Location: res.Location}
}

// Snapshot returns a copy of the current records, loading them on first use.
func (s *Service) Snapshot(ctx context.Context) LoadResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return s.refreshLocked(ctx)
	}
	return LoadResult{Records: cloneRecords(s.records), Location: s.location}
}

// List returns the filtered records from a fresh load, newest first.
func (s *Service) List(ctx context.Context, f Filter) LoadResult {
	res := s.Refresh(ctx)
	res.Records = f.Apply(res.Records)
	return res
}

// Get returns one record by id.
func (s *Service) Get(ctx context.Context, id string) (domain.Record, error) {
	for _, r := range s.Snapshot(ctx).Records {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.Record{}, ErrRecordNotFound
}

// Create validates and appends a record. The id is assigned here.
func (s *Service) Create(ctx context.Context, r domain.Record) (domain.Record, SaveResult, error) {
	r.ID = domain.NewRecordID()
	if err := s.prepare(&r); err != nil {
		return domain.Record{}, SaveResult{}, err
	}

	res, err := s.mutate(ctx, "create", []string{r.ID}, func(records []domain.Record) ([]domain.Record, error) {
		return append(records, r), nil
	})
	if err != nil {
		return domain.Record{}, SaveResult{}, err
	}
	return r, res, nil
}

// Patch holds the fields an update may change.
type Patch struct {
	Member       *string  `json:"member,omitempty"`
	Type         *string  `json:"type,omitempty"`
	Amount       *float64 `json:"amount,omitempty"`
	MainCategory *string  `json:"mainCategory,omitempty"`
	SubCategory  *string  `json:"subCategory,omitempty"`
	Description  *string  `json:"description,omitempty"`
	Date         *string  `json:"date,omitempty"`
}

func (p Patch) apply(r *domain.Record) {
	if p.Member != nil {
		r.Member = *p.Member
	}
	if p.Type != nil {
		r.Type = domain.RecordType(*p.Type)
	}
	if p.Amount != nil {
		r.Amount = *p.Amount
	}
	if p.MainCategory != nil {
		r.MainCategory = *p.MainCategory
	}
	if p.SubCategory != nil {
		r.SubCategory = *p.SubCategory
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Date != nil {
		r.Date = *p.Date
	}
}

// Update applies a patch to one record and returns it with the list of changed fields.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (domain.Record, []string, SaveResult, error) {
	var updated domain.Record
	var changes []string

	res, err := s.mutate(ctx, "update", []string{id}, func(records []domain.Record) ([]domain.Record, error) {
		for i := range records {
			if records[i].ID != id {
				continue
			}
			next := records[i]
			patch.apply(&next)
			if err := s.prepare(&next); err != nil {
				return nil, err
			}
			changes = diff(records[i], next)
			records[i] = next
			updated = next
			return records, nil
		}
		return nil, ErrRecordNotFound
	})
	if err != nil {
		return domain.Record{}, nil, SaveResult{}, err
	}
	return updated, changes, res, nil
}

// Delete removes one record.
func (s *Service) Delete(ctx context.Context, id string) (SaveResult, error) {
	return s.mutate(ctx, "delete", []string{id}, func(records []domain.Record) ([]domain.Record, error) {
		for i := range records {
			if records[i].ID == id {
				return append(records[:i], records[i+1:]...), nil
			}
		}
		return nil, ErrRecordNotFound
	})
}

// DeleteMany removes every listed record that exists and reports how many went.
func (s *Service) DeleteMany(ctx context.Context, ids []string) (int, SaveResult, error) {
	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}

	removed := 0
	res, err := s.mutate(ctx, "delete", ids, func(records []domain.Record) ([]domain.Record, error) {
		removed = 0
		kept := records[:0]
		for _, r := range records {
			if remove[r.ID] {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		return kept, nil
	})
	return removed, res, err
}

// Clear removes every record.
func (s *Service) Clear(ctx context.Context) (int, SaveResult, error) {
	cleared := 0
	res, err := s.mutate(ctx, "clear", nil, func(records []domain.Record) ([]domain.Record, error) {
		cleared = len(records)
		return []domain.Record{}, nil
	})
	return cleared, res, err
}

// Replace swaps the whole record set, used when restoring a backup.
func (s *Service) Replace(ctx context.Context, records []domain.Record) (SaveResult, error) {
	replacement := cloneRecords(records)
	for i := range replacement {
		if err := s.prepare(&replacement[i]); err != nil {
			return SaveResult{}, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return s.mutate(ctx, "restore", nil, func([]domain.Record) ([]domain.Record, error) {
		return replacement, nil
	})
}

// Sync pushes the current record set to the remote without changing it.
// Local writes made during a remote outage are merged in by the load.
func (s *Service) Sync(ctx context.Context) (SaveResult, error) {
	return s.mutate(ctx, "sync", nil, func(records []domain.Record) ([]domain.Record, error) {
		return records, nil
	})
}

// ImportOptions controls Import.
type ImportOptions struct {
	// Force imports exact duplicates too.
	Force bool
}

// ImportResult summarises an import.
type ImportResult struct {
	Imported []domain.Record      `json:"imported"`
	Skipped  []importer.Candidate `json:"skipped"`
	Save     SaveResult           `json:"save"`
}

// Import appends validated candidates in one save. Exact duplicates of
// existing records are skipped unless forced.
func (s *Service) Import(ctx context.Context, candidates []importer.Candidate, opts ImportOptions) (ImportResult, error) {
	var result ImportResult

	res, err := s.mutate(ctx, "import", nil, func(records []domain.Record) ([]domain.Record, error) {
		toImport := candidates
		result.Skipped = nil
		if !opts.Force {
			partition := importer.ReconcileStrict(candidates, records)
			toImport = partition.New
			result.Skipped = partition.Duplicates
		}

		result.Imported = make([]domain.Record, 0, len(toImport))
		for _, c := range toImport {
			r := c.Record()
			r.ID = domain.NewRecordID()
			if err := s.prepare(&r); err != nil {
				return nil, fmt.Errorf("row %d: %w", c.Row, err)
			}
			result.Imported = append(result.Imported, r)
		}
		return append(records, result.Imported...), nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	result.Save = res

	s.bus.Emit(events.RecordsImported, "records", &events.RecordsImportedData{
		Imported: len(result.Imported),
		Skipped:  len(result.Skipped),
		Location: res.Location,
	})
	return result, nil
}

func (s *Service) prepare(r *domain.Record) error {
	// a bad date is reported by Validate together with the other fields
	_ = r.Normalize()
	return r.Validate(s.members)
}

// mutate runs a read-modify-write cycle, retrying when the remote copy
// changed underneath.
func (s *Service) mutate(ctx context.Context, action string, ids []string, fn func([]domain.Record) ([]domain.Record, error)) (SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		loaded := s.store.Load(ctx)
		next, err := fn(cloneRecords(loaded.Records))
		if err != nil {
			return SaveResult{}, err
		}

		res, err := s.store.Save(ctx, next)
		if errors.Is(err, ErrConflict) {
			lastErr = err
			s.log.Warn().Int("attempt", attempt).Str("action", action).Msg("Remote records changed, retrying")
			continue
		}
		if err != nil {
			return SaveResult{}, err
		}

		s.records = next
		s.location = res.Location
		s.loaded = true

		s.log.Info().
			Str("action", action).
			Int("count", len(next)).
			Str("location", res.Location).
			Msg("Records saved")

		s.bus.Emit(events.RecordsChanged, "records", &events.RecordsChangedData{
			Action:   action,
			IDs:      ids,
			Count:    len(next),
			Location: res.Location,
		})
		return res, nil
	}

	return SaveResult{}, fmt.Errorf("giving up after %d attempts: %w", maxSaveAttempts, lastErr)
}

func diff(before, after domain.Record) []string {
	changes := make([]string, 0)
	if before.Member != after.Member {
		changes = append(changes, "member")
	}
	if before.Type != after.Type {
		changes = append(changes, "type")
	}
	if before.Amount != after.Amount {
		changes = append(changes, "amount")
	}
	if before.MainCategory != after.MainCategory {
		changes = append(changes, "mainCategory")
	}
	if before.SubCategory != after.SubCategory {
		changes = append(changes, "subCategory")
	}
	if before.Description != after.Description {
		changes = append(changes, "description")
	}
	if before.Date != after.Date {
		changes = append(changes, "date")
	}
	return changes
}

func cloneRecords(records []domain.Record) []domain.Record {
	out := make([]domain.Record, len(records))
	copy(out, records)
	return out
}
