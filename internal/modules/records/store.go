// Package records owns the household record set: where it is persisted and
// how it is mutated.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/famledger/internal/domain"
)

// Locations a load or save can be served from.
const (
	LocationRemote = "remote"
	LocationLocal  = "local"
)

var (
	// ErrConflict means the remote copy changed between read and write.
	ErrConflict = errors.New("remote records changed concurrently")
	// ErrRecordNotFound is returned for an unknown record id.
	ErrRecordNotFound = errors.New("record not found")
)

// LoadResult is what a Store read produced.
type LoadResult struct {
	Records  []domain.Record
	Location string
}

// SaveResult reports where a write landed.
type SaveResult struct {
	Location  string `json:"location"`
	Count     int    `json:"count"`
	CommitSHA string `json:"commitSha,omitempty"`
}

// Store persists the whole record set. Load never fails: any problem
// degrades to an empty list.
type Store interface {
	Load(ctx context.Context) LoadResult
	Save(ctx context.Context, records []domain.Record) (SaveResult, error)
}

// LocalBackend is the on-machine copy of the record set.
type LocalBackend interface {
	Name() string
	Read(ctx context.Context) ([]domain.Record, error)
	Write(ctx context.Context, records []domain.Record) error
}

// dataFile is the persisted document shape.
type dataFile struct {
	Records  []domain.Record `json:"records"`
	Metadata *dataMetadata   `json:"metadata,omitempty"`
}

type dataMetadata struct {
	LastUpdated time.Time `json:"lastUpdated"`
	Version     string    `json:"version"`
	RecordCount int       `json:"recordCount"`
}

func encodeDataFile(records []domain.Record) ([]byte, error) {
	if records == nil {
		records = []domain.Record{}
	}
	doc := dataFile{
		Records: records,
		Metadata: &dataMetadata{
			LastUpdated: time.Now().UTC(),
			Version:     "1.0",
			RecordCount: len(records),
		},
	}
	return json.MarshalIndent(doc, "", "  ")
}

// decodeDataFile accepts either a bare array or {"records": [...]}.
func decodeDataFile(data []byte) ([]domain.Record, error) {
	var list []domain.Record
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var doc dataFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse records document: %w", err)
	}
	return doc.Records, nil
}

// canonicalize normalizes legacy dates in place. Records whose date cannot be
// parsed are kept as they are.
func canonicalize(records []domain.Record, log zerolog.Logger) []domain.Record {
	for i := range records {
		date, err := domain.NormalizeDate(records[i].Date)
		if err != nil {
			log.Warn().Str("id", records[i].ID).Str("date", records[i].Date).Msg("Record has unparseable date")
			continue
		}
		records[i].Date = date
	}
	if records == nil {
		return []domain.Record{}
	}
	return records
}
