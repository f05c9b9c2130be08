// Package reliability keeps point-in-time copies of the record set on disk
// and offsite, and the jobs that maintain them.
package reliability

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/famledger/internal/domain"
	"github.com/aristath/famledger/internal/events"
	"github.com/aristath/famledger/internal/modules/records"
)

const (
	snapshotPrefix  = "backup_"
	snapshotSuffix  = ".json"
	snapshotVersion = "2.0"
)

var (
	// ErrSnapshotNotFound is returned for an unknown snapshot name.
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrInvalidSnapshot is returned when a snapshot fails the integrity check.
	ErrInvalidSnapshot = errors.New("snapshot failed integrity check")
)

// RecordSource is the part of the records service that backups need.
type RecordSource interface {
	Snapshot(ctx context.Context) records.LoadResult
	Replace(ctx context.Context, recs []domain.Record) (records.SaveResult, error)
}

// Snapshot is the on-disk document of one backup.
type Snapshot struct {
	Records  []domain.Record  `json:"records"`
	Metadata SnapshotMetadata `json:"metadata"`
}

// SnapshotMetadata describes a snapshot.
type SnapshotMetadata struct {
	BackupTime  time.Time `json:"backupTime"`
	RecordCount int       `json:"recordCount"`
	Version     string    `json:"version"`
	Location    string    `json:"location,omitempty"`
	Hash        string    `json:"hash"`
}

// SnapshotInfo is a listing entry.
type SnapshotInfo struct {
	Name      string    `json:"fileName"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created"`
}

// BackupStats summarises the snapshot directory.
type BackupStats struct {
	TotalBackups   int        `json:"totalBackups"`
	TotalSize      int64      `json:"totalSize"`
	OldestBackup   *time.Time `json:"oldestBackup"`
	NewestBackup   *time.Time `json:"newestBackup"`
	LastBackupTime *time.Time `json:"lastBackupTime"`
}

// RestoreResult reports a completed restore.
type RestoreResult struct {
	Name        string `json:"restoredFrom"`
	RecordCount int    `json:"recordCount"`
	Location    string `json:"location"`
}

// BackupService writes JSON snapshots of the record set and keeps at most
// maxBackups of them.
type BackupService struct {
	source     RecordSource
	bus        *events.Bus
	dir        string
	maxBackups int
	now        func() time.Time
	log        zerolog.Logger

	mu         sync.Mutex
	lastBackup time.Time
	lastCount  int
	lastHash   string
}

// NewBackupService creates the service. Snapshots go to dir.
func NewBackupService(source RecordSource, bus *events.Bus, dir string, maxBackups int, log zerolog.Logger) *BackupService {
	if maxBackups <= 0 {
		maxBackups = 50
	}
	return &BackupService{
		source:     source,
		bus:        bus,
		dir:        dir,
		maxBackups: maxBackups,
		now:        time.Now,
		log:        log.With().Str("service", "backup").Logger(),
	}
}

// Dir returns the snapshot directory
func (s *BackupService) Dir() string { return s.dir }

// CreateSnapshot writes the current record set to a new snapshot file.
func (s *BackupService) CreateSnapshot(ctx context.Context) (SnapshotInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(ctx, s.source.Snapshot(ctx))
}

// SnapshotIfChanged writes a snapshot only when the record count or content
// changed since the last one. Empty record sets are never snapshotted.
func (s *BackupService) SnapshotIfChanged(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.source.Snapshot(ctx)
	if len(current.Records) == 0 {
		return false, nil
	}
	hash, err := ContentHash(current.Records)
	if err != nil {
		return false, err
	}
	if len(current.Records) == s.lastCount && hash == s.lastHash {
		return false, nil
	}

	s.log.Info().
		Int("previous_count", s.lastCount).
		Int("current_count", len(current.Records)).
		Msg("Record set changed, creating snapshot")
	if _, err := s.createLocked(ctx, current); err != nil {
		return false, err
	}
	return true, nil
}

func (s *BackupService) createLocked(_ context.Context, current records.LoadResult) (SnapshotInfo, error) {
	startTime := time.Now()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return SnapshotInfo{}, fmt.Errorf("failed to create backup directory: %w", err)
	}

	hash, err := ContentHash(current.Records)
	if err != nil {
		return SnapshotInfo{}, err
	}

	created := s.now().UTC()
	doc := Snapshot{
		Records: current.Records,
		Metadata: SnapshotMetadata{
			BackupTime:  created,
			RecordCount: len(current.Records),
			Version:     snapshotVersion,
			Location:    current.Location,
			Hash:        hash,
		},
	}
	if doc.Records == nil {
		doc.Records = []domain.Record{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	name := s.uniqueName(created)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return SnapshotInfo{}, fmt.Errorf("failed to write snapshot: %w", err)
	}

	s.lastBackup = created
	s.lastCount = len(current.Records)
	s.lastHash = hash

	if err := s.rotate(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to rotate old snapshots")
	}

	s.log.Info().
		Str("file", name).
		Int("records", len(current.Records)).
		Dur("duration_ms", time.Since(startTime)).
		Msg("Snapshot created")

	s.bus.Emit(events.BackupCreated, "reliability", &events.BackupCreatedData{
		Name:        name,
		RecordCount: len(current.Records),
	})

	return SnapshotInfo{Name: name, Size: int64(len(data)), CreatedAt: created}, nil
}

// uniqueName builds backup_<ISO time with : and . replaced>.json, stepping a
// millisecond forward when the name is taken.
func (s *BackupService) uniqueName(t time.Time) string {
	for {
		name := snapshotName(t)
		if _, err := os.Stat(filepath.Join(s.dir, name)); errors.Is(err, os.ErrNotExist) {
			return name
		}
		t = t.Add(time.Millisecond)
	}
}

const snapshotLayout = "2006-01-02T15-04-05.000Z"

func snapshotName(t time.Time) string {
	stamp := strings.Replace(t.UTC().Format(snapshotLayout), ".", "-", 1)
	return snapshotPrefix + stamp + snapshotSuffix
}

func parseSnapshotName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotSuffix) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotSuffix)
	i := strings.LastIndex(stamp, "-")
	if i < 0 {
		return time.Time{}, false
	}
	t, err := time.Parse(snapshotLayout, stamp[:i]+"."+stamp[i+1:])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// rotate keeps the newest maxBackups snapshots.
func (s *BackupService) rotate() error {
	list, err := s.List()
	if err != nil {
		return err
	}
	if len(list) <= s.maxBackups {
		return nil
	}

	for _, info := range list[s.maxBackups:] {
		if err := os.Remove(filepath.Join(s.dir, info.Name)); err != nil {
			s.log.Warn().Err(err).Str("file", info.Name).Msg("Failed to delete old snapshot")
			continue
		}
		s.log.Debug().Str("file", info.Name).Msg("Deleted old snapshot")
	}
	return nil
}

// List returns the snapshots, newest first.
func (s *BackupService) List() ([]SnapshotInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []SnapshotInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	list := make([]SnapshotInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		created, ok := parseSnapshotName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		list = append(list, SnapshotInfo{Name: e.Name(), Size: info.Size(), CreatedAt: created})
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name > list[j].Name
	})
	return list, nil
}

// Read loads a snapshot by name.
func (s *BackupService) Read(name string) (*Snapshot, error) {
	if _, ok := parseSnapshotName(name); !ok || filepath.Base(name) != name {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, name)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var doc Snapshot
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", name, err)
	}
	return &doc, nil
}

// Restore replaces the live record set with a snapshot after checking it.
func (s *BackupService) Restore(ctx context.Context, name string) (RestoreResult, error) {
	doc, err := s.Read(name)
	if err != nil {
		return RestoreResult{}, err
	}

	report := CheckIntegrity(doc.Records)
	if !report.Valid {
		return RestoreResult{}, fmt.Errorf("%w: %s", ErrInvalidSnapshot, strings.Join(report.Issues, "; "))
	}

	res, err := s.source.Replace(ctx, doc.Records)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("failed to restore %s: %w", name, err)
	}

	s.log.Info().Str("file", name).Int("records", len(doc.Records)).Str("location", res.Location).Msg("Restored snapshot")
	return RestoreResult{Name: name, RecordCount: len(doc.Records), Location: res.Location}, nil
}

// Stats summarises the snapshot directory.
func (s *BackupService) Stats() (BackupStats, error) {
	list, err := s.List()
	if err != nil {
		return BackupStats{}, err
	}

	stats := BackupStats{TotalBackups: len(list)}
	for _, info := range list {
		stats.TotalSize += info.Size
	}
	if len(list) > 0 {
		newest, oldest := list[0].CreatedAt, list[len(list)-1].CreatedAt
		stats.NewestBackup = &newest
		stats.OldestBackup = &oldest
	}

	s.mu.Lock()
	if !s.lastBackup.IsZero() {
		last := s.lastBackup
		stats.LastBackupTime = &last
	}
	s.mu.Unlock()
	return stats, nil
}

// ContentHash fingerprints a record set.
func ContentHash(recs []domain.Record) (string, error) {
	if recs == nil {
		recs = []domain.Record{}
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return "", fmt.Errorf("failed to hash records: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
