package reliability

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/famledger/internal/config"
	"github.com/aristath/famledger/internal/domain"
	"github.com/aristath/famledger/internal/events"
)

const (
	archiveSuffix  = ".msgpack.gz"
	archiveLayout  = "2006-01-02-150405"
	archiveVersion = 1
	// minArchivesToKeep survive rotation regardless of age.
	minArchivesToKeep = 3
)

// ObjectInfo is one stored object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// Uploader stores archives in a bucket.
type Uploader interface {
	Name() string
	Upload(ctx context.Context, key string, body io.Reader, size int64) error
	Download(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// Archive is the offsite payload.
type Archive struct {
	Version     int             `msgpack:"version"`
	CreatedAt   time.Time       `msgpack:"created_at"`
	RecordCount int             `msgpack:"record_count"`
	Hash        string          `msgpack:"hash"`
	Records     []domain.Record `msgpack:"records"`
}

// ArchiveInfo is a listing entry.
type ArchiveInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// OffsiteService uploads compressed archives of the record set.
type OffsiteService struct {
	uploader Uploader
	source   RecordSource
	bus      *events.Bus
	prefix   string
	now      func() time.Time
	log      zerolog.Logger
}

// NewOffsiteService creates the service. prefix defaults to famledger-backup-.
func NewOffsiteService(uploader Uploader, source RecordSource, bus *events.Bus, prefix string, log zerolog.Logger) *OffsiteService {
	if prefix == "" {
		prefix = "famledger-backup-"
	}
	return &OffsiteService{
		uploader: uploader,
		source:   source,
		bus:      bus,
		prefix:   prefix,
		now:      time.Now,
		log:      log.With().Str("service", "offsite_backup").Logger(),
	}
}

// Target names the storage provider
func (s *OffsiteService) Target() string {
	return s.uploader.Name()
}

// CreateAndUpload archives the current record set and uploads it.
func (s *OffsiteService) CreateAndUpload(ctx context.Context) (ArchiveInfo, error) {
	s.log.Info().Str("target", s.uploader.Name()).Msg("Starting offsite backup")
	startTime := time.Now()

	current := s.source.Snapshot(ctx)
	created := s.now().UTC()
	data, err := EncodeArchive(current.Records, created)
	if err != nil {
		return ArchiveInfo{}, err
	}

	name := s.prefix + created.Format(archiveLayout) + archiveSuffix
	if err := s.uploader.Upload(ctx, name, bytes.NewReader(data), int64(len(data))); err != nil {
		return ArchiveInfo{}, fmt.Errorf("failed to upload to %s: %w", s.uploader.Name(), err)
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("archive", name).
		Int("records", len(current.Records)).
		Int("size_bytes", len(data)).
		Msg("Offsite backup completed successfully")

	s.bus.Emit(events.BackupCreated, "reliability", &events.BackupCreatedData{
		Name:        name,
		RecordCount: len(current.Records),
		Offsite:     true,
	})

	return ArchiveInfo{Filename: name, Timestamp: created, SizeBytes: int64(len(data))}, nil
}

// ListBackups lists the archives, newest first.
func (s *OffsiteService) ListBackups(ctx context.Context) ([]ArchiveInfo, error) {
	objects, err := s.uploader.List(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list offsite backups: %w", err)
	}

	backups := make([]ArchiveInfo, 0, len(objects))
	now := s.now()
	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, s.prefix) || !strings.HasSuffix(obj.Key, archiveSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(obj.Key, s.prefix), archiveSuffix)
		timestamp, err := time.Parse(archiveLayout, stamp)
		if err != nil {
			s.log.Warn().Str("filename", obj.Key).Msg("Failed to parse timestamp from filename")
			continue
		}
		backups = append(backups, ArchiveInfo{
			Filename:  obj.Key,
			Timestamp: timestamp,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// Fetch downloads and decodes one archive.
func (s *OffsiteService) Fetch(ctx context.Context, filename string) (*Archive, error) {
	if !strings.HasPrefix(filename, s.prefix) || !strings.HasSuffix(filename, archiveSuffix) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, filename)
	}
	data, err := s.uploader.Download(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", filename, err)
	}
	return DecodeArchive(data)
}

// Restore replaces the live record set with an offsite archive.
func (s *OffsiteService) Restore(ctx context.Context, filename string) (RestoreResult, error) {
	archive, err := s.Fetch(ctx, filename)
	if err != nil {
		return RestoreResult{}, err
	}
	report := CheckIntegrity(archive.Records)
	if !report.Valid {
		return RestoreResult{}, fmt.Errorf("%w: %s", ErrInvalidSnapshot, strings.Join(report.Issues, "; "))
	}
	res, err := s.source.Replace(ctx, archive.Records)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("failed to restore %s: %w", filename, err)
	}
	s.log.Info().Str("archive", filename).Int("records", len(archive.Records)).Msg("Restored offsite archive")
	return RestoreResult{Name: filename, RecordCount: len(archive.Records), Location: res.Location}, nil
}

// RotateOldBackups deletes archives older than retentionDays, always keeping
// the newest few. Zero keeps everything.
func (s *OffsiteService) RotateOldBackups(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	if len(backups) <= minArchivesToKeep {
		return 0, nil
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, b := range backups[minArchivesToKeep:] {
		if !b.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.uploader.Delete(ctx, b.Filename); err != nil {
			s.log.Error().Err(err).Str("filename", b.Filename).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	s.log.Info().Int("deleted", deleted).Int("remaining", len(backups)-deleted).Msg("Offsite backup rotation completed")
	return deleted, nil
}

// EncodeArchive msgpack-encodes and gzips a record set.
func EncodeArchive(recs []domain.Record, created time.Time) ([]byte, error) {
	hash, err := ContentHash(recs)
	if err != nil {
		return nil, err
	}
	archive := Archive{
		Version:     archiveVersion,
		CreatedAt:   created,
		RecordCount: len(recs),
		Hash:        hash,
		Records:     recs,
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := msgpack.NewEncoder(gz)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(&archive); err != nil {
		return nil, fmt.Errorf("failed to encode archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress archive: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeArchive reverses EncodeArchive and verifies the content hash.
func DecodeArchive(data []byte) (*Archive, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer gz.Close()

	dec := msgpack.NewDecoder(gz)
	dec.SetCustomStructTag("json")
	var archive Archive
	if err := dec.Decode(&archive); err != nil {
		return nil, fmt.Errorf("failed to decode archive: %w", err)
	}

	hash, err := ContentHash(archive.Records)
	if err != nil {
		return nil, err
	}
	if hash != archive.Hash {
		return nil, errors.New("archive content does not match its hash")
	}
	return &archive, nil
}

// NewUploader builds the uploader for the configured offsite provider.
func NewUploader(ctx context.Context, cfg config.OffsiteConfig, log zerolog.Logger) (Uploader, error) {
	switch cfg.Provider {
	case "s3":
		return NewS3Uploader(ctx, S3Options{
			Bucket:          cfg.Bucket,
			Endpoint:        cfg.Endpoint,
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		}, log)
	case "gcs":
		return NewGCSUploader(ctx, cfg.Bucket, cfg.CredentialsFile, log)
	default:
		return nil, fmt.Errorf("unknown offsite provider %q", cfg.Provider)
	}
}
