package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// jobTimeout bounds one scheduled run.
const jobTimeout = 5 * time.Minute

// SnapshotJob snapshots the record set when it changed
type SnapshotJob struct {
	backups *BackupService
	log     zerolog.Logger
}

// NewSnapshotJob creates a new snapshot job
func NewSnapshotJob(backups *BackupService, log zerolog.Logger) *SnapshotJob {
	return &SnapshotJob{
		backups: backups,
		log:     log.With().Str("job", "snapshot").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *SnapshotJob) Name() string {
	return "snapshot"
}

// Run executes the snapshot job
func (j *SnapshotJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	created, err := j.backups.SnapshotIfChanged(ctx)
	if err != nil {
		return fmt.Errorf("snapshot failed: %w", err)
	}
	if !created {
		j.log.Debug().Msg("No changes since last snapshot")
	}
	return nil
}

// OffsiteJob uploads an archive and rotates old ones
type OffsiteJob struct {
	offsite       *OffsiteService
	retentionDays int
	log           zerolog.Logger
}

// NewOffsiteJob creates a new offsite backup job
func NewOffsiteJob(offsite *OffsiteService, retentionDays int, log zerolog.Logger) *OffsiteJob {
	return &OffsiteJob{
		offsite:       offsite,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "offsite_backup").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *OffsiteJob) Name() string {
	return "offsite_backup"
}

// Run executes the offsite backup job
func (j *OffsiteJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := j.offsite.CreateAndUpload(ctx); err != nil {
		return err
	}
	if _, err := j.offsite.RotateOldBackups(ctx, j.retentionDays); err != nil {
		// Upload succeeded; rotation retries next run
		j.log.Warn().Err(err).Msg("Offsite rotation failed")
	}
	return nil
}

// MaintenanceJob checks free disk space and the newest snapshot.
type MaintenanceJob struct {
	backups *BackupService
	dataDir string
	log     zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job
func NewMaintenanceJob(backups *BackupService, dataDir string, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		backups: backups,
		dataDir: dataDir,
		log:     log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run() error {
	j.log.Info().Msg("Starting maintenance")
	startTime := time.Now()

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	if err := j.verifyLatestSnapshot(); err != nil {
		j.log.Error().Err(err).Msg("Snapshot verification failed")
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Maintenance completed successfully")
	return nil
}

// checkDiskSpace fails when less than 100MB is free
func (j *MaintenanceJob) checkDiskSpace() error {
	usage, err := disk.Usage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableMB := float64(usage.Free) / 1024 / 1024
	j.log.Debug().Float64("available_mb", availableMB).Float64("used_percent", usage.UsedPercent).Msg("Disk space check")

	if availableMB < 100 {
		j.log.Error().Float64("available_mb", availableMB).Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("only %.0f MB free in %s", availableMB, j.dataDir)
	}
	if usage.UsedPercent > 90 {
		j.log.Warn().Float64("used_percent", usage.UsedPercent).Msg("Disk space running low")
	}
	return nil
}

func (j *MaintenanceJob) verifyLatestSnapshot() error {
	list, err := j.backups.List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		j.log.Debug().Msg("No snapshots to verify")
		return nil
	}

	doc, err := j.backups.Read(list[0].Name)
	if err != nil {
		return err
	}
	report := CheckIntegrity(doc.Records)
	if !report.Valid {
		return fmt.Errorf("%w: %s has %d issues", ErrInvalidSnapshot, list[0].Name, len(report.Issues))
	}
	j.log.Debug().Str("file", list[0].Name).Int("records", report.RecordCount).Msg("Snapshot verified")
	return nil
}
