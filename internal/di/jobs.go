package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/famledger/internal/config"
	"github.com/aristath/famledger/internal/database"
	"github.com/aristath/famledger/internal/reliability"
	"github.com/aristath/famledger/internal/scheduler"
)

// maintenanceSchedule runs the disk and snapshot checks hourly.
const maintenanceSchedule = "@hourly"

// RegisterJobs creates the background jobs and registers them with the scheduler
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil || container.Scheduler == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	instances := &JobInstances{
		Snapshot:    reliability.NewSnapshotJob(container.BackupService, log),
		Maintenance: reliability.NewMaintenanceJob(container.BackupService, cfg.DataDir, log),
	}

	if err := container.Scheduler.AddJob(cfg.BackupSchedule, instances.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to register snapshot job: %w", err)
	}
	if err := container.Scheduler.AddJob(maintenanceSchedule, instances.Maintenance); err != nil {
		return nil, fmt.Errorf("failed to register maintenance job: %w", err)
	}

	if container.OffsiteService != nil {
		instances.Offsite = reliability.NewOffsiteJob(container.OffsiteService, cfg.Offsite.RetentionDays, log)
		if err := container.Scheduler.AddJob(cfg.OffsiteSchedule, instances.Offsite); err != nil {
			return nil, fmt.Errorf("failed to register offsite job: %w", err)
		}
	}

	if container.RecordsDB != nil {
		instances.WALCheckpoints = scheduler.NewCheckWALCheckpointsJob(map[string]*database.DB{
			"records": container.RecordsDB,
		}, log)
		if err := container.Scheduler.AddJob(maintenanceSchedule, instances.WALCheckpoints); err != nil {
			return nil, fmt.Errorf("failed to register WAL checkpoint job: %w", err)
		}
	}

	return instances, nil
}
