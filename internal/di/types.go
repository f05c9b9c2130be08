// Package di wires the application's dependencies.
package di

import (
	"github.com/aristath/famledger/internal/clients/github"
	"github.com/aristath/famledger/internal/database"
	"github.com/aristath/famledger/internal/events"
	"github.com/aristath/famledger/internal/modules/importer"
	"github.com/aristath/famledger/internal/modules/records"
	"github.com/aristath/famledger/internal/reliability"
	"github.com/aristath/famledger/internal/scheduler"
	"github.com/aristath/famledger/internal/secrets"
)

// Container holds every long-lived dependency. It is the single source of
// truth handed to the server.
type Container struct {
	// Databases
	RecordsDB *database.DB // nil with the JSON backend

	// Infrastructure
	EventBus     *events.Bus
	GitHubClient *github.Client // nil when no repository is configured
	Scheduler    *scheduler.Scheduler

	// Credentials
	SecretManager      *secrets.Manager
	CredentialResolver *secrets.Resolver

	// Records
	LocalBackend   records.LocalBackend
	RecordStore    *records.MirrorStore
	RecordsService *records.Service
	ImportSessions *importer.Sessions

	// Backups
	BackupService  *reliability.BackupService
	Uploader       reliability.Uploader        // nil without an offsite target
	OffsiteService *reliability.OffsiteService // nil without an offsite target
}

// JobInstances holds the scheduled jobs for manual triggering
type JobInstances struct {
	Snapshot       scheduler.Job
	Offsite        scheduler.Job // nil without an offsite target
	Maintenance    scheduler.Job
	WALCheckpoints scheduler.Job // nil with the JSON backend
}

// Close releases databases and clients
func (c *Container) Close() {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if closer, ok := c.Uploader.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if c.RecordsDB != nil {
		_ = c.RecordsDB.Close()
	}
}
