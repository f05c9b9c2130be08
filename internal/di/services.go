package di

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/famledger/internal/clients/github"
	"github.com/aristath/famledger/internal/config"
	"github.com/aristath/famledger/internal/events"
	"github.com/aristath/famledger/internal/modules/importer"
	"github.com/aristath/famledger/internal/modules/records"
	"github.com/aristath/famledger/internal/reliability"
	"github.com/aristath/famledger/internal/scheduler"
	"github.com/aristath/famledger/internal/secrets"
)

// importSessionTTL is how long a compare result stays importable.
const importSessionTTL = 30 * time.Minute

// InitializeServices creates the clients and services on top of the databases
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.EventBus = events.NewBus(log)
	container.Scheduler = scheduler.New(log)

	// Remote repository client; unauthenticated until a credential is resolved per call
	if cfg.GitHub.Configured() {
		container.GitHubClient = github.NewClient(github.Options{
			BaseURL: cfg.GitHub.APIURL,
			Owner:   cfg.GitHub.Owner,
			Repo:    cfg.GitHub.Repo,
			Branch:  cfg.GitHub.Branch,
			Timeout: cfg.GitHub.Timeout(),
		}, log)
	}

	// Secret manager with optional mirror and verifier
	managerCfg := secrets.ManagerConfig{
		Dir:       filepath.Join(cfg.DataDir, "secrets"),
		Algorithm: cfg.SecretCipher,
	}
	verifyClient := container.GitHubClient
	if verifyClient == nil {
		verifyClient = github.NewClient(github.Options{BaseURL: cfg.GitHub.APIURL, Timeout: cfg.GitHub.Timeout()}, log)
	}
	managerCfg.Verifier = secrets.NewGitHubVerifier(verifyClient)
	if container.GitHubClient != nil && !cfg.LocalOnly && cfg.GitHub.SecretPath != "" {
		managerCfg.Mirror = secrets.NewGitHubMirror(container.GitHubClient, cfg.GitHub.SecretPath)
	}
	container.SecretManager = secrets.NewManager(managerCfg, log)
	container.CredentialResolver = secrets.NewResolver(cfg.GitHubToken, container.SecretManager, log)

	// Local copy of the records
	if container.RecordsDB != nil {
		container.LocalBackend = records.NewSQLiteBackend(container.RecordsDB)
	} else {
		container.LocalBackend = records.NewJSONFileBackend(filepath.Join(cfg.DataDir, "data.json"))
	}

	container.RecordStore = records.NewMirrorStore(records.MirrorStoreConfig{
		Local:       container.LocalBackend,
		Remote:      container.GitHubClient,
		Path:        cfg.GitHub.DataPath,
		Creds:       container.CredentialResolver,
		LocalOnly:   cfg.LocalOnly,
		PendingPath: filepath.Join(cfg.DataDir, "records.pending.json"),
	}, log)
	container.RecordsService = records.NewService(container.RecordStore, container.EventBus, cfg.Members, log)
	container.ImportSessions = importer.NewSessions(importSessionTTL)

	// Backups
	container.BackupService = reliability.NewBackupService(
		container.RecordsService,
		container.EventBus,
		filepath.Join(cfg.DataDir, "backups"),
		cfg.MaxBackups,
		log,
	)

	if cfg.Offsite.Enabled() {
		uploader, err := reliability.NewUploader(ctx, cfg.Offsite, log)
		if err != nil {
			// Offsite backups are optional; the rest of the app runs without them
			log.Error().Err(err).Str("provider", cfg.Offsite.Provider).Msg("Offsite backups disabled")
		} else {
			container.Uploader = uploader
			container.OffsiteService = reliability.NewOffsiteService(uploader, container.RecordsService, container.EventBus, cfg.Offsite.Prefix, log)
		}
	}

	log.Info().
		Str("backend", container.LocalBackend.Name()).
		Bool("remote_configured", container.GitHubClient != nil).
		Bool("local_only", cfg.LocalOnly).
		Bool("offsite", container.OffsiteService != nil).
		Msg("Services initialized")

	return nil
}
