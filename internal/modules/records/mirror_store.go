package records

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/famledger/internal/clients/github"
	"github.com/aristath/famledger/internal/domain"
	"github.com/aristath/famledger/internal/secrets"
)

// CredentialResolver supplies the token for remote calls.
type CredentialResolver interface {
	Resolve(ctx context.Context) (secrets.Credential, bool)
}

// MirrorStore reads and writes the repository copy first and falls back to
// the local backend whenever the remote is unusable.
type MirrorStore struct {
	local     LocalBackend
	remote    *github.Client // nil when no repository is configured
	path      string
	creds     CredentialResolver
	localOnly bool
	log       zerolog.Logger

	mu          sync.Mutex
	sha         string // blob sha of the last remote read or write
	pendingPath string
	pending     *pendingState // local writes the remote has not received
}

// MirrorStoreConfig configures a MirrorStore.
type MirrorStoreConfig struct {
	Local     LocalBackend
	Remote    *github.Client
	Path      string
	Creds     CredentialResolver
	LocalOnly bool
	// PendingPath persists the unsynced-writes marker across restarts.
	// Empty keeps it in memory only.
	PendingPath string
}

// NewMirrorStore creates the store.
func NewMirrorStore(cfg MirrorStoreConfig, log zerolog.Logger) *MirrorStore {
	s := &MirrorStore{
		local:       cfg.Local,
		remote:      cfg.Remote,
		path:        cfg.Path,
		creds:       cfg.Creds,
		localOnly:   cfg.LocalOnly,
		pendingPath: cfg.PendingPath,
		log:         log.With().Str("component", "record_store").Logger(),
	}

	pending, err := readPendingMarker(cfg.PendingPath)
	if err != nil {
		s.log.Warn().Err(err).Msg("Ignoring unreadable pending marker")
	}
	if pending != nil {
		s.log.Info().Time("since", pending.Since).Msg("Local records have writes not yet pushed to remote")
	}
	s.pending = pending
	return s
}

// Pending reports whether the local copy holds writes the remote has not received.
func (s *MirrorStore) Pending() bool {
	return s.getPending() != nil
}

// remoteClient returns an authenticated client, or nil for LOCAL_ONLY.
func (s *MirrorStore) remoteClient(ctx context.Context) (*github.Client, string) {
	if s.localOnly || s.remote == nil || s.creds == nil {
		return nil, ""
	}
	cred, ok := s.creds.Resolve(ctx)
	if !ok {
		return nil, ""
	}
	return s.remote.WithToken(cred.Token), cred.Source
}

// RemoteAvailable reports whether a credential and repository are configured.
func (s *MirrorStore) RemoteAvailable(ctx context.Context) bool {
	client, _ := s.remoteClient(ctx)
	return client != nil
}

// Load reads the remote copy, falling back to the local backend. Pending
// local writes are merged into the remote copy and pushed first.
func (s *MirrorStore) Load(ctx context.Context) LoadResult {
	if client, source := s.remoteClient(ctx); client != nil {
		if pending := s.getPending(); pending != nil {
			if res, ok := s.loadPending(ctx, client, pending); ok {
				return res
			}
			return LoadResult{Records: s.loadLocal(ctx), Location: LocationLocal}
		}

		records, err := s.loadRemote(ctx, client)
		if err == nil {
			s.log.Debug().Int("count", len(records)).Str("credential", source).Msg("Loaded records from remote")
			return LoadResult{Records: canonicalize(records, s.log), Location: LocationRemote}
		}
		if errors.Is(err, github.ErrNotFound) {
			s.log.Info().Str("path", s.path).Msg("Remote records file does not exist yet, using local copy")
		} else {
			s.log.Warn().Err(err).Msg("Remote load failed, using local copy")
		}
	}

	return LoadResult{Records: s.loadLocal(ctx), Location: LocationLocal}
}

func (s *MirrorStore) loadRemote(ctx context.Context, client *github.Client) ([]domain.Record, error) {
	content, err := client.GetContent(ctx, s.path)
	if err != nil {
		if errors.Is(err, github.ErrNotFound) {
			s.setSHA("")
		}
		return nil, err
	}
	records, err := decodeDataFile(content.Content)
	if err != nil {
		return nil, err
	}
	s.setSHA(content.SHA)
	return records, nil
}

// loadPending pushes the merged set of local and remote records. It reports
// false when the remote could not be read, leaving the local copy in charge.
func (s *MirrorStore) loadPending(ctx context.Context, client *github.Client, pending *pendingState) (LoadResult, bool) {
	remote, err := s.loadRemote(ctx, client)
	if err != nil && !errors.Is(err, github.ErrNotFound) {
		s.log.Warn().Err(err).Msg("Remote load failed, local writes stay pending")
		return LoadResult{}, false
	}

	merged := mergePending(s.loadLocal(ctx), canonicalize(remote, s.log), pending.base())
	if _, err := s.pushPending(ctx, client, merged); err != nil {
		s.log.Warn().Err(err).Msg("Failed to push pending local records")
		return LoadResult{Records: merged, Location: LocationLocal}, true
	}
	return LoadResult{Records: merged, Location: LocationRemote}, true
}

// pushPending writes merged to the remote, then to the local copy, and
// clears the pending marker.
func (s *MirrorStore) pushPending(ctx context.Context, client *github.Client, merged []domain.Record) (SaveResult, error) {
	res, err := s.saveRemote(ctx, client, merged)
	if err != nil {
		if errors.Is(err, github.ErrConflict) {
			s.setSHA("")
		}
		return SaveResult{}, err
	}
	if err := s.local.Write(ctx, merged); err != nil {
		s.log.Warn().Err(err).Msg("Failed to refresh local copy after remote save")
	}
	s.clearPending()
	s.log.Info().Int("count", len(merged)).Msg("Pushed pending local records to remote")
	return res, nil
}

func (s *MirrorStore) loadLocal(ctx context.Context) []domain.Record {
	records, err := s.local.Read(ctx)
	if err != nil {
		s.log.Warn().Err(err).Str("backend", s.local.Name()).Msg("Local records unreadable, starting empty")
		return []domain.Record{}
	}
	return canonicalize(records, s.log)
}

// Save writes the full record set. Remote failures other than a sha conflict
// fall back to the local backend and still count as success.
func (s *MirrorStore) Save(ctx context.Context, records []domain.Record) (SaveResult, error) {
	client, _ := s.remoteClient(ctx)
	if client == nil {
		return s.saveLocal(ctx, records)
	}

	if pending := s.getPending(); pending != nil {
		return s.savePending(ctx, client, pending, records)
	}

	res, err := s.saveRemote(ctx, client, records)
	if err == nil {
		if werr := s.local.Write(ctx, records); werr != nil {
			s.log.Warn().Err(werr).Msg("Failed to refresh local copy after remote save")
		}
		return res, nil
	}
	if errors.Is(err, github.ErrConflict) {
		s.setSHA("")
		return SaveResult{}, fmt.Errorf("%w: %v", ErrConflict, err)
	}

	s.log.Warn().Err(err).Msg("Remote save failed, writing local copy")
	return s.saveLocal(ctx, records)
}

// savePending writes records merged with anything created remotely since
// the local copy went pending.
func (s *MirrorStore) savePending(ctx context.Context, client *github.Client, pending *pendingState, records []domain.Record) (SaveResult, error) {
	remote, err := s.loadRemote(ctx, client)
	if err != nil && !errors.Is(err, github.ErrNotFound) {
		s.log.Warn().Err(err).Msg("Remote unavailable, writing local copy")
		return s.saveLocal(ctx, records)
	}

	merged := mergePending(records, canonicalize(remote, s.log), pending.base())
	res, err := s.pushPending(ctx, client, merged)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, github.ErrConflict) {
		return SaveResult{}, fmt.Errorf("%w: %v", ErrConflict, err)
	}
	s.log.Warn().Err(err).Msg("Remote save failed, writing local copy")
	return s.saveLocal(ctx, records)
}

func (s *MirrorStore) saveRemote(ctx context.Context, client *github.Client, records []domain.Record) (SaveResult, error) {
	data, err := encodeDataFile(records)
	if err != nil {
		return SaveResult{}, fmt.Errorf("failed to encode records: %w", err)
	}

	sha := s.getSHA()
	if sha == "" {
		sha, err = client.GetSHA(ctx, s.path)
		if err != nil {
			return SaveResult{}, err
		}
	}

	put, err := client.PutContent(ctx, s.path, github.PutRequest{
		Message: fmt.Sprintf("Update records - %s (%d records)", time.Now().UTC().Format(time.RFC3339), len(records)),
		Content: data,
		SHA:     sha,
	})
	if err != nil {
		return SaveResult{}, err
	}
	s.setSHA(put.SHA)

	s.log.Info().Int("count", len(records)).Str("commit", put.CommitSHA).Msg("Saved records to remote")
	return SaveResult{Location: LocationRemote, Count: len(records), CommitSHA: put.CommitSHA}, nil
}

func (s *MirrorStore) saveLocal(ctx context.Context, records []domain.Record) (SaveResult, error) {
	s.markPending(ctx)
	if err := s.local.Write(ctx, records); err != nil {
		return SaveResult{}, fmt.Errorf("failed to save records locally: %w", err)
	}
	s.log.Info().Int("count", len(records)).Str("backend", s.local.Name()).Msg("Saved records locally")
	return SaveResult{Location: LocationLocal, Count: len(records)}, nil
}

// markPending records that the local copy is about to diverge from the
// remote. The base set is captured only on the first divergent write.
func (s *MirrorStore) markPending(ctx context.Context) {
	if s.localOnly || s.remote == nil || s.getPending() != nil {
		return
	}

	base, err := s.local.Read(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Local records unreadable, pending base is empty")
		base = nil
	}
	pending := &pendingState{Since: time.Now().UTC(), BaseIDs: recordIDs(base)}
	if err := writePendingMarker(s.pendingPath, pending); err != nil {
		s.log.Warn().Err(err).Msg("Failed to persist pending marker")
	}

	s.mu.Lock()
	s.pending = pending
	s.mu.Unlock()
}

func (s *MirrorStore) clearPending() {
	if err := removePendingMarker(s.pendingPath); err != nil {
		s.log.Warn().Err(err).Msg("Failed to remove pending marker")
	}
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

func (s *MirrorStore) getPending() *pendingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *MirrorStore) getSHA() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sha
}

func (s *MirrorStore) setSHA(sha string) {
	s.mu.Lock()
	s.sha = sha
	s.mu.Unlock()
}
