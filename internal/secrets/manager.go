// Package secrets keeps the GitHub access token encrypted at rest and
// resolves which token the rest of the application should use.
package secrets

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrInvalidSecret is returned when a secret fails format validation.
	ErrInvalidSecret = errors.New("invalid secret")
	// ErrSecretUnavailable means no readable secret is stored.
	ErrSecretUnavailable = errors.New("secret unavailable")
	// ErrIntegrity means a stored ciphertext failed authentication.
	ErrIntegrity = errors.New("secret integrity check failed")
)

const (
	tokenFile  = "github_token.enc"
	backupFile = "github_token.enc.bak"
	keyFile    = "github_token.key"
)

// Mirror stores the encrypted envelope somewhere off the machine. The token
// used to authenticate is passed per call and may be empty for reads.
type Mirror interface {
	Push(ctx context.Context, token string, envelope []byte) error
	Pull(ctx context.Context, token string) ([]byte, error)
	Remove(ctx context.Context, token string) error
}

// Verifier checks a token against the remote service and returns the account login.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Status describes what is stored, without revealing the secret.
type Status struct {
	Exists    bool      `json:"exists"`
	Location  string    `json:"location,omitempty"` // primary, backup or remote
	Algorithm string    `json:"algorithm,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Manager owns the encrypted token files in one directory.
type Manager struct {
	dir       string
	algorithm string
	mirror    Mirror
	verifier  Verifier
	mu        sync.Mutex
	log       zerolog.Logger
}

// ManagerConfig configures a Manager. Mirror and Verifier are optional.
type ManagerConfig struct {
	Dir       string
	Algorithm string
	Mirror    Mirror
	Verifier  Verifier
}

// NewManager creates a manager rooted at cfg.Dir.
func NewManager(cfg ManagerConfig, log zerolog.Logger) *Manager {
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmAESGCM
	}
	return &Manager{
		dir:       cfg.Dir,
		algorithm: cfg.Algorithm,
		mirror:    cfg.Mirror,
		verifier:  cfg.Verifier,
		log:       log.With().Str("component", "secret_manager").Logger(),
	}
}

func (m *Manager) path(name string) string {
	return filepath.Join(m.dir, name)
}

// Save validates, encrypts and stores the secret in the primary and backup
// files, then mirrors the envelope best effort.
func (m *Manager) Save(ctx context.Context, secret string) error {
	secret, err := ValidateFormat(secret)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.dir, 0700); err != nil {
		return fmt.Errorf("failed to create secrets directory: %w", err)
	}

	key, err := m.loadOrCreateKey()
	if err != nil {
		return err
	}

	env, err := Encrypt(m.algorithm, key, []byte(secret))
	if err != nil {
		return fmt.Errorf("failed to encrypt secret: %w", err)
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	if err := writeFileAtomic(m.path(tokenFile), data); err != nil {
		return fmt.Errorf("failed to write secret: %w", err)
	}
	if err := writeFileAtomic(m.path(backupFile), data); err != nil {
		m.log.Warn().Err(err).Msg("Failed to write secret backup copy")
	}

	if m.mirror != nil {
		if err := m.mirror.Push(ctx, secret, data); err != nil {
			m.log.Warn().Err(err).Msg("Failed to mirror encrypted secret, kept locally")
		} else {
			m.log.Info().Msg("Encrypted secret mirrored")
		}
	}

	m.log.Info().Str("algorithm", m.algorithm).Msg("Secret saved")
	return nil
}

// Load returns the decrypted secret, trying the primary file, the backup
// copy, then the mirror.
func (m *Manager) Load(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	secret, _, err := m.load(ctx)
	return secret, err
}

func (m *Manager) load(ctx context.Context) (string, string, error) {
	key, err := os.ReadFile(m.path(keyFile))
	if err != nil {
		return "", "", fmt.Errorf("%w: key not readable: %v", ErrSecretUnavailable, err)
	}

	var lastErr error = ErrSecretUnavailable
	for _, name := range []string{tokenFile, backupFile} {
		data, err := os.ReadFile(m.path(name))
		if err != nil {
			continue
		}
		secret, err := decryptData(key, data)
		if err != nil {
			m.log.Warn().Err(err).Str("file", name).Msg("Stored secret unreadable")
			lastErr = err
			continue
		}
		location := "primary"
		if name == backupFile {
			location = "backup"
		}
		return secret, location, nil
	}

	if m.mirror != nil {
		data, err := m.mirror.Pull(ctx, "")
		if err == nil {
			secret, derr := decryptData(key, data)
			if derr == nil {
				return secret, "remote", nil
			}
			lastErr = derr
		} else {
			m.log.Debug().Err(err).Msg("No mirrored secret available")
		}
	}

	return "", "", fmt.Errorf("load failed: %w", lastErr)
}

// Has reports whether an encrypted secret and its key exist locally.
func (m *Manager) Has() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.path(keyFile)); err != nil {
		return false
	}
	for _, name := range []string{tokenFile, backupFile} {
		if _, err := os.Stat(m.path(name)); err == nil {
			return true
		}
	}
	return false
}

// Status reports where the secret is and whether it decrypts.
func (m *Manager) Status(ctx context.Context) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, location, err := m.load(ctx)
	if err != nil {
		if errors.Is(err, ErrIntegrity) {
			return Status{Exists: true, Error: err.Error()}
		}
		return Status{Exists: false}
	}

	st := Status{Exists: true, Location: location}
	if data, err := os.ReadFile(m.path(tokenFile)); err == nil {
		var env Envelope
		if json.Unmarshal(data, &env) == nil {
			st.Algorithm = env.Algorithm
			st.CreatedAt = env.CreatedAt
		}
	}
	return st
}

// Delete securely removes the ciphertext, its backup and the key, and
// removes the mirrored envelope best effort.
func (m *Manager) Delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mirror != nil {
		secret, _, err := m.load(ctx)
		if err == nil {
			if err := m.mirror.Remove(ctx, secret); err != nil {
				m.log.Warn().Err(err).Msg("Failed to remove mirrored secret")
			}
		}
	}

	var errs []error
	for _, name := range []string{tokenFile, backupFile, keyFile} {
		if err := secureDelete(m.path(name)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}

	m.log.Info().Msg("Secret deleted")
	return nil
}

// PushRemote mirrors the current envelope using the stored secret for auth.
func (m *Manager) PushRemote(ctx context.Context) error {
	if m.mirror == nil {
		return errors.New("no mirror configured")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	secret, _, err := m.load(ctx)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(m.path(tokenFile))
	if err != nil {
		return fmt.Errorf("failed to read secret: %w", err)
	}
	return m.mirror.Push(ctx, secret, data)
}

type envelopeSource struct {
	location string
	read     func() ([]byte, error)
}

// Recover rewrites the primary file from the backup copy or, failing that,
// from the mirror. It succeeds only if the recovered envelope decrypts.
func (m *Manager) Recover(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := os.ReadFile(m.path(keyFile))
	if err != nil {
		return "", fmt.Errorf("%w: key not readable: %v", ErrSecretUnavailable, err)
	}

	candidates := []envelopeSource{
		{"backup", func() ([]byte, error) { return os.ReadFile(m.path(backupFile)) }},
	}
	if m.mirror != nil {
		candidates = append(candidates, envelopeSource{"remote", func() ([]byte, error) { return m.mirror.Pull(ctx, "") }})
	}

	for _, c := range candidates {
		data, err := c.read()
		if err != nil {
			continue
		}
		if _, err := decryptData(key, data); err != nil {
			continue
		}
		if err := writeFileAtomic(m.path(tokenFile), data); err != nil {
			return "", fmt.Errorf("failed to restore secret: %w", err)
		}
		m.log.Info().Str("from", c.location).Msg("Secret recovered")
		return c.location, nil
	}

	return "", ErrSecretUnavailable
}

// PullRemote replaces the local files with the mirrored envelope.
func (m *Manager) PullRemote(ctx context.Context) error {
	if m.mirror == nil {
		return errors.New("no mirror configured")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := os.ReadFile(m.path(keyFile))
	if err != nil {
		return fmt.Errorf("%w: key not readable: %v", ErrSecretUnavailable, err)
	}
	data, err := m.mirror.Pull(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to pull mirrored secret: %w", err)
	}
	if _, err := decryptData(key, data); err != nil {
		return err
	}
	if err := writeFileAtomic(m.path(tokenFile), data); err != nil {
		return err
	}
	return writeFileAtomic(m.path(backupFile), data)
}

// Verify asks the remote service who the token belongs to. Advisory only.
func (m *Manager) Verify(ctx context.Context, secret string) (string, error) {
	if m.verifier == nil {
		return "", errors.New("no verifier configured")
	}
	return m.verifier.Verify(ctx, secret)
}

func (m *Manager) loadOrCreateKey() ([]byte, error) {
	key, err := os.ReadFile(m.path(keyFile))
	if err == nil && len(key) == KeySize {
		return key, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}

	key, err = NewKey()
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(m.path(keyFile), key); err != nil {
		return nil, fmt.Errorf("failed to write key: %w", err)
	}
	m.log.Info().Msg("Generated new secret key")
	return key, nil
}

func decryptData(key, data []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%w: malformed envelope", ErrIntegrity)
	}
	plaintext, err := Decrypt(key, &env)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// secureDelete overwrites a file with random bytes before removing it.
func secureDelete(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	noise := make([]byte, info.Size())
	_, _ = rand.Read(noise)
	if _, err := f.WriteAt(noise, 0); err != nil {
		f.Close()
		return err
	}
	_ = f.Sync()
	if err := f.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}
