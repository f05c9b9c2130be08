package config

import (
	"encoding/json"
	"fmt"

	"github.com/Shopify/ejson"
)

const defaultEjsonKeyDir = "/opt/ejson/keys"

// Secrets is the decrypted content of the ejson secrets file.
type Secrets struct {
	GitHubToken string         `json:"github_token"`
	Offsite     OffsiteSecrets `json:"offsite"`
}

// OffsiteSecrets holds offsite storage credentials.
type OffsiteSecrets struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// ReadSecrets decrypts an ejson file. keyDir defaults to /opt/ejson/keys and
// privateKey may be empty when the key is present in keyDir.
func ReadSecrets(path, keyDir, privateKey string) (*Secrets, error) {
	if keyDir == "" {
		keyDir = defaultEjsonKeyDir
	}

	raw, err := ejson.DecryptFile(path, keyDir, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secrets file %s: %w", path, err)
	}

	var s Secrets
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to parse secrets file %s: %w", path, err)
	}
	return &s, nil
}

// apply copies secrets into cfg without overriding values that are already set.
func (s *Secrets) apply(cfg *Config) {
	if cfg.GitHubToken == "" {
		cfg.GitHubToken = s.GitHubToken
	}
	if cfg.Offsite.AccessKeyID == "" {
		cfg.Offsite.AccessKeyID = s.Offsite.AccessKeyID
	}
	if cfg.Offsite.SecretAccessKey == "" {
		cfg.Offsite.SecretAccessKey = s.Offsite.SecretAccessKey
	}
}
