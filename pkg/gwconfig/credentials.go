package gwconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"kiroproxy/gateway/pkg/credential"
)

// CredentialRecord is one entry of the persisted credential config
// (spec's "Persisted state": `{id, name, token_path, enabled}`).
type CredentialRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TokenPath string `json:"token_path"`
	Enabled   bool   `json:"enabled"`
}

// TokenRecord is the on-disk shape of a credential's token material
// (spec §6 "Token storage"): accessToken, optionally refreshToken,
// expiresAt, authMethod, region, clientId, profileArn.
type TokenRecord struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	AuthMethod   string    `json:"authMethod"`
	Region       string    `json:"region"`
	ClientID     string    `json:"clientId"`
	ProfileARN   string    `json:"profileArn"`
}

// LoadCredentialRecords reads the persisted credential list. A
// missing file yields an empty list, not an error — a freshly
// installed gateway has no credentials until one is added.
func LoadCredentialRecords(path string) ([]CredentialRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("gwconfig: read credentials %s: %w", path, err)
	}
	var records []CredentialRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("gwconfig: parse credentials %s: %w", path, err)
	}
	return records, nil
}

// SaveCredentialRecords rewrites the persisted credential list,
// called on every admin mutation per the persisted-state contract.
func SaveCredentialRecords(path string, records []CredentialRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("gwconfig: marshal credentials: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("gwconfig: write credentials %s: %w", path, err)
	}
	return nil
}

// loadToken reads a credential's token record. A missing or
// unreadable token file is not fatal to the whole pool build — the
// credential is constructed UNHEALTHY instead, matching New's own
// empty-access-token rule.
func loadToken(path string) TokenRecord {
	data, err := os.ReadFile(path)
	if err != nil {
		return TokenRecord{}
	}
	var tok TokenRecord
	if err := json.Unmarshal(data, &tok); err != nil {
		return TokenRecord{}
	}
	return tok
}

// machineID derives the stable, never-changing machine_id a
// credential uses for upstream user-agent fingerprinting (spec §3
// invariant iv) deterministically from its id, so it survives a
// restart without needing its own persisted field.
func machineID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func toTokens(tok TokenRecord) credential.Tokens {
	return credential.Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt,
		AuthMethod:   tok.AuthMethod,
		Region:       tok.Region,
		ClientID:     tok.ClientID,
		ProfileARN:   tok.ProfileARN,
	}
}

// BuildPool constructs a credential.Pool from the persisted records,
// reading each one's token file.
func BuildPool(records []CredentialRecord, idleWindow time.Duration) *credential.Pool {
	pool := credential.New(idleWindow)
	for _, rec := range records {
		tok := loadToken(rec.TokenPath)
		pool.Add(credential.New(rec.ID, rec.Name, rec.TokenPath, machineID(rec.ID), rec.Enabled, toTokens(tok)))
	}
	return pool
}

// WatchCredentials watches the credentials file for writes and
// reconciles pool membership and enabled/token state against the
// file's current contents, implementing the spec's config hot-reload.
// It blocks until ctx is cancelled.
func WatchCredentials(ctx context.Context, path string, pool *credential.Pool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("gwconfig: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("gwconfig: watch %s: %w", path, err)
	}

	logger := slog.Default().With("component", "gwconfig.watcher")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			records, err := LoadCredentialRecords(path)
			if err != nil {
				logger.Warn("failed to reload credentials", "error", err)
				continue
			}
			reconcile(pool, records)
			logger.Info("credentials reloaded", "count", len(records))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("credential watcher error", "error", err)
		}
	}
}

// reconcile adds new records, removes records no longer present, and
// refreshes enabled/token state for records that survive.
func reconcile(pool *credential.Pool, records []CredentialRecord) {
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		seen[rec.ID] = true
		tok := loadToken(rec.TokenPath)
		if existing, ok := pool.Get(rec.ID); ok {
			existing.SetEnabled(rec.Enabled)
			existing.UpdateTokens(toTokens(tok))
			continue
		}
		pool.Add(credential.New(rec.ID, rec.Name, rec.TokenPath, machineID(rec.ID), rec.Enabled, toTokens(tok)))
	}
	for _, c := range pool.All() {
		if !seen[c.ID] {
			pool.Remove(c.ID)
		}
	}
}
