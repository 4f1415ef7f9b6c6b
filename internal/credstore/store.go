package credstore

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
	"time"

	"golang.org/x/sync/singleflight"

	"agentauth/pkg/logging"
	"agentauth/pkg/oauth"
)

// DefaultRefreshBuffer is the margin before expiry at which a credential is
// considered expired, so callers refresh proactively instead of failing
// mid-use.
const DefaultRefreshBuffer = oauth.TokenRefreshThreshold

// Provider is the slice of the OAuth client the store needs: minting new
// access tokens and revoking old ones upstream.
type Provider interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth.Token, error)
	Revoke(ctx context.Context, token string) error
}

// Store persists credentials on disk, one JSON file per
// (agentID, sessionKey, account) tuple under an agent-scoped directory.
//
// SECURITY: This store handles delegated-access credentials. Files are
// created with 0600 permissions, directories with 0700, writes are atomic
// (temp file + rename), and token values are never logged; only the owning
// identifiers appear in the audit records.
type Store struct {
	rootDir  string
	provider Provider

	// refreshGroup deduplicates concurrent refreshes of the same credential.
	// Two racing refreshes would both succeed, but there is no point paying
	// for the second provider round-trip.
	refreshGroup singleflight.Group
}

// NewStore creates a credential store rooted at rootDir. The provider is used
// for refreshes and best-effort upstream revocation.
func NewStore(rootDir string, provider Provider) (*Store, error) {
	if rootDir == "" {
		return nil, errors.New("credential store root directory must be set")
	}
	if err := os.MkdirAll(rootDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credential storage directory: %w", err)
	}

	return &Store{
		rootDir:  rootDir,
		provider: provider,
	}, nil
}

// credentialKey generates a filesystem-safe identifier for a
// (sessionKey, account) pair within an agent's directory.
func credentialKey(sessionKey, account string) string {
	hash := sha256.Sum256([]byte(sessionKey + "\x00" + account))
	return hex.EncodeToString(hash[:16]) // Use first 16 bytes (32 hex chars)
}

// agentDir returns the directory holding one agent's credentials.
func (s *Store) agentDir(agentID string) string {
	return filepath.Join(s.rootDir, agentID)
}

// credentialPath returns the file path for a credential tuple.
func (s *Store) credentialPath(agentID, sessionKey, account string) string {
	return filepath.Join(s.agentDir(agentID), credentialKey(sessionKey, account)+".json")
}

// Load reads the credential for a tuple. With an empty account it scans the
// agent's namespace for any credential belonging to the session and returns
// the first match in lexicographic file order. A missing credential is
// (nil, nil), not an error: callers may fall back to a process-wide default
// credential outside this store.
func (s *Store) Load(agentID, sessionKey, account string) (*Credential, error) {
	if account != "" {
		cred, err := s.readFile(s.credentialPath(agentID, sessionKey, account))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, nil
			}
			return nil, err
		}
		return cred, nil
	}

	creds, err := s.sessionCredentials(agentID, sessionKey)
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		return nil, nil
	}
	return creds[0], nil
}

// sessionCredentials scans the agent's namespace for every credential belonging
// to the session, in lexicographic file order. Unreadable files are skipped.
func (s *Store) sessionCredentials(agentID, sessionKey string) ([]*Credential, error) {
	entries, err := os.ReadDir(s.agentDir(agentID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan credential directory: %w", err)
	}

	// Sort for a deterministic order; which account comes first when a session
	// has authorized several is otherwise arbitrary.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var creds []*Credential
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		cred, err := s.readFile(filepath.Join(s.agentDir(agentID), entry.Name()))
		if err != nil {
			continue
		}
		if cred.SessionKey == sessionKey {
			creds = append(creds, cred)
		}
	}

	return creds, nil
}

// Save writes the credential atomically, overwriting any existing file for
// the same tuple, and returns the storage path.
func (s *Store) Save(cred *Credential) (string, error) {
	dir := s.agentDir(cred.AgentID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create agent credential directory: %w", err)
	}

	path := s.credentialPath(cred.AgentID, cred.SessionKey, cred.Account)

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal credential: %w", err)
	}

	// Write to a temp file in the same directory, then rename over the
	// target so readers never observe a partial credential.
	tmp, err := os.CreateTemp(dir, ".cred-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp credential file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to restrict credential file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close credential file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to persist credential file: %w", err)
	}

	logging.Info("CredStore", "SECURITY_AUDIT: credential stored for agent=%s session=%s account=%s expiry=%s has_refresh=%t",
		cred.AgentID, cred.SessionKey, cred.Account,
		cred.Expiry.Format(time.RFC3339), cred.RefreshToken != "")

	return path, nil
}

// readFile reads and unmarshals a credential file.
func (s *Store) readFile(path string) (*Credential, error) {
	// #nosec G304 -- path is constructed from internal keys, not user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}

	return &cred, nil
}

// IsExpired reports whether the credential's access token is expired or will
// expire within the buffer. buffer <= 0 selects DefaultRefreshBuffer.
func (s *Store) IsExpired(cred *Credential, buffer time.Duration) bool {
	if cred == nil {
		return true
	}
	if buffer <= 0 {
		buffer = DefaultRefreshBuffer
	}
	if cred.Expiry.IsZero() {
		return false // Credentials without expiration don't expire
	}
	return !time.Now().Add(buffer).Before(cred.Expiry)
}

// GetValid loads the credential for a tuple and transparently refreshes it if
// it is expired or close to expiring. A refresh failure (revoked upstream,
// network error) yields (nil, nil) rather than an error: the caller should
// treat it as "re-authentication required".
func (s *Store) GetValid(ctx context.Context, agentID, sessionKey, account string) (*Credential, error) {
	cred, err := s.Load(agentID, sessionKey, account)
	if err != nil || cred == nil {
		return nil, err
	}

	if !s.IsExpired(cred, 0) {
		return cred, nil
	}

	refreshed, err := s.Refresh(ctx, cred)
	if err != nil {
		logging.Warn("CredStore", "Refresh failed for agent=%s session=%s account=%s, re-authentication required: %v",
			cred.AgentID, cred.SessionKey, cred.Account, err)
		return nil, nil
	}
	return refreshed, nil
}

// Refresh exchanges the credential's refresh token for a new access token,
// persists the updated record and returns it. CreatedAt is preserved, and the
// old refresh token is kept when the provider does not rotate it. Concurrent
// refreshes of the same credential are collapsed into one provider call.
func (s *Store) Refresh(ctx context.Context, cred *Credential) (*Credential, error) {
	if cred.RefreshToken == "" {
		return nil, errors.New("credential has no refresh token")
	}

	key := cred.AgentID + "/" + credentialKey(cred.SessionKey, cred.Account)
	result, err, _ := s.refreshGroup.Do(key, func() (interface{}, error) {
		token, err := s.provider.Refresh(ctx, cred.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("provider rejected refresh for account %s: %w", cred.Account, err)
		}

		updated := &Credential{
			Account:      cred.Account,
			SessionKey:   cred.SessionKey,
			AgentID:      cred.AgentID,
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
			TokenType:    token.TokenType,
			Expiry:       token.ExpiresAt,
			CreatedAt:    cred.CreatedAt,
			Services:     cred.Services,
		}
		if updated.RefreshToken == "" {
			updated.RefreshToken = cred.RefreshToken
		}
		if updated.TokenType == "" {
			updated.TokenType = cred.TokenType
		}

		if _, err := s.Save(updated); err != nil {
			return nil, err
		}

		logging.Info("CredStore", "SECURITY_AUDIT: credential refreshed for agent=%s session=%s account=%s new_expiry=%s",
			updated.AgentID, updated.SessionKey, updated.Account, updated.Expiry.Format(time.RFC3339))

		return updated, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*Credential), nil
}

// Revoke best-effort revokes credentials upstream, then deletes the local
// files. With an empty account every credential belonging to the session is
// revoked; otherwise only the named account's. Provider revocation failure is
// logged, never fatal; a missing credential is a no-op.
func (s *Store) Revoke(ctx context.Context, agentID, sessionKey, account string) error {
	var creds []*Credential
	if account != "" {
		cred, err := s.Load(agentID, sessionKey, account)
		if err != nil {
			return err
		}
		if cred != nil {
			creds = append(creds, cred)
		}
	} else {
		var err error
		creds, err = s.sessionCredentials(agentID, sessionKey)
		if err != nil {
			return err
		}
	}

	for _, cred := range creds {
		// Revoking the refresh token invalidates the whole grant on conforming
		// providers; fall back to the access token when there is none.
		token := cred.RefreshToken
		if token == "" {
			token = cred.AccessToken
		}
		if err := s.provider.Revoke(ctx, token); err != nil {
			logging.Warn("CredStore", "Upstream revocation failed for agent=%s account=%s, deleting locally anyway: %v",
				cred.AgentID, cred.Account, err)
		}

		if err := s.Delete(cred.AgentID, cred.SessionKey, cred.Account); err != nil {
			return err
		}
	}

	return nil
}

// Delete removes the local credential file. A missing file is not an error.
func (s *Store) Delete(agentID, sessionKey, account string) error {
	err := os.Remove(s.credentialPath(agentID, sessionKey, account))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	logging.Info("CredStore", "SECURITY_AUDIT: credential deleted for agent=%s session=%s account=%s",
		agentID, sessionKey, account)
	return nil
}

// Path exposes the storage location for a tuple without reading it. Used to
// record the credential pointer in the session record.
func (s *Store) Path(agentID, sessionKey, account string) string {
	return s.credentialPath(agentID, sessionKey, account)
}
