// Package vault stores platform credentials encrypted at rest. Each
// (user, platform) pair is one AES-GCM sealed JSON file under the data
// directory; the key is derived from an install secret and a persisted salt.
package vault

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maheshrc27/clippost/internal/models"
	"github.com/maheshrc27/clippost/pkg/utils"
)

const (
	saltFile   = ".salt"
	secretFile = ".keyfile"
	saltSize   = 16
	secretSize = 32

	// defaultCredentialTTL is the session lifetime stamped on every store.
	defaultCredentialTTL = 30 * 24 * time.Hour
)

var ErrNotFound = errors.New("credentials not found")

type Vault struct {
	dir string
	key []byte
}

// Open prepares the vault under dataDir. The encryption key is derived from
// secret, or from a generated secret persisted next to the credentials when
// none is configured.
func Open(dataDir, secret string) (*Vault, error) {
	dir := filepath.Join(dataDir, "auth")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	salt, err := loadOrCreate(filepath.Join(dir, saltFile), saltSize)
	if err != nil {
		return nil, fmt.Errorf("vault salt: %w", err)
	}

	password := []byte(secret)
	if secret == "" {
		password, err = loadOrCreate(filepath.Join(dir, secretFile), secretSize)
		if err != nil {
			return nil, fmt.Errorf("vault secret: %w", err)
		}
	}

	return &Vault{dir: dir, key: utils.DeriveKey(password, salt)}, nil
}

// StoreCredentials seals and writes one credential. Every store resets the
// session expiry; the provider's own token deadline stays in TokenExpiry.
func (v *Vault) StoreCredentials(userID, platform string, cred *models.Credential) error {
	cred.Expiry = time.Now().Add(defaultCredentialTTL)

	plaintext, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}

	sealed, err := utils.Encrypt(plaintext, v.key)
	if err != nil {
		return fmt.Errorf("encrypt credential: %w", err)
	}

	userDir := filepath.Join(v.dir, userID)
	if err := os.MkdirAll(userDir, 0o700); err != nil {
		return fmt.Errorf("create user dir: %w", err)
	}

	return writeAtomic(v.credentialPath(userID, platform), []byte(sealed))
}

// GetCredentials reads and unseals one credential. A missing file is
// ErrNotFound; expiry checking is the caller's concern.
func (v *Vault) GetCredentials(userID, platform string) (*models.Credential, error) {
	sealed, err := os.ReadFile(v.credentialPath(userID, platform))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, userID, platform)
		}
		return nil, fmt.Errorf("read credential: %w", err)
	}

	plaintext, err := utils.Decrypt(string(sealed), v.key)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential: %w", err)
	}

	var cred models.Credential
	if err := json.Unmarshal(plaintext, &cred); err != nil {
		return nil, fmt.Errorf("unmarshal credential: %w", err)
	}
	return &cred, nil
}

// DeleteCredentials removes one credential. Deleting a credential that does
// not exist is not an error.
func (v *Vault) DeleteCredentials(userID, platform string) error {
	err := os.Remove(v.credentialPath(userID, platform))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// IsAuthenticated reports whether a usable credential exists: present,
// decryptable and not past its expiry.
func (v *Vault) IsAuthenticated(userID, platform string) bool {
	cred, err := v.GetCredentials(userID, platform)
	if err != nil {
		return false
	}
	return cred.Expiry.After(time.Now())
}

// ListPlatforms names the platforms a user has stored credentials for.
func (v *Vault) ListPlatforms(userID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(v.dir, userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list platforms: %w", err)
	}

	var platforms []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json.enc") {
			continue
		}
		platforms = append(platforms, strings.TrimSuffix(name, ".json.enc"))
	}
	return platforms, nil
}

// ListUsers names every user with a credential directory.
func (v *Vault) ListUsers() ([]string, error) {
	entries, err := os.ReadDir(v.dir)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	var users []string
	for _, e := range entries {
		if e.IsDir() {
			users = append(users, e.Name())
		}
	}
	return users, nil
}

func (v *Vault) credentialPath(userID, platform string) string {
	return filepath.Join(v.dir, userID, platform+".json.enc")
}

// writeAtomic writes through a temp file and renames it into place so a
// crash mid-write never leaves a torn credential file.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit credential: %w", err)
	}
	return nil
}

// loadOrCreate reads a random blob from path, generating and persisting it on
// first use.
func loadOrCreate(path string, size int) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil && len(data) == size {
		return data, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data = make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		return nil, err
	}
	if err := writeAtomic(path, data); err != nil {
		return nil, err
	}
	return data, nil
}
