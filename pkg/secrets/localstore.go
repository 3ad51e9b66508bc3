package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/afero"
)

// MASTER_KEY_ENV names the environment variable holding the hex master key.
const MASTER_KEY_ENV = "PDUSIM_MASTER_KEY"

// LocalSecretStore keeps secrets in a JSON file, each one encrypted with a
// key derived from the master key and its id.
type LocalSecretStore struct {
	mu        sync.RWMutex
	fs        afero.Fs
	masterKey []byte
	filename  string
	Secrets   map[string]string `json:"secrets"`
}

func NewLocalSecretStore(fs afero.Fs, masterKeyHex, filename string, create bool) (*LocalSecretStore, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	masterKey, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("unable to decode master key from hex: %w", err)
	}

	store := &LocalSecretStore{
		fs:        fs,
		masterKey: masterKey,
		filename:  filename,
		Secrets:   map[string]string{},
	}

	exists, err := afero.Exists(fs, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", filename, err)
	}
	if !exists {
		if !create {
			return nil, fmt.Errorf("file %s does not exist", filename)
		}
		if err := store.save(); err != nil {
			return nil, fmt.Errorf("unable to create file %s: %w", filename, err)
		}
		return store, nil
	}

	b, err := afero.ReadFile(fs, filename)
	if err != nil {
		return nil, fmt.Errorf("unable to read secret file %s: %w", filename, err)
	}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &store.Secrets); err != nil {
			return nil, fmt.Errorf("unable to load secrets from file: %w", err)
		}
	}
	return store, nil
}

// GenerateMasterKey creates a 32-byte random key and returns it as a hex string.
func GenerateMasterKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

func (l *LocalSecretStore) GetSecretByID(secretID string) (string, error) {
	l.mu.RLock()
	encrypted, exists := l.Secrets[secretID]
	l.mu.RUnlock()
	if !exists {
		return "", fmt.Errorf("no secret found for %s", secretID)
	}
	return decryptAESGCM(deriveAESKey(l.masterKey, secretID), encrypted)
}

func (l *LocalSecretStore) StoreSecretByID(secretID, secret string) error {
	encrypted, err := encryptAESGCM(deriveAESKey(l.masterKey, secretID), []byte(secret))
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Secrets[secretID] = encrypted
	return l.save()
}

// ListSecrets returns a copy of the encrypted secrets keyed by id.
func (l *LocalSecretStore) ListSecrets() (map[string]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]string, len(l.Secrets))
	for k, v := range l.Secrets {
		out[k] = v
	}
	return out, nil
}

func (l *LocalSecretStore) RemoveSecretByID(secretID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.Secrets[secretID]; !exists {
		return fmt.Errorf("no secret found for %s", secretID)
	}
	delete(l.Secrets, secretID)
	return l.save()
}

// save must be called with l.mu held for writing.
func (l *LocalSecretStore) save() error {
	b, err := json.MarshalIndent(l.Secrets, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}
	return afero.WriteFile(l.fs, l.filename, b, 0600)
}

// OpenStore opens or creates the store at filename using the master key
// from MASTER_KEY_ENV.
func OpenStore(fs afero.Fs, filename string) (*LocalSecretStore, error) {
	if filename == "" {
		return nil, fmt.Errorf("path to secret store required")
	}
	masterKey := os.Getenv(MASTER_KEY_ENV)
	if masterKey == "" {
		return nil, fmt.Errorf("%s environment variable not set", MASTER_KEY_ENV)
	}
	store, err := NewLocalSecretStore(fs, masterKey, filename, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open local secret store: %w", err)
	}
	return store, nil
}
