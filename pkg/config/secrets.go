package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"maps"
	"path/filepath"
	"slices"
	"sync"

	"golang.org/x/crypto/scrypt"
)

// Secrets file configuration.
const (
	secretsFileName = "secrets.json.enc"
	saltSize        = 16
	nonceSize       = 12
	gcmTagSize      = 16
	scryptN         = 32768 // 2^15
	scryptR         = 8
	scryptP         = 1
	keySize         = 32 // AES-256
)

// ErrDecrypt is returned when a sealed blob cannot be opened with the given passphrase.
var ErrDecrypt = errors.New("decryption failed (wrong password or corrupted data)")

// memory holds the secrets unlocked for this process.
type memory struct {
	mu     sync.RWMutex
	values map[string]string
}

var unlocked memory //nolint:gochecknoglobals // Process-wide unlocked secrets

// SetDecryptedSecrets replaces the in-memory secrets with a copy of secrets.
func SetDecryptedSecrets(secrets map[string]string) {
	unlocked.mu.Lock()
	defer unlocked.mu.Unlock()
	unlocked.values = maps.Clone(secrets)
}

// GetSecret resolves name from the unlocked secrets file, then from the environment.
func GetSecret(name string) (string, error) {
	unlocked.mu.RLock()
	value := unlocked.values[name]
	unlocked.mu.RUnlock()
	if value != "" {
		return value, nil
	}

	if value := os.Getenv(name); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("secret %s not found in secrets file or environment", name)
}

// GetDecryptedSecretNames returns the sorted secret names (not values).
func GetDecryptedSecretNames() []string {
	unlocked.mu.RLock()
	defer unlocked.mu.RUnlock()
	return slices.Sorted(maps.Keys(unlocked.values))
}

// SetSecret sets a secret value in memory.
func SetSecret(name, value string) {
	unlocked.mu.Lock()
	defer unlocked.mu.Unlock()
	if unlocked.values == nil {
		unlocked.values = map[string]string{}
	}
	unlocked.values[name] = value
}

// SaveSecretsToFile encrypts the in-memory secrets into dir's secrets file.
func SaveSecretsToFile(dir, password string) error {
	unlocked.mu.RLock()
	snapshot := maps.Clone(unlocked.values)
	unlocked.mu.RUnlock()

	if snapshot == nil {
		snapshot = map[string]string{}
	}
	return EncryptSecretsFile(dir, password, snapshot)
}

// SecretsFileExists checks if secrets.json.enc exists in the project directory.
func SecretsFileExists(dir string) bool {
	_, err := os.Stat(secretsPath(dir))
	return err == nil
}

func secretsPath(dir string) string {
	return filepath.Join(dir, ProjectConfigDir, secretsFileName)
}

// Seal encrypts plaintext with a key derived from password.
// Output layout: [salt][nonce][ciphertext+tag].
func Seal(password string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, wipe, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	defer wipe()

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// Open decrypts a blob produced by Seal.
func Open(password string, blob []byte) ([]byte, error) {
	if len(blob) < saltSize+nonceSize+gcmTagSize {
		return nil, fmt.Errorf("sealed data is corrupted or invalid format (too small)")
	}

	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+nonceSize]
	ciphertext := blob[saltSize+nonceSize:]

	gcm, wipe, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	defer wipe()

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// newGCM derives an AES-256-GCM cipher from password and salt. wipe zeroes the key material.
func newGCM(password string, salt []byte) (cipher.AEAD, func(), error) {
	passwordBytes := []byte(password)
	key, err := scrypt.Key(passwordBytes, salt, scryptN, scryptR, scryptP, keySize)
	for i := range passwordBytes {
		passwordBytes[i] = 0
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	wipe := func() {
		for i := range key {
			key[i] = 0
		}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		wipe()
		return nil, nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		wipe()
		return nil, nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, wipe, nil
}

// EncryptSecretsFile encrypts and saves secrets to .sitebuilder/secrets.json.enc with mode 0600.
func EncryptSecretsFile(dir, password string, secrets map[string]string) error {
	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}

	fileData, err := Seal(password, plaintext)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Join(dir, ProjectConfigDir), 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", ProjectConfigDir, err)
	}
	if err := os.WriteFile(secretsPath(dir), fileData, 0600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	return nil
}

// DecryptSecretsFile decrypts and returns secrets from .sitebuilder/secrets.json.enc.
func DecryptSecretsFile(dir, password string) (map[string]string, error) {
	path := secretsPath(dir)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets file: %w", err)
	}
	if info.Mode().Perm() != 0600 {
		LogInfo("⚠️  Secrets file has incorrect permissions (found: %04o, expected: 0600), fixing", info.Mode().Perm())
		if chmodErr := os.Chmod(path, 0600); chmodErr != nil {
			return nil, fmt.Errorf("failed to fix file permissions: %w", chmodErr)
		}
	}

	fileData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}

	plaintext, err := Open(password, fileData)
	if err != nil {
		return nil, err
	}

	var secrets map[string]string
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse secrets: %w", err)
	}
	return secrets, nil
}
