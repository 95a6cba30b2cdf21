package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/crypto/scrypt"

	"llmdialog/pkg/logx"
)

// Secrets file configuration.
const (
	secretsDirName  = ".llmdialog"
	secretsFileName = "secrets.json.enc"
	saltSize        = 16
	nonceSize       = 12
	gcmTagSize      = 16
	scryptN         = 32768 // 2^15
	scryptR         = 8
	scryptP         = 1
	keySize         = 32 // AES-256
)

// ErrSecretNotFound is returned when a secret is neither in the store nor the environment.
var ErrSecretNotFound = errors.New("secret not found")

// Secrets holds decrypted secrets in memory. The zero value is empty and ready to use.
type Secrets struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewSecrets returns a store seeded with values.
func NewSecrets(values map[string]string) *Secrets {
	s := &Secrets{values: make(map[string]string, len(values))}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// Get returns a secret value by name using standard precedence:
// 1. Decrypted secrets file (in memory)
// 2. Environment variables.
func (s *Secrets) Get(name string) (string, error) {
	if s != nil {
		s.mu.RLock()
		value, ok := s.values[name]
		s.mu.RUnlock()
		if ok && value != "" {
			return value, nil
		}
	}

	if value := os.Getenv(name); value != "" {
		return value, nil
	}

	return "", fmt.Errorf("%w: %s not in secrets file or environment", ErrSecretNotFound, name)
}

// Set stores a secret in memory.
func (s *Secrets) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[name] = value
}

// Delete removes a secret from memory.
func (s *Secrets) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, name)
}

// Names returns the sorted secret names (not values).
func (s *Secrets) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save encrypts the in-memory secrets into projectDir.
func (s *Secrets) Save(projectDir, password string) error {
	s.mu.RLock()
	snapshot := make(map[string]string, len(s.values))
	for k, v := range s.values {
		snapshot[k] = v
	}
	s.mu.RUnlock()

	return EncryptSecretsFile(projectDir, password, snapshot)
}

// LoadSecrets decrypts the secrets file in projectDir into a new store.
func LoadSecrets(projectDir, password string) (*Secrets, error) {
	values, err := DecryptSecretsFile(projectDir, password)
	if err != nil {
		return nil, err
	}
	return NewSecrets(values), nil
}

// APIKey resolves the model API key named by cfg.Model.APIKeyEnv.
func (s *Secrets) APIKey(cfg *Config) (string, error) {
	name := cfg.Model.APIKeyEnv
	if name == "" {
		name = DefaultAPIKeyEnv
	}
	key, err := s.Get(name)
	if err != nil {
		return "", fmt.Errorf("API key: %w", err)
	}
	return key, nil
}

// SecretsPath returns the encrypted secrets file location under projectDir.
func SecretsPath(projectDir string) string {
	return filepath.Join(projectDir, secretsDirName, secretsFileName)
}

// SecretsFileExists checks if the encrypted secrets file exists in projectDir.
func SecretsFileExists(projectDir string) bool {
	_, err := os.Stat(SecretsPath(projectDir))
	return err == nil
}

// EncryptSecretsFile encrypts and saves secrets to .llmdialog/secrets.json.enc.
// The file is written with 0600 permissions.
func EncryptSecretsFile(projectDir, password string, secrets map[string]string) error {
	if password == "" {
		return errors.New("password cannot be empty")
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, key, err := newGCM(password, salt)
	if err != nil {
		return err
	}
	defer zero(key)

	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}
	defer zero(plaintext)

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	// [salt][nonce][ciphertext+tag]
	fileData := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	fileData = append(fileData, salt...)
	fileData = append(fileData, nonce...)
	fileData = append(fileData, ciphertext...)

	dir := filepath.Join(projectDir, secretsDirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", secretsDirName, err)
	}

	if err := os.WriteFile(SecretsPath(projectDir), fileData, 0o600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	return nil
}

// DecryptSecretsFile decrypts and returns secrets from .llmdialog/secrets.json.enc.
// Loose file permissions are tightened to 0600 before reading.
func DecryptSecretsFile(projectDir, password string) (map[string]string, error) {
	path := SecretsPath(projectDir)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets file: %w", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		logx.Warnf("secrets file %s has permissions %04o, resetting to 0600", path, perm)
		if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
			return nil, fmt.Errorf("failed to fix file permissions: %w", chmodErr)
		}
	}

	fileData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	if len(fileData) < saltSize+nonceSize+gcmTagSize {
		return nil, errors.New("secrets file is corrupted or invalid format (too small)")
	}

	salt := fileData[:saltSize]
	nonce := fileData[saltSize : saltSize+nonceSize]
	ciphertext := fileData[saltSize+nonceSize:]

	gcm, key, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	defer zero(key)

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.New("decryption failed (wrong password or corrupted file)")
	}
	defer zero(plaintext)

	var secrets map[string]string
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse secrets: %w", err)
	}
	return secrets, nil
}

// newGCM derives an AES-256 key from password and salt. The caller zeroes the key.
func newGCM(password string, salt []byte) (cipher.AEAD, []byte, error) {
	passwordBytes := []byte(password)
	defer zero(passwordBytes)

	key, err := scrypt.Key(passwordBytes, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		zero(key)
		return nil, nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		zero(key)
		return nil, nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, key, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
