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
)

// Encrypted secrets file layout: salt(16) | nonce(12) | ciphertext+tag.
const (
	SecretsFilename = "secrets.json.enc"
	saltSize        = 16
	nonceSize       = 12
	scryptN         = 32768
	scryptR         = 8
	scryptP         = 1
	keySize         = 32
)

// ErrSecretNotFound is returned when neither the secrets file nor the
// environment carries a value.
var ErrSecretNotFound = errors.New("secret not found")

var (
	secrets   map[string]string
	secretsMu sync.RWMutex
)

// GetSecret returns a secret from the unlocked secrets file, then the environment.
func GetSecret(name string) (string, error) {
	secretsMu.RLock()
	v, ok := secrets[name]
	secretsMu.RUnlock()
	if ok && v != "" {
		return v, nil
	}
	if v := os.Getenv(name); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%s: %w", name, ErrSecretNotFound)
}

// SetSecret stores a secret in memory.
func SetSecret(name, value string) {
	secretsMu.Lock()
	defer secretsMu.Unlock()
	if secrets == nil {
		secrets = make(map[string]string)
	}
	secrets[name] = value
}

// SetDecryptedSecrets replaces the in-memory secrets.
func SetDecryptedSecrets(m map[string]string) {
	secretsMu.Lock()
	defer secretsMu.Unlock()
	secrets = m
}

// SecretNames lists the names of the in-memory secrets, sorted.
func SecretNames() []string {
	secretsMu.RLock()
	defer secretsMu.RUnlock()
	names := make([]string, 0, len(secrets))
	for k := range secrets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// SaveSecretsToFile encrypts the in-memory secrets into the project dir.
func SaveSecretsToFile(dir, password string) error {
	secretsMu.RLock()
	snapshot := make(map[string]string, len(secrets))
	for k, v := range secrets {
		snapshot[k] = v
	}
	secretsMu.RUnlock()
	return EncryptSecretsFile(dir, password, snapshot)
}

func secretsPath(dir string) string {
	return filepath.Join(dir, ProjectConfigDir, SecretsFilename)
}

// SecretsFileExists reports whether the project has an encrypted secrets file.
func SecretsFileExists(dir string) bool {
	_, err := os.Stat(secretsPath(dir))
	return err == nil
}

func deriveKey(password string, salt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// EncryptSecretsFile writes m to <dir>/.agentflow/secrets.json.enc with mode 0600.
func EncryptSecretsFile(dir, password string, m map[string]string) error {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	key, err := deriveKey(password, salt)
	if err != nil {
		return err
	}
	defer clear(key)

	plaintext, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	data := make([]byte, 0, saltSize+nonceSize+len(plaintext)+gcm.Overhead())
	data = append(data, salt...)
	data = append(data, nonce...)
	data = gcm.Seal(data, nonce, plaintext, nil)

	if err := os.MkdirAll(filepath.Join(dir, ProjectConfigDir), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(secretsPath(dir), data, 0600); err != nil {
		return fmt.Errorf("write secrets file: %w", err)
	}
	return nil
}

// DecryptSecretsFile reads and decrypts the project's secrets file.
func DecryptSecretsFile(dir, password string) (map[string]string, error) {
	path := secretsPath(dir)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat secrets file: %w", err)
	}
	if info.Mode().Perm() != 0600 {
		logger.Warn("secrets file had mode %04o, resetting to 0600", info.Mode().Perm())
		if err := os.Chmod(path, 0600); err != nil {
			return nil, fmt.Errorf("fix secrets file mode: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secrets file: %w", err)
	}
	if len(data) < saltSize+nonceSize {
		return nil, fmt.Errorf("secrets file is truncated")
	}
	salt, nonce, ciphertext := data[:saltSize], data[saltSize:saltSize+nonceSize], data[saltSize+nonceSize:]

	key, err := deriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	defer clear(key)
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt secrets (wrong password?): %w", err)
	}

	var m map[string]string
	if err := json.Unmarshal(plaintext, &m); err != nil {
		return nil, fmt.Errorf("parse secrets: %w", err)
	}
	return m, nil
}
