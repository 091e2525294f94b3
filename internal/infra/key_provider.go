package infra

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
)

const (
	keyFileName = "store.key"
	keyLen      = 32 // SQLCipher raw key
)

// FileKeyProvider keeps the store key hex encoded next to the database.
// Anyone who can read the key can rewrite the regulation, so the file must
// stay private to the daemon's user.
type FileKeyProvider struct {
	path    string
	entropy io.Reader
}

// NewFileKeyProvider creates a key provider for dataDir.
func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{
		path:    filepath.Join(dataDir, keyFileName),
		entropy: rand.Reader,
	}
}

// Key returns the stored key, generating and saving one if none exists yet.
func (p *FileKeyProvider) Key() ([]byte, error) {
	key, err := p.read()
	if errors.Is(err, fs.ErrNotExist) {
		return p.create()
	}
	return key, err
}

func (p *FileKeyProvider) read() ([]byte, error) {
	info, err := os.Stat(p.path)
	if err != nil {
		return nil, err
	}
	if info.Mode().Perm()&0o077 != 0 {
		return nil, fmt.Errorf("key file %s is accessible by other users (mode %v)", p.path, info.Mode().Perm())
	}

	raw, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key file: %w", err)
	}
	if len(key) != keyLen {
		return nil, fmt.Errorf("key file holds %d bytes, want %d", len(key), keyLen)
	}
	return key, nil
}

// create writes a fresh key with O_EXCL, so two daemons racing on first
// start cannot end up with different keys.
func (p *FileKeyProvider) create() ([]byte, error) {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	key := make([]byte, keyLen)
	if _, err := io.ReadFull(p.entropy, key); err != nil {
		return nil, fmt.Errorf("failed to generate store key: %w", err)
	}

	f, err := os.OpenFile(p.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return p.read()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create key file: %w", err)
	}
	if _, err := f.WriteString(hex.EncodeToString(key) + "\n"); err != nil {
		f.Close()
		os.Remove(p.path)
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	return key, nil
}

// GenerateKey returns a random store key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate store key: %w", err)
	}
	return key, nil
}

// OpenStore opens the encrypted store in dataDir with the key kept beside it.
func OpenStore(dataDir string) (*EncryptedStore, error) {
	key, err := NewFileKeyProvider(dataDir).Key()
	if err != nil {
		return nil, fmt.Errorf("failed to load store key: %w", err)
	}
	return NewEncryptedStore(dataDir, key)
}

var _ domain.KeyProvider = (*FileKeyProvider)(nil)
