package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Klingon-tech/powledger/pkg/crypto"
)

// ErrKeyFileExists is returned when exporting over an existing key file.
var ErrKeyFileExists = errors.New("key file already exists")

const (
	keyFileVersion = 1
	keyFileExt     = ".key"
)

// keyFile is the on-disk JSON format for one exported account.
type keyFile struct {
	Version      int       `json:"version"`
	Name         string    `json:"name"`
	Address      string    `json:"address"`
	CreatedAt    time.Time `json:"created_at"`
	EncryptedKey []byte    `json:"encrypted_key"`
}

// Keystore reads and writes passphrase-encrypted key files, one per
// account, in a directory.
type Keystore struct {
	path   string
	params EncryptionParams
}

// NewKeystore creates a keystore in dir, creating it if needed.
func NewKeystore(dir string, params EncryptionParams) (*Keystore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: dir, params: params}, nil
}

// Path returns the file path used for the named account.
func (ks *Keystore) Path(name string) string {
	return filepath.Join(ks.path, name+keyFileExt)
}

// Export writes acct's private key encrypted under passphrase.
func (ks *Keystore) Export(acct *Account, passphrase []byte) (string, error) {
	path := ks.Path(acct.Name)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%w: %s", ErrKeyFileExists, path)
	}
	sealed, err := Encrypt(acct.Key.PrivateKey(), passphrase, ks.params)
	if err != nil {
		return "", fmt.Errorf("encrypt key: %w", err)
	}
	kf := keyFile{
		Version:      keyFileVersion,
		Name:         acct.Name,
		Address:      acct.Address(),
		CreatedAt:    acct.CreatedAt,
		EncryptedKey: sealed,
	}
	data, err := json.MarshalIndent(&kf, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal key file: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("write key file: %w", err)
	}
	return path, nil
}

// Import decrypts the key file at path and returns the recorded name,
// creation time and key pair. The stored address must match the key.
func Import(path string, passphrase []byte) (string, time.Time, *crypto.KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", time.Time{}, nil, fmt.Errorf("read key file: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return "", time.Time{}, nil, fmt.Errorf("parse key file: %w", err)
	}
	if kf.Version != keyFileVersion {
		return "", time.Time{}, nil, fmt.Errorf("unsupported key file version: %d", kf.Version)
	}
	priv, err := Decrypt(kf.EncryptedKey, passphrase)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	defer wipe(priv)
	kp, err := crypto.KeyPairFromPrivate(priv)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	if kp.Address() != kf.Address {
		return "", time.Time{}, nil, fmt.Errorf("key file address %s does not match key %s", kf.Address, kp.Address())
	}
	return kf.Name, kf.CreatedAt, kp, nil
}

// List returns the account names with key files, sorted.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), keyFileExt) {
			names = append(names, strings.TrimSuffix(e.Name(), keyFileExt))
		}
	}
	sort.Strings(names)
	return names, nil
}
