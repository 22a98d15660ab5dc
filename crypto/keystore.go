package crypto

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

var errNilKey = errors.New("crypto: nil private key")

func scryptParams(passphrase string) (n, p int) {
	// Empty passphrases use the light work factor.
	if passphrase == "" {
		return keystore.LightScryptN, keystore.LightScryptP
	}
	return keystore.StandardScryptN, keystore.StandardScryptP
}

// SaveToKeystore writes key to a v3 keystore file at path and returns the
// address it controls. Missing parent directories are created 0700.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) (Address, error) {
	if key == nil {
		return ZeroAddress, errNilKey
	}
	if path == "" {
		return ZeroAddress, errors.New("crypto: empty keystore path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return ZeroAddress, err
	}

	tmpDir, err := os.MkdirTemp(dir, "keystore-")
	if err != nil {
		return ZeroAddress, err
	}
	defer os.RemoveAll(tmpDir)

	n, p := scryptParams(passphrase)
	ks := keystore.NewKeyStore(tmpDir, n, p)
	account, err := ks.ImportECDSA(key.PrivateKey, passphrase)
	if err != nil {
		return ZeroAddress, err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ZeroAddress, err
	}
	if err := os.Rename(account.URL.Path, path); err != nil {
		return ZeroAddress, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return ZeroAddress, err
	}
	return BytesToAddress(account.Address.Bytes()), nil
}

// LoadFromKeystore decrypts a v3 keystore file.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}
