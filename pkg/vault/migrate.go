package vault

import (
	"fmt"
	"os"
)

// MigrateFile rewrites a legacy plaintext file as an encrypted container.
// Already-encrypted files are left untouched, so repeated calls are
// idempotent and each plaintext file is migrated exactly once. Returns true
// when a rewrite happened.
func MigrateFile(path string, key []byte) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if IsEncrypted(data) {
		return false, nil
	}

	container, err := Encrypt(data, key)
	if err != nil {
		return false, fmt.Errorf("failed to encrypt %s: %w", path, err)
	}

	// Write to a sibling temp file first so a crash mid-write cannot destroy
	// the only copy of the plaintext.
	tmp := path + ".migrating"
	if err := os.WriteFile(tmp, container, 0600); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return false, fmt.Errorf("failed to replace %s: %w", path, err)
	}

	return true, nil
}
