package security

import (
	"bytes"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// WriteSecretFile writes secret material to a root-only file (0600),
// creating parent directories as needed. The write is skipped when the
// file already holds identical content, so repeated runs do not touch
// mtimes or re-trigger watchers. Returns true if the file was written.
func WriteSecretFile(path string, data []byte) (bool, error) {
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		// Content is current; still make sure nobody loosened the mode.
		if err := os.Chmod(path, PermSecretFile); err != nil {
			return false, fmt.Errorf("restoring permissions on %s: %w", path, err)
		}
		return false, nil
	}

	if err := CreateSecureDir(filepath.Dir(path), PermDirectory); err != nil {
		return false, err
	}

	f, err := CreateSecureFile(path, PermSecretFile)
	if err != nil {
		return false, err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return false, fmt.Errorf("writing secret file %s: %w", path, err)
	}
	return true, nil
}

// ValidatePEM checks that data contains at least one PEM block.
// Certificate and key material is passed through opaquely otherwise.
func ValidatePEM(data []byte) error {
	block, _ := pem.Decode(data)
	if block == nil {
		return fmt.Errorf("no PEM block found")
	}
	return nil
}

// Redact shortens secret material for log output, keeping just enough
// to recognize which credential is in play.
func Redact(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****"
}
