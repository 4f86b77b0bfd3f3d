package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"fno-desk/internal/types"
)

var ErrNoCredentials = errors.New("no api key / access token; run 'desk login' first")

// LoadCredentials reads the session file. KITE_API_KEY and KITE_ACCESS_TOKEN
// override whatever the file holds, and a missing file is not an error when
// the environment supplies both.
func LoadCredentials(path string) (types.Credentials, error) {
	var c types.Credentials

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return c, err
	}

	if v := os.Getenv("KITE_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		c.AccessToken = v
	}

	if c.APIKey == "" || c.AccessToken == "" {
		return c, ErrNoCredentials
	}
	return c, nil
}

// SaveCredentials writes the session file readable by the owner only.
func SaveCredentials(path string, c types.Credentials) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
