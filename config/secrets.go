package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrInsecurePermissions is returned when a secrets file is readable by
// group or others.
var ErrInsecurePermissions = errors.New("secrets file has insecure permissions")

// secretsFile is the layout of the API key file:
//
//	[server]
//	api_key = "..."
type secretsFile struct {
	Server struct {
		APIKey string `toml:"api_key"`
	} `toml:"server"`
}

// LoadAPIKeyFile reads the API key from a TOML secrets file. On Unix the
// file must be 0400 or 0600.
func LoadAPIKeyFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("reading secrets file: %w", err)
	}
	if runtime.GOOS != "windows" {
		if mode := info.Mode().Perm(); mode&0o077 != 0 {
			return "", fmt.Errorf("%w: %s has mode %04o (must be 0400 or 0600)",
				ErrInsecurePermissions, path, mode)
		}
	}

	var s secretsFile
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return "", fmt.Errorf("reading secrets file %s: %w", path, err)
	}
	key := strings.TrimSpace(s.Server.APIKey)
	if key == "" {
		return "", fmt.Errorf("secrets file %s has no server.api_key", path)
	}
	return key, nil
}
