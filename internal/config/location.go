package config

import (
	"os"
	"path/filepath"
)

// PathEnvVar overrides the config file location.
const PathEnvVar = "JSBRIDGE_CONFIG"

// Path returns the config file path: $JSBRIDGE_CONFIG if set, otherwise
// ~/.jsbridge/config.
func Path() (string, error) {
	if p := os.Getenv(PathEnvVar); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".jsbridge", "config"), nil
}
