package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DataDir returns the path to the maptoken data directory.
// - Windows: %APPDATA%\maptoken
// - Other OS: ~/.maptoken
// MAPTOKEN_DATA_DIR overrides both.
func DataDir() string {
	if dir := os.Getenv("MAPTOKEN_DATA_DIR"); dir != "" {
		return dir
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "maptoken")
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".maptoken"
	}
	return filepath.Join(home, ".maptoken")
}

// DBPath returns the path to the SQLite database file.
func DBPath() string {
	return filepath.Join(DataDir(), "maptoken.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0700)
}
