package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - P4GO_CONFIG_PATH: config file location (default: ~/.config/p4go.toml)
//   - P4GO_HOME: base directory for p4go data (default: ~/.local/share/p4go)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path":   configPath,
		"base_dir":      baseDir,
		"log_dir":       filepath.Join(baseDir, "log"),
		"password_file": filepath.Join(baseDir, "p4passwd.age"),
	}, nil
}

func getConfigPath() (string, error) {
	if path := os.Getenv("P4GO_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "p4go.toml"), nil
}

func getBaseDir() (string, error) {
	if path := os.Getenv("P4GO_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "p4go"), nil
}
