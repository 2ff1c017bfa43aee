// Package validation checks and sanitizes operator supplied settings: broker
// addresses, topic names, certificate and config file paths, and MQTT
// credentials.
package validation

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ValidateSSLFilePath checks that a keystore or truststore path has no
// traversal elements and names a readable regular file.
func ValidateSSLFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("path traversal not allowed in file path")
	}

	cleanPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid file path: %w", err)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("file does not exist: %s", cleanPath)
		}
		return fmt.Errorf("file not accessible: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("path is not a regular file: %s", cleanPath)
	}

	file, err := os.Open(cleanPath)
	if err != nil {
		return fmt.Errorf("file not readable: %w", err)
	}
	return file.Close()
}

// ValidateConfigPath checks that a configuration file exists.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path cannot be empty")
	}

	cleanPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid config path: %w", err)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file does not exist: %s", cleanPath)
		}
		return fmt.Errorf("config file not accessible: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path is a directory: %s", cleanPath)
	}
	return nil
}
