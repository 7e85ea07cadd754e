package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/afero"
)

const (
	// AppName is the name of the application used in paths
	AppName = "pkgconnect"
)

// GetCacheDir returns the platform-specific cache directory for the application
// On Linux: ~/.cache/pkgconnect/
// On macOS: ~/Library/Caches/pkgconnect/
// On Windows: %LOCALAPPDATA%\pkgconnect\
func GetCacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, AppName), nil
}

// getAppDataDir returns the platform-specific base data directory
// On Linux: ~/.local/share
// On macOS: ~/Library/Application Support
// On Windows: %LOCALAPPDATA%
func getAppDataDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			return "", errors.New("LOCALAPPDATA environment variable not set")
		}
		return localAppData, nil

	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support"), nil

	default: // Linux, BSD, etc.
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			return xdgDataHome, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share"), nil
	}
}

// GetDataDir returns the platform-specific data directory for the application
func GetDataDir() (string, error) {
	baseDir, err := getAppDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, AppName), nil
}

// GetConfigDir returns the directory holding config.yaml.
func GetConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

// GetResponseCacheDir returns the directory for cached server responses
// Format: <cache_dir>/responses/
func GetResponseCacheDir() (string, error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "responses"), nil
}

// GetDownloadDir returns the directory downloaded bundles are streamed to
// Format: <data_dir>/downloads/
func GetDownloadDir() (string, error) {
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "downloads"), nil
}

// GetPackageStoreDir returns the directory the local update store keeps accepted bundles in
// Format: <data_dir>/packages/
func GetPackageStoreDir() (string, error) {
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "packages"), nil
}

// GetIdentityPath returns the default location of instance.clid
func GetIdentityPath() (string, error) {
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "instance.clid"), nil
}

// EnsureDirs creates the given directories if they don't exist
func EnsureDirs(fs afero.Fs, dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := EnsureDir(fs, dir); err != nil {
			return err
		}
	}
	return nil
}
