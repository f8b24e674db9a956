package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/harunnryd/voxrelay/pkg/configutil"
	"github.com/harunnryd/voxrelay/pkg/errorsx"
	"github.com/harunnryd/voxrelay/pkg/stages"
)

// KeyBackendURL is the only persisted setting.
const KeyBackendURL = "backend_url"

// Settings is the content of the stored settings file.
type Settings struct {
	BackendURL string `toml:"backend_url,omitempty"`
}

// Store persists user settings across runs in a small TOML file.
type Store struct {
	Path string
}

// DefaultStorePath is $XDG_CONFIG_HOME/voxrelay/settings.toml or the
// platform equivalent.
func DefaultStorePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "voxrelay", "settings.toml"), nil
}

// Load reads the file; a missing file yields empty settings.
func (s *Store) Load() (Settings, error) {
	var out Settings
	if s == nil || s.Path == "" {
		return out, nil
	}
	if _, err := toml.DecodeFile(s.Path, &out); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Settings{}, nil
		}
		return Settings{}, errorsx.Errorf(errorsx.ReasonConfigInvalid, "read settings %s: %w", s.Path, err)
	}
	return out, nil
}

// Save replaces the file atomically.
func (s *Store) Save(settings Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".settings-*.toml")
	if err != nil {
		return fmt.Errorf("create settings file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := toml.NewEncoder(tmp).Encode(settings); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}

// Get returns a stored value and whether it is set.
func (s *Store) Get(key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}
	settings, err := s.Load()
	if err != nil {
		return "", false, err
	}
	return settings.BackendURL, settings.BackendURL != "", nil
}

// Set validates and stores a value. Backend URLs lose their trailing slash.
func (s *Store) Set(key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	value = stages.NormalizeBaseURL(value)
	if err := ValidateBackendURL(value); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	settings, err := s.Load()
	if err != nil {
		return err
	}
	settings.BackendURL = value
	return s.Save(settings)
}

// Unset removes a stored value, restoring the default.
func (s *Store) Unset(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	settings, err := s.Load()
	if err != nil {
		return err
	}
	settings.BackendURL = ""
	return s.Save(settings)
}

func checkKey(key string) error {
	if configutil.NormalizeKey(strings.TrimSpace(key)) != configutil.NormalizeKey(KeyBackendURL) {
		return errorsx.Errorf(errorsx.ReasonConfigInvalid, "unknown setting %q (supported: backend-url)", key)
	}
	return nil
}
