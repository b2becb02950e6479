package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sirex/upkeep/internal/errors"
)

const configHeader = `# upkeep configuration
# Instances are deployment targets; tasks run on the currently selected one.
# Docs: https://github.com/sirex/upkeep
`

// Save writes the config as YAML to path, creating parent directories as
// needed. The config is validated first so a broken file never lands on disk.
func Save(cfg *Config, path string) error {
	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to serialize config",
			"This is unexpected - please report it.")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot create config directory "+dir,
				"Check directory permissions.")
		}
	}

	content := append([]byte(configHeader+"\n"), data...)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot write config file "+path,
			"Check file permissions.")
	}

	return nil
}
