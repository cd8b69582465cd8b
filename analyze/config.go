package analyze

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/gnolang/absint/internal/analysis/interp"
	tt "github.com/gnolang/absint/internal/types"
)

// DefaultConfigFile is the configuration read when none is named.
const DefaultConfigFile = ".absint.yaml"

// Config represents the configuration file: the fixpoint driver settings,
// an optional contracts file and the per-rule settings.
type Config struct {
	Name     string        `yaml:"name"`
	Analysis interp.Config `yaml:"analysis"`
	// Contracts is the path of the contracts file, relative to the
	// configuration file.
	Contracts string                   `yaml:"contracts,omitempty"`
	Rules     map[string]tt.ConfigRule `yaml:"rules"`
}

func DefaultConfig() Config {
	return Config{
		Name:     "absint",
		Analysis: interp.DefaultConfig(),
		Rules: map[string]tt.ConfigRule{
			"null-dereference": {Severity: tt.SeverityError},
			"out-of-bounds":    {Severity: tt.SeverityError},
			"division-by-zero": {Severity: tt.SeverityWarning},
			"contract":         {Severity: tt.SeverityError},
		},
	}
}

// ParseConfig decodes data over the defaults, so a file only needs the
// settings it changes.
func ParseConfig(data []byte) (Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("parsing configuration: %w", err)
	}
	if config.Analysis.WideningDelay < 0 || config.Analysis.MaxCallDepth < 0 || config.Analysis.MaxArrayElements < 0 {
		return config, errors.New("parsing configuration: analysis limits must not be negative")
	}
	return config, nil
}

// LoadConfig reads the configuration file at path. The default file may
// be missing, in which case the defaults apply.
func LoadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return Config{}, err
	}
	config, err := ParseConfig(data)
	if err != nil {
		return config, fmt.Errorf("%s: %w", path, err)
	}
	if config.Contracts != "" && !filepath.IsAbs(config.Contracts) {
		config.Contracts = filepath.Join(filepath.Dir(path), config.Contracts)
	}
	return config, nil
}

// WriteConfig writes config to path as yaml.
func WriteConfig(path string, config Config) error {
	d, err := yaml.Marshal(config)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(d)
	return err
}
