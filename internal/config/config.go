// Package config loads the shell's YAML configuration.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

//go:embed default.yaml
var defaultConfigData []byte

// ConfigurationName is the file looked up in the home directory.
const ConfigurationName = ".jobshell.yaml"

type Configuration struct {
	Prompt        string `json:"prompt" validate:"required"`
	ProcessGroups bool   `json:"process_groups"`
	MaxJobs       int    `json:"max_jobs" validate:"gte=0"`
	Notify        bool   `json:"notify"`
	NoColor       bool   `json:"no_color"`
	HistoryFile   string `json:"history_file"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})

	return validate.Struct(c)
}

// Default returns the built-in configuration.
func Default() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}

// DefaultPath returns the configuration path in the user's home directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ConfigurationName
	}
	return filepath.Join(home, ConfigurationName)
}

// Load reads the configuration at path from fsys. Keys missing from the
// file keep their defaults, and a missing file yields the defaults.
func Load(fsys afero.Fs, path string) (*Configuration, error) {
	out := Default()

	contents, err := afero.ReadFile(fsys, path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return out, nil
	case err != nil:
		return nil, err
	}

	if err := yaml.UnmarshalStrict(contents, out); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return out, nil
}

func (c *Configuration) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
