package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ContextsFile defines multiple backup contexts in one YAML document, for
// deployments that back up several environments from one host.
type ContextsFile struct {
	Contexts []ContextDef `yaml:"contexts" validate:"required,min=1,dive"`
}

type ContextDef struct {
	Name        string       `yaml:"name" validate:"required,excludesall= /"`
	DatabaseURL string       `yaml:"database_url"`
	BlobRoot    string       `yaml:"blob_root"`
	ConfigDir   string       `yaml:"config_dir"`
	Retention   RetentionDef `yaml:"retention"`
}

type RetentionDef struct {
	Daily   int `yaml:"daily" validate:"gte=0"`
	Weekly  int `yaml:"weekly" validate:"gte=0"`
	Monthly int `yaml:"monthly" validate:"gte=0"`
}

// LoadContexts parses and validates a contexts YAML file.
func LoadContexts(path string) (*ContextsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contexts file: %w", err)
	}

	var cf ContextsFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse contexts file %s: %w", path, err)
	}

	if err := validator.New().Struct(&cf); err != nil {
		return nil, fmt.Errorf("validate contexts file %s: %w", path, err)
	}

	return &cf, nil
}

// Context returns the named context definition, or nil.
func (cf *ContextsFile) Context(name string) *ContextDef {
	for i := range cf.Contexts {
		if cf.Contexts[i].Name == name {
			return &cf.Contexts[i]
		}
	}
	return nil
}

// Apply overrides the base config with the values from a context
// definition. Zero values leave the base config untouched.
func (d *ContextDef) Apply(cfg *Config) {
	cfg.Context = d.Name
	if d.DatabaseURL != "" {
		cfg.DatabaseURL = d.DatabaseURL
	}
	if d.BlobRoot != "" {
		cfg.BlobRoot = d.BlobRoot
	}
	if d.ConfigDir != "" {
		cfg.ConfigDir = d.ConfigDir
	}
	if d.Retention.Daily > 0 {
		cfg.RetainDaily = d.Retention.Daily
	}
	if d.Retention.Weekly > 0 {
		cfg.RetainWeekly = d.Retention.Weekly
	}
	if d.Retention.Monthly > 0 {
		cfg.RetainMonthly = d.Retention.Monthly
	}
}
