// Package config loads distill settings with project > global >
// built-in precedence. Each level is a small YAML file; missing keys
// at one level fall through to the next.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/distillmcp/distill/store"
)

const configFileName = "config.yaml"

// Config holds the resolved settings.
type Config struct {
	// ExtractionModel is the reasoning-service model used by learn.
	ExtractionModel string
	// CrystallizeModel is the model used for rule synthesis.
	CrystallizeModel string
	// MaxTranscriptChars bounds the formatted transcript sent to the
	// reasoning service; older turns are dropped beyond it.
	MaxTranscriptChars int
	// AutoCrystallizeThreshold triggers crystallize after N new chunks
	// since the last run. 0 disables.
	AutoCrystallizeThreshold int
}

// fileConfig uses pointer fields so that an explicitly configured zero
// (e.g. auto_crystallize_threshold: 0) survives the merge instead of
// being mistaken for "unset".
type fileConfig struct {
	ExtractionModel          *string `yaml:"extraction_model,omitempty"`
	CrystallizeModel         *string `yaml:"crystallize_model,omitempty"`
	MaxTranscriptChars       *int    `yaml:"max_transcript_chars,omitempty"`
	AutoCrystallizeThreshold *int    `yaml:"auto_crystallize_threshold,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		ExtractionModel:          "claude-haiku-4-5-20251001",
		CrystallizeModel:         "claude-sonnet-4-5-20250929",
		MaxTranscriptChars:       100_000,
		AutoCrystallizeThreshold: 0,
	}
}

// Load resolves configuration for a working context. projectRoot may
// be empty when no project was detected. Unreadable or malformed
// config files are treated as absent.
func Load(projectRoot string) Config {
	merged := fileConfig{}

	if projectRoot != "" {
		projectConf := loadFile(filepath.Join(projectRoot, ".distill", configFileName))
		_ = mergo.Merge(&merged, projectConf)
	}

	if globalRoot, err := store.GlobalRoot(); err == nil {
		globalConf := loadFile(filepath.Join(globalRoot, configFileName))
		_ = mergo.Merge(&merged, globalConf)
	}

	return materialize(merged)
}

func loadFile(path string) fileConfig {
	raw, err := os.ReadFile(path) //nolint:gosec // G304: config path is derived from scope roots
	if err != nil {
		return fileConfig{}
	}
	var conf fileConfig
	if err := yaml.Unmarshal(raw, &conf); err != nil {
		return fileConfig{}
	}
	return conf
}

func materialize(fc fileConfig) Config {
	conf := Defaults()
	if fc.ExtractionModel != nil {
		conf.ExtractionModel = *fc.ExtractionModel
	}
	if fc.CrystallizeModel != nil {
		conf.CrystallizeModel = *fc.CrystallizeModel
	}
	if fc.MaxTranscriptChars != nil {
		conf.MaxTranscriptChars = *fc.MaxTranscriptChars
	}
	if fc.AutoCrystallizeThreshold != nil {
		conf.AutoCrystallizeThreshold = *fc.AutoCrystallizeThreshold
	}
	return conf
}

// String renders the resolved config for diagnostics.
func (c Config) String() string {
	return fmt.Sprintf("extraction_model=%s crystallize_model=%s max_transcript_chars=%d auto_crystallize_threshold=%d",
		c.ExtractionModel, c.CrystallizeModel, c.MaxTranscriptChars, c.AutoCrystallizeThreshold)
}
