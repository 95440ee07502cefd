// Package config resolves export job settings from environment variables, an
// optional .env file, an optional HCL job file and command line flags, in
// increasing order of precedence.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"batch-runner/internal/ctxlog"
	"batch-runner/internal/export"
	"batch-runner/internal/procrun"

	"github.com/joho/godotenv"
)

const envPrefix = "BATCH_"

// Partial is one layer of settings. Nil fields are unset and leave the lower
// layer's value in place.
type Partial struct {
	Inputs          []string `hcl:"inputs,optional"`
	OutputDir       *string  `hcl:"output_dir,optional"`
	Filter          *string  `hcl:"filter,optional"`
	Formats         []string `hcl:"formats,optional"`
	ContinueOnError *bool    `hcl:"continue_on_error,optional"`
	Timeout         *int     `hcl:"timeout,optional"`
	Converter       *string  `hcl:"converter,optional"`
	Version         *string  `hcl:"version,optional"`
	LogTag          *string  `hcl:"log_tag,optional"`
}

// Export is the resolved, validated configuration of one export run.
type Export struct {
	Inputs          []string `json:"inputs" validate:"required,min=1,dive,required"`
	OutputDir       string   `json:"output_dir"`
	Filter          string   `json:"filter" validate:"required"`
	Formats         []string `json:"formats" validate:"required,min=1,dive,required"`
	ContinueOnError bool     `json:"continue_on_error"`
	Timeout         int      `json:"timeout" validate:"gte=0"`
	Converter       string   `json:"converter" validate:"required"`
	Version         string   `json:"version"`
	LogTag          string   `json:"log_tag" validate:"required"`
}

type Sources struct {
	// EnvFile is a .env file; a missing file is not an error.
	EnvFile string
	// JobFile is an HCL file with an export block.
	JobFile string
	Flags   Partial
}

func Defaults() Export {
	return Export{
		Filter:          export.DefaultFilter,
		ContinueOnError: true,
		LogTag:          procrun.DefaultLogTag,
	}
}

// Load merges env, job file and flags over Defaults and validates the result.
func Load(ctx context.Context, src Sources) (Export, error) {
	logger := ctxlog.From(ctx)

	dotenv, err := readEnvFile(src.EnvFile)
	if err != nil {
		return Export{}, err
	}
	envLayer, err := fromEnv(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	})
	if err != nil {
		return Export{}, err
	}

	cfg := Defaults()
	cfg.apply(envLayer)

	if src.JobFile != "" {
		fileLayer, err := LoadJobFile(src.JobFile)
		if err != nil {
			return Export{}, err
		}
		cfg.apply(fileLayer)
		logger.Debug("job file loaded", slog.String("path", src.JobFile))
	}

	cfg.apply(src.Flags)

	if err := Validate(cfg); err != nil {
		return Export{}, err
	}
	return cfg, nil
}

func (c Export) Options() export.Options {
	return export.Options{
		Inputs:          c.Inputs,
		OutputDir:       c.OutputDir,
		Filter:          c.Filter,
		Formats:         c.Formats,
		ContinueOnError: c.ContinueOnError,
		Timeout:         c.Timeout,
		Converter:       c.Converter,
		Version:         c.Version,
		LogTag:          c.LogTag,
	}
}

func (c *Export) apply(p Partial) {
	if len(p.Inputs) > 0 {
		c.Inputs = p.Inputs
	}
	if p.OutputDir != nil {
		c.OutputDir = *p.OutputDir
	}
	if p.Filter != nil {
		c.Filter = *p.Filter
	}
	if len(p.Formats) > 0 {
		c.Formats = p.Formats
	}
	if p.ContinueOnError != nil {
		c.ContinueOnError = *p.ContinueOnError
	}
	if p.Timeout != nil {
		c.Timeout = *p.Timeout
	}
	if p.Converter != nil {
		c.Converter = *p.Converter
	}
	if p.Version != nil {
		c.Version = *p.Version
	}
	if p.LogTag != nil {
		c.LogTag = *p.LogTag
	}
}

func readEnvFile(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("load env file %s: %w", path, err)
	}
	return values, nil
}

func fromEnv(lookup func(string) (string, bool)) (Partial, error) {
	var p Partial
	str := func(name string) *string {
		if v, ok := lookup(envPrefix + name); ok && strings.TrimSpace(v) != "" {
			return &v
		}
		return nil
	}

	p.Inputs = splitList(str("INPUTS"))
	p.Formats = splitList(str("FORMATS"))
	p.OutputDir = str("OUTPUT_DIR")
	p.Filter = str("FILTER")
	p.Converter = str("CONVERTER")
	p.Version = str("CONVERTER_VERSION")
	p.LogTag = str("LOG_TAG")

	if raw := str("CONTINUE_ON_ERROR"); raw != nil {
		v, err := strconv.ParseBool(strings.TrimSpace(*raw))
		if err != nil {
			return Partial{}, invalidEnv("CONTINUE_ON_ERROR", *raw)
		}
		p.ContinueOnError = &v
	}
	if raw := str("TIMEOUT"); raw != nil {
		v, err := strconv.Atoi(strings.TrimSpace(*raw))
		if err != nil {
			return Partial{}, invalidEnv("TIMEOUT", *raw)
		}
		p.Timeout = &v
	}
	return p, nil
}

func splitList(raw *string) []string {
	if raw == nil {
		return nil
	}
	var out []string
	for _, part := range strings.Split(*raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
