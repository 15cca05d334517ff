// Package config wraps environment parsing shared by every binary.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DotEnvPathVar names the env var that points at an alternate .env file.
const DotEnvPathVar = "ZMOOTH_ENV_FILE"

// Load reads the optional .env file and then the process environment into
// target. Variables already set in the process win over the file.
func Load(target any) error {
	if err := LoadDotEnv(); err != nil {
		return err
	}
	return ParseEnv(target)
}

// ParseEnv fills target from `env` struct tags. Every bad variable is
// reported by its env name, not just the first.
func ParseEnv(target any) error {
	err := env.Parse(target)
	if err == nil {
		return nil
	}
	var aggregate env.AggregateError
	if !errors.As(err, &aggregate) {
		return fmt.Errorf("parse env: %w", err)
	}
	keys := envKeys(reflect.TypeOf(target), "")
	messages := make([]string, 0, len(aggregate.Errors))
	for _, item := range aggregate.Errors {
		messages = append(messages, describeEnvError(item, keys))
	}
	return fmt.Errorf("parse env: %s", strings.Join(messages, "; "))
}

func describeEnvError(err error, keys map[string][]string) string {
	var parseErr env.ParseError
	if errors.As(err, &parseErr) {
		if names := slices.Sorted(slices.Values(keys[parseErr.Name])); len(names) > 0 {
			return fmt.Sprintf("%s: %v", strings.Join(names, " or "), parseErr.Err)
		}
	}
	return err.Error()
}

// envKeys maps struct field names to the env variables they read, following
// envPrefix into nested structs.
func envKeys(t reflect.Type, prefix string) map[string][]string {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	keys := make(map[string][]string)
	if t == nil || t.Kind() != reflect.Struct {
		return keys
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		if name, _, _ := strings.Cut(field.Tag.Get("env"), ","); name != "" {
			keys[field.Name] = append(keys[field.Name], prefix+name)
			continue
		}
		for name, nested := range envKeys(field.Type, prefix+field.Tag.Get("envPrefix")) {
			keys[name] = append(keys[name], nested...)
		}
	}
	return keys
}

// LoadDotEnv loads the first existing file among paths, defaulting to
// $ZMOOTH_ENV_FILE or ".env". A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		path := strings.TrimSpace(os.Getenv(DotEnvPathVar))
		if path == "" {
			path = ".env"
		}
		paths = []string{path}
	}
	var existing []string
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat env file %s: %w", path, err)
		}
		existing = append(existing, path)
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}
