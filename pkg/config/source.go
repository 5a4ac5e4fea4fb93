package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Source describes where a service reads its settings from. Values resolve
// in order: environment (seeded from DotEnv files), optional YAML file,
// Defaults.
type Source struct {
	// DotEnv files are loaded into the environment when present. Variables
	// already set win.
	DotEnv []string
	// Name is the config file name without extension, looked up in Dirs.
	Name string
	Dirs []string
	// FileEnv names a variable holding an explicit config file path.
	FileEnv  string
	Defaults map[string]interface{}
	// Env maps config keys to the variable names operators already use.
	Env map[string]string
}

// Open builds a viper instance for src. A missing config file is fine; a
// malformed one is not.
func Open(src Source) (*viper.Viper, error) {
	for _, f := range src.DotEnv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	for key, val := range src.Defaults {
		v.SetDefault(key, val)
	}

	v.SetConfigType("yaml")
	if path := os.Getenv(src.FileEnv); src.FileEnv != "" && path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(src.Name)
		for _, dir := range src.Dirs {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range src.Env {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Watch calls onChange each time the config file v was read from is written
// or replaced. It reports false, and does nothing, when no file was read.
func Watch(v *viper.Viper, onChange func(v *viper.Viper)) bool {
	if v.ConfigFileUsed() == "" {
		return false
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Has(fsnotify.Write) || e.Has(fsnotify.Create) {
			onChange(v)
		}
	})
	v.WatchConfig()
	return true
}

// Duration reads key as a duration. Missing, malformed and non-positive
// values yield def.
func Duration(v *viper.Viper, key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(v.GetString(key)); err == nil && d > 0 {
		return d
	}
	return def
}
