package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding file values.
// "caching.profile.max-size" is read from RAWRSTASH_CACHING_PROFILE_MAX_SIZE.
const EnvPrefix = "RAWRSTASH"

type loadOptions struct {
	file      string
	paths     []string
	envPrefix string
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

// WithFile reads configuration from an explicit file. The format follows
// the file extension. A missing explicit file is an error.
func WithFile(path string) LoadOption {
	return func(o *loadOptions) { o.file = path }
}

// WithSearchPath adds a directory searched for config.{yaml,json,toml}.
func WithSearchPath(dir string) LoadOption {
	return func(o *loadOptions) { o.paths = append(o.paths, dir) }
}

// WithEnvPrefix overrides EnvPrefix.
func WithEnvPrefix(prefix string) LoadOption {
	return func(o *loadOptions) { o.envPrefix = prefix }
}

// Load builds a viper instance from a config file and the environment.
// Without WithFile it looks for a file named "config" in the search paths
// (the working directory by default) and tolerates its absence.
func Load(opts ...LoadOption) (*viper.Viper, error) {
	o := loadOptions{envPrefix: EnvPrefix}
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()
	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if o.file != "" {
		v.SetConfigFile(o.file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", o.file, err)
		}
		return v, nil
	}

	v.SetConfigName("config")
	if len(o.paths) == 0 {
		o.paths = []string{"."}
	}
	for _, p := range o.paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}
	return v, nil
}
