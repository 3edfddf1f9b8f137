package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Keksclan/goRawrStash/config"
)

// errUnconfigured is returned by check for a name with no configuration.
var errUnconfigured = errors.New("not configured")

type flags struct {
	file      string
	envPrefix string
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "stashctl",
		Short:         "Inspect cache configuration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&f.file, "config", "c", "", "configuration file (default: ./config.*)")
	root.PersistentFlags().StringVar(&f.envPrefix, "env-prefix", config.EnvPrefix, "prefix of environment overrides")

	root.AddCommand(newResolveCmd(f), newCheckCmd(f))
	return root
}

func (f *flags) load() (*viper.Viper, error) {
	opts := []config.LoadOption{config.WithEnvPrefix(f.envPrefix)}
	if f.file != "" {
		opts = append(opts, config.WithFile(f.file))
	} else {
		opts = append(opts, config.WithSearchPath("."))
	}
	return config.Load(opts...)
}

func newResolveCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [name...]",
		Short: "Print resolved cache configurations as YAML",
		Long: "Resolves the named caches, or every cache under caching when no name " +
			"is given, and prints the effective settings. Exits non-zero when any " +
			"of them fails to resolve.",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := f.load()
			if err != nil {
				return err
			}
			names := args
			if len(names) == 0 {
				names = config.Names(v)
			}

			var errs *multierror.Error
			out := make(map[string]resolved, len(names))
			for _, name := range names {
				cfg, ok, err := config.Resolve(v, name)
				switch {
				case err != nil:
					errs = multierror.Append(errs, err)
				case !ok:
					errs = multierror.Append(errs, fmt.Errorf("cache %q: %w", name, errUnconfigured))
				default:
					out[name] = toResolved(cfg)
				}
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(map[string]any{config.Root: out}); err != nil {
				return err
			}
			if err := enc.Close(); err != nil {
				return err
			}
			return errs.ErrorOrNil()
		},
	}
}

func newCheckCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "check <name>",
		Short: "Report whether a cache is configured",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := f.load()
			if err != nil {
				return err
			}
			name := args[0]
			_, ok, err := config.Resolve(v, name)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("cache %q: %w", name, errUnconfigured)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cache %q is configured\n", name)
			return nil
		},
	}
}

// resolved is the printed form of a CacheConfig.
type resolved struct {
	RefreshDuration string `yaml:"refresh-duration"`
	ExpireDuration  string `yaml:"expire-duration"`
	MaxSize         int64  `yaml:"max-size"`
	CustomExecutor  bool   `yaml:"custom-executor"`
	Engine          string `yaml:"engine"`
}

func toResolved(c config.CacheConfig) resolved {
	engine := string(c.Engine)
	if engine == "" {
		engine = string(config.EngineRistretto)
	}
	return resolved{
		RefreshDuration: formatDuration(c.RefreshDuration),
		ExpireDuration:  formatDuration(c.ExpireDuration),
		MaxSize:         c.MaxSize,
		CustomExecutor:  c.CustomExecutor,
		Engine:          engine,
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d == config.Infinite:
		return "infinite"
	case d <= 0:
		return "0s"
	default:
		return d.String()
	}
}
