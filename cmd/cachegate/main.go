package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/segarro/cachegate"
	"github.com/segarro/cachegate/internal/adapters/sqlite"
	"github.com/segarro/cachegate/internal/cliconfig"
	gate "github.com/segarro/cachegate/pkg/cachegate"
	cglog "github.com/segarro/cachegate/pkg/log"
	"github.com/segarro/cachegate/plugins/configwatcher"
)

const longHelp = `Serve a viewer through a cache-first gate so it keeps working offline.

On start the gate stores the viewer's HTML shell in a versioned cache and
drops every cache with another name. Each later request is answered from
the cache when present; otherwise it is fetched from the origin and, when
the response is a plain 200, stored for next time.

Bump --cache-name (e.g. segarro-v6 -> segarro-v7) to invalidate everything,
including large model files.`

var exampleUsage = strings.TrimSpace(`
  cachegate --origin http://127.0.0.1:8000/
  cachegate --config $HOME/.cachegate/config.toml --watch-config
  cachegate caches --delete segarro-v5
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	log := cliconfig.Logger(cliconfig.DefaultLogLevel)

	root := &cobra.Command{
		Use:     "cachegate",
		Short:   "Cache-first gate for an offline-capable viewer",
		Long:    longHelp,
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile, err := loadConfig(cmd, cfgPath, &cfg)
			if err != nil {
				return err
			}
			log = cliconfig.Logger(cfg.LogLevel)
			log.Info().Interface("config", cfg).Msg("configuration")
			return serve(cfg, cfgFile, log)
		},
	}

	// Flags
	flags := root.PersistentFlags()
	flags.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.cachegate/config.toml)")
	flags.StringVar(&cfg.StorePath, "store", cfg.StorePath, `SQLite cache database, or "memory"`)
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	root.Flags().StringVar(&cfg.Listen, "listen", cfg.Listen, "address to serve the gate on")
	root.Flags().StringVar(&cfg.Origin, "origin", cfg.Origin, "base URL the viewer is served from")
	root.Flags().StringVar(&cfg.CacheName, "cache-name", cfg.CacheName, "current cache name, embedding the version tag")
	root.Flags().StringSliceVar(&cfg.SeedFiles, "seed", cfg.SeedFiles, "files stored at install, relative to the origin")
	root.Flags().StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "directory for registration.json (defaults to the store's directory)")
	root.Flags().DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "time allowed for connections and cache writes to drain")
	root.Flags().BoolVar(&cfg.WatchConfig, "watch-config", cfg.WatchConfig, "bump the cache version when cache_name changes in the config file")

	root.AddCommand(cachesCommand(&cfg, &cfgPath))

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("cachegate")
		os.Exit(1)
	}
}

// loadConfig applies file, then env, then validates. Flags set on the
// command line win over both. It returns the config file path in use, or "".
func loadConfig(cmd *cobra.Command, cfgPath string, cfg *cliconfig.Config) (string, error) {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return "", fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return "", err
		}
	} else {
		cfgFile = ""
	}

	// Environment (CACHEGATE_*) overrides the file but not flags
	if err := cliconfig.ApplyEnvConfig(cfg, changed); err != nil {
		return "", err
	}

	if err := cfg.Validate(); err != nil {
		return "", err
	}
	return cfgFile, nil
}

func serve(cfg cliconfig.Config, cfgFile string, log zerolog.Logger) error {
	libCfg := gate.Config{
		Origin:          cfg.Origin,
		CacheName:       cfg.CacheName,
		SeedFiles:       cfg.SeedFiles,
		StateDir:        cfg.StateDir,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}
	if !cfg.InMemory() {
		if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o755); err != nil {
			return fmt.Errorf("create store directory: %w", err)
		}
		libCfg.StorePath = cfg.StorePath
	}

	opts := []gate.Option{
		gate.WithLogger(cglog.NewZerologAdapterWithLogger(log)),
	}
	if cfg.WatchConfig {
		if cfgFile == "" {
			log.Warn().Msg("--watch-config set but no config file found")
		} else {
			opts = append(opts, configwatcher.WithDefaultConfigWatcher(cfgFile))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("listen", cfg.Listen).Str("origin", cfg.Origin).Msg("serving")
	if err := cachegate.Run(ctx, cfg.Listen, libCfg, opts...); err != nil {
		return err
	}
	log.Info().Msg("stopped")
	return nil
}

func cachesCommand(cfg *cliconfig.Config, cfgPath *string) *cobra.Command {
	var deleteName string
	cmd := &cobra.Command{
		Use:   "caches",
		Short: "List or delete the caches in the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Origin == "" {
				// listing needs no origin; keep Validate happy
				cfg.Origin = "http://localhost/"
			}
			if _, err := loadConfig(cmd, *cfgPath, cfg); err != nil {
				return err
			}
			if cfg.InMemory() {
				return fmt.Errorf("the memory store is not persistent; pass --store")
			}

			s, err := sqlite.Open(cfg.StorePath)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			if deleteName != "" {
				ok, err := s.Delete(ctx, deleteName)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("cache %q not found", deleteName)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", deleteName)
				return nil
			}

			names, err := s.Keys(ctx)
			if err != nil {
				return err
			}
			for _, name := range names {
				n, err := s.EntryCount(ctx, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", name, n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&deleteName, "delete", "", "delete the named cache")
	return cmd
}
