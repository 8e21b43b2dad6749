package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meigma/blobcache/cache/disk"
	"github.com/meigma/blobcache/paths"
)

const (
	configName        = "blobcache"
	envPrefix         = "blobcache"
	defaultName       = "blobs"
	defaultMaxEntries = 1000
	defaultMaxAge     = 30 * 24 * time.Hour
)

// settings is the resolved CLI configuration.
type settings struct {
	BaseDir    string
	Name       string
	MaxEntries int
	MaxAge     time.Duration
	Compress   bool
	Verbose    bool
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (default: blobcache.yaml in the user config dir)")
	flags.String("base-dir", "", "directory caches are created under (default: user data dir)")
	flags.StringP("name", "n", defaultName, "cache directory name under the base dir")
	flags.Int("max-entries", defaultMaxEntries, "maximum number of cached entries")
	flags.Duration("max-age", defaultMaxAge, "expire entries older than this on open (0 disables)")
	flags.Bool("compress", false, "store entries zstd-compressed")
	flags.BoolP("verbose", "v", false, "enable debug logging")

	for _, name := range []string{"base-dir", "name", "max-entries", "max-age", "compress", "verbose"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
}

// loadSettings merges flags, environment and the config file.
func loadSettings(cmd *cobra.Command, v *viper.Viper) (settings, error) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	configFile, _ := cmd.Flags().GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		dirs, err := paths.NewApp(disk.DefaultAppName).ConfigDirs()
		if err == nil {
			for _, dir := range dirs {
				v.AddConfigPath(dir)
			}
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	s := settings{
		BaseDir:    v.GetString("base-dir"),
		Name:       v.GetString("name"),
		MaxEntries: v.GetInt("max-entries"),
		MaxAge:     v.GetDuration("max-age"),
		Compress:   v.GetBool("compress"),
		Verbose:    v.GetBool("verbose"),
	}
	return s, nil
}

// newLogger returns an slog logger backed by a charm log handler.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := log.WarnLevel
	if verbose {
		level = log.DebugLevel
	}
	handler := log.NewWithOptions(w, log.Options{
		Prefix:          "blobcache",
		Level:           level,
		ReportTimestamp: verbose,
	})
	return slog.New(handler)
}

func (s settings) diskConfig() disk.Config {
	return disk.Config{
		MaxEntries: s.MaxEntries,
		Directory:  s.Name,
		MaxAge:     s.MaxAge,
	}
}

func (s settings) diskOptions(logger *slog.Logger) []disk.Option {
	opts := []disk.Option{disk.WithLogger(logger)}
	if s.BaseDir != "" {
		opts = append(opts, disk.WithBaseDir(s.BaseDir))
	}
	if s.Compress {
		opts = append(opts, disk.WithCompression(0))
	}
	return opts
}

// resolveDir returns the directory the configured cache lives in.
func (s settings) resolveDir() (string, error) {
	var r paths.Resolver = paths.NewApp(disk.DefaultAppName)
	if s.BaseDir != "" {
		r = paths.Dir(s.BaseDir)
	}
	base, err := r.BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, s.Name), nil
}
