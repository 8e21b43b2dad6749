package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meigma/blobcache"
	"github.com/meigma/blobcache/cache/disk"
	blobhttp "github.com/meigma/blobcache/http"
)

// app carries state shared by every subcommand.
type app struct {
	v        *viper.Viper
	settings settings
	logger   *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "blobcache",
		Short:         "Inspect and maintain blobcache disk caches",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(cmd, a.v)
			if err != nil {
				return err
			}
			a.settings = s
			a.logger = newLogger(cmd.ErrOrStderr(), s.Verbose)
			return nil
		},
	}
	bindFlags(root, a.v)

	root.AddCommand(
		a.statCmd(),
		a.pruneCmd(),
		a.getCmd(),
		a.putCmd(),
		a.clearCmd(),
		a.fetchCmd(),
	)
	return root
}

// open opens the configured cache. Opening applies the count and age
// bounds, deleting what falls outside them.
func (a *app) open(ctx context.Context) (*disk.Cache, error) {
	c, err := blobcache.OpenDisk(ctx, a.settings.diskConfig(), a.settings.diskOptions(a.logger)...)
	if err != nil {
		if c != nil {
			_ = c.Close()
		}
		return nil, err
	}
	return c, nil
}

func (a *app) statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat",
		Short: "Show entry count, size and age of the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			u, err := c.Usage()
			if err != nil {
				return err
			}
			dir, err := a.settings.resolveDir()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "directory  %s\n", dir)
			fmt.Fprintf(out, "entries    %d / %d\n", u.Entries, a.settings.MaxEntries)
			fmt.Fprintf(out, "size       %s\n", humanize.Bytes(uint64(u.Bytes))) //nolint:gosec // sizes are non-negative
			if u.Entries > 0 {
				fmt.Fprintf(out, "oldest     %s\n", humanize.Time(u.Oldest))
				fmt.Fprintf(out, "newest     %s\n", humanize.Time(u.Newest))
			}
			if a.settings.MaxAge > 0 {
				fmt.Fprintf(out, "max age    %s\n", a.settings.MaxAge)
			}
			if pruned := c.Stats().Pruned; pruned > 0 {
				fmt.Fprintf(out, "pruned     %s on open\n", humanize.Comma(int64(pruned))) //nolint:gosec // small counts
			}
			return nil
		},
	}
}

func (a *app) pruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete expired entries and entries over the count bound",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d entries, %d remain\n", c.Stats().Pruned, c.Count())
			return nil
		},
	}
}

func (a *app) getCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Write a cached blob to stdout or a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			data, ok, err := c.GetContext(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%q is not cached", args[0])
			}
			if output != "" {
				return os.WriteFile(output, data, 0o600)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func (a *app) putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put KEY [FILE]",
		Short: "Store a blob read from FILE or stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := cmd.InOrStdin()
			if len(args) == 2 && args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				src = f
			}

			c, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			w, err := c.Writer(args[0])
			if err != nil {
				return err
			}
			n, err := io.Copy(w, src)
			if err != nil {
				return errors.Join(err, w.Discard())
			}
			if err := w.Commit(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s (%s)\n", args[0], humanize.Bytes(uint64(n))) //nolint:gosec // n >= 0
			return nil
		},
	}
}

func (a *app) clearCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clear [KEY...]",
		Short: "Remove entries from the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("pass either keys or --all")
			}
			c, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			if all {
				n := c.Count()
				c.ClearAll()
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %d entries\n", n)
				return nil
			}
			for _, key := range args {
				if !c.Contains(key) {
					a.logger.Warn("key not cached", "key", key)
					continue
				}
				c.Clear(key)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "remove every entry")
	return cmd
}

func (a *app) fetchCmd() *cobra.Command {
	var (
		output  string
		headers []string
	)
	cmd := &cobra.Command{
		Use:   "fetch URL",
		Short: "Print the blob at URL, downloading and caching it on a miss",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []blobhttp.Option{}
			for _, h := range headers {
				key, value, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("invalid header %q, want KEY:VALUE", h)
				}
				opts = append(opts, blobhttp.WithHeader(strings.TrimSpace(key), strings.TrimSpace(value)))
			}

			c, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			l := blobcache.NewLayered(
				blobcache.WithDisk(c),
				blobcache.WithLoader(blobhttp.NewLoader(opts...).Load),
				blobcache.WithLogger(a.logger),
			)
			cached := c.Contains(args[0])
			data, err := l.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.logger.Debug("fetched", "url", args[0], "cached", cached, "size", humanize.Bytes(uint64(len(data))))

			if output != "" {
				return os.WriteFile(output, data, 0o600)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra request header as KEY:VALUE (repeatable)")
	return cmd
}
