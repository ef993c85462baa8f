// Command intercom-export fetches Intercom conversations and renders them
// to markdown, JSON, or CSV.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inboxkit/intercom-export/internal/cache"
	"github.com/inboxkit/intercom-export/internal/config"
	"github.com/inboxkit/intercom-export/internal/export"
	"github.com/inboxkit/intercom-export/internal/format"
	"github.com/inboxkit/intercom-export/internal/intercom"
	"github.com/inboxkit/intercom-export/internal/logger"
)

type cliOptions struct {
	configPath string
	formatName string
	output     string
	idsFile    string
	batchSize  int
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts cliOptions

	root := &cobra.Command{
		Use:           "intercom-export [conversation ids...]",
		Short:         "Export Intercom conversations to markdown, JSON, or CSV",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cfg, err := buildService(opts)
			if err != nil {
				return err
			}
			ids, err := resolveIDs(args, opts, cfg)
			if err != nil {
				return err
			}
			return svc.Run(cmd.Context(), ids, opts.formatName, opts.output)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to config.toml")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	root.Flags().StringVar(&opts.formatName, "format", "", "Output format (default from config)")
	root.Flags().StringVar(&opts.output, "output", "", "Output file path (default conversations.<format>)")
	root.Flags().StringVar(&opts.idsFile, "ids-file", "", "File with one conversation id per line")
	root.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Conversations per search request (0 = automatic)")

	root.AddCommand(newFormatsCmd(), newShowCmd(&opts))
	return root
}

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List registered output formats",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(format.Available(), "\n"))
		},
	}
}

func newShowCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversation id>",
		Short: "Print one conversation as markdown (cache-first)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := buildService(*opts)
			if err != nil {
				return err
			}
			rendered, err := svc.ShowOne(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), rendered)
			return nil
		},
	}
}

func buildService(opts cliOptions) (*export.Service, config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, cfg, fmt.Errorf("load config: %w", err)
	}
	if opts.batchSize > 0 {
		cfg.Intercom.BatchSize = opts.batchSize
	}
	if opts.formatName != "" {
		cfg.Export.Format = opts.formatName
	}

	level := cfg.Log.Level
	if opts.verbose {
		level = "debug"
	}
	log := logger.Init(level, cfg.Log.Format)

	if cfg.Intercom.APIToken == "" && os.Getenv(intercom.EnvAPIToken) == "" {
		return nil, cfg, fmt.Errorf("no API token: set %s or intercom.api_token in the config file", intercom.EnvAPIToken)
	}

	client := intercom.NewClient(log, intercom.Config{
		APIToken:       cfg.Intercom.APIToken,
		BaseURL:        cfg.Intercom.BaseURL,
		APIVersion:     cfg.Intercom.APIVersion,
		BatchSize:      cfg.Intercom.BatchSize,
		MaxRetries:     cfg.Intercom.MaxRetries,
		InitialBackoff: cfg.Intercom.InitialBackoff(),
		BackoffFactor:  cfg.Intercom.BackoffFactor,
		MaxBackoff:     cfg.Intercom.MaxBackoff(),
	})

	var store *cache.Store
	if cfg.Export.CacheFile != "" {
		store = cache.NewStore(log, cfg.Export.CacheFile)
	}

	return export.NewService(log, cfg.Export, client, store), cfg, nil
}

func resolveIDs(args []string, opts cliOptions, cfg config.Config) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	path := opts.idsFile
	if path == "" {
		path = cfg.Export.IDsFile
	}
	ids, err := export.ReadIDsFile(path)
	if err != nil {
		if os.IsNotExist(err) && opts.idsFile == "" {
			return nil, fmt.Errorf("no conversation ids: pass them as arguments or provide %s", path)
		}
		return nil, fmt.Errorf("read ids file: %w", err)
	}
	slog.Debug("loaded conversation ids", slog.Int("count", len(ids)), slog.String("path", path))
	return ids, nil
}
