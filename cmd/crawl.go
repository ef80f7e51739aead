package cmd

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/ladder-battle-crawler/internal/app"
	"github.com/JakeFAU/ladder-battle-crawler/internal/config"
	"github.com/JakeFAU/ladder-battle-crawler/internal/crawler"
	"github.com/JakeFAU/ladder-battle-crawler/internal/logging"
)

// crawlFlags maps CLI flags onto config keys.
var crawlFlags = map[string]string{
	"players":       "crawler.max_battlelogs",
	"battles":       "crawler.max_battles",
	"root-players":  "crawler.seeds",
	"requests":      "crawler.concurrency",
	"database-dir":  "output.dir",
	"compress":      "output.compress",
	"keep-original": "output.keep_original",
	"proxy":         "api.proxy",
	"port":          "server.port",
}

// newCrawlCmd creates the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl session",
		Long: `Checks the API token, then fetches battlelogs until a limit is hit,
the frontier runs dry, the upstream enters maintenance or the process is
interrupted. Battles land in {database-dir}/{start}.csv(.gz).`,
		RunE: runCrawlCommand,
	}

	f := cmd.Flags()
	f.IntP("players", "p", 0, "stop after X non-empty battlelogs (0 = unbounded)")
	f.Int("battles", 0, "stop after X battles (0 = unbounded)")
	f.StringSlice("root-players", crawlerSeeds(), "seed player tags")
	f.IntP("requests", "r", crawler.DefaultConcurrency, "perform up to Y requests concurrently")
	f.StringP("database-dir", "d", "db-hour", "where .csv/.csv.gz files are stored")
	f.BoolP("compress", "c", false, "compress the .csv into .csv.gz")
	f.BoolP("keep-original", "k", false, "keep the .csv after compression")
	f.Bool("proxy", false, "route requests through the community proxy")
	f.Int("port", 0, "status server port (0 disables)")
	return cmd
}

func crawlerSeeds() []string {
	out := make([]string, 0, len(crawler.DefaultSeeds))
	for _, s := range crawler.DefaultSeeds {
		out = append(out, s.String())
	}
	return out
}

// loadConfig layers .env, config file, environment and changed flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return config.Config{}, err
	}
	v := config.New()
	if err := bindFlags(cmd, v); err != nil {
		return config.Config{}, err
	}
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("read --config: %w", err)
	}
	cfg, err := config.LoadFrom(v, path)
	if err != nil {
		return config.Config{}, err
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.Output.Dir, "collect.log")
	}
	return cfg, nil
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for name, key := range crawlFlags {
		if !cmd.Flags().Changed(name) {
			continue
		}
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	if cmd.Flags().Changed("verbose") {
		count, err := cmd.Flags().GetCount("verbose")
		if err != nil {
			return fmt.Errorf("read --verbose: %w", err)
		}
		v.Set("logging.level", logging.LevelForVerbosity(count))
	}
	return nil
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
		File:        cfg.Logging.File,
		FileLevel:   cfg.Logging.FileLevel,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer a.Close()

	res, err := a.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d battles from %d players (%s) -> %s sha256:%s\n",
		res.BattlesWritten, res.PlayersProcessed, res.Reason, res.File, res.Checksum)
	return nil
}
