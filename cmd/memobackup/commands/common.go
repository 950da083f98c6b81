// Package commands implements the memobackup command line.
package commands

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/memobackup/internal/api"
	"git.home.luguber.info/inful/memobackup/internal/config"
)

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"memobackup.yaml" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Addr    string           `help:"Admin API address of a running daemon (defaults to daemon.admin_addr)"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Init     InitCmd     `cmd:"" help:"Write an example configuration file"`
	Daemon   DaemonCmd   `cmd:"" help:"Run the backup daemon"`
	Sync     SyncCmd     `cmd:"" help:"Back up the memo store now"`
	Status   StatusCmd   `cmd:"" help:"Show sync status of the running daemon"`
	AutoSync AutoSyncCmd `cmd:"" name:"auto-sync" help:"Turn automatic sync on or off"`
	Interval IntervalCmd `cmd:"" help:"Set the periodic sync interval in minutes"`
	Prefix   PrefixCmd   `cmd:"" help:"Set the label used in backup file names"`
	Check    CheckCmd    `cmd:"" help:"Check that the daemon can reach its remote"`
	Memo     MemoCmd     `cmd:"" help:"Read and write memos through the running daemon"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// loadConfig reads the configuration and switches logging to its settings.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	configureLogging(cfg.Logging, c.Verbose)
	return cfg, nil
}

func configureLogging(lc config.LoggingConfig, verbose bool) {
	level := lc.Level.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if lc.Format == config.LogFormatJSON {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// client returns an admin API client. The address comes from --addr, then
// the configuration file, then the built-in default.
func (c *CLI) client() *api.Client {
	if c.Addr != "" {
		return api.NewClient(c.Addr)
	}
	if cfg, err := config.Load(c.Config); err == nil {
		return api.NewClient(cfg.Daemon.AdminAddr)
	}
	return api.NewClient(config.DefaultAdminAddr)
}
