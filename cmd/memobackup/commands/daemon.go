package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/memobackup/internal/daemon"
	"git.home.luguber.info/inful/memobackup/internal/logfields"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	DataDir   string `short:"d" help:"Override daemon.data_dir"`
	AdminAddr string `help:"Override daemon.admin_addr"`
}

func (d *DaemonCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if d.DataDir != "" {
		cfg.Daemon.DataDir = d.DataDir
	}
	if d.AdminAddr != "" {
		cfg.Daemon.AdminAddr = d.AdminAddr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dmn, err := daemon.New(cfg, daemon.Options{Serve: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := dmn.Close(); err != nil {
			slog.Warn("Daemon cleanup failed", logfields.Error(err))
		}
	}()

	slog.Info("Daemon started, waiting for shutdown signal...")
	return dmn.Run(ctx)
}
