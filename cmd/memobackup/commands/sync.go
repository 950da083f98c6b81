package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/memobackup/internal/daemon"
)

// SyncCmd implements the 'sync' command.
type SyncCmd struct {
	FileName string `short:"n" name:"file-name" help:"Upload under this file name instead of a generated one"`
	Offline  bool   `help:"Open the store directly instead of asking the running daemon"`
}

func (s *SyncCmd) Run(_ *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !s.Offline {
		out, err := root.client().Sync(ctx, s.FileName)
		if err != nil {
			return err
		}
		fmt.Printf("Backed up to %s (%d attempt(s))\n", out.FileName, out.Attempts)
		return nil
	}

	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	dmn, err := daemon.New(cfg, daemon.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = dmn.Close() }()

	out, err := dmn.SyncOnce(ctx, s.FileName)
	if err != nil {
		return err
	}
	fmt.Printf("Backed up to %s (%d attempt(s))\n", out.FileName, out.Attempts)
	return nil
}
