package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/memobackup/cmd/memobackup/commands"
	ferrors "git.home.luguber.info/inful/memobackup/internal/foundation/errors"
	"git.home.luguber.info/inful/memobackup/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("memobackup"),
		kong.Description("Keeps a local memo store backed up to a remote target."),
		kong.UsageOnError(),
		kong.Vars{"version": version.Version},
	)

	if err := parser.Run(&commands.Global{Logger: slog.Default()}, cli); err != nil {
		ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
