package commands

import (
	"context"
	"fmt"
)

// AutoSyncCmd implements the 'auto-sync' command.
type AutoSyncCmd struct {
	State string `arg:"" enum:"on,off" help:"on or off"`
}

func (a *AutoSyncCmd) Run(_ *Global, root *CLI) error {
	st, err := root.client().SetAutoSync(context.Background(), a.State == "on")
	if err != nil {
		return err
	}
	printStatus(st)
	return nil
}

// IntervalCmd implements the 'interval' command.
type IntervalCmd struct {
	Minutes int `arg:"" help:"Minutes between periodic syncs (1-60)"`
}

func (i *IntervalCmd) Run(_ *Global, root *CLI) error {
	st, err := root.client().SetInterval(context.Background(), i.Minutes)
	if err != nil {
		return err
	}
	printStatus(st)
	return nil
}

// PrefixCmd implements the 'prefix' command.
type PrefixCmd struct {
	Prefix string `arg:"" optional:"" help:"File name label; omit to restore the default"`
}

func (p *PrefixCmd) Run(_ *Global, root *CLI) error {
	st, err := root.client().SetPrefix(context.Background(), p.Prefix)
	if err != nil {
		return err
	}
	printStatus(st)
	return nil
}

// CheckCmd implements the 'check' command.
type CheckCmd struct{}

func (c *CheckCmd) Run(_ *Global, root *CLI) error {
	res, err := root.client().CheckRemote(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Remote %s is reachable\n", res.Remote)
	return nil
}
