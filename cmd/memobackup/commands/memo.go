package commands

import (
	"context"
	"fmt"
)

// MemoCmd groups memo subcommands.
type MemoCmd struct {
	Set   MemoSetCmd   `cmd:"" help:"Write a memo"`
	Get   MemoGetCmd   `cmd:"" help:"Print a memo"`
	Rm    MemoRmCmd    `cmd:"" help:"Delete a memo"`
	List  MemoListCmd  `cmd:"" help:"List all memos"`
	Clear MemoClearCmd `cmd:"" help:"Delete every memo"`
}

type MemoSetCmd struct {
	Key   string `arg:""`
	Value string `arg:""`
}

func (m *MemoSetCmd) Run(_ *Global, root *CLI) error {
	return root.client().SetMemo(context.Background(), m.Key, m.Value)
}

type MemoGetCmd struct {
	Key string `arg:""`
}

func (m *MemoGetCmd) Run(_ *Global, root *CLI) error {
	memo, err := root.client().GetMemo(context.Background(), m.Key)
	if err != nil {
		return err
	}
	fmt.Println(memo.Value)
	return nil
}

type MemoRmCmd struct {
	Key string `arg:""`
}

func (m *MemoRmCmd) Run(_ *Global, root *CLI) error {
	return root.client().RemoveMemo(context.Background(), m.Key)
}

type MemoListCmd struct{}

func (m *MemoListCmd) Run(_ *Global, root *CLI) error {
	memos, err := root.client().ListMemos(context.Background())
	if err != nil {
		return err
	}
	for _, memo := range memos {
		fmt.Printf("%s\t%s\n", memo.Key, memo.Value)
	}
	return nil
}

type MemoClearCmd struct {
	Yes bool `short:"y" help:"Do not ask for confirmation"`
}

func (m *MemoClearCmd) Run(_ *Global, root *CLI) error {
	if !m.Yes {
		return fmt.Errorf("refusing to delete every memo without --yes")
	}
	return root.client().ClearMemos(context.Background())
}
