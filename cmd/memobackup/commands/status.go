package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"git.home.luguber.info/inful/memobackup/internal/coordinator"
)

// StatusCmd implements the 'status' command.
type StatusCmd struct {
	JSON bool `help:"Print the raw status document"`
}

func (s *StatusCmd) Run(_ *Global, root *CLI) error {
	st, err := root.client().Status(context.Background())
	if err != nil {
		return err
	}
	if s.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	printStatus(st)
	return nil
}

func printStatus(st coordinator.Status) {
	fmt.Println(st.Message)
	fmt.Printf("  phase:        %s\n", st.Phase)
	fmt.Printf("  auto sync:    %t (every %d min)\n", st.AutoSyncEnabled, st.SyncIntervalMinutes)
	if st.LastSyncTime.IsZero() {
		fmt.Println("  last sync:    never")
	} else {
		fmt.Printf("  last sync:    %s (%s)\n", st.LastSyncTime.Local().Format(time.DateTime), st.LastFileName)
	}
	if st.LastError != "" {
		fmt.Printf("  last error:   %s [%s]\n", st.LastError, st.ErrorCategory)
	}
	if st.Active != nil {
		fmt.Printf("  active:       %s (attempt %d)\n", st.Active.Reason, st.Active.Attempts)
	}
	if st.Pending != nil {
		fmt.Printf("  pending:      %s\n", st.Pending.Reason)
	}
}
