package errors

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
)

// Exit codes returned by the memobackup CLI.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitUsage    = 2
	ExitAuth     = 5
	ExitConfig   = 7
	ExitRemote   = 8
	ExitInternal = 10
	ExitStore    = 11
	ExitDaemon   = 12
)

// CLIErrorAdapter turns command errors into a stderr message and an exit code.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{verbose: verbose, logger: logger}
}

// ExitCodeFor maps an error category to the process exit code.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	classified, ok := AsClassified(err)
	if !ok {
		return ExitFailure
	}
	switch classified.Category() {
	case CategoryValidation, CategoryNotFound:
		return ExitUsage
	case CategoryAuth, CategoryNotConnected:
		return ExitAuth
	case CategoryConfig:
		return ExitConfig
	case CategoryNetwork, CategoryMalformedRequest:
		return ExitRemote
	case CategoryInternal:
		return ExitInternal
	case CategoryStore, CategoryFileSystem:
		return ExitStore
	case CategoryDaemon, CategoryRuntime:
		return ExitDaemon
	default:
		return ExitFailure
	}
}

// FormatError renders err for stderr. Verbose mode adds the category and
// context of classified errors.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	classified, ok := AsClassified(err)
	if !ok {
		return fmt.Sprintf("Error: %v", err)
	}
	if a.verbose {
		var b strings.Builder
		b.WriteString(classified.Error())
		ctx := classified.Context()
		for _, k := range slices.Sorted(maps.Keys(ctx)) {
			fmt.Fprintf(&b, "\n  %s: %v", k, ctx[k])
		}
		return b.String()
	}
	if classified.Category() == CategoryInternal {
		return "Internal error occurred (use -v for details)"
	}
	msg := "Error: " + classified.Message()
	if hint := hintFor(classified.Category()); hint != "" {
		msg += "\n" + hint
	}
	return msg
}

func hintFor(category ErrorCategory) string {
	switch category {
	case CategoryAuth:
		return "Check the remote credentials in the config file."
	case CategoryNotConnected:
		return "The remote is not reachable; 'memobackup check' tests the connection."
	case CategoryDaemon:
		return "Start the daemon with 'memobackup daemon', or stop it before using 'sync --offline'."
	default:
		return ""
	}
}

// Report writes the message for err to w, logs it in verbose mode and
// returns the exit code.
func (a *CLIErrorAdapter) Report(w io.Writer, err error) int {
	if err == nil {
		return ExitOK
	}
	if a.verbose {
		attrs := []any{slog.String("error", err.Error())}
		if classified, ok := AsClassified(err); ok {
			attrs = append(attrs, slog.String("category", string(classified.Category())), slog.Bool("retryable", classified.CanRetry()))
		}
		a.logger.Debug("Command failed", attrs...)
	}
	_, _ = fmt.Fprintln(w, a.FormatError(err))
	return a.ExitCodeFor(err)
}

// HandleError reports err on stderr and exits with its code.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}
	os.Exit(a.Report(os.Stderr, err))
}
