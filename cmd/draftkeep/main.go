package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/hpungsan/draftkeep/internal/config"
	"github.com/hpungsan/draftkeep/internal/draft"
	"github.com/hpungsan/draftkeep/internal/logger"
	"github.com/hpungsan/draftkeep/internal/mcp"
	"github.com/hpungsan/draftkeep/internal/storage"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"write": true, "read": true, "remove": true, "list": true, "purge": true,
	"export": true, "import": true,
	"recover": true, "track": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a short banner when run interactively without args.
func printBanner() {
	fmt.Println(`
  draftkeep: local draft persistence for long forms

  Usage: draftkeep <command> [options]
         draftkeep --help

  MCP server mode requires piped input.`)
}

// openStore opens the configured medium. A medium that cannot be opened is
// replaced by one that refuses every call, so drafting degrades to a no-op.
func openStore(cfg *config.Config, baseDir string, log zerolog.Logger) (*draft.Store, func()) {
	medium, err := storage.Open(cfg, baseDir)
	if err != nil {
		log.Warn().Err(err).Str("backend", cfg.Backend).Msg("storage unavailable; drafts will not be kept")
		medium = storage.Unavailable{Reason: err.Error()}
	}

	closeFn := func() {}
	if c, ok := medium.(storage.Closer); ok {
		closeFn = func() {
			if err := c.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close storage")
			}
		}
	}

	store := draft.NewStore(medium, draft.StoreOptions{
		Prefix:           cfg.KeyPrefix,
		MaxEnvelopeBytes: cfg.MaxEnvelopeBytes,
		Logger:           &log,
	})
	return store, closeFn
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before opening storage
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}
	baseDir := filepath.Join(homeDir, ".draftkeep")

	cwd, err := os.Getwd()
	if err != nil {
		cwd = baseDir
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		log.Warn().Strs("tools", unknown).Msg("unknown tools in disabled_tools")
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		log.Warn().Strs("types", unknown).Msg("unknown types in disabled_types")
	}

	store, closeStore := openStore(cfg, baseDir, log)
	defer closeStore()

	env := &appEnv{store: store, cfg: cfg, baseDir: baseDir, log: log}

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(env)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			closeStore()
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'draftkeep --help' for usage.\n")
		closeStore()
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := mcp.Run(store, cfg, baseDir, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		closeStore()
		os.Exit(1)
	}
}
