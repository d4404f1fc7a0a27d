/*
main.go - Operator entry point for the point-of-sale core

PURPOSE:
  Loads configuration, opens the single store handle for the process and
  dispatches to a subcommand. Every subcommand shares the same store,
  ledger and receipt service; the store is closed on exit.

USAGE:
  posd [global flags] <command> [command flags] [args]

COMMANDS:
  serve             Run the local HTTP adapter until interrupted
  checkout          Write a receipt for CODE[=QTY] items and record it
  import            Import receipt files into the ledger
  rebuild           Rebuild sales aggregates from the ledger
  sales             Print sales aggregates
  orders            Print orders, newest first
  delete-imported   Delete orders whose receipt files are in the receipts dir
  purge             Back up, then delete all orders and aggregates
  restore           Restore a purge backup over the database
  export            Write orders and aggregates to an .xlsx workbook
  schema            Print the database DDL

CONFIGURATION PRECEDENCE:
  defaults < --config YAML < environment (.env via --env-file) < flags

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM the context is canceled. serve stops accepting
  connections and waits up to 30s for active requests.

SEE ALSO:
  - commands.go: Subcommand implementations
  - config/config.go: Configuration document
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/kittykitkitt/kit/config"
	"github.com/kittykitkitt/kit/pos"
	"github.com/kittykitkitt/kit/receipt"
	"github.com/kittykitkitt/kit/store/sqlite"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		var usage *usageError
		if errors.As(err, &usage) {
			fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
			printUsage()
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// usageError is a command line mistake; it exits with status 2.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// app holds the wired components shared by subcommands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *sqlite.Store
	ledger   *pos.Ledger
	receipts *receipt.Service
}

type command struct {
	name      string
	summary   string
	needStore bool
	run       func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"serve", "Run the local HTTP adapter until interrupted", true, runServe},
	{"checkout", "Write a receipt for CODE[=QTY] items and record it", true, runCheckout},
	{"import", "Import receipt files into the ledger", true, runImport},
	{"rebuild", "Rebuild sales aggregates from the ledger", true, runRebuild},
	{"sales", "Print sales aggregates", true, runSales},
	{"orders", "Print orders, newest first", true, runOrders},
	{"delete-imported", "Delete orders whose receipt files are in the receipts dir", true, runDeleteImported},
	{"purge", "Back up, then delete all orders and aggregates", true, runPurge},
	{"restore", "Restore a purge backup over the database", false, runRestore},
	{"export", "Write orders and aggregates to an .xlsx workbook", true, runExport},
	{"schema", "Print the database DDL", false, runSchema},
}

func run(args []string) error {
	var (
		configPath string
		envFile    string
		dbPath     string
		receipts   string
		backups    string
		logLevel   string
	)

	flagSet := pflag.NewFlagSet("posd", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&configPath, "config", "", "YAML configuration file")
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file with POS_* overrides (ignored if missing)")
	flagSet.StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	flagSet.StringVar(&receipts, "receipts", "", "receipts directory (overrides config)")
	flagSet.StringVar(&backups, "backups", "", "purge backup directory (overrides config)")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.BoolP("help", "h", false, "show help")
	flagSet.Usage = printUsage

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return usagef("%v", err)
	}
	if help, _ := flagSet.GetBool("help"); help {
		printUsage()
		return nil
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		return usagef("no command given")
	}
	cmd, ok := findCommand(rest[0])
	if !ok {
		return usagef("unknown command %q", rest[0])
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return usagef("invalid --log-level %q", logLevel)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.Database = dbPath
	}
	if receipts != "" {
		cfg.ReceiptsDir = receipts
	}
	if backups != "" {
		cfg.BackupDir = backups
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, logger: logger}
	if cmd.needStore {
		if err := a.open(); err != nil {
			return err
		}
		defer a.store.Close()
	}
	return cmd.run(ctx, a, rest[1:])
}

// open wires the store, ledger and receipt service.
func (a *app) open() error {
	store, err := sqlite.New(a.cfg.Database,
		sqlite.WithBackupDir(a.cfg.BackupDir),
		sqlite.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("open database %s: %w", a.cfg.Database, err)
	}
	a.store = store
	a.ledger = pos.NewLedger(store, pos.WithLogger(a.logger))
	codec := receipt.Codec{Header: a.cfg.Header, Symbol: a.cfg.CurrencySymbol}
	a.receipts = receipt.NewService(a.ledger, codec, a.cfg.ReceiptsDir, a.logger)
	a.logger.Debug("database opened", "path", a.cfg.Database)
	return nil
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: posd [global flags] <command> [command flags] [args]

Global flags:
  --config PATH      YAML configuration file
  --env-file PATH    dotenv file with POS_* overrides (default .env)
  --db PATH          SQLite database path
  --receipts DIR     receipts directory
  --backups DIR      purge backup directory
  --log-level LEVEL  debug, info, warn, error (default info)

Commands:
`)
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-16s %s\n", c.name, c.summary)
	}
}
