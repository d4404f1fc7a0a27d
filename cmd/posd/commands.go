package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"github.com/kittykitkitt/kit/api"
	"github.com/kittykitkitt/kit/pos"
	"github.com/kittykitkitt/kit/report"
	"github.com/kittykitkitt/kit/store/sqlite"
)

// parseFlags parses command flags and returns the positional arguments.
func parseFlags(fs *pflag.FlagSet, args []string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, usagef("%s: %v", fs.Name(), err)
	}
	return fs.Args(), nil
}

func noArgs(name string, args []string) error {
	if len(args) > 0 {
		return usagef("%s: unexpected argument %q", name, args[0])
	}
	return nil
}

// =============================================================================
// SERVE
// =============================================================================

func runServe(ctx context.Context, a *app, args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	addr := fs.String("addr", a.cfg.HTTP.Addr, "listen address (loopback only)")
	rest, err := parseFlags(fs, args)
	if err != nil {
		return err
	}
	if err := noArgs("serve", rest); err != nil {
		return err
	}
	if *addr != a.cfg.HTTP.Addr {
		a.cfg.HTTP.Addr = *addr
		if err := a.cfg.Validate(); err != nil {
			return usagef("serve: %v", err)
		}
	}

	handler := api.NewHandler(a.ledger, a.receipts, a.cfg, a.logger)
	server := &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}

// =============================================================================
// CHECKOUT AND IMPORT
// =============================================================================

func runCheckout(ctx context.Context, a *app, args []string) error {
	fs := pflag.NewFlagSet("checkout", pflag.ContinueOnError)
	paidFlag := fs.String("paid", "", "amount tendered (required)")
	employee := fs.String("employee", "", "operator username or name")
	items, err := parseFlags(fs, args)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return usagef("checkout: no items; use CODE or CODE=QTY")
	}
	paid, err := decimal.NewFromString(strings.TrimSpace(*paidFlag))
	if err != nil {
		return usagef("checkout: invalid --paid %q", *paidFlag)
	}

	catalog := a.cfg.Catalog()
	var cart pos.Cart
	for _, arg := range items {
		code, qtyText, hasQty := strings.Cut(arg, "=")
		code = pos.NormalizeCode(code)
		qty := 1
		if hasQty {
			if qty, err = strconv.Atoi(qtyText); err != nil {
				return usagef("checkout: invalid quantity in %q", arg)
			}
		}
		item, ok := catalog[code]
		if !ok {
			return usagef("checkout: code %q is not on the menu", code)
		}
		if err := cart.Add(code, item.Name, item.Price, qty); err != nil {
			return err
		}
	}

	name := *employee
	if display, ok := a.cfg.EmployeeName(name); ok {
		name = display
	}
	res, err := a.receipts.Checkout(ctx, &cart, paid, name)
	if err != nil {
		return err
	}
	codec := a.receipts.Codec()
	fmt.Printf("order %d\nreceipt %s\nsubtotal %s\nchange %s\n",
		res.OrderID, res.Path, codec.FormatCurrency(res.Subtotal), codec.FormatCurrency(res.Change))
	return nil
}

func runImport(ctx context.Context, a *app, args []string) error {
	fs := pflag.NewFlagSet("import", pflag.ContinueOnError)
	rest, err := parseFlags(fs, args)
	if err != nil {
		return err
	}
	dir := a.cfg.ReceiptsDir
	switch len(rest) {
	case 0:
	case 1:
		dir = rest[0]
	default:
		return usagef("import: at most one directory")
	}

	res, err := a.receipts.ImportDirectory(ctx, dir)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d, already present %d, skipped %d\n", res.Imported, res.AlreadyPresent, len(res.Skipped))
	for _, skip := range res.Skipped {
		fmt.Printf("  skipped %s\n", skip)
	}
	return nil
}

func runDeleteImported(ctx context.Context, a *app, args []string) error {
	if err := noArgs("delete-imported", args); err != nil {
		return err
	}
	n, err := a.receipts.DeleteImported(ctx, a.cfg.ReceiptsDir)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d orders; run rebuild to refresh sales\n", n)
	return nil
}

// =============================================================================
// LEDGER AND AGGREGATES
// =============================================================================

func runRebuild(ctx context.Context, a *app, args []string) error {
	if err := noArgs("rebuild", args); err != nil {
		return err
	}
	n, err := a.ledger.RebuildFromLedger(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("rebuilt %d sales rows\n", n)
	return nil
}

func runSales(ctx context.Context, a *app, args []string) error {
	if err := noArgs("sales", args); err != nil {
		return err
	}
	rows, err := a.ledger.ListAggregates(ctx)
	if err != nil {
		return err
	}

	codec := a.receipts.Codec()
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tNAME\tQTY\tREVENUE\tLAST SOLD")
	for _, r := range rows {
		last := ""
		if !r.LastSold.IsZero() {
			last = r.LastSold.Format(pos.TimestampLayout)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.Code, r.Name, r.TotalQuantity, codec.FormatCurrency(r.TotalRevenue), last)
	}
	return tw.Flush()
}

func runOrders(ctx context.Context, a *app, args []string) error {
	fs := pflag.NewFlagSet("orders", pflag.ContinueOnError)
	limit := fs.IntP("limit", "n", 20, "number of orders to print (0 for all)")
	rest, err := parseFlags(fs, args)
	if err != nil {
		return err
	}
	if err := noArgs("orders", rest); err != nil {
		return err
	}

	orders, err := a.ledger.ListOrders(ctx)
	if err != nil {
		return err
	}
	if *limit > 0 && len(orders) > *limit {
		orders = orders[:*limit]
	}

	codec := a.receipts.Codec()
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tEMPLOYEE\tTOTAL\tPAID\tCHANGE\tRECEIPT")
	for _, o := range orders {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.ID, o.Timestamp.Format(pos.TimestampLayout), o.Employee,
			codec.FormatCurrency(o.Total), codec.FormatCurrency(o.Paid), codec.FormatCurrency(o.Change),
			o.ReceiptKey)
		for _, l := range o.Lines {
			fmt.Fprintf(tw, "\t  %d x %s (%s)\t\t%s\t\t\t\n", l.Quantity, l.Name, l.Code, codec.FormatCurrency(l.LineTotal))
		}
	}
	return tw.Flush()
}

// =============================================================================
// MAINTENANCE
// =============================================================================

func runPurge(ctx context.Context, a *app, args []string) error {
	fs := pflag.NewFlagSet("purge", pflag.ContinueOnError)
	yes := fs.Bool("yes", false, "confirm deletion of all orders and aggregates")
	rest, err := parseFlags(fs, args)
	if err != nil {
		return err
	}
	if err := noArgs("purge", rest); err != nil {
		return err
	}
	if !*yes {
		return usagef("purge: refusing to run without --yes")
	}

	rep, err := a.ledger.PurgeTransactional(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("backup %s (%s)\nblake3 %s\n", rep.BackupPath, humanize.Bytes(uint64(rep.BackupSize)), rep.BackupDigest)
	for _, tc := range rep.Tables {
		fmt.Printf("  %-12s %d -> %d\n", tc.Table, tc.Before, tc.After)
	}
	return nil
}

func runRestore(ctx context.Context, a *app, args []string) error {
	fs := pflag.NewFlagSet("restore", pflag.ContinueOnError)
	digest := fs.String("digest", "", "expected BLAKE3 digest of the backup file")
	force := fs.Bool("force", false, "replace an existing database")
	rest, err := parseFlags(fs, args)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return usagef("restore: expected one backup file")
	}

	dst := a.cfg.Database
	if _, err := os.Stat(dst); err == nil && !*force {
		return fmt.Errorf("restore: %s exists; use --force to replace it", dst)
	}
	if err := sqlite.RestoreBackup(rest[0], dst, strings.ToLower(*digest)); err != nil {
		return err
	}
	a.logger.Info("database restored", "from", rest[0], "to", dst)
	return nil
}

func runExport(ctx context.Context, a *app, args []string) error {
	fs := pflag.NewFlagSet("export", pflag.ContinueOnError)
	out := fs.StringP("out", "o", "sales.xlsx", "output workbook path")
	rest, err := parseFlags(fs, args)
	if err != nil {
		return err
	}
	if err := noArgs("export", rest); err != nil {
		return err
	}

	aggs, err := a.ledger.ListAggregates(ctx)
	if err != nil {
		return err
	}
	orders, err := a.ledger.ListOrders(ctx)
	if err != nil {
		return err
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := report.WriteSalesWorkbook(f, aggs, orders); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	a.logger.Info("workbook written", "path", *out, "orders", len(orders), "codes", len(aggs))
	return nil
}

func runSchema(ctx context.Context, a *app, args []string) error {
	if err := noArgs("schema", args); err != nil {
		return err
	}
	fmt.Print(sqlite.DDL())
	return nil
}
