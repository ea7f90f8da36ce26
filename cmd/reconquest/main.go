package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"reconquest/internal"
	"reconquest/internal/config"
	"reconquest/internal/engine"
	"reconquest/internal/logging"
	"reconquest/internal/persistence"
	"reconquest/internal/pipeline"
	"reconquest/internal/storage"
)

var errUsage = errors.New("usage")

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// stdout carries command output; logs go to stderr.
	logger := logging.NewWithWriter(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	store, err := storage.OpenFromConfig(ctx, cfg)
	must(err)
	defer store.Close()

	e, err := engine.New(cfg, engine.Deps{Store: store, Logger: logger})
	must(err)
	_, err = e.Init(ctx)
	must(err)

	err = run(ctx, e, cfg, os.Args[1], os.Args[2:])
	if tErr := e.Teardown(ctx); err == nil {
		err = tErr
	}
	if errors.Is(err, errUsage) {
		usage()
		os.Exit(1)
	}
	must(err)
}

func run(ctx context.Context, e *engine.Engine, cfg config.Config, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)

	switch cmd {
	case "invoices:import":
		file := fs.String("file", "", "xlsx|xlsm|json input path")
		replace := fs.Bool("replace", false, "replace the collection instead of appending")
		_ = fs.Parse(args)
		if strings.TrimSpace(*file) == "" {
			return fmt.Errorf("--file is required")
		}
		res, err := e.Import(*file, *replace)
		if err != nil {
			return err
		}
		fmt.Printf("imported invoices=%d skipped_rows=%d total=%d\n", len(res.Invoices), len(res.Skipped), e.TotalInvoices())
		for _, issue := range res.Skipped {
			fmt.Printf("  skipped %s row %d: %s\n", issue.Sheet, issue.Row, issue.Reason)
		}
	case "invoices:add":
		file := fs.String("file", "", "json file holding one invoice")
		_ = fs.Parse(args)
		if strings.TrimSpace(*file) == "" {
			return fmt.Errorf("--file is required")
		}
		blob, err := os.ReadFile(*file)
		if err != nil {
			return err
		}
		var inv internal.Invoice
		if err := json.Unmarshal(blob, &inv); err != nil {
			return fmt.Errorf("decode %s: %w", *file, err)
		}
		stored, err := e.AddInvoice(inv)
		if err != nil {
			return err
		}
		fmt.Printf("added invoice id=%s number=%s\n", stored.ID, stored.Number)
	case "invoices:remove":
		id := fs.String("id", "", "invoice id")
		_ = fs.Parse(args)
		if strings.TrimSpace(*id) == "" {
			return fmt.Errorf("--id is required")
		}
		fmt.Printf("removed=%t total=%d\n", e.RemoveInvoice(*id), e.TotalInvoices())
	case "invoices:clear":
		e.ClearAllInvoices()
		fmt.Println("cleared all invoices")
	case "invoices:list":
		_ = fs.Parse(args)
		return printJSON(e.Invoices())
	case "stats":
		return printJSON(e.DashboardStats(ctx))
	case "stats:snapshot":
		b, err := e.RecordBaseline(ctx)
		if err != nil {
			return err
		}
		return printJSON(b)
	case "brands":
		return printJSON(e.CompetitorBrands())
	case "brand:trace":
		brand := fs.String("brand", "", "competitor brand")
		_ = fs.Parse(args)
		if strings.TrimSpace(*brand) == "" {
			return fmt.Errorf("--brand is required")
		}
		return printJSON(e.ProductTraceability(*brand))
	case "customers":
		located := fs.Bool("located", false, "only customers with coordinates")
		_ = fs.Parse(args)
		if *located {
			return printJSON(e.CustomerReconquestLocations(ctx))
		}
		return printJSON(e.CustomerProfiles(ctx))
	case "plan:show":
		subject := fs.String("subject", "", "invoice id or customer name")
		_ = fs.Parse(args)
		if strings.TrimSpace(*subject) == "" {
			return fmt.Errorf("--subject is required")
		}
		req, err := e.FindPlan(*subject)
		if err != nil {
			return err
		}
		return printJSON(req)
	case "storage:info":
		return printJSON(e.StorageInfo())
	case "export:xlsx":
		out := fs.String("out", filepath.Join(cfg.OutputDir, "report.xlsx"), "output xlsx path")
		_ = fs.Parse(args)
		report := e.Report(ctx)
		if err := pipeline.ExportReportToXLSX(report, *out); err != nil {
			return err
		}
		fmt.Printf("exported brands=%d customers=%d to %s\n", len(report.Brands), len(report.Customers), *out)
	case "demo:seed":
		count := fs.Int("count", cfg.DemoInvoiceCount, "number of demo invoices")
		seed := fs.Int64("seed", cfg.DemoSeed, "random seed")
		_ = fs.Parse(args)
		if err := e.SetInvoices(persistence.DemoDataset(*seed, *count, e.Rules())); err != nil {
			return err
		}
		fmt.Printf("seeded demo invoices=%d potential=%s\n", e.TotalInvoices(), e.TotalPotential().StringFixed(2))
	default:
		return errUsage
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usage() {
	fmt.Println("usage: reconquest <command>")
	fmt.Println("commands:")
	fmt.Println("  invoices:import --file=./invoices.xlsx [--replace]")
	fmt.Println("  invoices:add --file=./invoice.json")
	fmt.Println("  invoices:remove --id=...")
	fmt.Println("  invoices:clear")
	fmt.Println("  invoices:list")
	fmt.Println("  stats")
	fmt.Println("  stats:snapshot")
	fmt.Println("  brands")
	fmt.Println("  brand:trace --brand=IKO")
	fmt.Println("  customers [--located]")
	fmt.Println("  plan:show --subject=<invoice id|customer>")
	fmt.Println("  storage:info")
	fmt.Println("  export:xlsx [--out=./out/report.xlsx]")
	fmt.Println("  demo:seed [--count=24] [--seed=42]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
