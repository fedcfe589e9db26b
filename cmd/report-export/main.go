// Command report-export renders a report to a file without the HTTP server.
//
//	report-export -report sales -format xlsx -bucket 2024-01 -out ./exports
//	report-export -report profits -period yearly -format pdf -font ./DejaVuSans.ttf
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"eaccountant/internal/backend"
	"eaccountant/internal/cli"
	"eaccountant/internal/core"
	"eaccountant/internal/export"
	"eaccountant/internal/services"
	"eaccountant/internal/view"
)

func main() {
	cli.LoadEnvFile()

	reportName := flag.String("report", "sales", "report to export: sales or profits")
	format := flag.String("format", "xlsx", "output format: xlsx, pdf or html")
	bucket := flag.String("bucket", "", "month to export (YYYY-MM), sales only; empty exports all months")
	period := flag.String("period", "monthly", "profit period: daily, weekly, monthly or yearly")
	summary := flag.Bool("summary", false, "append the per-month summary")
	outDir := flag.String("out", ".", "output directory")
	font := flag.String("font", "", "TrueType font for PDF output (default PDF_FONT_PATH)")
	flag.Parse()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)
	if *font != "" {
		cfg.PDFFontPath = *font
	}

	fmtVal := services.Format(strings.ToLower(*format))
	switch fmtVal {
	case services.FormatXLSX, services.FormatPDF, services.FormatPrint:
	default:
		fmt.Fprintf(os.Stderr, "unknown format %q\n", *format)
		os.Exit(2)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize report source", "error", err)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer result.Cleanup()
	}

	// No journal: one-off exports are not recorded
	svc := services.NewReportService(result.Reader, nil, nil, services.ReportServiceConfig{
		Currency:    cfg.Currency,
		PDFFontPath: cfg.PDFFontPath,
	})
	sess, _ := svc.Session("")
	opts := services.ExportOptions{IncludeSummary: *summary}

	var doc services.Document
	switch strings.ToLower(*reportName) {
	case "sales":
		snap, err := svc.Sales(ctx, sess, strings.TrimSpace(*bucket))
		if err != nil {
			exitOnError(err)
		}
		if snap.Phase == view.Failed {
			exitOnError(fmt.Errorf("%w: %s", services.ErrUnavailable, snap.Message))
		}
		doc, err = svc.ExportSales(ctx, sess, fmtVal, opts)
		if err != nil {
			exitOnError(err)
		}
	case "profits":
		p, err := core.ParsePeriod(*period)
		if err != nil {
			exitOnError(err)
		}
		doc, err = svc.ExportProfits(ctx, sess, p, fmtVal, opts)
		if err != nil {
			exitOnError(err)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown report %q\n", *reportName)
		os.Exit(2)
	}

	path := filepath.Join(*outDir, doc.Filename)
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		exitOnError(err)
	}
	if err := os.WriteFile(path, doc.Body, 0o644); err != nil {
		exitOnError(err)
	}
	fmt.Printf("%s: %s, %d records, total %s %s\n",
		path, doc.Grid.FilterLabel, doc.Grid.RecordCount,
		cfg.Currency, core.FormatAmount(doc.Grid.GrandAmount))
}

// exitOnError prints err and exits. An empty report writes no file and is
// not a failure.
func exitOnError(err error) {
	if errors.Is(err, export.ErrNoData) {
		fmt.Println("No data to export")
		os.Exit(0)
	}
	fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
	os.Exit(1)
}
