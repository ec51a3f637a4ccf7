package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/IliaW/email-harvester/config"
	"github.com/IliaW/email-harvester/internal/fetcher"
	"github.com/IliaW/email-harvester/internal/input"
	"github.com/IliaW/email-harvester/internal/model"
	"github.com/spf13/cobra"
)

const (
	defaultDelay       = 0.5
	defaultConcurrency = 10
)

// NewScrapeCmd creates the scrape command for a single URL.
func NewScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape [url]",
		Short: "Collect emails from a single page",
		Long: `Scrape fetches one page and prints the email addresses found on it.
When no URL is given it is read from standard input. A missing scheme defaults to https.

Examples:
  email-harvester scrape example.com
  email-harvester scrape --render https://example.com/contact`,
		Args: cobra.MaximumNArgs(1),
		RunE: runScrapeCmd,
	}
	addFetchFlags(cmd, false)
	cmd.Flags().StringSliceP("output", "o", nil, "Also write the result to these files (.csv, .xlsx, .json)")

	return cmd
}

// NewBatchCmd creates the batch command for a file of website URLs.
func NewBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Collect emails from every URL in a file",
		Long: `Batch reads URLs from a .txt (one per line), .csv or .xlsx (URL column detected
from the header or the cell contents) or .docx file and scrapes them concurrently.

Examples:
  email-harvester batch urls.txt
  email-harvester batch --concurrency 5 --delay 1 -o results.xlsx sites.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFileCmd(cmd, args[0], model.Direct)
		},
	}
	addFetchFlags(cmd, false)
	addBatchFlags(cmd, []string{"results.csv"})

	return cmd
}

// NewMapsCmd creates the maps command for a sheet of Google Maps listings.
func NewMapsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maps <file>",
		Short: "Resolve business websites from Google Maps listings and collect their emails",
		Long: `Maps reads a .csv, .xlsx or .docx file of Google Maps listing URLs, finds the
website linked from each listing and scrapes it. The original row columns are kept
next to the results. Listings are rendered in headless Chrome by default.

Examples:
  email-harvester maps places.xlsx
  email-harvester maps --headless=false -o leads.xlsx places.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFileCmd(cmd, args[0], model.MapsDerived)
		},
	}
	addFetchFlags(cmd, true)
	addBatchFlags(cmd, []string{"results.xlsx", "results.csv"})

	return cmd
}

func addFetchFlags(cmd *cobra.Command, render bool) {
	cmd.Flags().BoolP("render", "r", render, "Render pages in headless Chrome before extracting")
	cmd.Flags().Bool("headless", true, "Run Chrome without a window")
	cmd.Flags().String("chrome-path", "", "Chrome executable (default: auto-detect)")
	cmd.Flags().Bool("archive", false, "Fall back to the latest CommonCrawl capture when a live fetch fails")
}

func addBatchFlags(cmd *cobra.Command, outputs []string) {
	cmd.Flags().Float64P("delay", "d", defaultDelay,
		fmt.Sprintf("Seconds between dispatching two URLs (%.1f-%.1f)", config.MinDelay, config.MaxDelay))
	cmd.Flags().IntP("concurrency", "n", defaultConcurrency,
		fmt.Sprintf("Maximum URLs processed at once (%d-%d)", config.MinConcurrency, config.MaxConcurrency))
	cmd.Flags().StringSliceP("output", "o", outputs, "Result files; the extension selects the format (.csv, .xlsx, .json)")
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runFileCmd(cmd *cobra.Command, path string, mode model.Mode) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	h, err := newHarvester(ctx, cmd)
	if err != nil {
		return err
	}
	defer h.close()

	targets, err := input.LoadTargets(path, mode)
	if err != nil {
		return fmt.Errorf("input error: %w", err)
	}
	outputs, _ := cmd.Flags().GetStringSlice("output")
	fmt.Fprintf(h.out, "processing %d urls from %s\n", len(targets), path)

	_, err = h.run(ctx, targets, mode, outputs, printProgress(h.out))
	return err
}

func runScrapeCmd(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	var rawURL string
	if len(args) > 0 {
		rawURL = args[0]
	} else {
		fmt.Fprint(cmd.OutOrStdout(), "Enter URL to scrape: ")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read url: %w", err)
		}
		rawURL = line
	}
	rawURL = fetcher.NormalizeURL(rawURL)
	if err := fetcher.ValidateURL(rawURL); err != nil {
		return err
	}

	h, err := newHarvester(ctx, cmd)
	if err != nil {
		return err
	}
	defer h.close()

	outputs, _ := cmd.Flags().GetStringSlice("output")
	report, err := h.run(ctx, model.NewTargets([]string{rawURL}), model.Direct, outputs, nil)
	if report == nil || len(report.Records) == 0 {
		return err
	}
	rec := report.Records[0]
	if !rec.Succeeded() {
		return errors.Join(err, fmt.Errorf("scraping %s failed: %s", rawURL, rec.Reason))
	}
	fmt.Fprintf(h.out, "%s: %s\n", rawURL, rec.Summary())
	if len(rec.Emails) > 0 {
		fmt.Fprintln(h.out, strings.Join(rec.Emails, "\n"))
	}

	return err
}
