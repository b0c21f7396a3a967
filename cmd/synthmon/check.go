package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"synthmon/internal/checker"
	"synthmon/internal/config"
	"synthmon/internal/models"
)

var (
	checkTimeout  int
	checkParallel int
	checkJSON     bool
	checkHARDir   string
)

var checkCmd = &cobra.Command{
	Use:   "check URL [URL...]",
	Short: "Run one-off checks against URLs without persisting anything",
	Long: `Check drives the browser against each URL once and prints the timing
metrics. Nothing is written to storage; use it to verify a URL before
registering it as a monitor, or to debug a failing one.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().IntVar(&checkTimeout, "timeout", models.DefaultTimeoutSeconds, "Per-URL navigation timeout in seconds")
	checkCmd.Flags().IntVar(&checkParallel, "parallel", 4, "Maximum concurrent browser sessions")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Print raw results as JSON")
	checkCmd.Flags().StringVar(&checkHARDir, "har-dir", "", "Capture network traces and write one HAR file per URL into this directory")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	traceCfg := config.TraceConfig{Enabled: checkHARDir != ""}
	if traceCfg.Enabled {
		if err := os.MkdirAll(checkHARDir, 0o755); err != nil {
			return fmt.Errorf("create har directory: %w", err)
		}
	}

	monitors := make([]models.Monitor, len(args))
	for i, raw := range args {
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		mon := models.Monitor{
			ID:             int64(i + 1),
			Name:           hostLabel(raw),
			URL:            raw,
			Enabled:        true,
			TimeoutSeconds: checkTimeout,
		}
		if err := mon.Validate(); err != nil {
			return err
		}
		monitors[i] = mon
	}

	// One-off runs keep the engine log quiet; results go to stdout below.
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	chk := checker.New(&cfg.Browser, &traceCfg, quiet)

	results := make([]*models.ExecutionResult, len(monitors))
	g, gctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(checkParallel)
	for i, mon := range monitors {
		g.Go(func() error {
			results[i] = chk.Execute(gctx, mon)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if checkHARDir != "" {
		for i, res := range results {
			if len(res.Trace) == 0 {
				continue
			}
			name := fmt.Sprintf("check-%d-%s.har", i+1, monitors[i].Name)
			path := filepath.Join(checkHARDir, name)
			if err := os.WriteFile(path, res.Trace, 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
			} else {
				fmt.Printf("Trace written to %s\n", path)
			}
		}
		fmt.Println()
	}

	if checkJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		for i, res := range results {
			printCheckResult(cmd.OutOrStdout(), monitors[i].URL, res)
		}
	}

	failed := 0
	for _, res := range results {
		if res.Status != models.StatusSuccess {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(results))
	}
	return nil
}

func printCheckResult(w io.Writer, checkedURL string, res *models.ExecutionResult) {
	fmt.Fprintf(w, "%s  %s  (%s)\n",
		statusVerdict(res.Status), checkedURL, res.Duration().Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if res.ErrorMessage != "" {
		fmt.Fprintf(tw, "  Error:\t%s\n", res.ErrorMessage)
	}
	if res.TTFBMs != nil {
		fmt.Fprintf(tw, "  TTFB:\t%.1f ms\n", *res.TTFBMs)
	}
	if res.DOMContentLoadedMs != nil {
		fmt.Fprintf(tw, "  DOM content loaded:\t%.1f ms\n", *res.DOMContentLoadedMs)
	}
	if res.PageLoadMs != nil {
		fmt.Fprintf(tw, "  Page load:\t%.1f ms\n", *res.PageLoadMs)
	}
	tw.Flush()
	fmt.Fprintln(w)
}

func statusVerdict(s models.Status) string {
	switch s {
	case models.StatusSuccess:
		return color.New(color.FgGreen, color.Bold).Sprint("✓ SUCCESS")
	case models.StatusTimeout:
		return color.New(color.FgYellow, color.Bold).Sprint("⏱ TIMEOUT")
	default:
		return color.New(color.FgRed, color.Bold).Sprint("✗ ERROR")
	}
}

// hostLabel names an ad-hoc monitor after the URL's host.
func hostLabel(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	return raw
}
