package cmd

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/adscope/internal/config"
	"github.com/xkilldash9x/adscope/internal/crawler"
	"github.com/xkilldash9x/adscope/internal/observability"
)

// crawlRunner is the part of *crawler.Crawler the command needs.
type crawlRunner interface {
	Crawl(ctx context.Context, url string, opts crawler.Options) *crawler.Result
}

// newCrawler is swapped out in tests.
var newCrawler = func(cfg config.Interface, logger *zap.Logger) crawlRunner {
	return crawler.New(cfg, logger, nil)
}

func newCrawlCmd() *cobra.Command {
	var (
		output string
		pretty bool
	)

	crawlCmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Crawl one page and print its MFA verdict as JSON",
		Long: `Crawl launches a patched headless browser, loads the page, scrolls it while
measuring ad density and ad traffic, extracts the main content and prints the
combined verdict as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			applyFlagOverrides(cmd, cfg)

			target, err := normalizeTarget(args[0])
			if err != nil {
				return err
			}

			opts := crawler.OptionsFromConfig(cfg)
			res := newCrawler(cfg, logger).Crawl(ctx, target, opts)

			if err := writeResult(cmd.OutOrStdout(), output, res, pretty); err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !res.Success {
				return fmt.Errorf("crawl of %s failed: %s", target, res.Error)
			}
			return nil
		},
	}

	crawlCmd.Flags().StringVarP(&output, "output", "o", "", "Write the JSON result to this file instead of stdout.")
	crawlCmd.Flags().BoolVar(&pretty, "pretty", false, "Indent the JSON result.")

	// Config overrides.
	crawlCmd.Flags().StringP("depth", "d", "full", "Scan depth, 'full' or 'quick'. (Overrides config/env)")
	crawlCmd.Flags().Duration("timeout", 0, "Overall crawl timeout. (Overrides config/env)")
	crawlCmd.Flags().String("chrome", "", "Path to the Chrome or Chromium executable. (Overrides config/env)")
	crawlCmd.Flags().Bool("headful", false, "Show the browser window.")
	crawlCmd.Flags().Bool("block-resources", false, "Block fonts and media; quick scans also block images.")
	crawlCmd.Flags().Bool("simulate-idle", false, "Browse idly for a few seconds before scanning.")
	crawlCmd.Flags().Bool("screenshot", false, "Embed a final screenshot in the result.")

	return crawlCmd
}

// applyFlagOverrides copies the switches the user set explicitly onto cfg.
func applyFlagOverrides(cmd *cobra.Command, cfg config.Interface) {
	flags := cmd.Flags()
	if flags.Changed("headful") {
		headful, _ := flags.GetBool("headful")
		cfg.SetBrowserHeadless(!headful)
	}
	if flags.Changed("block-resources") {
		v, _ := flags.GetBool("block-resources")
		cfg.SetNetworkBlockResources(v)
	}
	if flags.Changed("simulate-idle") {
		v, _ := flags.GetBool("simulate-idle")
		cfg.SetCrawlSimulateIdle(v)
	}
	if flags.Changed("screenshot") {
		v, _ := flags.GetBool("screenshot")
		cfg.SetCrawlCaptureScreenshot(v)
	}
}

// normalizeTarget defaults the scheme to https and rejects anything that is
// not an http(s) URL with a host.
func normalizeTarget(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid url %q: missing host", raw)
	}
	return u.String(), nil
}

// writeResult encodes res to path, or to stdout when path is empty.
func writeResult(stdout io.Writer, path string, res *crawler.Result, pretty bool) error {
	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(res, "", "  ")
	} else {
		data, err = json.Marshal(res)
	}
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = stdout.Write(data)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	observability.GetLogger().Info("Result written.", zap.String("path", path))
	return nil
}
