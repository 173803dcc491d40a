package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maltedev/retail-session-scraper/internal/app"
	"github.com/maltedev/retail-session-scraper/internal/config"
	"github.com/maltedev/retail-session-scraper/internal/logger"
)

var (
	policy    string
	logLevel  string
	logFormat string
	siteURL   string
	headful   bool
)

// rootCmd runs one operation against the shop and prints JSON to stdout.
// Logs go to stderr, in LOG_FORMAT, so the output can be piped.
var rootCmd = &cobra.Command{
	Use:   "retail-cli",
	Short: "Scrape a retail site through a warmed browser session",
	Long: `retail-cli runs a single scraping operation and prints the result as JSON.

Configuration is read from the environment (see SESSION_*, BROWSER_*, SITE_*).
Flags override the matching variables for this run.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&policy, "policy", "", "session policy: persistent or per-operation")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format on stderr: json or text")
	rootCmd.PersistentFlags().StringVar(&siteURL, "site", "", "shop base URL")
	rootCmd.PersistentFlags().BoolVar(&headful, "headful", false, "show the browser window")

	rootCmd.AddCommand(searchCmd, productCmd, productsCmd, filtersCmd, categoriesCmd, locationCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig applies the flag overrides on top of the environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if policy != "" {
		cfg.Session.Policy = policy
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if siteURL != "" {
		cfg.Site.BaseURL = siteURL
	}
	if headful {
		cfg.Browser.Headless = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withApp builds the scraper for one command and always closes it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) (any, error)) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)

	a, err := app.New(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("failed to close scraper", "error", err)
		}
	}()

	result, err := fn(cmd.Context(), a)
	if err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), result)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
