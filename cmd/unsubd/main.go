package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unsubkit/unsubkit/internal/api"
	"github.com/unsubkit/unsubkit/internal/browser"
	"github.com/unsubkit/unsubkit/internal/config"
	"github.com/unsubkit/unsubkit/internal/engine"
	"github.com/unsubkit/unsubkit/internal/extract"
	"github.com/unsubkit/unsubkit/internal/oracle"
)

var version = "dev"

var (
	configFile string
	addrFlag   string
)

var rootCmd = &cobra.Command{
	Use:     "unsubd",
	Short:   "Automated email unsubscribe engine",
	Long:    "unsubd finds unsubscribe links in email content and drives a browser through the unsubscribe flow, coping with consent overlays and anti-bot challenges.",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, zlog, eng, ext, err := buildStack()
		if err != nil {
			return err
		}
		defer func() { _ = zlog.Sync() }()

		addr := cfg.Addr
		if addrFlag != "" {
			addr = addrFlag
		}

		server := api.NewServer(eng, ext, zlog)
		zlog.Info("listening", zap.String("addr", addr))
		return http.ListenAndServe(addr, server.Router())
	},
}

var (
	runURL    string
	runMethod string
	runFile   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process one email (or one link) and print the JSON result",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, zlog, eng, ext, err := buildStack()
		if err != nil {
			return err
		}
		defer func() { _ = zlog.Sync() }()

		ctx := context.Background()

		if runURL != "" {
			link := engine.Link{
				URL:    runURL,
				Method: engine.Method(strings.ToUpper(runMethod)),
			}
			if link.Method == "" {
				link.Method = engine.MethodGet
			}
			if strings.HasPrefix(strings.ToLower(runURL), "mailto:") {
				link.Method = engine.MethodMailto
			}
			return printJSON(eng.Run(ctx, link))
		}

		content, err := readEmailContent(runFile)
		if err != nil {
			return err
		}

		links := ext.Links(ctx, content)
		if len(links) == 0 {
			return fmt.Errorf("no unsubscribe links found in the email content")
		}

		results := make([]api.LinkResult, 0, len(links))
		for _, link := range links {
			results = append(results, api.LinkResult{Link: link, Result: eng.Run(ctx, link)})
		}
		return printJSON(results)
	},
}

func buildStack() (*config.Config, *zap.Logger, *engine.Engine, *extract.Extractor, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	zlog, err := zap.NewProduction()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	oracleClient, err := oracle.NewClient(cfg.Oracle.APIKey, cfg.Oracle.Model, cfg.Oracle.PlanRetries)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	var launcher browser.Launcher
	switch cfg.Browser.Backend {
	case "chromedp":
		launcher = browser.NewChromedpLauncher(cfg.Browser.Headless)
	case "playwright", "":
		launcher, err = browser.NewPlaywrightLauncher(cfg.Browser.Headless)
		if err != nil {
			return nil, nil, nil, nil, err
		}
	default:
		return nil, nil, nil, nil, fmt.Errorf("unknown browser backend %q", cfg.Browser.Backend)
	}

	eng := engine.New(launcher, oracleClient, zlog, engine.Settings{
		MaxSteps:          cfg.Engine.MaxSteps,
		NavigationTimeout: cfg.Engine.NavigationTimeout,
		ActionTimeout:     cfg.Engine.ActionTimeout,
		ConsentBudget:     cfg.Engine.ConsentBudget,
		ChallengeGrace:    cfg.Engine.ChallengeGrace,
		ChallengeInterval: cfg.Engine.ChallengeInterval,
	})

	ext := extract.New(oracleClient, zlog)

	return cfg, zlog, eng, ext, nil
}

func readEmailContent(path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to YAML config file")

	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (overrides config)")

	runCmd.Flags().StringVar(&runURL, "url", "", "process a single unsubscribe URL instead of an email")
	runCmd.Flags().StringVar(&runMethod, "method", "GET", "link method when --url is set (GET, POST, MAILTO)")
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "email content file ('-' or empty = stdin)")

	rootCmd.AddCommand(serveCmd, runCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
