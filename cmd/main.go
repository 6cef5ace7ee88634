// Package main is the entry point for the inference gateway CLI.
//
// It runs one canonical inference against a configured provider and prints
// the canonical response, or one JSON chunk per line when streaming.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/compresr/inference-gateway/internal/config"
	"github.com/compresr/inference-gateway/internal/gateway"
	"github.com/compresr/inference-gateway/internal/inference"
	"github.com/compresr/inference-gateway/internal/monitoring"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadEnvFiles loads .env from standard locations
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}

	// Try loading from ~/.config/inference-gateway/.env first
	configEnv := filepath.Join(homeDir, ".config", "inference-gateway", ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}

	// Also load local .env (can override)
	_ = godotenv.Load()
}

type options struct {
	configPath    string
	provider      string
	requestPath   string
	stream        bool
	debug         bool
	listProviders bool
	version       bool
}

func parseFlags(args []string) (*options, *pflag.FlagSet, error) {
	var opts options
	flagSet := pflag.NewFlagSet("inference-gateway", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to gateway config (YAML)")
	flagSet.StringVarP(&opts.provider, "provider", "p", "", "configured provider name to call")
	flagSet.StringVarP(&opts.requestPath, "request", "r", "-", "canonical request file (JSON or JSONC), - for stdin")
	flagSet.BoolVarP(&opts.stream, "stream", "s", false, "stream the response as JSON lines")
	flagSet.BoolVarP(&opts.debug, "debug", "d", false, "enable debug logging")
	flagSet.BoolVar(&opts.listProviders, "list-providers", false, "list configured providers and exit")
	flagSet.BoolVar(&opts.version, "version", false, "print version and exit")
	flagSet.SetOutput(io.Discard)
	if err := flagSet.Parse(args); err != nil {
		return nil, flagSet, err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return nil, flagSet, fmt.Errorf("unexpected argument: %s", extra[0])
	}
	return &opts, flagSet, nil
}

func run(args []string, stdout io.Writer) error {
	opts, flagSet, err := parseFlags(args)
	if errors.Is(err, pflag.ErrHelp) {
		printHelp(flagSet)
		return nil
	}
	if err != nil {
		return err
	}
	if opts.version {
		fmt.Fprintf(stdout, "inference-gateway %s\n", Version)
		return nil
	}
	if opts.configPath == "" {
		return fmt.Errorf("--config is required")
	}

	loadEnvFiles()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	monCfg := monitoringConfig(cfg.Monitoring, opts.debug, term.IsTerminal(int(os.Stderr.Fd())))
	monitoring.Global(monCfg.Logger)
	monitor, err := monitoring.NewMonitor(monCfg)
	if err != nil {
		return fmt.Errorf("failed to set up monitoring: %w", err)
	}
	defer monitor.Close()

	if opts.listProviders {
		return printProviders(stdout, cfg.Providers)
	}
	if opts.provider == "" {
		return fmt.Errorf("--provider is required (configured: %v)", providerNames(cfg.Providers))
	}

	req, err := readRequest(opts.requestPath, os.Stdin)
	if err != nil {
		return err
	}

	log.Debug().
		Str("version", Version).
		Str("config", opts.configPath).
		Str("provider", opts.provider).
		Bool("stream", opts.stream).
		Msg("inference-gateway starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := gateway.NewClient(cfg, gateway.WithMonitor(monitor))
	if opts.stream {
		return streamInference(ctx, client, opts.provider, req, stdout)
	}
	return infer(ctx, client, opts.provider, req, stdout)
}

func infer(ctx context.Context, client *gateway.Client, provider string, req *inference.Request, stdout io.Writer) error {
	resp, err := client.Infer(ctx, provider, req)
	if err != nil {
		return describeError(err)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func streamInference(ctx context.Context, client *gateway.Client, provider string, req *inference.Request, stdout io.Writer) error {
	stream, err := client.Stream(ctx, provider, req)
	if err != nil {
		return describeError(err)
	}
	defer stream.Close()

	enc := json.NewEncoder(stdout)
	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return describeError(err)
		}
		if err := enc.Encode(chunk); err != nil {
			return err
		}
	}
}

// describeError logs the raw exchange of an inference error at debug level.
func describeError(err error) error {
	if e, ok := inference.AsError(err); ok {
		log.Debug().
			Str("kind", string(e.Kind)).
			Str("raw_request", e.RawRequest).
			Str("raw_response", e.RawResponse).
			Msg("inference failed")
	}
	return err
}

// monitoringConfig maps the config file settings onto monitoring components.
// An unset log format picks console on a terminal and JSON otherwise.
func monitoringConfig(m config.MonitoringConfig, debug, isTerminal bool) monitoring.Config {
	format := m.LogFormat
	if format == "" {
		format = "json"
		if isTerminal {
			format = "console"
		}
	}
	level := m.LogLevel
	if debug {
		level = "debug"
	}
	output := m.LogOutput
	if output == "" || output == "stdout" {
		// stdout carries the inference output
		output = "stderr"
	}
	return monitoring.Config{
		Logger: monitoring.LoggerConfig{Level: level, Format: format, Output: output},
		Telemetry: monitoring.TelemetryConfig{
			Enabled:              m.TelemetryEnabled || m.FailedRequestLogPath != "",
			LogPath:              m.TelemetryPath,
			LogToStdout:          m.LogToStdout,
			FailedRequestLogPath: m.FailedRequestLogPath,
		},
		Alerts: monitoring.AlertConfig{HighLatencyThreshold: m.HighLatencyThreshold},
	}
}

func providerNames(providers config.ProvidersConfig) []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func printProviders(w io.Writer, providers config.ProvidersConfig) error {
	for _, name := range providerNames(providers) {
		p := providers[name]
		endpoint := p.GetEndpoint(name)
		if endpoint == "" && p.Region != "" {
			endpoint = "region " + p.Region
		}
		if _, err := fmt.Fprintf(w, "%-20s %-17s %-40s %s\n", name, p.ProviderType(name), p.Model, endpoint); err != nil {
			return err
		}
	}
	return nil
}

// printHelp prints usage information
func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `inference-gateway - run one canonical inference against an LLM provider

Usage:
  inference-gateway --config FILE --provider NAME [--request FILE] [--stream]

Flags:
%s
Examples:
  inference-gateway -c gateway.yaml -p claude -r request.jsonc
  inference-gateway -c gateway.yaml -p gpt -s < request.json
  inference-gateway -c gateway.yaml --list-providers
`, flagSet.FlagUsages())
}
