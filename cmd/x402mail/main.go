// x402mail runs a local MCP server giving agents a paid email inbox.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/x402mail/x402mail-go/internal/config"
	"github.com/x402mail/x402mail-go/internal/mailapi"
	"github.com/x402mail/x402mail-go/internal/telemetry"
	"github.com/x402mail/x402mail-go/internal/tool"
	"github.com/x402mail/x402mail-go/internal/wallet"
)

// version is set at build time.
var version = "dev"

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

type serveConfig struct {
	envFile      string
	logFile      string
	logLevel     string
	telemetry    string
	otlpEndpoint string
	otlpInsecure bool
	maxPayment   string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var cfg serveConfig

	mcpFlags := flag.NewFlagSet("x402mail mcp", flag.ContinueOnError)
	mcpFlags.SetOutput(stderr)
	mcpFlags.StringVar(&cfg.envFile, "env-file", "", "path to a .env file with credentials")
	mcpFlags.StringVar(&cfg.logFile, "log-file", "", "write logs to this file instead of stderr")
	mcpFlags.StringVar(&cfg.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	mcpFlags.StringVar(&cfg.telemetry, "telemetry", telemetry.ExporterNone, "telemetry exporter: none, stdout or otlp")
	mcpFlags.StringVar(&cfg.otlpEndpoint, "otlp-endpoint", "", "OTLP/HTTP collector host:port")
	mcpFlags.BoolVar(&cfg.otlpInsecure, "otlp-insecure", false, "use plain HTTP for OTLP")
	mcpFlags.StringVar(&cfg.maxPayment, "max-payment", "0", "largest single payment in USDC atomic units (6 decimals), 0 for no cap")

	mcpCmd := &ffcli.Command{
		Name:       "mcp",
		ShortUsage: "x402mail mcp [flags]",
		ShortHelp:  "Start a local MCP server (stdio) for LLM integration",
		FlagSet:    mcpFlags,
		Options:    []ff.Option{ff.WithEnvVarPrefix("X402MAIL")},
		Exec: func(ctx context.Context, _ []string) error {
			return serve(ctx, cfg, stderr)
		},
	}

	rootFlags := flag.NewFlagSet("x402mail", flag.ContinueOnError)
	rootFlags.SetOutput(io.Discard)

	root := &ffcli.Command{
		Name:        "x402mail",
		ShortUsage:  "x402mail <subcommand>",
		FlagSet:     rootFlags,
		Subcommands: []*ffcli.Command{mcpCmd},
		Exec: func(context.Context, []string) error {
			return errUsage
		},
	}

	err := root.Parse(args)
	if err == nil {
		err = root.Run(ctx)
	}

	switch {
	case err == nil:
		return 0
	case len(args) == 0 || args[0] != mcpCmd.Name:
		printUsage(stdout)
		return 1
	case errors.Is(err, flag.ErrHelp):
		return 1
	default:
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
}

func printUsage(w io.Writer) {
	lines := []string{
		"Usage: x402mail mcp",
		"",
		"Starts a local MCP server (stdio) for LLM integration.",
		"",
		"Required env vars:",
		"  " + config.EnvPrivateKey + "  Your Ethereum private key (0x...)",
	}

	if wallet.CustodialSupported {
		lines = append(lines,
			"",
			"Or, for a custodial CDP wallet instead of a private key:",
			"  "+config.EnvCDPAPIKeyID+"        CDP API key id",
			"  "+config.EnvCDPAPIKeySecret+"    CDP API key secret",
			"  "+config.EnvCDPWalletSecret+"     CDP wallet secret",
			"  "+config.EnvCDPAccount+"  account name (optional, default x402mail)",
		)
	}

	lines = append(lines, "", "Run 'x402mail mcp -h' for flags.")

	_, _ = fmt.Fprintln(w, strings.Join(lines, "\n"))
}

func serve(ctx context.Context, cfg serveConfig, stderr io.Writer) error {
	if err := config.LoadEnvFile(cfg.envFile); err != nil {
		return err
	}

	logger, logOut, closeLog, err := setupLogger(cfg.logFile, cfg.logLevel, stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	maxPayment, err := parseMaxPayment(cfg.maxPayment)
	if err != nil {
		return err
	}

	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		Exporter:       cfg.telemetry,
		OTLPEndpoint:   cfg.otlpEndpoint,
		OTLPInsecure:   cfg.otlpInsecure,
		ServiceName:    "x402mail",
		ServiceVersion: version,
		Writer:         logOut,
	})
	if err != nil {
		return fmt.Errorf("telemetry.NewProvider failed: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	provider := tool.NewLazyClient(newMailClient(logger, tel.Metrics(), maxPayment))
	server := tool.NewServer(provider,
		tool.WithVersion(version),
		tool.WithLogger(logger),
		tool.WithMetrics(tel.Metrics()),
	)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(shutdown)

	stopStdio, errStdioCh := serveStdio(ctx, server, logger)
	defer stopStdio()

	select {
	case err, ok := <-errStdioCh:
		if ok && err != nil {
			return err
		}
		logger.Info("stdin closed")
	case <-shutdown:
		logger.Info("shutdown signal received")
	}

	return nil
}

// newMailClient reads the environment on first use so that a missing key
// only fails the tool call, never the server start.
func newMailClient(logger *slog.Logger, metrics *telemetry.Metrics, maxPayment *big.Int) tool.ClientFactory {
	return func(ctx context.Context) (tool.MailService, error) {
		cfg := config.FromEnv(os.Getenv)
		if cfg.Ambiguous() {
			logger.Warn("both private key and custodial credentials set; using " + config.EnvPrivateKey)
		}

		signer, err := cfg.Signer(ctx)
		if err != nil {
			return nil, err
		}

		client, err := mailapi.New(signer,
			mailapi.WithBaseURL(cfg.ServerURL),
			mailapi.WithMaxPayment(maxPayment),
			mailapi.WithLogger(logger),
			mailapi.WithPaymentHook(metrics.RecordPayment),
		)
		if err != nil {
			return nil, fmt.Errorf("mailapi.New failed: %w", err)
		}

		logger.Info("mail client ready",
			"wallet", client.Address().Hex(),
			"credential", cfg.Kind().String(),
			"server", client.BaseURL())

		return client, nil
	}
}

func serveStdio(ctx context.Context, srv *mcp.Server, logger *slog.Logger) (func(), <-chan error) {
	errStdioCh := make(chan error, 1)
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(errStdioCh)
		logger.Info("starting stdio transport", "version", version)

		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			errStdioCh <- fmt.Errorf("srv.Run failed: %w", err)
		}
	}()

	return func() {
		cancel()

		for range errStdioCh {
		}
		logger.Info("stdio transport stopped")
	}, errStdioCh
}

// setupLogger returns a logger writing to logFile, or to fallback when
// logFile is empty. Stdout belongs to the MCP transport.
func setupLogger(logFile, level string, fallback io.Writer) (*slog.Logger, io.Writer, func(), error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	out, closeFn := fallback, func() {}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closeFn = func() {
			if err := f.Close(); err != nil {
				_, _ = fmt.Fprintln(fallback, fmt.Errorf("f.Close failed: %w", err))
			}
		}
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	return logger, out, closeFn, nil
}

func parseMaxPayment(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}

	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid -max-payment %q: want a non-negative integer", s)
	}

	return v, nil
}
