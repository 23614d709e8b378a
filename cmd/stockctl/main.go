package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/odyssey-stock/cmd/stockctl/cli"
	"github.com/odyssey-erp/odyssey-stock/internal/app"
	"github.com/odyssey-erp/odyssey-stock/jobs"
)

const usage = `usage:
  stockctl valuation -tenant ID -warehouse ID [-method FIFO|LIFO|WEIGHTED_AVERAGE|STANDARD_COST] [-json]
  stockctl jobs trigger <name>
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 1
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg)

	switch args[0] {
	case "valuation":
		return runValuation(ctx, cfg, logger, args[1:], stdout, stderr)
	case "jobs":
		if len(args) < 2 || args[1] != "trigger" {
			_, _ = fmt.Fprint(stderr, usage)
			return 1
		}
		name := ""
		if len(args) > 2 {
			name = args[2]
		}
		client := jobs.NewClient(cfg.RedisOptions().Queue())
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("queue close", slog.Any("error", err))
			}
		}()
		command, err := cli.NewJobsCLI(client)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		return command.TriggerCommand(ctx, cli.TriggerOptions{Name: name, Stdout: stdout, Stderr: stderr})
	default:
		_, _ = fmt.Fprint(stderr, usage)
		return 1
	}
}

func runValuation(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("valuation", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := cli.ValuationOptions{Stdout: stdout, Stderr: stderr}
	fs.Int64Var(&opts.TenantID, "tenant", 0, "tenant id")
	fs.Int64Var(&opts.WarehouseID, "warehouse", 0, "warehouse id")
	fs.StringVar(&opts.Method, "method", "", "valuation method (default from DEFAULT_VALUATION_METHOD)")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "valuation: %v\n", err)
		return 1
	}
	defer container.Close()

	command, err := cli.NewValuationCLI(container.Valuator)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}
	return command.ValuationCommand(ctx, opts)
}
