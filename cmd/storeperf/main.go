package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(&cli{out: os.Stdout, errOut: os.Stderr, open: openApp})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli carries what every subcommand needs. open is swapped in tests.
type cli struct {
	out    io.Writer
	errOut io.Writer
	open   func(ctx context.Context, errOut io.Writer) (*app, error)
}

func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "storeperf",
		Short: "Product performance cache and sync engine for WooCommerce stores",
		Long: `storeperf keeps per-product sales totals for WooCommerce stores in
PostgreSQL and refreshes them from the store's REST API.

Configuration is read from the environment (DATABASE_URL, REDIS_URL,
STOREPERF_SECRET_KEY, ...). Run "storeperf worker" for the daily scheduler.`,
		Example: `  storeperf worker
  storeperf store add shop-1 --url https://shop.example.com --key ck_x --secret cs_x
  storeperf sync shop-1 --after 2025-01-01
  storeperf performance shop-1 --sort quantity --limit 10`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newWorkerCommand(c))
	root.AddCommand(newSyncCommand(c))
	root.AddCommand(newIncrementalCommand(c))
	root.AddCommand(newSyncAllCommand(c))
	root.AddCommand(newPerformanceCommand(c))
	root.AddCommand(newClearCommand(c))
	root.AddCommand(newConfigCommand(c))
	root.AddCommand(newStoreCommand(c))
	root.AddCommand(newVersionCommand(c))

	return root
}

func newVersionCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.out, "storeperf %s\n", version)
		},
	}
}
