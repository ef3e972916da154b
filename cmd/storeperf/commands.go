package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/storeperf/internal/core/domain"
)

const defaultShutdownTimeout = 30 * time.Second

// withApp opens the app, runs fn and closes the app with a bounded
// shutdown that outlives a cancelled command context.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := c.open(ctx, c.errOut)
	if err != nil {
		return err
	}

	runErr := fn(ctx, a)

	timeout := defaultShutdownTimeout
	if a.cfg != nil && a.cfg.ShutdownTimeout > 0 {
		timeout = a.cfg.ShutdownTimeout
	}
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := a.Close(closeCtx); err != nil && runErr == nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return runErr
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newWorkerCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the scheduler that syncs every enabled store",
		Long: `Run the all-store sync on SCHEDULE_INTERVAL until interrupted.
Only the instance holding the distributed lock performs each run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.scheduler.Start(ctx); err != nil {
					return fmt.Errorf("start scheduler: %w", err)
				}
				a.logger.Info("worker started", "version", version, "lock_owner", a.lockOwner)

				<-ctx.Done()
				a.logger.Info("shutdown signal received, stopping")
				a.scheduler.Stop()
				a.logStats()
				return nil
			})
		},
	}
}

type syncFlags struct {
	after    string
	before   string
	statuses []string
}

func (f *syncFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.after, "after", "", "Window start (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.before, "before", "", "Window end (RFC3339 or YYYY-MM-DD, default: now)")
	cmd.Flags().StringSliceVar(&f.statuses, "status", nil, "Order statuses to count (default: completed,processing,on-hold)")
}

func (f *syncFlags) params() (domain.SyncParams, error) {
	after, err := parseTimeFlag("after", f.after)
	if err != nil {
		return domain.SyncParams{}, err
	}
	before, err := parseTimeFlag("before", f.before)
	if err != nil {
		return domain.SyncParams{}, err
	}
	return domain.SyncParams{
		After:    after,
		Before:   before,
		Statuses: f.statuses,
		Mode:     domain.SyncModeNormal,
	}, nil
}

// parseTimeFlag accepts RFC3339 timestamps or plain dates (midnight UTC).
// An empty value yields nil.
func parseTimeFlag(name, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("--%s: cannot parse %q as a date or RFC3339 time: %w", name, value, domain.ErrInvalidInput)
}

func newSyncCommand(c *cli) *cobra.Command {
	var flags syncFlags
	cmd := &cobra.Command{
		Use:   "sync <store-id>",
		Short: "Replace a store's cache from a full upstream fetch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := flags.params()
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				result, err := a.perf.SyncStore(ctx, args[0], params)
				if err != nil {
					return err
				}
				return c.printJSON(result)
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func newIncrementalCommand(c *cli) *cobra.Command {
	var flags syncFlags
	cmd := &cobra.Command{
		Use:   "incremental <store-id>",
		Short: "Merge recent sales into a store's cache",
		Long: `Merge orders newer than the store's last sync into its cache.
The window start is never earlier than the last sync, so no order is counted twice.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := flags.params()
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				result, err := a.perf.IncrementalUpdate(ctx, args[0], params)
				if err != nil {
					return err
				}
				return c.printJSON(result)
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func newSyncAllCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-all",
		Short: "Sync every enabled store once and wait for the syncs to finish",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				plans, err := a.perf.SyncAllStores(ctx)
				if err != nil {
					return err
				}
				if a.tasks != nil {
					a.tasks.Wait()
				}
				if err := c.printJSON(plans); err != nil {
					return err
				}
				failed := a.failures.Failures()
				if len(failed) == 0 {
					return nil
				}
				for _, f := range failed {
					fmt.Fprintf(c.errOut, "store %s: %v\n", f.StoreID, f)
				}
				return fmt.Errorf("%d of %d store syncs failed: %w", len(failed), len(plans), failed[0].Err)
			})
		},
	}
}

func newPerformanceCommand(c *cli) *cobra.Command {
	var (
		sortBy string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "performance <store-id>",
		Short: "Print cached product performance for a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := domain.PerformanceParams{SortBy: domain.SortField(sortBy), Limit: limit}
			if err := params.Validate(); err != nil {
				return fmt.Errorf("--sort must be revenue or quantity and --limit not negative: %w", err)
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				rows, err := a.perf.GetProductPerformance(ctx, args[0], params)
				if err != nil {
					return err
				}
				return c.printJSON(rows)
			})
		},
	}
	cmd.Flags().StringVar(&sortBy, "sort", string(domain.SortByRevenue), "Sort by revenue or quantity")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows to print (0: all)")
	return cmd
}

func newClearCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <store-id>",
		Short: "Drop a store's cached rows and sync timestamps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.perf.ClearCache(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "cleared cache for store %s\n", args[0])
				return nil
			})
		},
	}
}

func newConfigCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change a store's cache freshness policy",
	}
	cmd.AddCommand(newConfigGetCommand(c))
	cmd.AddCommand(newConfigSetCommand(c))
	return cmd
}

func newConfigGetCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get <store-id>",
		Short: "Print a store's cache config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				cfg, err := a.perf.GetCacheConfig(ctx, args[0])
				if err != nil {
					return err
				}
				return c.printJSON(cfg)
			})
		},
	}
}

func newConfigSetCommand(c *cli) *cobra.Command {
	var ttlHours, frequencyHours int
	cmd := &cobra.Command{
		Use:   "set <store-id>",
		Short: "Change a store's cache TTL and/or full sync frequency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var update domain.SyncConfigUpdate
			if cmd.Flags().Changed("ttl-hours") {
				update.CacheTTLHours = &ttlHours
			}
			if cmd.Flags().Changed("frequency-hours") {
				update.SyncFrequencyHours = &frequencyHours
			}
			if update.CacheTTLHours == nil && update.SyncFrequencyHours == nil {
				return fmt.Errorf("set --ttl-hours and/or --frequency-hours: %w", domain.ErrInvalidInput)
			}
			if err := update.Validate(); err != nil {
				return fmt.Errorf("hours must be positive: %w", err)
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				cfg, err := a.perf.UpdateCacheConfig(ctx, args[0], update)
				if err != nil {
					return err
				}
				return c.printJSON(cfg)
			})
		},
	}
	cmd.Flags().IntVar(&ttlHours, "ttl-hours", domain.DefaultCacheTTLHours, "Hours cached rows are served without a refresh")
	cmd.Flags().IntVar(&frequencyHours, "frequency-hours", domain.DefaultSyncFrequencyHours, "Hours after which a full resync is required")
	return cmd
}
