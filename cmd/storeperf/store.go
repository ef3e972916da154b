package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/storeperf/internal/core/domain"
)

func newStoreCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage registered stores",
	}
	cmd.AddCommand(newStoreAddCommand(c))
	cmd.AddCommand(newStoreListCommand(c))
	cmd.AddCommand(newStoreRemoveCommand(c))
	return cmd
}

func newStoreAddCommand(c *cli) *cobra.Command {
	var (
		name     string
		baseURL  string
		key      string
		secret   string
		disabled bool
	)
	cmd := &cobra.Command{
		Use:   "add <store-id>",
		Short: "Register or update a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateBaseURL(baseURL); err != nil {
				return err
			}
			if (key == "") != (secret == "") {
				return fmt.Errorf("--key and --secret must be set together: %w", domain.ErrInvalidInput)
			}

			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				now := time.Now().UTC()
				store := &domain.Store{
					ID:      args[0],
					Name:    name,
					BaseURL: baseURL,
					Credentials: domain.StoreCredentials{
						ConsumerKey:    key,
						ConsumerSecret: secret,
					},
					Enabled:   !disabled,
					CreatedAt: now,
					UpdatedAt: now,
				}
				if existing, err := a.stores.Get(ctx, store.ID); err == nil {
					store.CreatedAt = existing.CreatedAt
					if store.Credentials.IsEmpty() {
						store.Credentials = existing.Credentials
					}
				} else if !errors.Is(err, domain.ErrNotFound) {
					return err
				}

				if err := a.stores.Save(ctx, store); err != nil {
					return err
				}
				return c.printJSON(store)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&baseURL, "url", "", "Store base URL, e.g. https://shop.example.com")
	cmd.Flags().StringVar(&key, "key", "", "REST API consumer key")
	cmd.Flags().StringVar(&secret, "secret", "", "REST API consumer secret")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Register without including it in all-store syncs")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("--url must be an absolute http(s) URL, got %q: %w", raw, domain.ErrInvalidInput)
	}
	return nil
}

func newStoreListCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				stores, err := a.stores.List(ctx)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tURL\tENABLED")
				for _, s := range stores {
					fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", s.ID, s.Name, s.BaseURL, s.Enabled)
				}
				return w.Flush()
			})
		},
	}
}

func newStoreRemoveCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <store-id>",
		Short: "Unregister a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.stores.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "removed store %s\n", args[0])
				return nil
			})
		},
	}
}
