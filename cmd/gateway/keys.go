package main

import (
	"fmt"
	"text/tabwriter"

	"textaipro-gateway/proxy/keyrotation/domain"

	"github.com/spf13/cobra"
)

func newKeysCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Inspect or change the shared key rotation state",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show the active key and usage per key",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.keysStatus(cmd)
			},
		},
		&cobra.Command{
			Use:   "rotate",
			Short: "Force a rotation away from the active key",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.keysRotate(cmd)
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Delete the pointer and all usage counters",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.keysReset(cmd)
			},
		},
	)
	return cmd
}

func (a *app) withStore(cmd *cobra.Command, fn func(pool domain.Pool, b *backends) error) error {
	if err := a.cfg.validateStore(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	pool, err := a.pool()
	if err != nil {
		return err
	}
	b, err := a.openBackends(cmd.Context(), a.cfg.StatsEnabled && a.cfg.RedisAddr != "")
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(pool, b)
}

func (a *app) keysStatus(cmd *cobra.Command) error {
	return a.withStore(cmd, func(pool domain.Pool, b *backends) error {
		ctx := cmd.Context()
		raw, err := b.store.CurrentIndex(ctx)
		if err != nil {
			return err
		}
		active, _ := pool.Resolve(raw)
		usage, err := b.store.Usage(ctx, pool.Size())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "store: %s\npointer: %d\nactive: %d\nthreshold: %d\n\n", a.cfg.StoreBackend, raw, active, a.cfg.RequestsPerKey)

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		header := "\tINDEX\tKEY\tUSAGE"
		if b.stats != nil {
			header += "\tOK\tDEAD\tERRORS"
		}
		fmt.Fprintln(tw, header)
		for i := 0; i < pool.Size(); i++ {
			marker := ""
			if domain.Index(i) == active {
				marker = "*"
			}
			line := fmt.Sprintf("%s\t%d\t%s\t%d", marker, i, pool.Masked(i), usage[i])
			if b.stats != nil {
				c, err := b.stats.KeyCounters(ctx, domain.Index(i))
				if err != nil {
					return err
				}
				line += fmt.Sprintf("\t%d\t%d\t%d", c.OK, c.DeadKey, c.Error)
			}
			fmt.Fprintln(tw, line)
		}
		return tw.Flush()
	})
}

func (a *app) keysRotate(cmd *cobra.Command) error {
	return a.withStore(cmd, func(pool domain.Pool, b *backends) error {
		ctx := cmd.Context()
		raw, err := b.store.CurrentIndex(ctx)
		if err != nil {
			return err
		}
		from, _ := pool.Resolve(raw)
		rotated, err := b.store.Rotate(ctx, from, pool.Size())
		if err != nil {
			return err
		}
		raw, err = b.store.CurrentIndex(ctx)
		if err != nil {
			return err
		}
		to, _ := pool.Resolve(raw)
		fmt.Fprintf(cmd.OutOrStdout(), "rotated=%v from=%d to=%d\n", rotated, from, to)
		return nil
	})
}

func (a *app) keysReset(cmd *cobra.Command) error {
	return a.withStore(cmd, func(pool domain.Pool, b *backends) error {
		if err := b.store.Reset(cmd.Context(), pool.Size()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reset %d keys\n", pool.Size())
		return nil
	})
}
