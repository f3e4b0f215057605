package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dongshu2013/the-agent-bot/internal/batcher"
	"github.com/dongshu2013/the-agent-bot/internal/config"
	"github.com/dongshu2013/the-agent-bot/internal/store"
)

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect buffered conversations",
	}
	cmd.AddCommand(queueStatusCmd())
	cmd.AddCommand(queueRecoverCmd())
	return cmd
}

// withStores loads config and opens the configured stores for a one-shot command.
func withStores(fn func(ctx context.Context, cfg *config.Config, stores *store.Stores) error) error {
	setupLogging()
	cfg, err := config.LoadUnvalidated(resolveConfigPath())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()
	return fn(ctx, cfg, stores)
}

func queueStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List conversations with pending messages and whether they are ready",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(func(ctx context.Context, cfg *config.Config, stores *store.Stores) error {
				bc := batcherConfig(cfg)
				now := time.Now()

				pending, err := stores.Status.ListPending(ctx)
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					fmt.Println("no pending conversations")
					return nil
				}

				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CHAT\tPENDING\tQUEUED\tLAST MESSAGE\tREADY")
				for _, id := range pending {
					row, err := stores.Status.GetRow(ctx, id)
					if err != nil {
						return err
					}
					if row == nil {
						continue
					}
					queued, err := stores.Queue.Len(ctx, id)
					if err != nil {
						return err
					}
					fmt.Fprintf(tw, "%d\t%d\t%d\t%s ago\t%v\n",
						id, row.PendingCount, queued,
						now.Sub(row.LastMessageAt).Truncate(time.Second),
						batcher.Ready(row, now, bc))
				}
				return tw.Flush()
			})
		},
	}
}

func queueRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Show which conversations startup recovery would re-arm (dry run)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(func(ctx context.Context, cfg *config.Config, stores *store.Stores) error {
				bc := batcherConfig(cfg)
				ready, err := stores.Status.ListReady(ctx, time.Now(), bc.QuietThreshold, bc.VolumeThreshold)
				if err != nil {
					return err
				}
				pending, err := stores.Status.ListPending(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("%d conversation(s) would be re-armed, %d ready for immediate dispatch\n", len(pending), len(ready))
				for _, id := range pending {
					fmt.Printf("  %d\n", id)
				}
				return nil
			})
		},
	}
}
