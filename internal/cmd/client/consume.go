package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rzbill/evpipe/internal/celfilter"
	clientpkg "github.com/rzbill/evpipe/pkg/client"
	"github.com/rzbill/evpipe/pkg/consumer"
	logpkg "github.com/rzbill/evpipe/pkg/log"
	"github.com/rzbill/evpipe/pkg/logstore"
)

// NewConsumeCommand constructs the `consume` command: a competing consumer
// that claims through the group cursor, prints each event as a JSON line,
// and acks it.
func NewConsumeCommand() *cobra.Command {
	consumeCmd := &cobra.Command{
		Use:   "consume",
		Short: "Run a competing consumer: claim, print, ack",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logName, _ := cmd.Flags().GetString("log")
			group, _ := cmd.Flags().GetString("group")
			consumerName, _ := cmd.Flags().GetString("consumer")
			start, _ := cmd.Flags().GetString("start")
			batch, _ := cmd.Flags().GetInt("count")
			blockMs, _ := cmd.Flags().GetInt64("block-ms")
			minIdleMs, _ := cmd.Flags().GetInt64("min-idle-ms")
			reclaimEveryMs, _ := cmd.Flags().GetInt64("reclaim-every-ms")
			noAck, _ := cmd.Flags().GetBool("no-ack")
			filterExpr, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")
			if logName == "" || group == "" {
				return fmt.Errorf("log and group are required")
			}
			if consumerName == "" {
				consumerName = "cli-" + uuid.NewString()[:8]
			}
			filter, err := celfilter.New(filterExpr)
			if err != nil {
				return fmt.Errorf("invalid --filter: %w", err)
			}
			logger := logpkg.NewLogger(logpkg.WithLevel(logpkg.WarnLevel))
			return withClient(func(cli *clientpkg.Client) error {
				ctx := cmd.Context()
				coord := consumer.NewCoordinator(cli, logName, group, logger)
				if err := coord.EnsureGroup(ctx, start); err != nil {
					return err
				}

				var mu sync.Mutex
				enc := json.NewEncoder(cmd.OutOrStdout())
				printed := 0
				done := func() bool {
					mu.Lock()
					defer mu.Unlock()
					return limit > 0 && printed >= limit
				}
				// The filter controls printing only; filtered entries are
				// acked too or they would sit pending forever.
				handle := func(ctx context.Context, entries []logstore.Entry) error {
					for _, e := range entries {
						mu.Lock()
						if filter.Eval(e) {
							_ = enc.Encode(entryView(e))
							printed++
						}
						mu.Unlock()
						if !noAck {
							if err := coord.Ack(ctx, e.ID); err != nil {
								return err
							}
						}
					}
					return nil
				}

				if reclaimEveryMs > 0 {
					rec := consumer.NewReclaimer(coord, consumerName, consumer.ReclaimerConfig{
						Interval: time.Duration(reclaimEveryMs) * time.Millisecond,
						MinIdle:  time.Duration(minIdleMs) * time.Millisecond,
						MaxCount: batch,
						Deliver: func(ctx context.Context, entries []logstore.Entry) {
							if err := handle(ctx, entries); err != nil {
								logger.Warn("consume.reclaimed entries not acked", logpkg.Err(err))
							}
						},
					}, logger)
					rec.Start()
					defer rec.Stop()
				}

				for !done() {
					entries, err := coord.ClaimNext(ctx, consumerName, batch, time.Duration(blockMs)*time.Millisecond)
					if err != nil {
						if errors.Is(err, context.Canceled) || ctx.Err() != nil {
							return nil
						}
						return err
					}
					if err := handle(ctx, entries); err != nil {
						if ctx.Err() != nil {
							return nil
						}
						return err
					}
					if len(entries) == 0 && blockMs <= 0 {
						// Pace the loop when the server isn't long-polling.
						select {
						case <-ctx.Done():
							return nil
						case <-time.After(200 * time.Millisecond):
						}
					}
				}
				return nil
			})
		},
	}
	consumeCmd.Flags().String("log", "", "Log name")
	consumeCmd.Flags().String("group", "", "Group name")
	consumeCmd.Flags().String("consumer", "", "Consumer name (default cli-<random>)")
	consumeCmd.Flags().String("start", logstore.StartBegin, `Group start when it does not exist yet: 0 (begin), "new", or an entry ID`)
	consumeCmd.Flags().Int("count", 16, "Max entries per claim")
	consumeCmd.Flags().Int64("block-ms", 5000, "Long-poll window per claim in ms")
	consumeCmd.Flags().Int64("min-idle-ms", 30000, "Reclaim entries idle at least this long")
	consumeCmd.Flags().Int64("reclaim-every-ms", 0, "Sweep stale pending entries this often (0 = no reclaim loop)")
	consumeCmd.Flags().Bool("no-ack", false, "Print without acknowledging (entries stay pending)")
	consumeCmd.Flags().String("filter", "", "CEL filter expression (filtered entries are still acked)")
	consumeCmd.Flags().Int("limit", 0, "Stop after printing N events (0 = infinite)")
	return consumeCmd
}
