package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/evpipe/internal/celfilter"
	clientpkg "github.com/rzbill/evpipe/pkg/client"
	"github.com/rzbill/evpipe/pkg/id"
	"github.com/rzbill/evpipe/pkg/logstore"
)

// NewLogCommand constructs the `log` command group and subcommands.
func NewLogCommand() *cobra.Command {
	logCmd := &cobra.Command{Use: "log", Short: "Log operations"}

	logCmd.AddCommand(
		newLogAppendCommand(),
		newLogEntriesCommand(),
		newLogTailCommand(),
		newLogStatsCommand(),
		newLogTrimCommand(),
		newLogFlushCommand(),
	)

	return logCmd
}

// newLogAppendCommand constructs the `log append` subcommand.
func newLogAppendCommand() *cobra.Command {
	appendCmd := &cobra.Command{
		Use:   "append",
		Short: "Append a raw entry (explicit fields) to a log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logName, _ := cmd.Flags().GetString("log")
			rawFields, _ := cmd.Flags().GetStringArray("field")
			if logName == "" {
				return fmt.Errorf("log name is required")
			}
			if len(rawFields) == 0 {
				return fmt.Errorf("at least one --field is required")
			}
			fields := make(logstore.Fields, 0, len(rawFields))
			for _, fv := range rawFields {
				parts := strings.SplitN(fv, "=", 2)
				if len(parts) != 2 {
					return fmt.Errorf("invalid --field, expected key=value: %s", fv)
				}
				fields = append(fields, logstore.Field{K: strings.TrimSpace(parts[0]), V: parts[1]})
			}
			return withClient(func(cli *clientpkg.Client) error {
				eid, err := cli.Append(cmd.Context(), logName, fields)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "id:", eid.String())
				return nil
			})
		},
	}
	appendCmd.Flags().String("log", "", "Log name")
	appendCmd.Flags().StringArray("field", []string{}, "Entry field key=value (repeat)")
	return appendCmd
}

// newLogEntriesCommand constructs the `log entries` subcommand.
func newLogEntriesCommand() *cobra.Command {
	entriesCmd := &cobra.Command{
		Use:   "entries",
		Short: "List entries of a log in ascending ID order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logName, _ := cmd.Flags().GetString("log")
			fromStr, _ := cmd.Flags().GetString("from")
			count, _ := cmd.Flags().GetInt("count")
			if logName == "" {
				return fmt.Errorf("log name is required")
			}
			from, err := id.Parse(fromStr)
			if err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			return withClient(func(cli *clientpkg.Client) error {
				entries, err := cli.Read(cmd.Context(), logName, from, count)
				if err != nil {
					return err
				}
				var out struct {
					Log     string           `json:"log"`
					Entries []map[string]any `json:"entries"`
				}
				out.Log = logName
				out.Entries = entryViews(entries)
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
	entriesCmd.Flags().String("log", "", "Log name")
	entriesCmd.Flags().String("from", "0-0", "Inclusive start ID")
	entriesCmd.Flags().Int("count", 100, "Max entries to return")
	return entriesCmd
}

// newLogTailCommand constructs the `log tail` subcommand.
func newLogTailCommand() *cobra.Command {
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow a log without a group (no acks, no cursor)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logName, _ := cmd.Flags().GetString("log")
			fromStr, _ := cmd.Flags().GetString("from")
			filterExpr, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")
			if logName == "" {
				return fmt.Errorf("log name is required")
			}
			filter, err := celfilter.New(filterExpr)
			if err != nil {
				return fmt.Errorf("invalid --filter: %w", err)
			}
			return withClient(func(cli *clientpkg.Client) error {
				ctx := cmd.Context()
				cursor, err := tailCursor(ctx, cli, logName, fromStr)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				printed := 0
				for {
					entries, err := cli.BlockingRead(ctx, logName, cursor, 64, 10*time.Second)
					if err != nil {
						if errors.Is(err, context.Canceled) {
							return nil
						}
						return err
					}
					for _, e := range entries {
						cursor = e.ID.Succ()
						if !filter.Eval(e) {
							continue
						}
						_ = enc.Encode(entryView(e))
						printed++
						if limit > 0 && printed >= limit {
							return nil
						}
					}
					if ctx.Err() != nil {
						return nil
					}
				}
			})
		},
	}
	tailCmd.Flags().String("log", "", "Log name")
	tailCmd.Flags().String("from", "", "Inclusive start ID (default: only new entries)")
	tailCmd.Flags().String("filter", "", "CEL filter expression")
	tailCmd.Flags().Int("limit", 0, "Stop after N entries (0 = infinite)")
	return tailCmd
}

// tailCursor resolves the tail start: an explicit from, or just past the
// log's last entry so only new appends print.
func tailCursor(ctx context.Context, cli *clientpkg.Client, logName, fromStr string) (id.ID, error) {
	if fromStr != "" {
		from, err := id.Parse(fromStr)
		if err != nil {
			return id.ID{}, fmt.Errorf("invalid --from: %w", err)
		}
		return from, nil
	}
	st, err := cli.Stats(ctx, logName)
	if err != nil {
		return id.ID{}, err
	}
	return st.LastID.Succ(), nil
}

// newLogStatsCommand constructs the `log stats` subcommand.
func newLogStatsCommand() *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show log length, ID range and per-group state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logName, _ := cmd.Flags().GetString("log")
			if logName == "" {
				return fmt.Errorf("log name is required")
			}
			return withClient(func(cli *clientpkg.Client) error {
				st, err := cli.Stats(cmd.Context(), logName)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			})
		},
	}
	statsCmd.Flags().String("log", "", "Log name")
	return statsCmd
}

// newLogTrimCommand constructs the `log trim` subcommand.
func newLogTrimCommand() *cobra.Command {
	trimCmd := &cobra.Command{
		Use:   "trim",
		Short: "Delete entries with ID below a bound",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logName, _ := cmd.Flags().GetString("log")
			beforeStr, _ := cmd.Flags().GetString("before")
			confirm, _ := cmd.Flags().GetBool("confirm")
			if logName == "" {
				return fmt.Errorf("log name is required")
			}
			if beforeStr == "" {
				return fmt.Errorf("--before is required")
			}
			before, err := id.Parse(beforeStr)
			if err != nil {
				return fmt.Errorf("invalid --before: %w", err)
			}
			if !confirm {
				return fmt.Errorf("use --confirm to trim entries below %s from log %s", beforeStr, logName)
			}
			return withClient(func(cli *clientpkg.Client) error {
				deleted, err := cli.TrimBefore(cmd.Context(), logName, before)
				if err != nil {
					return err
				}
				var out struct {
					Log          string `json:"log"`
					Before       string `json:"before"`
					DeletedCount int    `json:"deleted_count"`
				}
				out.Log = logName
				out.Before = beforeStr
				out.DeletedCount = deleted
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
	trimCmd.Flags().String("log", "", "Log name")
	trimCmd.Flags().String("before", "", "Exclusive upper bound ID")
	trimCmd.Flags().Bool("confirm", false, "Confirm the trim operation")
	return trimCmd
}

// newLogFlushCommand constructs the `log flush` subcommand.
func newLogFlushCommand() *cobra.Command {
	flushCmd := &cobra.Command{
		Use:   "flush",
		Short: "Delete all entries of a log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logName, _ := cmd.Flags().GetString("log")
			confirm, _ := cmd.Flags().GetBool("confirm")
			if logName == "" {
				return fmt.Errorf("log name is required")
			}
			if !confirm {
				return fmt.Errorf("use --confirm to flush all entries from log %s", logName)
			}
			return withClient(func(cli *clientpkg.Client) error {
				if err := cli.Flush(cmd.Context(), logName); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
				return nil
			})
		},
	}
	flushCmd.Flags().String("log", "", "Log name")
	flushCmd.Flags().Bool("confirm", false, "Confirm the flush operation")
	return flushCmd
}
