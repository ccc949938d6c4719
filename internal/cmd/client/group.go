package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	clientpkg "github.com/rzbill/evpipe/pkg/client"
	"github.com/rzbill/evpipe/pkg/id"
	"github.com/rzbill/evpipe/pkg/logstore"
)

// NewGroupCommand constructs the `group` command group and subcommands.
func NewGroupCommand() *cobra.Command {
	groupCmd := &cobra.Command{Use: "group", Short: "Consumer group operations"}

	groupCmd.AddCommand(
		newGroupCreateCommand(),
		newGroupClaimCommand(),
		newGroupAckCommand(),
		newGroupPendingCommand(),
		newGroupReclaimCommand(),
	)

	return groupCmd
}

// newGroupCreateCommand constructs the `group create` subcommand.
func newGroupCreateCommand() *cobra.Command {
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a consumer group on a log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logName, _ := cmd.Flags().GetString("log")
			group, _ := cmd.Flags().GetString("group")
			start, _ := cmd.Flags().GetString("start")
			if logName == "" || group == "" {
				return fmt.Errorf("log and group are required")
			}
			return withClient(func(cli *clientpkg.Client) error {
				if err := cli.CreateGroup(cmd.Context(), logName, group, start); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
				return nil
			})
		},
	}
	createCmd.Flags().String("log", "", "Log name")
	createCmd.Flags().String("group", "", "Group name")
	createCmd.Flags().String("start", logstore.StartBegin, `Start position: 0 (begin), "new", or an entry ID`)
	return createCmd
}

// newGroupClaimCommand constructs the `group claim` subcommand.
func newGroupClaimCommand() *cobra.Command {
	claimCmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim the next undelivered entries for a consumer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logName, _ := cmd.Flags().GetString("log")
			group, _ := cmd.Flags().GetString("group")
			consumer, _ := cmd.Flags().GetString("consumer")
			count, _ := cmd.Flags().GetInt("count")
			blockMs, _ := cmd.Flags().GetInt64("block-ms")
			if logName == "" || group == "" || consumer == "" {
				return fmt.Errorf("log, group and consumer are required")
			}
			return withClient(func(cli *clientpkg.Client) error {
				entries, err := cli.GroupClaim(cmd.Context(), logName, group, consumer, count, time.Duration(blockMs)*time.Millisecond)
				if err != nil {
					return err
				}
				var out struct {
					Log     string           `json:"log"`
					Group   string           `json:"group"`
					Entries []map[string]any `json:"entries"`
				}
				out.Log = logName
				out.Group = group
				out.Entries = entryViews(entries)
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
	claimCmd.Flags().String("log", "", "Log name")
	claimCmd.Flags().String("group", "", "Group name")
	claimCmd.Flags().String("consumer", "", "Consumer name")
	claimCmd.Flags().Int("count", 10, "Max entries to claim")
	claimCmd.Flags().Int64("block-ms", 0, "Wait up to this long for new entries (0 = return immediately)")
	return claimCmd
}

// newGroupAckCommand constructs the `group ack` subcommand.
func newGroupAckCommand() *cobra.Command {
	ackCmd := &cobra.Command{
		Use:   "ack",
		Short: "Acknowledge a claimed entry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logName, _ := cmd.Flags().GetString("log")
			group, _ := cmd.Flags().GetString("group")
			idStr, _ := cmd.Flags().GetString("id")
			if logName == "" || group == "" || idStr == "" {
				return fmt.Errorf("log, group and id are required")
			}
			eid, err := id.Parse(idStr)
			if err != nil {
				return fmt.Errorf("invalid --id: %w", err)
			}
			return withClient(func(cli *clientpkg.Client) error {
				acked, err := cli.Ack(cmd.Context(), logName, group, eid)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "acked:", acked)
				return nil
			})
		},
	}
	ackCmd.Flags().String("log", "", "Log name")
	ackCmd.Flags().String("group", "", "Group name")
	ackCmd.Flags().String("id", "", "Entry ID to acknowledge")
	return ackCmd
}

// newGroupPendingCommand constructs the `group pending` subcommand.
func newGroupPendingCommand() *cobra.Command {
	pendingCmd := &cobra.Command{
		Use:   "pending",
		Short: "List delivered-but-unacknowledged entries of a group",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logName, _ := cmd.Flags().GetString("log")
			group, _ := cmd.Flags().GetString("group")
			count, _ := cmd.Flags().GetInt("count")
			if logName == "" || group == "" {
				return fmt.Errorf("log and group are required")
			}
			return withClient(func(cli *clientpkg.Client) error {
				infos, err := cli.Pending(cmd.Context(), logName, group, count)
				if err != nil {
					return err
				}
				var out struct {
					Log     string                 `json:"log"`
					Group   string                 `json:"group"`
					Pending []logstore.PendingInfo `json:"pending"`
				}
				out.Log = logName
				out.Group = group
				out.Pending = infos
				if out.Pending == nil {
					out.Pending = []logstore.PendingInfo{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
	pendingCmd.Flags().String("log", "", "Log name")
	pendingCmd.Flags().String("group", "", "Group name")
	pendingCmd.Flags().Int("count", 100, "Max pending records to list")
	return pendingCmd
}

// newGroupReclaimCommand constructs the `group reclaim` subcommand.
func newGroupReclaimCommand() *cobra.Command {
	reclaimCmd := &cobra.Command{
		Use:   "reclaim",
		Short: "Reassign stale pending entries to a consumer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logName, _ := cmd.Flags().GetString("log")
			group, _ := cmd.Flags().GetString("group")
			consumer, _ := cmd.Flags().GetString("consumer")
			minIdleMs, _ := cmd.Flags().GetInt64("min-idle-ms")
			count, _ := cmd.Flags().GetInt("count")
			if logName == "" || group == "" || consumer == "" {
				return fmt.Errorf("log, group and consumer are required")
			}
			return withClient(func(cli *clientpkg.Client) error {
				entries, err := cli.Reclaim(cmd.Context(), logName, group, consumer, time.Duration(minIdleMs)*time.Millisecond, count)
				if err != nil {
					return err
				}
				var out struct {
					Log     string           `json:"log"`
					Group   string           `json:"group"`
					Entries []map[string]any `json:"entries"`
				}
				out.Log = logName
				out.Group = group
				out.Entries = entryViews(entries)
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
	reclaimCmd.Flags().String("log", "", "Log name")
	reclaimCmd.Flags().String("group", "", "Group name")
	reclaimCmd.Flags().String("consumer", "", "Consumer that takes over the entries")
	reclaimCmd.Flags().Int64("min-idle-ms", 30000, "Only reclaim entries idle at least this long")
	reclaimCmd.Flags().Int("count", 64, "Max entries to reclaim")
	return reclaimCmd
}
