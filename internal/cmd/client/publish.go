package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	clientpkg "github.com/rzbill/evpipe/pkg/client"
	"github.com/rzbill/evpipe/pkg/producer"
)

// NewPublishCommand constructs the `publish` command: envelope one event
// and append it.
func NewPublishCommand() *cobra.Command {
	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an event to a log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logName, _ := cmd.Flags().GetString("log")
			eventType, _ := cmd.Flags().GetString("type")
			data, _ := cmd.Flags().GetString("data")
			if logName == "" {
				return fmt.Errorf("log name is required")
			}
			if eventType == "" {
				return fmt.Errorf("event type is required")
			}
			// JSON data passes through; anything else becomes a JSON string.
			var payload any
			if data != "" {
				if json.Valid([]byte(data)) {
					payload = json.RawMessage(data)
				} else {
					payload = data
				}
			}
			return withClient(func(cli *clientpkg.Client) error {
				p := producer.New(cli, producer.Options{})
				eid, err := p.Append(cmd.Context(), logName, eventType, payload)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "id:", eid.String())
				return nil
			})
		},
	}
	publishCmd.Flags().String("log", "", "Log name")
	publishCmd.Flags().String("type", "", "Event type, e.g. order.created")
	publishCmd.Flags().String("data", "", "Event payload (JSON or plain text)")
	return publishCmd
}
