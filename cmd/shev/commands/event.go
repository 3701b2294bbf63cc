package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEventCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Trigger events",
	}
	cmd.AddCommand(newEventTriggerCmd())
	return cmd
}

func newEventTriggerCmd() *cobra.Command {
	var context string
	cmd := &cobra.Command{
		Use:   "trigger <event_type>",
		Short: "Trigger an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := apiClient(cmd).TriggerEvent(args[0], context)
			if err != nil {
				return err
			}
			if resp.Triggered {
				fmt.Printf("Event %q triggered successfully\n", args[0])
			} else {
				fmt.Printf("Event %q was not triggered\n", args[0])
			}
			fmt.Printf("  %s\n", resp.Message)
			return nil
		},
	}
	cmd.Flags().StringVarP(&context, "context", "c", "", "context to pass to the handler")
	return cmd
}
