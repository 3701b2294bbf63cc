package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rhkang/shev/pkg/shev/client"
	"github.com/rhkang/shev/pkg/shev/models"
)

func newTimerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timer",
		Short: "Manage timers",
	}
	cmd.AddCommand(
		newTimerAddCmd(),
		newTimerUpdateCmd(),
		newTimerRemoveCmd(),
		newTimerListCmd(),
		newTimerShowCmd(),
		newTimerTriggerCmd(),
	)
	return cmd
}

func printTimer(t models.TimerRecord) {
	fmt.Printf("  ID: %s\n", t.ID)
	fmt.Printf("  Event type: %s\n", t.EventType)
	fmt.Printf("  Interval: %ds\n", t.IntervalSecs)
	if t.Context != "" {
		fmt.Printf("  Context: %s\n", t.Context)
	}
}

func newTimerAddCmd() *cobra.Command {
	var (
		interval uint32
		context  string
	)
	cmd := &cobra.Command{
		Use:   "add <event_type>",
		Short: "Add a new timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := apiClient(cmd).CreateTimer(client.CreateTimerRequest{
				EventType:    args[0],
				Context:      context,
				IntervalSecs: interval,
			})
			if err != nil {
				return err
			}
			fmt.Println("Timer added:")
			printTimer(t)
			return nil
		},
	}
	cmd.Flags().Uint32VarP(&interval, "interval", "i", 0, "interval in seconds")
	cmd.Flags().StringVarP(&context, "context", "c", "", "context to pass to the handler")
	_ = cmd.MarkFlagRequired("interval")
	return cmd
}

func newTimerUpdateCmd() *cobra.Command {
	var (
		interval uint32
		context  string
	)
	cmd := &cobra.Command{
		Use:   "update <event_type>",
		Short: "Update an existing timer (generates a new UUID)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := client.UpdateTimerRequest{}
			if cmd.Flags().Changed("interval") {
				req.IntervalSecs = &interval
			}
			if cmd.Flags().Changed("context") {
				req.Context = &context
			}
			t, err := apiClient(cmd).UpdateTimer(args[0], req)
			if err != nil {
				return err
			}
			fmt.Println("Timer updated (new UUID generated):")
			printTimer(t)
			return nil
		},
	}
	cmd.Flags().Uint32VarP(&interval, "interval", "i", 0, "interval in seconds")
	cmd.Flags().StringVarP(&context, "context", "c", "", "context to pass to the handler")
	return cmd
}

func newTimerRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <event_type>",
		Short: "Remove a timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient(cmd).DeleteTimer(args[0]); err != nil {
				return err
			}
			fmt.Printf("Timer %q removed\n", args[0])
			return nil
		},
	}
}

func newTimerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all timers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			timers, err := apiClient(cmd).ListTimers()
			if err != nil {
				return err
			}
			if len(timers) == 0 {
				fmt.Println("No timers configured")
				return nil
			}
			fmt.Printf("%-20s %-10s %s\n", "EVENT_TYPE", "INTERVAL", "ID")
			fmt.Println(dashes(70))
			for _, t := range timers {
				fmt.Printf("%-20s %-10s %s\n", truncate(t.EventType, 20),
					fmt.Sprintf("%ds", t.IntervalSecs), t.ID)
			}
			return nil
		},
	}
}

func newTimerShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <event_type>",
		Short: "Show details of a timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := apiClient(cmd).GetTimer(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Timer: %s\n", t.EventType)
			printTimer(t)
			return nil
		},
	}
}

func newTimerTriggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <event_type>",
		Short: "Wake a timer immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := apiClient(cmd).TriggerTimer(args[0])
			if err != nil {
				return err
			}
			if resp.Triggered {
				fmt.Printf("Timer %q triggered\n", args[0])
			} else {
				fmt.Printf("Timer %q was not triggered\n", args[0])
			}
			fmt.Printf("  %s\n", resp.Message)
			return nil
		},
	}
}
