package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhkang/shev/pkg/shev/client"
	"github.com/rhkang/shev/pkg/shev/models"
)

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage scheduled events",
	}
	cmd.AddCommand(
		newScheduleAddCmd(),
		newScheduleUpdateCmd(),
		newScheduleRemoveCmd(),
		newScheduleListCmd(),
		newScheduleShowCmd(),
	)
	return cmd
}

func parseScheduleTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use RFC3339 format like 2025-01-15T14:30:00Z", value)
	}
	return t.UTC(), nil
}

func printSchedule(s models.ScheduleRecord) {
	fmt.Printf("  ID: %s\n", s.ID)
	fmt.Printf("  Event type: %s\n", s.EventType)
	fmt.Printf("  Scheduled time: %s\n", s.ScheduledTime.Format(time.RFC3339))
	if s.Periodic {
		fmt.Println("  Periodic: yes (daily)")
	} else {
		fmt.Println("  Periodic: no (one-shot)")
	}
	if s.Context != "" {
		fmt.Printf("  Context: %s\n", s.Context)
	}
}

func newScheduleAddCmd() *cobra.Command {
	var (
		timeValue string
		context   string
		periodic  bool
	)
	cmd := &cobra.Command{
		Use:   "add <event_type>",
		Short: "Add a new scheduled event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := parseScheduleTime(timeValue)
			if err != nil {
				return err
			}
			s, err := apiClient(cmd).CreateSchedule(client.CreateScheduleRequest{
				EventType:     args[0],
				Context:       context,
				ScheduledTime: when,
				Periodic:      periodic,
			})
			if err != nil {
				return err
			}
			fmt.Println("Schedule added:")
			printSchedule(s)
			return nil
		},
	}
	cmd.Flags().StringVarP(&timeValue, "time", "t", "", "scheduled time in RFC3339 format (e.g. 2025-01-15T14:30:00Z)")
	cmd.Flags().StringVarP(&context, "context", "c", "", "context to pass to the handler")
	cmd.Flags().BoolVarP(&periodic, "periodic", "p", false, "run daily at the same time")
	_ = cmd.MarkFlagRequired("time")
	return cmd
}

func newScheduleUpdateCmd() *cobra.Command {
	var (
		timeValue string
		context   string
		periodic  bool
	)
	cmd := &cobra.Command{
		Use:   "update <event_type>",
		Short: "Update an existing schedule (generates a new UUID)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := client.UpdateScheduleRequest{}
			if cmd.Flags().Changed("time") {
				when, err := parseScheduleTime(timeValue)
				if err != nil {
					return err
				}
				req.ScheduledTime = &when
			}
			if cmd.Flags().Changed("context") {
				req.Context = &context
			}
			if cmd.Flags().Changed("periodic") {
				req.Periodic = &periodic
			}
			s, err := apiClient(cmd).UpdateSchedule(args[0], req)
			if err != nil {
				return err
			}
			fmt.Println("Schedule updated (new UUID generated):")
			printSchedule(s)
			return nil
		},
	}
	cmd.Flags().StringVarP(&timeValue, "time", "t", "", "scheduled time in RFC3339 format")
	cmd.Flags().StringVarP(&context, "context", "c", "", "context to pass to the handler")
	cmd.Flags().BoolVarP(&periodic, "periodic", "p", false, "run daily at the same time")
	return cmd
}

func newScheduleRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <event_type>",
		Short: "Remove a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient(cmd).DeleteSchedule(args[0]); err != nil {
				return err
			}
			fmt.Printf("Schedule %q removed\n", args[0])
			return nil
		},
	}
}

func newScheduleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all schedules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			schedules, err := apiClient(cmd).ListSchedules()
			if err != nil {
				return err
			}
			if len(schedules) == 0 {
				fmt.Println("No schedules configured")
				return nil
			}
			fmt.Printf("%-20s %-22s %-10s %s\n", "EVENT_TYPE", "TIME", "PERIODIC", "ID")
			fmt.Println(dashes(90))
			for _, s := range schedules {
				periodic := "no"
				if s.Periodic {
					periodic = "daily"
				}
				fmt.Printf("%-20s %-22s %-10s %s\n", truncate(s.EventType, 20),
					s.ScheduledTime.Format(time.RFC3339), periodic, s.ID)
			}
			return nil
		},
	}
}

func newScheduleShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <event_type>",
		Short: "Show details of a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := apiClient(cmd).GetSchedule(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Schedule: %s\n", s.EventType)
			printSchedule(s)
			return nil
		},
	}
}
