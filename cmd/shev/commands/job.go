package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Query jobs",
	}
	cmd.AddCommand(
		newJobListCmd(),
		newJobShowCmd(),
		newJobCancelCmd(),
	)
	return cmd
}

func newJobListCmd() *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobs, err := apiClient(cmd).ListJobs(status, limit)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("No jobs found")
				return nil
			}
			fmt.Printf("%-36s %-15s %-12s %s\n", "JOB_ID", "EVENT_TYPE", "STATUS", "TIMESTAMP")
			fmt.Println(dashes(90))
			for _, j := range jobs {
				fmt.Printf("%-36s %-15s %-12s %s\n", j.ID,
					truncate(j.Event.EventType, 15), j.Status,
					j.Event.Timestamp.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "filter by status (pending, running, completed, failed, cancelled)")
	cmd.Flags().IntVarP(&limit, "limit", "l", 50, "maximum number of jobs to show")
	return cmd
}

func newJobShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <job_id>",
		Short: "Show details of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := apiClient(cmd)
			j, err := c.GetJob(args[0])
			if err != nil {
				return err
			}

			// Annotate when the handler has been rotated since dispatch.
			outdated := ""
			if h, err := c.GetHandler(j.Event.EventType); err == nil && h.ID != j.HandlerID {
				outdated = " (outdated)"
			}

			fmt.Printf("Job: %s\n", j.ID)
			fmt.Printf("  Status: %s\n", j.Status)
			fmt.Printf("  Event type: %s\n", j.Event.EventType)
			fmt.Printf("  Event ID: %s\n", j.Event.ID)
			fmt.Printf("  Handler ID: %s%s\n", j.HandlerID, outdated)
			fmt.Printf("  Timestamp: %s\n", j.Event.Timestamp.Format(time.RFC3339))
			if j.Event.Context != "" {
				fmt.Printf("  Context: %s\n", j.Event.Context)
			}
			if j.StartedAt != nil {
				fmt.Printf("  Started: %s\n", j.StartedAt.Format(time.RFC3339))
			}
			if j.FinishedAt != nil {
				fmt.Printf("  Finished: %s\n", j.FinishedAt.Format(time.RFC3339))
			}
			if j.Output != nil {
				fmt.Printf("  Output:\n%s\n", *j.Output)
			}
			if j.Error != nil {
				fmt.Printf("  Error: %s\n", *j.Error)
			}
			return nil
		},
	}
}

func newJobCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job_id>",
		Short: "Cancel a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := apiClient(cmd).CancelJob(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Job %s cancelled\n", j.ID)
			return nil
		},
	}
}
