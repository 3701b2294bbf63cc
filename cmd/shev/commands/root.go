// Package commands implements the shev CLI subcommands using cobra.
// Every verb is a thin call against the backend's REST interface.
package commands

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rhkang/shev/pkg/shev/client"
)

// NewRootCmd builds the root command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shev",
		Short: "Shell Event System CLI",
		Long: `shev manages a running shev backend: register shell handlers,
interval timers and wall-clock schedules, inspect jobs and trigger
events.

The backend address comes from --url, the SHEV_URL environment
variable, or ` + client.DefaultURL + `.`,
		PersistentPreRun: func(*cobra.Command, []string) {
			for _, f := range []string{".env", ".env.local"} {
				_ = godotenv.Load(f)
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("url", "u", "", "server URL (default: SHEV_URL env or "+client.DefaultURL+")")

	rootCmd.AddCommand(
		newHandlerCmd(),
		newTimerCmd(),
		newScheduleCmd(),
		newJobCmd(),
		newEventCmd(),
		newConfigCmd(),
		newStatusCmd(),
		newHealthCmd(),
		newReloadCmd(),
	)
	return rootCmd
}

// apiClient builds the client from the persistent --url flag.
func apiClient(cmd *cobra.Command) *client.Client {
	url, _ := cmd.Root().PersistentFlags().GetString("url")
	return client.New(client.BaseURL(url))
}

// parseEnvVars parses repeated KEY=VALUE flags into a map.
func parseEnvVars(vars []string) (map[string]string, error) {
	env := map[string]string{}
	for _, v := range vars {
		key, value, ok := strings.Cut(v, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid env format %q, use KEY=VALUE", v)
		}
		env[key] = value
	}
	return env, nil
}

// dashes draws a table rule.
func dashes(n int) string {
	return strings.Repeat("-", n)
}

// truncate shortens s for table cells.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show job counts by status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient(cmd).Status()
			if err != nil {
				return err
			}
			fmt.Println("Jobs:")
			fmt.Printf("  total:     %d\n", st.TotalJobs)
			fmt.Printf("  pending:   %d\n", st.PendingJobs)
			fmt.Printf("  running:   %d\n", st.RunningJobs)
			fmt.Printf("  completed: %d\n", st.CompletedJobs)
			fmt.Printf("  failed:    %d\n", st.FailedJobs)
			fmt.Printf("  cancelled: %d\n", st.CancelledJobs)
			return nil
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show backend health and warnings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := apiClient(cmd).Health()
			if err != nil {
				return err
			}
			if h.Healthy {
				fmt.Println("Healthy")
				return nil
			}
			fmt.Println("Unhealthy:")
			for _, w := range h.Warnings {
				fmt.Printf("  [%s] %s: %s\n", w.Kind, w.EventType, w.Message)
			}
			return nil
		},
	}
}

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload handlers/timers/schedules in the running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := apiClient(cmd).Reload()
			if err != nil {
				return err
			}
			fmt.Println("Reload successful:")
			fmt.Printf("  Handlers loaded: %d\n", resp.HandlersLoaded)
			fmt.Printf("  Timers loaded: %d\n", resp.TimersLoaded)
			fmt.Printf("  Schedules loaded: %d\n", resp.SchedulesLoaded)
			return nil
		},
	}
}
