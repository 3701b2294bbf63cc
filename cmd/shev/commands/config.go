package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rhkang/shev/pkg/shev/client"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigSetCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := apiClient(cmd).GetConfig()
			if err != nil {
				return err
			}
			fmt.Println("Configuration:")
			fmt.Printf("  port: %d\n", cfg.Port)
			fmt.Printf("  queue_size: %d\n", cfg.QueueSize)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value (port, queue_size)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			var req client.UpdateConfigRequest
			switch key {
			case "port":
				if n, err := strconv.ParseUint(value, 10, 16); err != nil || n == 0 {
					return fmt.Errorf("invalid port %q", value)
				}
				req.Port = &value
			case "queue_size":
				if n, err := strconv.Atoi(value); err != nil || n <= 0 {
					return fmt.Errorf("invalid queue_size %q", value)
				}
				req.QueueSize = &value
			default:
				return fmt.Errorf("unknown config key %q (want port or queue_size)", key)
			}

			cfg, err := apiClient(cmd).UpdateConfig(req)
			if err != nil {
				return err
			}
			fmt.Printf("Configuration updated (%s takes effect on next backend start):\n", key)
			fmt.Printf("  port: %d\n", cfg.Port)
			fmt.Printf("  queue_size: %d\n", cfg.QueueSize)
			return nil
		},
	}
}
