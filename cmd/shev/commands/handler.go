package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rhkang/shev/pkg/shev/client"
	"github.com/rhkang/shev/pkg/shev/models"
)

func newHandlerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "handler",
		Short: "Manage event handlers",
	}
	cmd.AddCommand(
		newHandlerAddCmd(),
		newHandlerUpdateCmd(),
		newHandlerRemoveCmd(),
		newHandlerListCmd(),
		newHandlerShowCmd(),
	)
	return cmd
}

func printHandler(h models.Handler) {
	fmt.Printf("  ID: %s\n", h.ID)
	fmt.Printf("  Event type: %s\n", h.EventType)
	fmt.Printf("  Shell: %s\n", h.Shell)
	fmt.Printf("  Command: %s\n", h.Command)
	if h.Timeout != nil {
		fmt.Printf("  Timeout: %ds\n", *h.Timeout)
	}
	if len(h.Env) > 0 {
		fmt.Println("  Environment:")
		for k, v := range h.Env {
			fmt.Printf("    %s=%s\n", k, v)
		}
	}
}

func newHandlerAddCmd() *cobra.Command {
	var (
		shell   string
		command string
		timeout uint32
		envVars []string
	)
	cmd := &cobra.Command{
		Use:   "add <event_type>",
		Short: "Add a new handler",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := parseEnvVars(envVars)
			if err != nil {
				return err
			}
			req := client.CreateHandlerRequest{
				EventType: args[0],
				Shell:     shell,
				Command:   command,
				Env:       env,
			}
			if cmd.Flags().Changed("timeout") {
				req.Timeout = &timeout
			}
			h, err := apiClient(cmd).CreateHandler(req)
			if err != nil {
				return err
			}
			fmt.Println("Handler added:")
			printHandler(h)
			return nil
		},
	}
	cmd.Flags().StringVarP(&shell, "shell", "s", "", "shell to use (pwsh, bash, sh)")
	cmd.Flags().StringVarP(&command, "command", "c", "", "command to execute")
	cmd.Flags().Uint32VarP(&timeout, "timeout", "t", 0, "timeout in seconds")
	cmd.Flags().StringArrayVarP(&envVars, "env", "e", nil, "environment variable KEY=VALUE (repeatable)")
	_ = cmd.MarkFlagRequired("shell")
	_ = cmd.MarkFlagRequired("command")
	return cmd
}

func newHandlerUpdateCmd() *cobra.Command {
	var (
		shell    string
		command  string
		timeout  uint32
		envVars  []string
		clearEnv bool
	)
	cmd := &cobra.Command{
		Use:   "update <event_type>",
		Short: "Update an existing handler (generates a new UUID)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventType := args[0]
			c := apiClient(cmd)

			req := client.UpdateHandlerRequest{}
			if cmd.Flags().Changed("shell") {
				req.Shell = &shell
			}
			if cmd.Flags().Changed("command") {
				req.Command = &command
			}
			if cmd.Flags().Changed("timeout") {
				req.Timeout = &timeout
			}

			switch {
			case clearEnv:
				req.Env = map[string]string{}
			case len(envVars) > 0:
				// Merge with the handler's current env so repeated
				// updates accumulate instead of replacing.
				updates, err := parseEnvVars(envVars)
				if err != nil {
					return err
				}
				env := map[string]string{}
				if existing, err := c.GetHandler(eventType); err == nil {
					for k, v := range existing.Env {
						env[k] = v
					}
				}
				for k, v := range updates {
					env[k] = v
				}
				req.Env = env
			}

			h, err := c.UpdateHandler(eventType, req)
			if err != nil {
				return err
			}
			fmt.Println("Handler updated (new UUID generated):")
			printHandler(h)
			return nil
		},
	}
	cmd.Flags().StringVarP(&shell, "shell", "s", "", "shell to use (pwsh, bash, sh)")
	cmd.Flags().StringVarP(&command, "command", "c", "", "command to execute")
	cmd.Flags().Uint32VarP(&timeout, "timeout", "t", 0, "timeout in seconds")
	cmd.Flags().StringArrayVarP(&envVars, "env", "e", nil, "environment variable KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&clearEnv, "clear-env", false, "clear all environment variables")
	return cmd
}

func newHandlerRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <event_type>",
		Short: "Remove a handler",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient(cmd).DeleteHandler(args[0]); err != nil {
				return err
			}
			fmt.Printf("Handler %q removed\n", args[0])
			return nil
		},
	}
}

func newHandlerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all handlers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			handlers, err := apiClient(cmd).ListHandlers()
			if err != nil {
				return err
			}
			if len(handlers) == 0 {
				fmt.Println("No handlers configured")
				return nil
			}
			fmt.Printf("%-20s %-8s %-10s %s\n", "EVENT_TYPE", "SHELL", "TIMEOUT", "ID")
			fmt.Println(dashes(70))
			for _, h := range handlers {
				timeout := "-"
				if h.Timeout != nil {
					timeout = fmt.Sprintf("%ds", *h.Timeout)
				}
				fmt.Printf("%-20s %-8s %-10s %s\n", truncate(h.EventType, 20), h.Shell, timeout, h.ID)
			}
			return nil
		},
	}
}

func newHandlerShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <event_type>",
		Short: "Show details of a handler",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := apiClient(cmd).GetHandler(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Handler: %s\n", h.EventType)
			printHandler(h)
			return nil
		},
	}
}
