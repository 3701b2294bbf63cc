// shev-backend is the shell-event dispatcher daemon: it owns the
// catalog, runs the producer loops and the consumer, and serves the
// REST control-plane.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rhkang/shev/pkg/shev/api"
	"github.com/rhkang/shev/pkg/shev/catalog"
	"github.com/rhkang/shev/pkg/shev/dispatcher"
	"github.com/rhkang/shev/pkg/shev/seed"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shev-backend",
		Short: "Shell Event System backend server",
		Long: `shev-backend accepts named events over HTTP, from interval timers
and from wall-clock schedules, and runs the shell command registered
for each event type.

The catalog lives in a single SQLite file, resolved from --db, the
SHEV_DB environment variable, or shev.db next to the executable.`,
		RunE:          runServe,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().Bool("listen", false, "listen on all interfaces (0.0.0.0) instead of localhost only")
	cmd.Flags().String("db", "", "database file path (overrides SHEV_DB)")
	cmd.Flags().String("seed", "", "YAML file of handlers/timers/schedules to bootstrap")
	cmd.Flags().String("log-format", "text", "log output format (text or json)")
	cmd.Flags().BoolP("verbose", "v", false, "enable debug logging")
	cmd.Flags().StringSlice("allow-read-ip", nil, "non-loopback IPs allowed to read")
	cmd.Flags().StringSlice("allow-write-ip", nil, "non-loopback IPs allowed to read and write")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	// .env values never overwrite the real environment.
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}

	logger, err := buildLogger(cmd)
	if err != nil {
		return err
	}

	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		dbPath = catalog.DBPath()
	}
	logger.Info("starting shev backend", "db", dbPath)

	d, err := dispatcher.Open(dbPath, logger)
	if err != nil {
		return err
	}
	defer d.Stop()

	if seedPath, _ := cmd.Flags().GetString("seed"); seedPath != "" {
		f, err := seed.Load(seedPath)
		if err != nil {
			return err
		}
		if err := f.Apply(d.Catalog()); err != nil {
			return fmt.Errorf("apply seed file: %w", err)
		}
		if _, _, _, err := d.Store().LoadAll(); err != nil {
			return err
		}
		logger.Info("seed file applied", "path", seedPath,
			"handlers", len(f.Handlers), "timers", len(f.Timers), "schedules", len(f.Schedules))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		return err
	}

	filter, err := buildIPFilter(cmd)
	if err != nil {
		return err
	}
	server := api.New(d, filter, logger)

	host := "127.0.0.1"
	if listen, _ := cmd.Flags().GetBool("listen"); listen {
		host = "0.0.0.0"
	}
	addr := fmt.Sprintf("%s:%d", host, d.Catalog().Port())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

func buildLogger(cmd *cobra.Command) (*slog.Logger, error) {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}

	format, _ := cmd.Flags().GetString("log-format")
	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", format)
	}
	return slog.New(handler), nil
}

func buildIPFilter(cmd *cobra.Command) (*api.IPFilter, error) {
	parse := func(values []string) ([]net.IP, error) {
		ips := make([]net.IP, 0, len(values))
		for _, v := range values {
			ip := net.ParseIP(v)
			if ip == nil {
				return nil, fmt.Errorf("invalid IP address %q", v)
			}
			ips = append(ips, ip)
		}
		return ips, nil
	}

	readValues, _ := cmd.Flags().GetStringSlice("allow-read-ip")
	writeValues, _ := cmd.Flags().GetStringSlice("allow-write-ip")
	read, err := parse(readValues)
	if err != nil {
		return nil, err
	}
	write, err := parse(writeValues)
	if err != nil {
		return nil, err
	}
	return api.NewIPFilter(read, write), nil
}
