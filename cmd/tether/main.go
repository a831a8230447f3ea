// Command tether runs a detachable editor session: a background server owns
// the editor, and any number of terminals attach to it and detach again
// without ending it.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/chronologos/tether/internal/client"
	"github.com/chronologos/tether/internal/config"
	"github.com/chronologos/tether/internal/daemon"
	"github.com/chronologos/tether/internal/engine"
	"github.com/chronologos/tether/internal/ipc"
	"github.com/chronologos/tether/internal/server"
	"github.com/chronologos/tether/internal/version"
)

// options are the root command's flags.
type options struct {
	server      bool
	foreground  bool
	sessionName string
	noEscape    bool
	logLevel    string
}

func main() {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "tether",
		Short: "Detachable editor sessions",
		Long: `tether attaches the terminal to a named editor session, starting the
session server in the background if it is not running.

Detach with ~. at the start of a line (or by closing the terminal); the
session keeps running and can be attached again from any terminal.`,
		Example: `  # Attach to the default session
  tether

  # Attach to a named session
  tether --session-name notes

  # Run a session server in the foreground, for debugging
  tether --server --foreground --session-name notes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, &opts)
			if err != nil {
				return err
			}
			if opts.server {
				return runServer(cmd.Context(), cfg, opts.foreground)
			}
			return runClient(cmd.Context(), cfg)
		},
		SilenceUsage: true,
	}

	rootCmd.Flags().BoolVar(&opts.server, "server", false, "Run the session server instead of attaching")
	rootCmd.Flags().BoolVar(&opts.foreground, "foreground", false, "With --server, stay attached to the terminal")
	rootCmd.Flags().StringVar(&opts.sessionName, "session-name", "", "Session to attach to or serve (default: from config or \"default\")")
	rootCmd.Flags().BoolVar(&opts.noEscape, "no-escape", false, "Disable the ~. detach sequence")
	rootCmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Server log level: debug, info, warn, error (default: from config)")

	lsCmd := &cobra.Command{
		Use:     "ls",
		Short:   "List sessions",
		Aliases: []string{"list"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return listSessions(cmd.OutOrStdout(), cfg.SocketDirOrDefault())
		},
	}

	killCmd := &cobra.Command{
		Use:   "kill <session-name>",
		Short: "Stop a session's server",
		Long: `Stop a session's server. Attached clients are told the server exited.
The session's contents are lost.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return killSession(cmd.OutOrStdout(), cfg.SocketDirOrDefault(), args[0])
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tether %s (%s)\n", version.VERSION, version.Commit)
		},
	}

	rootCmd.AddCommand(lsCmd, killCmd, versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := fang.Execute(
		ctx,
		rootCmd,
		fang.WithVersion(fmt.Sprintf("%s\nCommit: %s", version.VERSION, version.Commit)),
	); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.sessionName != "" {
		cfg.Session = opts.sessionName
	}
	if opts.noEscape {
		off := false
		cfg.Escape = &off
	}
	if cmd.Flags().Changed("log-level") {
		if _, err := config.ParseLevel(opts.logLevel); err != nil {
			return nil, err
		}
		cfg.LogLevel = opts.logLevel
	}
	if err := ipc.ValidateSession(cfg.Session); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runClient(ctx context.Context, cfg *config.Config) error {
	c := client.New(client.Config{
		Session:      cfg.Session,
		SocketDir:    cfg.SocketDirOrDefault(),
		Escape:       cfg.EscapeEnabled(),
		StartTimeout: time.Duration(cfg.StartTimeout),
	})
	if _, err := c.Run(ctx); err != nil {
		return fmt.Errorf("client exited: %w", err)
	}
	return nil
}

func runServer(ctx context.Context, cfg *config.Config, foreground bool) error {
	if !foreground {
		lc := daemon.New(daemon.Config{})
		if err := lc.Daemonize(); err != nil && !errors.Is(err, daemon.ErrUnsupported) {
			return err
		}
	}

	// Log to the state dir so diagnostics survive the client that spawned us.
	logPath, err := xdg.StateFile(fmt.Sprintf("tether/server-%s.log", cfg.Session))
	if err != nil {
		return fmt.Errorf("log path: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer logFile.Close()
	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: cfg.Level()}))

	s := server.New(server.Config{
		Session:       cfg.Session,
		SocketDir:     cfg.SocketDirOrDefault(),
		Engine:        engine.NewScratch(cfg.Session),
		Logger:        logger,
		FrameInterval: time.Duration(cfg.FrameInterval),
		Version:       version.VERSION,
	})
	err = s.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		logger.Error("server exited", "err", err)
		return fmt.Errorf("server exited: %w", err)
	}
	return nil
}
