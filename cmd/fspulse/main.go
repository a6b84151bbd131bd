package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lyallcooper/fspulse/internal/app"
	"github.com/lyallcooper/fspulse/internal/config"
	"github.com/lyallcooper/fspulse/internal/explore"
	"github.com/lyallcooper/fspulse/internal/store"
)

// Set via -ldflags at build time.
var (
	Version        = "dev"
	Commit         = "unknown"
	BuildTimestamp = "unknown"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	executed, err := rootCmd.ExecuteC()
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if executed.SilenceUsage {
		os.Exit(exitError)
	}
	os.Exit(exitUsage)
}

var rootCmd = &cobra.Command{
	Use:     "fspulse",
	Short:   "fspulse monitors directory trees for unexpected filesystem changes",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"fspulse %s\ncommit: %s\nbuilt: %s\n", Version, Commit, BuildTimestamp,
	))
	rootCmd.PersistentFlags().String("config", "", "path to config.yaml (default: platform user config dir)")
	rootCmd.PersistentFlags().Int("port", 0, "HTTP port override")
	rootCmd.PersistentFlags().String("bind", "", "address to bind to (default: all interfaces)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exploreCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and task manager",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		port, _ := cmd.Flags().GetInt("port")
		bind, _ := cmd.Flags().GetString("bind")

		srv, err := app.CreateServer(app.ServerConfig{
			ConfigPath:     configPath,
			Port:           port,
			BindAddress:    bind,
			Version:        Version,
			GitCommit:      Commit,
			BuildTimestamp: BuildTimestamp,
		})
		if err != nil {
			cmd.SilenceUsage = true
			return err
		}
		defer srv.Cleanup()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		select {
		case <-sigCh:
			srv.Log.Info().Msg("shutting down")
		case err := <-errCh:
			if err != nil {
				cmd.SilenceUsage = true
				return err
			}
		}
		return nil
	},
}

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Browse a monitored root's live item tree in a terminal UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		if configPath == "" {
			p, err := config.DefaultPath()
			if err != nil {
				cmd.SilenceUsage = true
				return fmt.Errorf("resolve config path: %w", err)
			}
			configPath = p
		}

		appCfg, err := config.Load(configPath)
		if err != nil {
			cmd.SilenceUsage = true
			return fmt.Errorf("load config: %w", err)
		}

		st, err := store.Open(appCfg.DBPath.Value, zerolog.Nop())
		if err != nil {
			cmd.SilenceUsage = true
			return fmt.Errorf("open database: %w", err)
		}
		defer st.Close()

		if err := explore.Run(st); err != nil {
			cmd.SilenceUsage = true
			return err
		}
		return nil
	},
}
