// Command betterlauncher supervises the Better game runtime agent:
// verifying it against the published build, starting and stopping it,
// and mirroring its asset directory around the run.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/etonedemid/better-launcher/internal/config"
	"github.com/etonedemid/better-launcher/internal/launcher"
	"github.com/etonedemid/better-launcher/internal/logging"
	"github.com/etonedemid/better-launcher/internal/paths"
	"github.com/etonedemid/better-launcher/internal/supervisor"
)

var (
	// Build info (set via ldflags).
	Version = "dev"
	Build   = "unknown"
)

var (
	// Global flags.
	flagHome    string
	flagVerbose bool
	flagPlain   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "betterlauncher",
		Short: "Launcher for the Better game runtime agent",
		Long: `Better Launcher supervises the game's runtime agent: it keeps the
agent binary current against the published build manifest, starts and
stops it, and mirrors the asset directory between the persistent store
and the per-run runtime location.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagHome, "home", "", "Launcher home directory (default: current directory)")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Debug output")
	rootCmd.PersistentFlags().BoolVar(&flagPlain, "plain", false, "Undecorated output for scripting")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("betterlauncher v{{.Version}} (build: " + Build + ")\n")

	rootCmd.AddCommand(playCmd())
	rootCmd.AddCommand(exitCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(updateCmd())
	rootCmd.AddCommand(assetsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(historyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup resolves the home, loads settings and wires a controller.
func setup() (*launcher.Controller, string, *zap.Logger, error) {
	log := logging.New(flagVerbose)

	home, err := paths.ResolveHome(flagHome)
	if err != nil {
		return nil, "", log, err
	}
	env, err := config.LoadEnv()
	if err != nil {
		return nil, "", log, err
	}
	cfg := config.Load(paths.ConfigFile(home), log)

	return launcher.New(home, cfg, env, log), home, log, nil
}

func playCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Verify the agent, start it and open the play page",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, log, err := setup()
			if err != nil {
				return err
			}
			defer ctrl.Close()
			defer func() { _ = log.Sync() }()

			if err := ctrl.Play(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Agent running. Play page opened.")
			return nil
		},
	}
}

func exitCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "exit",
		Aliases: []string{"stop"},
		Short:   "Stop the agent, save assets and persist settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, log, err := setup()
			if err != nil {
				return err
			}
			defer ctrl.Close()
			defer func() { _ = log.Sync() }()

			ctrl.Exit(cmd.Context())
			fmt.Println("Agent stopped.")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the agent is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, _, err := setup()
			if err != nil {
				return err
			}
			defer ctrl.Close()

			info, err := ctrl.Status()
			if err != nil {
				return err
			}
			fmt.Print(formatStatus(info))
			return nil
		},
	}
}

func updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Check the agent against the published build and download if stale",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, log, err := setup()
			if err != nil {
				return err
			}
			defer ctrl.Close()
			defer func() { _ = log.Sync() }()

			result, err := ctrl.Update(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Agent is %s.\n", result)
			return nil
		},
	}
}

func assetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Mirror the asset tree between store and runtime",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "push",
		Short: "Mirror the persistent store into the runtime tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, _, err := setup()
			if err != nil {
				return err
			}
			defer ctrl.Close()
			return ctrl.PushAssets()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "pull",
		Short: "Mirror the runtime tree back into the persistent store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, _, err := setup()
			if err != nil {
				return err
			}
			defer ctrl.Close()
			return ctrl.PullAssets()
		},
	})
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change launcher settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New(flagVerbose)
			home, err := paths.ResolveHome(flagHome)
			if err != nil {
				return err
			}
			cfg := config.Load(paths.ConfigFile(home), log)
			fmt.Printf("update_enabled:         %v\n", cfg.UpdateEnabled)
			fmt.Printf("assets_saving_enabled:  %v\n", cfg.AssetsSavingEnabled)
			fmt.Printf("theme:                  %s\n", cfg.Theme)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a setting and persist it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New(flagVerbose)
			home, err := paths.ResolveHome(flagHome)
			if err != nil {
				return err
			}
			cfg := config.Load(paths.ConfigFile(home), log)
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Save(paths.ConfigFile(home)); err != nil {
				return err
			}
			fmt.Printf("%s = %s\n", args[0], args[1])
			return nil
		},
	})
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent launcher actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, _, err := setup()
			if err != nil {
				return err
			}
			defer ctrl.Close()

			events, err := ctrl.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Println("No recorded actions.")
				return nil
			}
			for _, e := range events {
				line := fmt.Sprintf("%s  %-7s %s", e.CreatedAt.Local().Format(time.DateTime), e.Action, e.Outcome)
				if e.Detail != "" {
					line += "  (" + e.Detail + ")"
				}
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of events to show")
	return cmd
}

// formatStatus renders the supervisor status; decorations are dropped
// when writing to a pipe or when --plain is set.
func formatStatus(info supervisor.Info) string {
	decorated := !flagPlain && term.IsTerminal(int(os.Stdout.Fd()))

	if info.State != supervisor.StateRunning {
		return "Agent:    not running\n"
	}

	mark := ""
	if decorated {
		mark = "✓ "
	}
	out := fmt.Sprintf("Agent:    %srunning (PID %d)\n", mark, info.PID)
	if info.Uptime > 0 {
		out += fmt.Sprintf("Uptime:   %s\n", info.Uptime.Round(time.Second))
	}
	if info.AgentPath != "" {
		out += fmt.Sprintf("Binary:   %s\n", info.AgentPath)
	}
	return out
}
