// Package main provides the telebiz CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/telebiz/agentcore/internal/config"
	"github.com/telebiz/agentcore/internal/logging"
)

var (
	version = "0.1.0"
	cfgPath string
	cfg     *config.Config
	pretty  = true
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "telebiz",
		Short: "Telegram business agent",
		Long: `telebiz: an agent that works your chats, CRM, Notion and reminders.

Usage modes:
  telebiz              Start an interactive chat session
  telebiz <command>    Run a specific command (see below)

Use 'telebiz serve' to expose the agent over HTTP.`,
		Args: cobra.NoArgs,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if plain, _ := cmd.Flags().GetBool("plain"); plain {
				pretty = false
			}
			logging.Configure(os.Stderr, logging.Level(cfg.LogLevel))
		},
		Run: func(cmd *cobra.Command, args []string) {
			runChat("")
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.GetPaths().ConfigFile, "Config file")
	rootCmd.PersistentFlags().Bool("plain", false, "Plain output without colors")

	rootCmd.AddGroup(
		&cobra.Group{ID: "agent", Title: "Agent:"},
		&cobra.Group{ID: "data", Title: "Data:"},
	)

	chat := chatCmd()
	chat.GroupID = "agent"
	rootCmd.AddCommand(chat)

	serve := serveCmd()
	serve.GroupID = "agent"
	rootCmd.AddCommand(serve)

	bundles := bundlesCmd()
	bundles.GroupID = "data"
	rootCmd.AddCommand(bundles)

	sk := skillsCmd()
	sk.GroupID = "data"
	rootCmd.AddCommand(sk)

	convs := conversationsCmd()
	convs.GroupID = "data"
	rootCmd.AddCommand(convs)

	history := historyCmd()
	history.GroupID = "data"
	rootCmd.AddCommand(history)

	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show telebiz version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("telebiz version %s\n", version)
		},
	}
}
