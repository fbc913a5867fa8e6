package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telebiz/agentcore/internal/config"
	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/logging"
	"github.com/telebiz/agentcore/internal/server"
	"github.com/telebiz/agentcore/internal/tui"
)

func chatCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Chat with the agent in the terminal.

Plans that change anything are shown before they run and need a y/N
answer. Type /help inside the session for commands.`,
		Run: func(cmd *cobra.Command, args []string) {
			runChat(mode)
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Start in mode ask, plan or agent")
	return cmd
}

func runChat(mode string) {
	// the console owns the terminal, so logs go to a file
	if err := config.EnsureDir(config.GetPaths().Home); err == nil {
		if f, err := os.OpenFile(filepath.Join(config.GetPaths().Home, "telebiz.log"),
			os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			defer f.Close()
			logging.Configure(f, logging.Level(cfg.LogLevel))
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	a := openApp(ctx)
	defer a.Close()

	if mode != "" {
		if err := a.Session.SetMode(domain.Mode(strings.ToLower(mode))); err != nil {
			exitOnError(err)
		}
	}
	a.StartSweeper(ctx)

	if err := tui.Run(ctx, a.Session, a.Storage); err != nil && ctx.Err() == nil {
		exitOnError(err)
	}
}

func serveCmd() *cobra.Command {
	var addr string
	var origins []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent over HTTP",
		Long: `Expose the agent as a JSON API with an SSE stream per message.

Plans are confirmed with POST /api/plans/{id}/confirm while the
message stream is open. Metrics are served at /metrics.`,
		Run: func(cmd *cobra.Command, args []string) {
			if addr == "" {
				addr = cfg.HTTPAddr
			}
			ctx, cancel := signalContext()
			defer cancel()

			a := openApp(ctx)
			defer a.Close()
			a.StartSweeper(ctx)

			srv := server.New(a.Session, server.Options{
				Addr:           addr,
				AllowedOrigins: origins,
				Metrics:        a.Metrics,
				MCP:            a.MCP,
			})
			if err := srv.Serve(ctx); err != nil {
				exitOnError(err)
			}
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config)")
	cmd.Flags().StringSliceVar(&origins, "origin", nil, "Allowed CORS origin, repeatable")
	return cmd
}
