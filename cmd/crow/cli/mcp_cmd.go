package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drugcrow/crow/cmd/crow/cli/mcpserver"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve find_path and answer as MCP tools over stdio",
		Long: "Speaks the Model Context Protocol on stdin/stdout. The answer tool is only offered\n" +
			"when a language model is configured. Logs go to stderr.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true

			root, err := workspace(cmd)
			if err != nil {
				return err
			}
			rt, err := loadRuntime(cmd, root, "warn")
			if err != nil {
				return fail(cmd, err)
			}
			defer rt.logger.Sync() //nolint:errcheck

			tables, err := rt.loadTables("")
			if err != nil {
				return fail(cmd, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps := &mcpserver.Deps{
				Graph:  rt.loadGraph(tables),
				Tables: tables,
				Logger: rt.logger.Named("mcp"),
			}
			if rt.cfg.LLM.Configured() {
				svc, cleanup, err := rt.newAnswerService(ctx)
				if err != nil {
					return fail(cmd, err)
				}
				defer cleanup()
				deps.Answerer = svc
			} else {
				rt.logger.Info("no language model configured; answer tool disabled")
			}

			s := mcpserver.New(Version, deps)
			rt.logger.Debug("mcp serving on stdio", zap.Bool("answer", deps.Answerer != nil))
			if err := mcpserver.Serve(ctx, s, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
				return fail(cmd, err)
			}
			return nil
		},
	}
}
