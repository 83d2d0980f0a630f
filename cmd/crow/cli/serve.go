package cli

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drugcrow/crow/cmd/crow/cli/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the answer API over HTTP",
		Long: "Serves POST /answer for the chat bot and other clients. Requests must carry\n" +
			"'Authorization: Bearer $AUTH_TOKEN'.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true

			root, err := workspace(cmd)
			if err != nil {
				return err
			}
			rt, err := loadRuntime(cmd, root, "info")
			if err != nil {
				return fail(cmd, err)
			}
			defer rt.logger.Sync() //nolint:errcheck

			sc := rt.cfg.Server
			if sc.AuthToken == "" {
				return fail(cmd, errors.New("AUTH_TOKEN is not set; refusing to serve without authentication"))
			}
			if addr == "" {
				addr = sc.Addr()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, cleanup, err := rt.newAnswerService(ctx)
			if err != nil {
				return fail(cmd, err)
			}
			defer cleanup()

			srv := server.New(svc, server.Options{
				Name:      sc.Name,
				AuthToken: sc.AuthToken,
				Version:   Version,
			}, rt.logger.Named("server"))

			rt.logger.Info("serving", zap.String("addr", addr), zap.String("name", sc.Name))
			if err := srv.Run(ctx, addr); err != nil {
				return fail(cmd, err)
			}
			rt.logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default server.bind_addr:server.port)")
	return cmd
}
