package cli

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drugcrow/crow/cmd/crow/cli/bot"
)

func newBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Discord bot",
		Long: "Connects to Discord with $DISCORD_TOKEN, registers the slash command and relays each\n" +
			"question to the answer API at bot.answer_url.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true

			root, _ := FindRoot()
			rt, err := loadRuntime(cmd, root, "info")
			if err != nil {
				return fail(cmd, err)
			}
			defer rt.logger.Sync() //nolint:errcheck

			bc := rt.cfg.Bot
			if bc.Token == "" {
				return fail(cmd, errors.New("DISCORD_TOKEN is not set"))
			}
			if bc.AuthToken == "" {
				return fail(cmd, errors.New("AUTH_TOKEN is not set; the answer API will reject the bot"))
			}

			relay := bot.NewRelay(bc.AnswerURL, bc.AuthToken, rt.cfg.Server.Name, bc.RequestTimeout, rt.logger.Named("relay"))
			b := &bot.Bot{Asker: relay, FallbackImage: bc.FallbackImage, Logger: rt.logger.Named("bot")}
			d, err := bot.NewDiscord(b, bot.DiscordOptions{
				Token:   bc.Token,
				Command: bc.Command,
				GuildID: bc.GuildID,
			}, rt.logger.Named("discord"))
			if err != nil {
				return fail(cmd, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt.logger.Info("bot starting", zap.String("answer_url", bc.AnswerURL), zap.String("command", bc.Command))
			if err := d.Run(ctx); err != nil {
				return fail(cmd, err)
			}
			return nil
		},
	}
}
