package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// MessageLimit is the longest message Discord accepts.
const MessageLimit = 2000

// DiscordOptions configure the Discord front end.
type DiscordOptions struct {
	Token   string
	Command string
	GuildID string // empty registers the command globally, guild channels only
}

// Discord serves Bot over a Discord slash command.
type Discord struct {
	s      *discordgo.Session
	bot    *Bot
	opts   DiscordOptions
	logger *zap.Logger
	// handlers run on the session's event goroutines; wg lets Run wait for them.
	wg sync.WaitGroup

	mu         sync.Mutex
	appID      string
	registered []*discordgo.ApplicationCommand
}

// NewDiscord creates a session for opts.Token. Nothing connects until Run.
func NewDiscord(b *Bot, opts DiscordOptions, logger *zap.Logger) (*Discord, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("discord token is empty")
	}
	if opts.Command == "" {
		opts.Command = "drugs"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds
	return &Discord{s: s, bot: b, opts: opts, logger: logger.Named("discord")}, nil
}

// Command returns the slash command definition.
func (d *Discord) Command() *discordgo.ApplicationCommand {
	dm := false
	return &discordgo.ApplicationCommand{
		Name:         d.opts.Command,
		Description:  "Ask DrugCrow a question about drugs.",
		DMPermission: &dm,
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "message",
			Description: "Your question",
			Required:    true,
		}},
	}
}

// Run connects, registers the command and serves until ctx is cancelled.
func (d *Discord) Run(ctx context.Context) error {
	d.s.AddHandler(d.onReady)
	d.s.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		d.wg.Add(1)
		defer d.wg.Done()
		d.onInteraction(ctx, s, i)
	})

	if err := d.s.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	<-ctx.Done()

	d.unregister()
	err := d.s.Close()
	d.wg.Wait()
	if err != nil {
		return fmt.Errorf("close discord session: %w", err)
	}
	return nil
}

func (d *Discord) onReady(s *discordgo.Session, r *discordgo.Ready) {
	d.logger.Info("logged in", zap.String("user", r.User.String()))
	appID := r.User.ID
	if r.Application != nil && r.Application.ID != "" {
		appID = r.Application.ID
	}
	cmd, err := s.ApplicationCommandCreate(appID, d.opts.GuildID, d.Command())
	if err != nil {
		d.logger.Error("register command", zap.String("command", d.opts.Command), zap.Error(err))
		return
	}
	d.mu.Lock()
	d.appID = appID
	d.registered = append(d.registered, cmd)
	d.mu.Unlock()
	d.logger.Info("command registered", zap.String("command", cmd.Name), zap.String("guild", d.opts.GuildID))
}

func (d *Discord) unregister() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cmd := range d.registered {
		if err := d.s.ApplicationCommandDelete(d.appID, d.opts.GuildID, cmd.ID); err != nil {
			d.logger.Warn("unregister command", zap.String("command", cmd.Name), zap.Error(err))
		}
	}
	d.registered = nil
}

func (d *Discord) onInteraction(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand || i.ApplicationCommandData().Name != d.opts.Command {
		return
	}
	q := QuestionFrom(i)
	log := d.logger.With(zap.String("user", q.User), zap.String("interaction", i.ID))

	out := &interactionSender{s: s, i: i}
	if err := d.bot.Respond(ctx, q, out); err != nil {
		log.Error("respond", zap.Error(err))
	}
}

// interactionSender replies to one slash command: Ack answers the
// interaction, everything after it is a followup message.
type interactionSender struct {
	s *discordgo.Session
	i *discordgo.InteractionCreate
}

func (o *interactionSender) Ack(text string) error {
	return o.s.InteractionRespond(o.i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: text},
	})
}

func (o *interactionSender) Send(text string) error {
	_, err := o.s.FollowupMessageCreate(o.i.Interaction, true, &discordgo.WebhookParams{Content: text})
	return err
}

func (o *interactionSender) SendImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = o.s.FollowupMessageCreate(o.i.Interaction, true, &discordgo.WebhookParams{
		Files: []*discordgo.File{{
			Name:        filepath.Base(path),
			ContentType: "image/png",
			Reader:      f,
		}},
	})
	return err
}

// QuestionFrom extracts the asker and message from a slash command.
func QuestionFrom(i *discordgo.InteractionCreate) Question {
	q := Question{Private: i.GuildID == ""}
	switch {
	case i.Member != nil && i.Member.Nick != "":
		q.User = i.Member.Nick
	case i.Member != nil && i.Member.User != nil:
		q.User = displayName(i.Member.User)
	case i.User != nil:
		q.User = displayName(i.User)
	}
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "message" && opt.Type == discordgo.ApplicationCommandOptionString {
			q.Message = opt.StringValue()
		}
	}
	return q
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// SplitMessage cuts text into chunks of at most limit bytes, preferring
// line breaks and never splitting a UTF-8 sequence.
func SplitMessage(text string, limit int) []string {
	var out []string
	for len(text) > limit {
		cut := strings.LastIndexByte(text[:limit], '\n')
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		} else {
			cut++
		}
		out = append(out, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
