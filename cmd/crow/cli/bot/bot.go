// Package bot is the chat front end. It relays questions asked in a chat
// channel to the answer service and replies with the result.
package bot

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/drugcrow/crow/cmd/crow/cli/logging"
)

// Fixed replies.
const (
	PrivateChannelReply = "Please ask me in a public channel."
	EmptyMessageReply   = "Caw caw"
	FallbackTextReply   = "Caw... I could not find an answer this time."
)

// LoadingMessages are shown while an answer is on its way.
var LoadingMessages = []string{
	"Thinking...",
	"Caw caw...",
	"Wondering...",
	"Reading...",
	"Searching...",
	"Hmmm...",
	"Getting a snack...",
	"Meow, I mean, caw caw...",
	"Getting some water...",
	"Doing some pushups...",
	"Don't forget to hydrate...",
	"Caw caw caw...",
	"Taking notes...",
	"Listening to a podcast...",
	"Use coupon code FH for 10% off crow feed...",
}

// Asker answers a question, usually by way of a Relay.
type Asker interface {
	Ask(ctx context.Context, message string) (string, error)
}

// Question is one chat request.
type Question struct {
	User    string
	Message string
	Private bool
}

// Reply is the answer to a Question: either Text or an Image to attach.
type Reply struct {
	Text  string
	Image string // path of an image to attach instead of Text
}

// Sender delivers replies on a chat platform. Ack is the first response
// to a question; Send and SendImage follow it.
type Sender interface {
	Ack(text string) error
	Send(text string) error
	SendImage(path string) error
}

// Bot holds the reply rules.
type Bot struct {
	Asker         Asker
	FallbackImage string
	Logger        *zap.Logger
}

// Acknowledge returns the first thing to say to q. final reports that
// nothing else follows.
func (b *Bot) Acknowledge(q Question) (text string, final bool) {
	if q.Private {
		return PrivateChannelReply, true
	}
	if strings.TrimSpace(q.Message) == "" {
		return EmptyMessageReply, true
	}
	return fmt.Sprintf("Working on message from %s", q.User), false
}

// Respond runs the whole conversation for q: the acknowledgement, a
// loading message while the answer is fetched, then the answer split to
// MessageLimit.
func (b *Bot) Respond(ctx context.Context, q Question, out Sender) error {
	ack, final := b.Acknowledge(q)
	if err := out.Ack(ack); err != nil {
		return fmt.Errorf("acknowledge: %w", err)
	}
	if final {
		return nil
	}
	if err := out.Send(RandomLoadingMessage()); err != nil {
		b.logger().Warn("loading message", zap.Error(err))
	}

	r := b.Handle(ctx, q)
	if r.Image != "" {
		if err := out.SendImage(r.Image); err != nil {
			return fmt.Errorf("send fallback image: %w", err)
		}
		return nil
	}
	for _, chunk := range SplitMessage(r.Text, MessageLimit) {
		if err := out.Send(chunk); err != nil {
			return fmt.Errorf("send answer: %w", err)
		}
	}
	return nil
}

// Handle answers q. Relay failures are logged and replaced by the
// fallback image, or the fallback text when no image is available.
func (b *Bot) Handle(ctx context.Context, q Question) Reply {
	if text, final := b.Acknowledge(q); final {
		return Reply{Text: text}
	}

	text, err := b.Asker.Ask(ctx, strings.TrimSpace(q.Message))
	if err != nil {
		b.logger().Warn("relay failed",
			zap.String("user", q.User),
			zap.String("error", logging.SanitizeError(err)))
		if b.fallbackImageExists() {
			return Reply{Image: b.FallbackImage}
		}
		return Reply{Text: FallbackTextReply}
	}
	return Reply{Text: text}
}

// RandomLoadingMessage picks one of LoadingMessages.
func RandomLoadingMessage() string {
	return LoadingMessages[rand.IntN(len(LoadingMessages))] //nolint:gosec
}

func (b *Bot) fallbackImageExists() bool {
	if b.FallbackImage == "" {
		return false
	}
	info, err := os.Stat(b.FallbackImage)
	return err == nil && !info.IsDir()
}

func (b *Bot) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}
