package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubAsker struct {
	answer string
	err    error
	got    []string
}

func (s *stubAsker) Ask(_ context.Context, message string) (string, error) {
	s.got = append(s.got, message)
	return s.answer, s.err
}

func TestHandle_Rules(t *testing.T) {
	asker := &stubAsker{answer: "ASPIRIN"}
	b := &Bot{Asker: asker, Logger: zap.NewNop()}

	r := b.Handle(context.Background(), Question{User: "ana", Message: "List drugs", Private: true})
	assert.Equal(t, Reply{Text: PrivateChannelReply}, r)

	r = b.Handle(context.Background(), Question{User: "ana", Message: "   "})
	assert.Equal(t, Reply{Text: EmptyMessageReply}, r)

	assert.Empty(t, asker.got)
}

func TestHandle_Relayed(t *testing.T) {
	asker := &stubAsker{answer: "pref_name\nASPIRIN\n"}
	b := &Bot{Asker: asker}

	r := b.Handle(context.Background(), Question{User: "ana", Message: "  List drugs  "})
	assert.Equal(t, Reply{Text: "pref_name\nASPIRIN\n"}, r)
	assert.Equal(t, []string{"List drugs"}, asker.got)
}

// recordingSender keeps every call in order.
type recordingSender struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSender) record(e string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSender) Ack(text string) error       { return s.record("ack:" + text) }
func (s *recordingSender) Send(text string) error      { return s.record("send:" + text) }
func (s *recordingSender) SendImage(path string) error { return s.record("image:" + path) }

func (s *recordingSender) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

// blockingAsker records when Ask starts and holds the answer until release
// is closed.
type blockingAsker struct {
	out     *recordingSender
	release chan struct{}
}

func (a *blockingAsker) Ask(ctx context.Context, message string) (string, error) {
	_ = a.out.record("ask:" + message)
	select {
	case <-a.release:
		return "ASPIRIN", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestRespond_LoadingBeforeAnswer(t *testing.T) {
	out := &recordingSender{}
	asker := &blockingAsker{out: out, release: make(chan struct{})}
	b := &Bot{Asker: asker, Logger: zap.NewNop()}

	done := make(chan error, 1)
	go func() {
		done <- b.Respond(context.Background(), Question{User: "ana", Message: "List drugs"}, out)
	}()

	// The ack and the loading message go out while the relay is still blocked.
	require.Eventually(t, func() bool { return len(out.snapshot()) == 3 }, 2*time.Second, 5*time.Millisecond)
	events := out.snapshot()
	assert.Equal(t, "ack:Working on message from ana", events[0])
	require.True(t, strings.HasPrefix(events[1], "send:"), events[1])
	assert.Contains(t, LoadingMessages, strings.TrimPrefix(events[1], "send:"))
	assert.Equal(t, "ask:List drugs", events[2])

	close(asker.release)
	require.NoError(t, <-done)
	assert.Equal(t, "send:ASPIRIN", out.snapshot()[3])
	assert.Len(t, out.snapshot(), 4)
}

func TestRespond_FinalAck(t *testing.T) {
	out := &recordingSender{}
	asker := &stubAsker{answer: "ASPIRIN"}
	b := &Bot{Asker: asker}

	require.NoError(t, b.Respond(context.Background(), Question{User: "ana", Message: "List drugs", Private: true}, out))
	assert.Equal(t, []string{"ack:" + PrivateChannelReply}, out.snapshot())
	assert.Empty(t, asker.got)
}

func TestRespond_SplitsAndFallsBack(t *testing.T) {
	out := &recordingSender{}
	long := strings.Repeat("row\n", MessageLimit/4+10)
	b := &Bot{Asker: &stubAsker{answer: long}}
	require.NoError(t, b.Respond(context.Background(), Question{User: "ana", Message: "q"}, out))
	events := out.snapshot()
	require.Len(t, events, 4)
	assert.Equal(t, long, strings.TrimPrefix(events[2], "send:")+strings.TrimPrefix(events[3], "send:"))

	img := filepath.Join(t.TempDir(), "drugcrow.png")
	require.NoError(t, os.WriteFile(img, []byte("\x89PNG"), 0o644))
	out = &recordingSender{}
	b = &Bot{Asker: &stubAsker{err: errors.New("HTTP 500")}, FallbackImage: img}
	require.NoError(t, b.Respond(context.Background(), Question{User: "ana", Message: "q"}, out))
	assert.Equal(t, "image:"+img, out.snapshot()[2])
}

func TestHandle_Fallback(t *testing.T) {
	img := filepath.Join(t.TempDir(), "drugcrow.png")
	require.NoError(t, os.WriteFile(img, []byte("\x89PNG"), 0o644))

	asker := &stubAsker{err: errors.New("HTTP 500")}

	withImage := &Bot{Asker: asker, FallbackImage: img}
	r := withImage.Handle(context.Background(), Question{User: "ana", Message: "List drugs"})
	assert.Equal(t, img, r.Image)
	assert.Empty(t, r.Text)

	missingImage := &Bot{Asker: asker, FallbackImage: filepath.Join(t.TempDir(), "nope.png")}
	r = missingImage.Handle(context.Background(), Question{User: "ana", Message: "List drugs"})
	assert.Empty(t, r.Image)
	assert.Equal(t, FallbackTextReply, r.Text)
}

func TestRelay_Ask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/answer", r.URL.Path)
		assert.Equal(t, "Bearer sekret", r.Header.Get("Authorization"))

		var req map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "List drugs", req["message"])
		assert.Equal(t, "DrugCrow", req["name"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":"ASPIRIN","sql":"SELECT 1","columns":["PREF_NAME"],"id":"x"}`))
	}))
	defer srv.Close()

	relay := NewRelay(srv.URL+"/", "sekret", "DrugCrow", 5*time.Second, zap.NewNop())
	got, err := relay.Ask(context.Background(), "List drugs")
	require.NoError(t, err)
	assert.Equal(t, "ASPIRIN", got)
}

func TestRelay_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"unauthorized","message":"Incorrect bearer token"}`, wantErr: "HTTP 401: Incorrect bearer token"},
		{name: "plain text failure", status: http.StatusBadGateway, body: "upstream down", wantErr: "HTTP 502: upstream down"},
		{name: "no data", status: http.StatusOK, body: `{"data":""}`, wantErr: "no data"},
		{name: "not json", status: http.StatusOK, body: "<html>", wantErr: "decode response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewRelay(srv.URL, "t", "DrugCrow", time.Second, nil).Ask(context.Background(), "q")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSplitMessage(t *testing.T) {
	assert.Nil(t, SplitMessage("", 10))
	assert.Equal(t, []string{"short"}, SplitMessage("short", 10))

	lines := "aaaa\nbbbb\ncccc\n"
	assert.Equal(t, []string{"aaaa\nbbbb\n", "cccc\n"}, SplitMessage(lines, 12))

	long := strings.Repeat("x", 25)
	assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, SplitMessage(long, 10))

	// "é" is two bytes and must stay whole.
	chunks := SplitMessage("aaaé", 4)
	assert.Equal(t, []string{"aaa", "é"}, chunks)

	big := strings.Repeat("row of a result table\n", 300)
	for _, c := range SplitMessage(big, MessageLimit) {
		assert.LessOrEqual(t, len(c), MessageLimit)
	}
	assert.Equal(t, big, strings.Join(SplitMessage(big, MessageLimit), ""))
}

func TestQuestionFrom(t *testing.T) {
	data := discordgo.ApplicationCommandInteractionData{
		Name: "drugs",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "message", Type: discordgo.ApplicationCommandOptionString, Value: "List drugs"},
		},
	}

	guild := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: "g1",
		Member:  &discordgo.Member{Nick: "Ana", User: &discordgo.User{Username: "ana"}},
		Data:    data,
	}}
	assert.Equal(t, Question{User: "Ana", Message: "List drugs"}, QuestionFrom(guild))

	noNick := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: "g1",
		Member:  &discordgo.Member{User: &discordgo.User{Username: "ana", GlobalName: "Ana B"}},
		Data:    data,
	}}
	assert.Equal(t, "Ana B", QuestionFrom(noNick).User)

	dm := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand,
		User: &discordgo.User{Username: "ana"},
		Data: data,
	}}
	assert.Equal(t, Question{User: "ana", Message: "List drugs", Private: true}, QuestionFrom(dm))
}

func TestDiscord_Command(t *testing.T) {
	_, err := NewDiscord(&Bot{}, DiscordOptions{}, nil)
	require.Error(t, err)

	d, err := NewDiscord(&Bot{}, DiscordOptions{Token: "abc"}, nil)
	require.NoError(t, err)

	cmd := d.Command()
	assert.Equal(t, "drugs", cmd.Name)
	require.Len(t, cmd.Options, 1)
	assert.Equal(t, "message", cmd.Options[0].Name)
	assert.True(t, cmd.Options[0].Required)
	require.NotNil(t, cmd.DMPermission)
	assert.False(t, *cmd.DMPermission)
}
