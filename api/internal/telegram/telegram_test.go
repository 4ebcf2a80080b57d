package telegram

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"plant-id/api/internal/engine"
	"plant-id/api/internal/identify"
	"plant-id/api/internal/plant"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

type fakeBot struct {
	mu      sync.Mutex
	texts   []string
	modes   []string
	fileURL string

	rejectMarkdown bool // как Telegram на битой разметке: "can't parse entities"
	rejectAll      bool
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		if b.rejectAll || (b.rejectMarkdown && m.ParseMode != "") {
			return tgbotapi.Message{}, errors.New("Bad Request: can't parse entities")
		}
		b.texts = append(b.texts, m.Text)
		b.modes = append(b.modes, m.ParseMode)
	}
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) GetFileDirectURL(string) (string, error) { return b.fileURL, nil }

func (b *fakeBot) sent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.texts...)
}

type fakeEngine struct{ name string }

func (e fakeEngine) Name() string     { return e.name }
func (e fakeEngine) GetModel() string { return e.name + "-model" }
func (e fakeEngine) Identify(context.Context, []byte, string) (any, error) {
	return nil, errors.New("not used")
}

type fakeIdentifier struct {
	release chan struct{}
	rec     plant.Record
	err     error

	mu   sync.Mutex
	reqs []identify.Request
}

func (f *fakeIdentifier) Identify(ctx context.Context, req identify.Request) (identify.Result, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return identify.Result{}, ctx.Err()
		}
	}
	if f.err != nil {
		return identify.Result{}, f.err
	}
	return identify.Result{Record: f.rec, RequestID: req.RequestID}, nil
}

func (f *fakeIdentifier) MaxImageBytes() int64 { return 1 << 20 }

func newRouter(t *testing.T, svc Identifier) (*Router, *fakeBot) {
	t.Helper()
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00})
	}))
	t.Cleanup(files.Close)

	gem := fakeEngine{name: "gemini"}
	engs := &engine.Engines{Gemini: gem, OpenAI: fakeEngine{name: "gpt"}, Default: "gemini"}
	bot := &fakeBot{fileURL: files.URL + "/photo.jpg"}
	r := &Router{
		Bot:        bot,
		Svc:        svc,
		Engines:    engs,
		EngManager: engine.NewManager(gem),
		Timeout:    5 * time.Second,
		Log:        zap.NewNop(),
	}
	return r, bot
}

func photoUpdate(chatID int64, size int) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:  &tgbotapi.Chat{ID: chatID},
		Photo: []tgbotapi.PhotoSize{{FileID: "small", FileSize: 10}, {FileID: "big", FileSize: size}},
	}}
}

func commandUpdate(chatID int64, text string) tgbotapi.Update {
	cmd := text
	if i := strings.IndexByte(text, ' '); i > 0 {
		cmd = text[:i]
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func TestRouter_PhotoIdentified(t *testing.T) {
	svc := &fakeIdentifier{rec: plant.Record{CommonName: "Sweet briar", ScientificName: "Rosa rubiginosa"}}
	r, bot := newRouter(t, svc)

	r.HandleUpdate(context.Background(), photoUpdate(1, 100))
	r.Wait()

	texts := bot.sent()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "Analyzing")
	assert.Contains(t, texts[1], "Sweet briar")
	assert.Contains(t, texts[1], "Rosa rubiginosa")
	assert.Equal(t, tgbotapi.ModeMarkdown, bot.modes[1])

	require.Len(t, svc.reqs, 1)
	assert.Equal(t, "gemini", svc.reqs[0].Engine)
	assert.NotEmpty(t, svc.reqs[0].RequestID)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, svc.reqs[0].Image)
	assert.Equal(t, phaseSucceeded, r.states.get(1))
}

func TestRouter_SecondPhotoRefusedWhileSubmitting(t *testing.T) {
	svc := &fakeIdentifier{release: make(chan struct{}), rec: plant.Record{ScientificName: "Rosa"}}
	r, bot := newRouter(t, svc)

	r.HandleUpdate(context.Background(), photoUpdate(7, 100))
	assert.Equal(t, phaseSubmitting, r.states.get(7))

	r.HandleUpdate(context.Background(), photoUpdate(7, 100))
	close(svc.release)
	r.Wait()

	texts := bot.sent()
	var refused int
	for _, s := range texts {
		if strings.Contains(s, "Still identifying") {
			refused++
		}
	}
	assert.Equal(t, 1, refused)
	assert.Len(t, svc.reqs, 1)
	assert.Equal(t, phaseSucceeded, r.states.get(7))
}

func TestRouter_OversizedPhotoRefusedBeforeDownload(t *testing.T) {
	svc := &fakeIdentifier{}
	r, bot := newRouter(t, svc)

	r.HandleUpdate(context.Background(), photoUpdate(3, 2<<20))
	r.Wait()

	texts := bot.sent()
	require.Len(t, texts, 1)
	assert.Equal(t, "File is too large. Please choose an image smaller than 1 MB.", texts[0])
	assert.Empty(t, svc.reqs)
	assert.Equal(t, phaseIdle, r.states.get(3))
}

func TestRouter_FailureMessage(t *testing.T) {
	svc := &fakeIdentifier{err: &plant.Error{Kind: plant.MalformedResponse, Message: "bad"}}
	r, bot := newRouter(t, svc)

	r.HandleUpdate(context.Background(), photoUpdate(4, 100))
	r.Wait()

	texts := bot.sent()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[1], "Invalid response format. Please try again later.")
	assert.Equal(t, phaseFailed, r.states.get(4))

	// после неудачи чат снова принимает фото
	svc.err = nil
	r.HandleUpdate(context.Background(), photoUpdate(4, 100))
	r.Wait()
	assert.Equal(t, phaseSucceeded, r.states.get(4))
}

func TestRouter_ImageDocumentAccepted(t *testing.T) {
	svc := &fakeIdentifier{rec: plant.Record{ScientificName: "Rosa"}}
	r, bot := newRouter(t, svc)

	upd := tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 5},
		Document: &tgbotapi.Document{FileID: "doc", MimeType: "image/png", FileSize: 100},
	}}
	r.HandleUpdate(context.Background(), upd)
	r.Wait()
	assert.Len(t, svc.reqs, 1)

	upd.Message.Document = &tgbotapi.Document{FileID: "pdf", MimeType: "application/pdf", FileSize: 100}
	r.HandleUpdate(context.Background(), upd)
	r.Wait()
	assert.Len(t, svc.reqs, 1)
	texts := bot.sent()
	assert.Contains(t, texts[len(texts)-1], "Send me a photo")
}

func TestRouter_EngineCommand(t *testing.T) {
	svc := &fakeIdentifier{rec: plant.Record{ScientificName: "Rosa"}}
	r, bot := newRouter(t, svc)
	ctx := context.Background()

	r.HandleUpdate(ctx, commandUpdate(9, "/engine gpt"))
	assert.Equal(t, "gpt", r.EngManager.Get(9).Name())

	r.HandleUpdate(ctx, photoUpdate(9, 100))
	r.Wait()
	require.Len(t, svc.reqs, 1)
	assert.Equal(t, "gpt", svc.reqs[0].Engine)

	r.HandleUpdate(ctx, commandUpdate(9, "/engine llama"))
	texts := bot.sent()
	assert.Contains(t, texts[len(texts)-1], "unknown llm_name")

	r.HandleUpdate(ctx, commandUpdate(9, "/engine default"))
	assert.Equal(t, "gemini", r.EngManager.Get(9).Name())

	r.HandleUpdate(ctx, commandUpdate(9, "/engine"))
	texts = bot.sent()
	assert.Contains(t, texts[len(texts)-1], "Current engine: gemini (gemini-model)")
	assert.Contains(t, texts[len(texts)-1], "Available: gemini, gpt")

	r.HandleUpdate(ctx, commandUpdate(9, "/help"))
	texts = bot.sent()
	assert.Contains(t, texts[len(texts)-1], "1 MB")
}

func TestFormatRecord(t *testing.T) {
	s := FormatRecord(plant.Record{
		CommonName:     "Sweet_briar",
		ScientificName: "Rosa rubiginosa",
		ClimateZones:   plant.List{"USDA 4-9", "USDA 10"},
	})
	assert.True(t, strings.HasPrefix(s, "🌿 *Sweet\\_briar*\n_Rosa rubiginosa_\n"))
	assert.Contains(t, s, "• Climate zones: USDA 4-9, USDA 10\n")
	assert.Contains(t, s, "• Soil: —\n")

	assert.Contains(t, FormatRecord(plant.Record{}), "Unknown plant")

	long := FormatRecord(plant.Record{Description: plant.Text(strings.Repeat("ж", 5000))})
	assert.Contains(t, long, strings.Repeat("ж", maxFieldRunes)+"…")
	assert.Contains(t, long, "*Additional context*")
	assert.Equal(t, 0, unescapedCount(long, '*')%2)
}

// unescapedCount считает символ c, не экранированный обратным слешем.
func unescapedCount(s string, c rune) int {
	n := 0
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == c:
			n++
		}
	}
	return n
}

func TestFormatRecord_LongFieldsKeepMarkdownBalanced(t *testing.T) {
	long := strings.Repeat("a*b_c ", 300) // экранирование раздувает текст
	rec := plant.Record{
		CommonName:      "Sweet briar",
		ScientificName:  "Rosa rubiginosa",
		Description:     plant.Text(strings.Repeat("x", 3494)),
		GrowthHabit:     plant.Text(long),
		LeafDescription: plant.Text(long),
		Habitat:         plant.Text(long),
		BotanicalFacts:  plant.Text(long),
	}
	s := FormatRecord(rec)

	assert.LessOrEqual(t, len([]rune(s)), maxMessageRunes+2)
	assert.True(t, strings.HasSuffix(s, "\n…"))
	assert.Equal(t, 0, unescapedCount(s, '*')%2)
	assert.Equal(t, 0, unescapedCount(s, '_')%2)
	for _, line := range strings.Split(s, "\n") {
		assert.Equal(t, 0, unescapedCount(line, '*')%2, line)
	}
}

func TestRouter_MarkdownRejectedFallsBackToPlainText(t *testing.T) {
	svc := &fakeIdentifier{rec: plant.Record{ScientificName: "Rosa rubiginosa"}}
	r, bot := newRouter(t, svc)
	bot.rejectMarkdown = true

	r.HandleUpdate(context.Background(), photoUpdate(11, 100))
	r.Wait()

	texts := bot.sent()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[1], "Rosa rubiginosa")
	assert.Equal(t, "", bot.modes[1])
	assert.Equal(t, phaseSucceeded, r.states.get(11))
}

func TestRouter_UndeliveredResultMarksFailed(t *testing.T) {
	svc := &fakeIdentifier{rec: plant.Record{ScientificName: "Rosa rubiginosa"}}
	r, bot := newRouter(t, svc)
	bot.rejectAll = true

	r.HandleUpdate(context.Background(), photoUpdate(12, 100))
	r.Wait()

	assert.Empty(t, bot.sent())
	assert.Equal(t, phaseFailed, r.states.get(12))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestRetryDelayFromError(t *testing.T) {
	assert.Equal(t, time.Duration(0), retryDelayFromError(nil))
	assert.Equal(t, 7*time.Second, retryDelayFromError(errors.New("Too Many Requests: retry after 7")))
	assert.Equal(t, 3*time.Second, retryDelayFromError(errors.New("Too Many Requests")))
	assert.Equal(t, 2*time.Second, retryDelayFromError(timeoutErr{}))
	assert.Equal(t, time.Second, retryDelayFromError(errors.New("boom")))
}

type fakeUpdates struct {
	mu    sync.Mutex
	calls int
	seen  []int
}

func (f *fakeUpdates) GetUpdates(cfg tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.seen = append(f.seen, cfg.Offset)
	if f.calls == 1 {
		return []tgbotapi.Update{{UpdateID: 10}, {UpdateID: 11}}, nil
	}
	return nil, nil
}

func TestRunPolling_AdvancesOffsetAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeUpdates{}
	var got []int
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunPolling(ctx, src, zap.NewNop(), func(u tgbotapi.Update) {
			got = append(got, u.UpdateID)
		})
	}()

	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls >= 2
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []int{10, 11}, got)
	assert.Equal(t, 0, src.seen[0])
	assert.Equal(t, 12, src.seen[1])
}

func TestWebhookPath(t *testing.T) {
	p := WebhookPath("123:abc")
	assert.True(t, strings.HasPrefix(p, "/webhook/"))
	assert.Len(t, p, len("/webhook/")+16)
	assert.Equal(t, p, WebhookPath("123:abc"))
	assert.NotEqual(t, p, WebhookPath("123:abd"))
}
