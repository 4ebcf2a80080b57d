package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"plant-id/api/internal/engine"
	"plant-id/api/internal/identify"
)

// botAPI — часть *tgbotapi.BotAPI, нужная роутеру.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Identifier — identify.Service.
type Identifier interface {
	Identify(ctx context.Context, req identify.Request) (identify.Result, error)
	MaxImageBytes() int64
}

type Router struct {
	Bot        botAPI
	Svc        Identifier
	Engines    *engine.Engines
	EngManager *engine.Manager
	Timeout    time.Duration // на одну идентификацию
	Log        *zap.Logger

	httpc  *http.Client
	states *chatStates
	wg     sync.WaitGroup
	once   sync.Once
}

func (r *Router) init() {
	r.once.Do(func() {
		if r.Log == nil {
			r.Log = zap.NewNop()
		}
		if r.Timeout <= 0 {
			r.Timeout = 180 * time.Second
		}
		if r.httpc == nil {
			r.httpc = &http.Client{Timeout: 60 * time.Second}
		}
		r.states = newChatStates()
	})
}

// HandleUpdate разбирает апдейт. Идентификация фото идёт в отдельной горутине; Wait дожидается их.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	r.init()
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	cid := msg.Chat.ID

	if msg.IsCommand() {
		r.handleCommand(cid, msg)
		return
	}

	fileID, size, ok := pickImage(msg)
	if !ok {
		r.send(cid, "Send me a photo of a plant and I will identify it.")
		return
	}
	if limit := r.Svc.MaxImageBytes(); int64(size) > limit {
		r.send(cid, identify.TooLargeMessage(limit))
		return
	}
	if !r.states.begin(cid) {
		r.send(cid, "⏳ Still identifying your previous photo, please wait.")
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.identifyPhoto(ctx, cid, fileID)
	}()
}

// Wait дожидается всех идентификаций в полёте.
func (r *Router) Wait() { r.wg.Wait() }

func (r *Router) handleCommand(cid int64, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		r.send(cid, "Send a photo of a plant (as photo or image file up to "+
			identify.HumanSize(r.Svc.MaxImageBytes())+") and I will identify it.\nCommands: /engine, /help")
	case "engine":
		r.handleEngineCommand(cid, msg.CommandArguments())
	default:
		r.send(cid, "Unknown command. Try /help")
	}
}

// handleEngineCommand: /engine — текущий движок, /engine gemini|gpt — переключить для чата.
func (r *Router) handleEngineCommand(cid int64, args string) {
	name := strings.ToLower(strings.TrimSpace(args))
	if name == "" {
		cur := r.EngManager.Get(cid)
		text := "Current engine: none"
		if cur != nil {
			text = "Current engine: " + cur.Name() + " (" + cur.GetModel() + ")"
		}
		r.send(cid, text+"\nAvailable: "+strings.Join(r.Engines.Names(), ", ")+"\nUsage: /engine gemini | gpt | default")
		return
	}
	if name == "default" {
		r.EngManager.Reset(cid)
		if cur := r.EngManager.Get(cid); cur != nil {
			r.send(cid, "✅ Engine: "+cur.Name()+" ("+cur.GetModel()+").")
		}
		return
	}
	eng, err := r.Engines.GetEngine(name)
	if err != nil {
		r.send(cid, "❌ "+err.Error())
		return
	}
	r.EngManager.Set(cid, eng)
	r.send(cid, "✅ Engine: "+eng.Name()+" ("+eng.GetModel()+").")
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := r.Bot.Send(msg); err != nil {
		r.Log.Warn("telegram send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// sendMarkdown шлёт с ParseMode Markdown; если Telegram отверг разметку — повторяет простым текстом.
func (r *Router) sendMarkdown(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err := r.Bot.Send(msg)
	if err == nil {
		return nil
	}
	r.Log.Warn("telegram markdown send failed, retrying as plain text", zap.Int64("chat_id", chatID), zap.Error(err))
	msg.ParseMode = ""
	if _, err := r.Bot.Send(msg); err != nil {
		r.Log.Warn("telegram send failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return err
	}
	return nil
}

// pickImage: самое большое фото из Photo либо документ-изображение.
func pickImage(msg *tgbotapi.Message) (fileID string, size int, ok bool) {
	if len(msg.Photo) > 0 {
		ph := msg.Photo[len(msg.Photo)-1]
		return ph.FileID, ph.FileSize, true
	}
	if d := msg.Document; d != nil && strings.HasPrefix(strings.ToLower(d.MimeType), "image/") {
		return d.FileID, d.FileSize, true
	}
	return "", 0, false
}

var errNoEngine = errors.New("no engine selected")
