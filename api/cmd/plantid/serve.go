package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"plant-id/api/internal/engine"
	"plant-id/api/internal/handle"
	"plant-id/api/internal/telegram"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (and the Telegram bot if TELEGRAM_BOT_TOKEN is set)",
	Long: `Starts the HTTP API:
  POST /v1/identify  identify a plant photo (multipart "image" or JSON image_b64)
  GET  /v1/engines   configured engines and the image size limit
  GET  /healthz      liveness (pings the cache DB when enabled)

With TELEGRAM_BOT_TOKEN the bot runs alongside: webhook mode when WEBHOOK_URL
is set, long polling otherwise.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, true, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handle.New(a.svc, a.engines, cfg.RequestTimeout, logger)
	if a.db != nil {
		h.Ping = a.db.PingContext
	}
	router := handle.NewRouter(h, cfg.AllowOrigins)

	g, gctx := errgroup.WithContext(ctx)

	var bot *telegram.Router
	if token := strings.TrimSpace(cfg.TelegramBotToken); token != "" {
		bot, err = startBot(gctx, g, router, a, token)
		if err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logger.Info("http shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if bot != nil {
		bot.Wait()
	}
	return err
}

// startBot подключает Telegram: вебхук на gin-роутере либо long polling в errgroup.
func startBot(ctx context.Context, g *errgroup.Group, router *gin.Engine, a *app, token string) (*telegram.Router, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = false

	def, err := a.engines.GetEngine("")
	if err != nil {
		return nil, err
	}
	r := &telegram.Router{
		Bot:        api,
		Svc:        a.svc,
		Engines:    a.engines,
		EngManager: engine.NewManager(def),
		Timeout:    cfg.RequestTimeout,
		Log:        logger.Named("telegram"),
	}
	// идентификации в полёте доживают до конца после сигнала остановки
	workCtx := context.WithoutCancel(ctx)

	if base := strings.TrimSpace(cfg.WebhookURL); base != "" {
		path := telegram.WebhookPath(token)
		wh, err := tgbotapi.NewWebhook(strings.TrimRight(base, "/") + path)
		if err != nil {
			return nil, err
		}
		wh.DropPendingUpdates = true
		if _, err := api.Request(wh); err != nil {
			return nil, err
		}
		router.POST(path, telegram.WebhookHandler(workCtx, api, r))
		logger.Info("telegram webhook mode", zap.String("path", path))
		return r, nil
	}

	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		logger.Warn("telegram delete webhook failed", zap.Error(err))
	}
	g.Go(func() error {
		logger.Info("telegram polling mode", zap.String("bot", api.Self.UserName))
		telegram.RunPolling(ctx, api, r.Log, func(upd tgbotapi.Update) {
			r.HandleUpdate(workCtx, upd)
		})
		return nil
	})
	return r, nil
}
