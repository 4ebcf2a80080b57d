package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"plant-id/api/internal/identify"
	"plant-id/api/internal/plant"
)

func (r *Router) identifyPhoto(ctx context.Context, chatID int64, fileID string) {
	ok := false
	defer func() { r.states.finish(chatID, ok) }()

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	reqID := uuid.NewString()
	log := r.Log.With(zap.Int64("chat_id", chatID), zap.String("request_id", reqID))

	r.send(chatID, "🔎 Analyzing your plant…")

	img, err := r.fetchFile(ctx, fileID)
	if err != nil {
		log.Warn("telegram file download failed", zap.Error(err))
		r.sendError(chatID, err)
		return
	}

	eng := r.EngManager.Get(chatID)
	if eng == nil {
		r.sendError(chatID, errNoEngine)
		return
	}
	res, err := r.Svc.Identify(ctx, identify.Request{Image: img, Engine: eng.Name(), RequestID: reqID})
	if err != nil {
		r.sendError(chatID, err)
		return
	}
	ok = r.sendMarkdown(chatID, FormatRecord(res.Record)) == nil
}

func (r *Router) fetchFile(ctx context.Context, fileID string) ([]byte, error) {
	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return download(ctx, r.httpc, url, r.Svc.MaxImageBytes())
}

func download(ctx context.Context, httpc *http.Client, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", identify.ErrImageTooLarge, limit)
	}
	return b, nil
}

func (r *Router) sendError(chatID int64, err error) {
	if pe, ok := plant.AsError(err); ok {
		r.send(chatID, "⚠️ "+pe.UserMessage())
		return
	}
	switch {
	case errors.Is(err, identify.ErrImageTooLarge):
		r.send(chatID, identify.TooLargeMessage(r.Svc.MaxImageBytes()))
	case errors.Is(err, identify.ErrUnsupportedImage):
		r.send(chatID, "⚠️ This file is not an image. Please send a photo of a plant.")
	default:
		r.send(chatID, "⚠️ Error identifying plant. Please try again.")
	}
}
