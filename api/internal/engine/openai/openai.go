package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"plant-id/api/internal/prompt"
	"plant-id/api/internal/util"
)

const defaultBaseURL = "https://api.openai.com/v1"

var defaultClient = &http.Client{Timeout: 60 * time.Second}

type Engine struct {
	APIKey  string
	Model   string
	BaseURL string

	// Instruction — текст промпта; пусто — prompt.Identify.
	Instruction string

	httpc *http.Client
}

func New(key, model, instruction string) *Engine {
	return &Engine{
		APIKey:      strings.TrimSpace(key),
		Model:       strings.TrimSpace(model),
		BaseURL:     defaultBaseURL,
		Instruction: instruction,
		httpc:       defaultClient,
	}
}

func (e *Engine) Name() string { return "gpt" }

func (e *Engine) GetModel() string { return e.Model }

// Identify — один запрос chat/completions с картинкой в data URL. Возвращает content как есть.
func (e *Engine) Identify(ctx context.Context, image []byte, mime string) (any, error) {
	if e.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY not set")
	}
	instruction := strings.TrimSpace(e.Instruction)
	if instruction == "" {
		instruction = prompt.Identify
	}
	dataURL := util.MakeDataURL(mime, base64.StdEncoding.EncodeToString(image))

	body := map[string]any{
		"model": e.Model,
		"messages": []any{
			map[string]any{"role": "system", "content": prompt.WithSchema(instruction)},
			map[string]any{
				"role": "user",
				"content": []any{
					map[string]any{"type": "text", "text": "Identify the plant in this photo. Answer strictly with JSON per record.schema.json."},
					map[string]any{"type": "image_url", "image_url": map[string]any{"url": dataURL, "detail": "high"}},
				},
			},
		},
		"temperature":     0,
		"response_format": map[string]any{"type": "json_object"},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai identify: marshal: %w", err)
	}

	url := strings.TrimRight(e.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openai identify: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai identify: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("openai identify %d: %s", resp.StatusCode, strings.TrimSpace(string(x)))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
				Refusal string `json:"refusal"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("openai identify: decode envelope: %w", err)
	}
	if len(raw.Choices) == 0 {
		return nil, errors.New("openai identify: empty choices")
	}
	msg := raw.Choices[0].Message
	if msg.Refusal != "" {
		return nil, fmt.Errorf("openai identify: refused: %s", msg.Refusal)
	}
	return msg.Content, nil
}

// client не пишет в Engine: один Engine обслуживает параллельные запросы.
func (e *Engine) client() *http.Client {
	if e.httpc != nil {
		return e.httpc
	}
	return defaultClient
}
