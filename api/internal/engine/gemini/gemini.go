package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"plant-id/api/internal/prompt"
)

type Engine struct {
	APIKey string
	Model  string

	// Instruction — текст промпта; пусто — prompt.Identify.
	Instruction string
}

func New(apiKey, model, instruction string) *Engine {
	return &Engine{
		APIKey:      strings.TrimSpace(apiKey),
		Model:       strings.TrimSpace(model),
		Instruction: instruction,
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

// Identify отправляет фото и фиксированный промпт, возвращает текст первого кандидата как есть.
// Один вызов без ретраев: повтор — только по явному действию пользователя.
func (e *Engine) Identify(ctx context.Context, image []byte, mime string) (any, error) {
	if e.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	if m == nil {
		return nil, fmt.Errorf("gemini: model is nil")
	}
	// Просим строго JSON
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{
			genai.Text(e.instruction()),
			genai.Text("record.schema.json:\n" + prompt.RecordSchema),
		},
	}

	parts := []genai.Part{
		genai.Text("Identify the plant in this photo. Answer strictly with JSON per record.schema.json."),
		genai.Blob{MIMEType: mime, Data: image},
	}
	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini identify: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		reason := "no candidates"
		if resp != nil && resp.PromptFeedback != nil {
			reason = "blocked: " + resp.PromptFeedback.BlockReason.String()
		}
		return nil, fmt.Errorf("gemini identify: %s", reason)
	}
	return firstText(resp), nil
}

func (e *Engine) instruction() string {
	if s := strings.TrimSpace(e.Instruction); s != "" {
		return s
	}
	return prompt.Identify
}

// --------------------------- helpers ---------------------------

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
