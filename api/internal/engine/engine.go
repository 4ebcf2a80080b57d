package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Engine — обёртка над внешней vision-моделью.
// Identify возвращает сырой ответ модели (обычно string) либо ошибку транспорта/сервиса.
// Ответ не разбирается здесь: это делает plant.Normalize.
type Engine interface {
	Name() string
	GetModel() string
	Identify(ctx context.Context, image []byte, mime string) (any, error)
}

type Engines struct {
	Gemini Engine
	OpenAI Engine

	// Default — имя движка для пустого llm_name ("gemini" | "gpt").
	Default string
}

// GetEngine выбирает движок по llm_name из запроса.
func (e *Engines) GetEngine(llmName string) (Engine, error) {
	name := strings.ToLower(strings.TrimSpace(llmName))
	if name == "" {
		name = strings.ToLower(strings.TrimSpace(e.Default))
	}
	var eng Engine
	switch name {
	case "gemini":
		eng = e.Gemini
	case "gpt", "openai":
		eng = e.OpenAI
	case "":
		// дефолт не задан — берём первый настроенный
		if eng = e.Gemini; eng == nil {
			eng = e.OpenAI
		}
	default:
		return nil, fmt.Errorf("unknown llm_name %q; use one of: %s", llmName, strings.Join(e.Names(), ", "))
	}
	if eng == nil {
		return nil, fmt.Errorf("engine %q is not configured", name)
	}
	return eng, nil
}

// Names — настроенные движки.
func (e *Engines) Names() []string {
	var out []string
	if e.Gemini != nil {
		out = append(out, e.Gemini.Name())
	}
	if e.OpenAI != nil {
		out = append(out, e.OpenAI.Name())
	}
	sort.Strings(out)
	return out
}

// Manager хранит выбранный движок для каждого чата.
type Manager struct {
	def Engine
	m   sync.Map // chatID -> Engine
}

func NewManager(defaultEngine Engine) *Manager {
	return &Manager{def: defaultEngine}
}

func (m *Manager) Get(chatID int64) Engine {
	if v, ok := m.m.Load(chatID); ok {
		return v.(Engine)
	}
	return m.def
}

func (m *Manager) Set(chatID int64, e Engine) {
	m.m.Store(chatID, e)
}

func (m *Manager) Reset(chatID int64) {
	m.m.Delete(chatID)
}
