package telegram

import "sync"

// phase — состояние отправки фото в чате: idle → submitting → {succeeded, failed}.
// Пока идёт submitting, новые фото в этом чате не принимаются (не очередь, а флаг занятости).
type phase int

const (
	phaseIdle phase = iota
	phaseSubmitting
	phaseSucceeded
	phaseFailed
)

func (p phase) String() string {
	switch p {
	case phaseSubmitting:
		return "submitting"
	case phaseSucceeded:
		return "succeeded"
	case phaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

type chatStates struct {
	mu sync.Mutex
	m  map[int64]phase
}

func newChatStates() *chatStates {
	return &chatStates{m: make(map[int64]phase)}
}

// begin переводит чат в submitting; false — если запрос уже выполняется.
func (s *chatStates) begin(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m[chatID] == phaseSubmitting {
		return false
	}
	s.m[chatID] = phaseSubmitting
	return true
}

func (s *chatStates) finish(chatID int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.m[chatID] = phaseSucceeded
	} else {
		s.m[chatID] = phaseFailed
	}
}

func (s *chatStates) get(chatID int64) phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[chatID]
}
