package plant

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ModelInvocationFailed   ErrorKind = "model_invocation_failed"
	MalformedResponse       ErrorKind = "malformed_response"
	UnsupportedResponseType ErrorKind = "unsupported_response_type"
)

// Error — типизированный исход неудачной идентификации.
// Raw хранит очищенный текст ответа модели (только для диагностики, наружу не отдаётся).
type Error struct {
	Kind    ErrorKind
	Message string
	Raw     string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage — текст, который можно показать пользователю.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case MalformedResponse:
		return "Invalid response format. Please try again later."
	case UnsupportedResponseType:
		return "Unexpected response type. Please try again later."
	default:
		return "Error identifying plant. Please try again."
	}
}

// InvocationFailed оборачивает ошибку транспорта/сервиса модели.
func InvocationFailed(err error) *Error {
	msg := "model invocation failed"
	if err != nil {
		msg = err.Error()
	}
	return &Error{Kind: ModelInvocationFailed, Message: msg, Err: err}
}

// AsError достаёт *Error из цепочки ошибок.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
