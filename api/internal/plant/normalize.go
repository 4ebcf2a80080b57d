package plant

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

var (
	leadingFence  = regexp.MustCompile("^\\s*```(?i:json)?\\s*")
	trailingFence = regexp.MustCompile("\\s*```\\s*$")
)

// StripFences снимает markdown-обёртку ```json ... ``` вокруг ответа модели.
func StripFences(s string) string {
	s = leadingFence.ReplaceAllString(s, "")
	s = trailingFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Normalize превращает сырой ответ модели в Record либо в *Error.
// Ровно одно из двух: при ошибке Record нулевой.
//
// string/json.RawMessage — текст (возможно в code fence), парсится как JSON-объект.
// map[string]any, Record, *Record — уже структурированный ответ, принимается без парсинга.
// Прочие map со строковыми ключами (map[string]string, map[string]json.RawMessage, ...)
// проходят через json.Marshal.
// Всё прочее — UnsupportedResponseType.
func Normalize(raw any) (Record, error) {
	switch v := raw.(type) {
	case string:
		return normalizeText(v)
	case json.RawMessage:
		return normalizeText(string(v))
	case Record:
		return v.withDefaults(), nil
	case *Record:
		if v == nil {
			return Record{}, unsupported(raw)
		}
		return v.withDefaults(), nil
	case map[string]any:
		return normalizeObject(v)
	default:
		return normalizeStringMap(raw)
	}
}

func normalizeStringMap(raw any) (Record, error) {
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String || rv.IsNil() {
		return Record{}, unsupported(raw)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return Record{}, &Error{Kind: MalformedResponse, Message: "object is not JSON-encodable: " + err.Error(), Err: err}
	}
	var obj map[string]any
	if err := json.Unmarshal(b, &obj); err != nil {
		return Record{}, &Error{Kind: MalformedResponse, Message: "object is not JSON-encodable: " + err.Error(), Raw: string(b), Err: err}
	}
	return normalizeObject(obj)
}

func normalizeText(s string) (Record, error) {
	cleaned := StripFences(s)

	var v any
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return Record{}, &Error{
			Kind:    MalformedResponse,
			Message: "failed to parse JSON: " + err.Error(),
			Raw:     cleaned,
			Err:     err,
		}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return Record{}, &Error{
			Kind:    MalformedResponse,
			Message: fmt.Sprintf("expected JSON object, got %s", jsonKind(v)),
			Raw:     cleaned,
		}
	}
	if msg, ok := errorPayload(obj); ok {
		return Record{}, &Error{Kind: ModelInvocationFailed, Message: msg, Raw: cleaned}
	}
	return decodeRecord([]byte(cleaned))
}

func normalizeObject(obj map[string]any) (Record, error) {
	if msg, ok := errorPayload(obj); ok {
		return Record{}, &Error{Kind: ModelInvocationFailed, Message: msg}
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return Record{}, &Error{Kind: MalformedResponse, Message: "object is not JSON-encodable: " + err.Error(), Err: err}
	}
	return decodeRecord(b)
}

func decodeRecord(b []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return Record{}, &Error{
			Kind:    MalformedResponse,
			Message: "failed to decode record: " + err.Error(),
			Raw:     string(b),
			Err:     err,
		}
	}
	return r.withDefaults(), nil
}

// errorPayload распознаёт ответ вида {"error": "..."}: так сообщает об ошибке
// сама обёртка вызова модели, а не растение без полей.
func errorPayload(obj map[string]any) (string, bool) {
	if len(obj) != 1 {
		return "", false
	}
	msg, ok := obj["error"].(string)
	if !ok || strings.TrimSpace(msg) == "" {
		return "", false
	}
	return msg, true
}

func unsupported(raw any) *Error {
	return &Error{
		Kind:    UnsupportedResponseType,
		Message: fmt.Sprintf("unsupported response type %T", raw),
	}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
