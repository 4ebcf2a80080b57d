package plant

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// Text — свободный текст. Модель не всегда соблюдает схему, поэтому
// принимаем и массивы (склеиваем через ", "), и числа/bool (как литерал),
// и объекты ("ключ: значение; ...").
type Text string

// List — последовательность строк; одиночный скаляр превращается в список из одного элемента.
type List []string

func (t *Text) UnmarshalJSON(b []byte) error {
	s, err := textOf(b)
	if err != nil {
		return err
	}
	*t = Text(s)
	return nil
}

func (l *List) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if isNull(b) {
		*l = List{}
		return nil
	}
	if b[0] != '[' {
		s, err := textOf(b)
		if err != nil {
			return err
		}
		if s == "" {
			*l = List{}
		} else {
			*l = List{s}
		}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	out := make(List, 0, len(items))
	for _, it := range items {
		s, err := textOf(it)
		if err != nil {
			return err
		}
		if s != "" {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}

func textOf(b []byte) (string, error) {
	b = bytes.TrimSpace(b)
	if isNull(b) {
		return "", nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", err
		}
		return s, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(b, &items); err != nil {
			return "", err
		}
		parts := make([]string, 0, len(items))
		for _, it := range items {
			s, err := textOf(it)
			if err != nil {
				return "", err
			}
			if s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", "), nil
	case '{':
		var m map[string]json.RawMessage
		if err := json.Unmarshal(b, &m); err != nil {
			return "", err
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			s, err := textOf(m[k])
			if err != nil {
				return "", err
			}
			if s != "" {
				parts = append(parts, k+": "+s)
			}
		}
		return strings.Join(parts, "; "), nil
	default:
		// число, true/false
		return string(b), nil
	}
}

// decodeObject декодирует только JSON-объект; всё остальное оставляет v нулевым.
func decodeObject(b []byte, v any) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	return json.Unmarshal(b, v)
}

func isNull(b []byte) bool {
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}
