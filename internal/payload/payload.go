package payload

import (
	"strconv"
	"strings"
)

// Провайдер не гарантирует стабильные имена полей между операциями и
// версиями API, поэтому поиск идёт по списку ключей-кандидатов вширь
// по всему дереву ответа, а не по фиксированной схеме.

// FindString ищет первое непустое строковое значение по ключам-кандидатам.
// На каждом узле сначала проверяются все кандидаты, потом спуск глубже.
func FindString(v any, keys ...string) (string, bool) {
	queue := []any{v}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		m, ok := cur.(map[string]any)
		if !ok {
			if arr, ok := cur.([]any); ok {
				queue = append(queue, arr...)
			}
			continue
		}

		for _, k := range keys {
			if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
				return s, true
			}
		}

		for _, child := range m {
			switch child.(type) {
			case map[string]any, []any:
				queue = append(queue, child)
			}
		}
	}

	return "", false
}

// FindNumber ищет число по ключам-кандидатам. Непустые строки, похожие
// на число, тоже считаются числом. Для массива значения элементов
// суммируются (нужно для итогов по нескольким позициям расходов).
func FindNumber(v any, keys ...string) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case []any:
		sum := 0.0
		found := false
		for _, item := range t {
			if n, ok := FindNumber(item, keys...); ok {
				sum += n
				found = true
			}
		}
		return sum, found
	case map[string]any:
		for _, k := range keys {
			if n, ok := asNumber(t[k]); ok {
				return n, true
			}
		}
		for _, child := range t {
			switch child.(type) {
			case map[string]any, []any:
				if n, ok := FindNumber(child, keys...); ok {
					return n, true
				}
			}
		}
	}
	return 0, false
}

// FindArray достаёт массив записей: либо сам payload, либо одно из
// типовых контейнерных полей, либо первое попавшееся поле-массив.
func FindArray(v any) []any {
	if arr, ok := v.([]any); ok {
		return arr
	}

	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}

	containerKeys := []string{"items", "item", "tracks", "track", "data", "list", "rows", "detail", "details"}
	for _, k := range containerKeys {
		if arr, ok := m[k].([]any); ok {
			return arr
		}
	}

	for _, child := range m {
		if arr, ok := child.([]any); ok {
			return arr
		}
	}

	return nil
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
