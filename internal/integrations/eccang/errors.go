package eccang

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotConfigured возвращается, когда не заданы URL/токен/ключ провайдера.
// Все исходящие вызовы в этом случае отключены.
var ErrNotConfigured = errors.New("eccang credentials are not configured")

// ProtocolError: ответ провайдера не удалось распознать (битый XML,
// нет тела SOAP или узла ответа). Текст для пользователя здесь не
// формируется, это забота вызывающего слоя.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("eccang protocol: %s: %v", e.Reason, e.Err)
	}
	return "eccang protocol: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
