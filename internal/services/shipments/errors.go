package shipments

import "fmt"

// Наружу из синхронизатора уходят ровно два вида провайдерских ошибок:
// провайдер отказал (транспорт сработал, ack отрицательный) или
// провайдер недоступен (транспорт/протокол/нет конфигурации).

type RejectedError struct {
	Operation string
	Message   string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("eccang rejected %s", e.Operation)
	}
	return fmt.Sprintf("eccang rejected %s: %s", e.Operation, e.Message)
}

type UnavailableError struct {
	Operation string
	Err       error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("eccang unavailable during %s: %v", e.Operation, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
