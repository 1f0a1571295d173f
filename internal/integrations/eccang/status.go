package eccang

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BearBump/ShipBridge/internal/models"
)

// Таблица соответствий: числовые коды и словарные варианты провайдера
// (включая сокращения и старые написания) к внутреннему жизненному циклу.
var statusByToken = map[string]string{
	"0":       models.ShipmentStatusCreated,
	"created": models.ShipmentStatusCreated,
	"pending": models.ShipmentStatusCreated,
	"draft":   models.ShipmentStatusCreated,

	"1":         models.ShipmentStatusSubmitted,
	"submitted": models.ShipmentStatusSubmitted,
	"confirmed": models.ShipmentStatusSubmitted,

	"2":                     models.ShipmentStatusAwaitingTrackNum,
	"waiting":               models.ShipmentStatusAwaitingTrackNum,
	"wait_track":            models.ShipmentStatusAwaitingTrackNum,
	"awaiting_track_number": models.ShipmentStatusAwaitingTrackNum,
	"pre_transit":           models.ShipmentStatusAwaitingTrackNum,

	"3":           models.ShipmentStatusLabelReady,
	"label":       models.ShipmentStatusLabelReady,
	"label_ready": models.ShipmentStatusLabelReady,
	"printed":     models.ShipmentStatusLabelReady,

	"4":          models.ShipmentStatusInTransit,
	"transit":    models.ShipmentStatusInTransit,
	"in_transit": models.ShipmentStatusInTransit,
	"in transit": models.ShipmentStatusInTransit,
	"shipping":   models.ShipmentStatusInTransit,
	"shipped":    models.ShipmentStatusInTransit,
	"dispatched": models.ShipmentStatusInTransit,

	"5":         models.ShipmentStatusDelivered,
	"delivered": models.ShipmentStatusDelivered,
	"signed":    models.ShipmentStatusDelivered,
	"received":  models.ShipmentStatusDelivered,

	"6":         models.ShipmentStatusException,
	"exception": models.ShipmentStatusException,
	"abnormal":  models.ShipmentStatusException,
	"problem":   models.ShipmentStatusException,
	"failed":    models.ShipmentStatusException,
	"error":     models.ShipmentStatusException,

	"7":         models.ShipmentStatusCancelled,
	"cancelled": models.ShipmentStatusCancelled,
	"canceled":  models.ShipmentStatusCancelled,
	"cancel":    models.ShipmentStatusCancelled,
	"void":      models.ShipmentStatusCancelled,
}

// NormalizeStatus сводит произвольный токен статуса к внутреннему
// жизненному циклу. Функция тотальная: никогда не падает, на пустой
// или нераспознаваемый вход отдаёт CREATED, на неизвестную непустую
// строку — её же в верхнем регистре (запасной выход для словарей,
// которые провайдер ещё не ввёл).
func NormalizeStatus(token any) string {
	var raw string

	switch t := token.(type) {
	case nil:
		return models.ShipmentStatusCreated
	case string:
		raw = t
	case float64:
		raw = strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		raw = strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		raw = strconv.Itoa(t)
	case int32:
		raw = strconv.FormatInt(int64(t), 10)
	case int64:
		raw = strconv.FormatInt(t, 10)
	default:
		raw = fmt.Sprint(t)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.ShipmentStatusCreated
	}

	if mapped, ok := statusByToken[strings.ToLower(raw)]; ok {
		return mapped
	}

	return strings.ToUpper(raw)
}
