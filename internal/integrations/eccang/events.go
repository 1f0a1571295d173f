package eccang

import (
	"strings"
	"time"

	"github.com/BearBump/ShipBridge/internal/models"
	"github.com/BearBump/ShipBridge/internal/payload"
)

// Варианты написания полей события в ответах провайдера. Набор собран
// по живым ответам разных версий API: camelCase, snake_case и
// атрибутные ключи встречаются вперемешку.
var (
	eventTimeKeys = []string{
		"occurredAt", "occurDate", "occur_date", "occur_time",
		"time", "trackTime", "track_time", "track_occur_date",
		"scantime", "scanTime", "scan_date",
		"eventTime", "dealDate", "operateDate", "created_at",
		"-time", "@time",
	}

	eventStatusKeys = []string{
		"status", "statusCode", "trackStatus", "track_status",
		"eventCode", "event_code", "code", "-status", "@status",
	}

	eventCommentKeys = []string{
		"comment", "remark", "description", "trackDesc", "track_desc",
		"eventDescription", "event_des", "context", "info", "detail",
		"trackContent", "track_content",
	}

	eventAreaKeys = []string{
		"area", "location", "city", "site", "country", "position", "address",
	}
)

var eventTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"02.01.2006 15:04:05",
}

// NormalizeEvents превращает сырой список событий трека в типизированные
// записи. Записи без распознаваемой даты отбрасываются; остальные поля
// опциональны. На плохом входе не падает — просто отдаёт пустой срез.
func NormalizeEvents(v any) []models.TrackingEvent {
	records := payload.FindArray(v)

	out := make([]models.TrackingEvent, 0, len(records))
	for _, raw := range records {
		rec, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		rawTime, ok := payload.FindString(rec, eventTimeKeys...)
		if !ok {
			continue
		}
		occurredAt, ok := parseEventTime(rawTime)
		if !ok {
			continue
		}

		ev := models.TrackingEvent{OccurredAt: occurredAt}

		if s, ok := payload.FindString(rec, eventStatusKeys...); ok {
			st := NormalizeStatus(s)
			ev.StatusCode = &st
		}
		if s, ok := payload.FindString(rec, eventCommentKeys...); ok {
			ev.Comment = &s
		}
		if s, ok := payload.FindString(rec, eventAreaKeys...); ok {
			ev.Area = &s
		}

		out = append(out, ev)
	}

	return out
}

func parseEventTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range eventTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
