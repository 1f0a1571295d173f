package pgshipments

import (
	"context"

	"github.com/BearBump/ShipBridge/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// TrackingRefresh — атомарное применение результата getCargoTrack:
// полная замена событий плюс обновление самой записи в одной транзакции.
type TrackingRefresh struct {
	Shipment *models.Shipment
	Events   []models.TrackingEvent
}

func (s *Storage) ListShipmentEvents(ctx context.Context, shipmentID string, limit, offset int) ([]*models.TrackingEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, shipment_id, occurred_at, status_code, comment, area, created_at
FROM shipment_events
WHERE shipment_id = $1
ORDER BY occurred_at DESC
LIMIT $2 OFFSET $3
`, shipmentID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	var out []*models.TrackingEvent
	for rows.Next() {
		var e models.TrackingEvent
		if err := rows.Scan(
			&e.ID, &e.ShipmentID, &e.OccurredAt,
			&e.StatusCode, &e.Comment, &e.Area, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) ApplyTrackingRefresh(ctx context.Context, ref TrackingRefresh) error {
	sh := ref.Shipment
	rawReq, rawRes, err := marshalAudit(sh)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Полная замена, не дозапись: провайдер каждый раз отдаёт весь трек.
	if len(ref.Events) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM shipment_events WHERE shipment_id = $1`, sh.ID); err != nil {
			return errors.Wrap(err, "delete events")
		}

		for _, e := range ref.Events {
			_, err := tx.Exec(ctx, `
INSERT INTO shipment_events (shipment_id, occurred_at, status_code, comment, area, created_at)
VALUES ($1,$2,$3,$4,$5, now())
`, sh.ID, e.OccurredAt.UTC(), e.StatusCode, e.Comment, e.Area)
			if err != nil {
				return errors.Wrap(err, "insert event")
			}
		}
	}

	tag, err := tx.Exec(ctx, `
UPDATE shipments
SET
  status = $2,
  raw_request = $3,
  raw_response = $4,
  updated_at = now()
WHERE id = $1
`, sh.ID, sh.Status, rawReq, rawRes)
	if err != nil {
		return errors.Wrap(err, "update shipment")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}
