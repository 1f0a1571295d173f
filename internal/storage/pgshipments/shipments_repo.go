package pgshipments

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/ShipBridge/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const shipmentColumns = `
  id, owner_id, reference_no,
  shipping_method, country_code, weight_kg, pieces, label_type,
  status, order_code, tracking_number, label_url, invoice_url,
  raw_request, raw_response,
  created_at, updated_at`

func (s *Storage) CreateShipment(ctx context.Context, sh *models.Shipment) error {
	now := time.Now().UTC()
	sh.CreatedAt = now
	sh.UpdatedAt = now

	rawReq, rawRes, err := marshalAudit(sh)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
INSERT INTO shipments (
  id, owner_id, reference_no,
  shipping_method, country_code, weight_kg, pieces, label_type,
  status, order_code, tracking_number, label_url, invoice_url,
  raw_request, raw_response,
  created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$16)
`, sh.ID, sh.OwnerID, sh.ReferenceNo,
		sh.ShippingMethod, sh.CountryCode, sh.WeightKg, sh.Pieces, sh.LabelType,
		sh.Status, sh.OrderCode, sh.TrackingNumber, sh.LabelURL, sh.InvoiceURL,
		rawReq, rawRes, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateReference
		}
		return errors.Wrap(err, "insert shipment")
	}
	return nil
}

func (s *Storage) GetShipment(ctx context.Context, id string) (*models.Shipment, error) {
	row := s.db.QueryRow(ctx, `SELECT`+shipmentColumns+` FROM shipments WHERE id = $1`, id)
	return scanShipment(row)
}

func (s *Storage) GetShipmentByReference(ctx context.Context, referenceNo string) (*models.Shipment, error) {
	row := s.db.QueryRow(ctx, `SELECT`+shipmentColumns+` FROM shipments WHERE reference_no = $1`, referenceNo)
	return scanShipment(row)
}

func (s *Storage) ListShipments(ctx context.Context, ownerID, status string, limit, offset int) ([]*models.Shipment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT`+shipmentColumns+`
FROM shipments
WHERE ($1 = '' OR owner_id = $1)
  AND ($2 = '' OR status = $2)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4
`, ownerID, status, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select shipments")
	}
	defer rows.Close()

	var out []*models.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// UpdateShipment перезаписывает изменяемые поля записи. Последняя
// завершившаяся запись побеждает, optimistic locking не применяется.
func (s *Storage) UpdateShipment(ctx context.Context, sh *models.Shipment) error {
	rawReq, rawRes, err := marshalAudit(sh)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, `
UPDATE shipments
SET
  shipping_method = $2,
  country_code = $3,
  weight_kg = $4,
  pieces = $5,
  label_type = $6,
  status = $7,
  order_code = $8,
  tracking_number = $9,
  label_url = $10,
  invoice_url = $11,
  raw_request = $12,
  raw_response = $13,
  updated_at = now()
WHERE id = $1
`, sh.ID,
		sh.ShippingMethod, sh.CountryCode, sh.WeightKg, sh.Pieces, sh.LabelType,
		sh.Status, sh.OrderCode, sh.TrackingNumber, sh.LabelURL, sh.InvoiceURL,
		rawReq, rawRes)
	if err != nil {
		return errors.Wrap(err, "update shipment")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShipment(row rowScanner) (*models.Shipment, error) {
	var sh models.Shipment
	var rawReq, rawRes []byte

	err := row.Scan(
		&sh.ID, &sh.OwnerID, &sh.ReferenceNo,
		&sh.ShippingMethod, &sh.CountryCode, &sh.WeightKg, &sh.Pieces, &sh.LabelType,
		&sh.Status, &sh.OrderCode, &sh.TrackingNumber, &sh.LabelURL, &sh.InvoiceURL,
		&rawReq, &rawRes,
		&sh.CreatedAt, &sh.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan shipment")
	}

	if len(rawReq) > 0 {
		if err := json.Unmarshal(rawReq, &sh.RawRequest); err != nil {
			return nil, errors.Wrap(err, "unmarshal raw_request")
		}
	}
	if len(rawRes) > 0 {
		if err := json.Unmarshal(rawRes, &sh.RawResponse); err != nil {
			return nil, errors.Wrap(err, "unmarshal raw_response")
		}
	}

	return &sh, nil
}

func marshalAudit(sh *models.Shipment) ([]byte, []byte, error) {
	if sh.RawRequest == nil {
		sh.RawRequest = map[string]json.RawMessage{}
	}
	if sh.RawResponse == nil {
		sh.RawResponse = map[string]json.RawMessage{}
	}

	rawReq, err := json.Marshal(sh.RawRequest)
	if err != nil {
		return nil, nil, errors.Wrap(err, "marshal raw_request")
	}
	rawRes, err := json.Marshal(sh.RawResponse)
	if err != nil {
		return nil, nil, errors.Wrap(err, "marshal raw_response")
	}
	return rawReq, rawRes, nil
}
