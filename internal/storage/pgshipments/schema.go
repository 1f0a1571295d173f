package pgshipments

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS shipments (
  id UUID PRIMARY KEY,
  owner_id TEXT NOT NULL,
  reference_no TEXT NOT NULL,
  shipping_method TEXT NULL,
  country_code TEXT NULL,
  weight_kg DOUBLE PRECISION NULL,
  pieces INT NULL,
  label_type TEXT NULL,
  status TEXT NOT NULL,
  order_code TEXT NULL,
  tracking_number TEXT NULL,
  label_url TEXT NULL,
  invoice_url TEXT NULL,
  raw_request JSONB NOT NULL DEFAULT '{}',
  raw_response JSONB NOT NULL DEFAULT '{}',
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (reference_no)
)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_owner_id ON shipments(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_status ON shipments(status)`,
		`
CREATE TABLE IF NOT EXISTS shipment_events (
  id BIGSERIAL PRIMARY KEY,
  shipment_id UUID NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
  occurred_at TIMESTAMPTZ NOT NULL,
  status_code TEXT NULL,
  comment TEXT NULL,
  area TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_shipment_events_shipment_id_occurred_at ON shipment_events(shipment_id, occurred_at DESC)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
