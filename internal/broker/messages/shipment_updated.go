package messages

import "time"

// ShipmentUpdated публикуется после каждого успешного слияния ответа
// провайдера в запись отправления (create/label/track/cancel/poll).
type ShipmentUpdated struct {
	ShipmentID  string    `json:"shipment_id"`
	ReferenceNo string    `json:"reference_no"`
	Operation   string    `json:"operation"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`

	OrderCode      *string `json:"order_code,omitempty"`
	TrackingNumber *string `json:"tracking_number,omitempty"`
	LabelURL       *string `json:"label_url,omitempty"`
}
