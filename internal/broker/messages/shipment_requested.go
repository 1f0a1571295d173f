package messages

// ShipmentRequested — входящая заявка на создание заказа у провайдера
// (поток order-creation, поступает из внешних систем через Kafka).
type ShipmentRequested struct {
	OwnerID        string         `json:"owner_id"`
	ReferenceNo    string         `json:"reference_no"`
	ShippingMethod *string        `json:"shipping_method,omitempty"`
	CountryCode    *string        `json:"country_code,omitempty"`
	WeightKg       *float64       `json:"weight_kg,omitempty"`
	Pieces         *int32         `json:"pieces,omitempty"`
	LabelType      *string        `json:"label_type,omitempty"`
	OrderPayload   map[string]any `json:"order_payload,omitempty"`
}
