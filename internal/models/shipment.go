package models

import (
	"encoding/json"
	"time"
)

// Жизненный цикл отправления (закрытый набор).
const (
	ShipmentStatusCreated          = "CREATED"
	ShipmentStatusSubmitted        = "SUBMITTED"
	ShipmentStatusAwaitingTrackNum = "AWAITING_TRACK_NUMBER"
	ShipmentStatusLabelReady       = "LABEL_READY"
	ShipmentStatusInTransit        = "IN_TRANSIT"
	ShipmentStatusDelivered        = "DELIVERED"
	ShipmentStatusException        = "EXCEPTION"
	ShipmentStatusCancelled        = "CANCELLED"
)

type Shipment struct {
	ID             string
	OwnerID        string
	ReferenceNo    string
	ShippingMethod *string
	CountryCode    *string
	WeightKg       *float64
	Pieces         *int32
	LabelType      *string
	Status         string
	OrderCode      *string
	TrackingNumber *string
	LabelURL       *string
	InvoiceURL     *string

	// Последний запрос/ответ по каждой операции провайдера
	// (createOrder, getCargoTrack, ...). Не полная история.
	RawRequest  map[string]json.RawMessage
	RawResponse map[string]json.RawMessage

	CreatedAt time.Time
	UpdatedAt time.Time
}

type TrackingEvent struct {
	ID         uint64
	ShipmentID string
	OccurredAt time.Time
	StatusCode *string
	Comment    *string
	Area       *string
	CreatedAt  time.Time
}

type ShipmentCreateInput struct {
	OwnerID        string
	ReferenceNo    string
	ShippingMethod *string
	CountryCode    *string
	WeightKg       *float64
	Pieces         *int32
	LabelType      *string
	OrderPayload   map[string]any
}
