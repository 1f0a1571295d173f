package shipments_api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/BearBump/ShipBridge/internal/models"
	"github.com/BearBump/ShipBridge/internal/services/shipments"
	"github.com/BearBump/ShipBridge/internal/storage/pgshipments"
	"github.com/go-chi/chi/v5"
)

type ShipmentsAPI struct {
	svc *shipments.Service
}

func New(svc *shipments.Service) *ShipmentsAPI {
	return &ShipmentsAPI{svc: svc}
}

func (a *ShipmentsAPI) Register(r chi.Router) {
	r.Post("/shipments", a.createShipment)
	r.Get("/shipments", a.listShipments)
	r.Get("/shipments/{id}", a.getShipment)
	r.Get("/shipments/by-reference/{referenceNo}", a.getShipmentByReference)
	r.Get("/shipments/{id}/events", a.listEvents)
	r.Post("/shipments/{id}/label", a.requestLabel)
	r.Post("/shipments/{id}/track", a.track)
	r.Post("/shipments/{id}/cancel", a.cancel)
	r.Get("/shipping-methods", a.shippingMethods)
	r.Get("/report", a.report)
}

type createShipmentRequest struct {
	OwnerID        string         `json:"ownerId"`
	ReferenceNo    string         `json:"referenceNo"`
	ShippingMethod *string        `json:"shippingMethod,omitempty"`
	CountryCode    *string        `json:"countryCode,omitempty"`
	WeightKg       *float64       `json:"weightKg,omitempty"`
	Pieces         *int32         `json:"pieces,omitempty"`
	LabelType      *string        `json:"labelType,omitempty"`
	Order          map[string]any `json:"order,omitempty"`
}

type shipmentResponse struct {
	ID             string   `json:"id"`
	OwnerID        string   `json:"ownerId,omitempty"`
	ReferenceNo    string   `json:"referenceNo"`
	ShippingMethod *string  `json:"shippingMethod,omitempty"`
	CountryCode    *string  `json:"countryCode,omitempty"`
	WeightKg       *float64 `json:"weightKg,omitempty"`
	Pieces         *int32   `json:"pieces,omitempty"`
	LabelType      *string  `json:"labelType,omitempty"`
	Status         string   `json:"status"`
	OrderCode      *string  `json:"orderCode,omitempty"`
	TrackingNumber *string  `json:"trackingNumber,omitempty"`
	LabelURL       *string  `json:"labelUrl,omitempty"`
	InvoiceURL     *string  `json:"invoiceUrl,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type trackingEventResponse struct {
	ID         uint64    `json:"id"`
	OccurredAt time.Time `json:"occurredAt"`
	StatusCode *string   `json:"statusCode,omitempty"`
	Comment    *string   `json:"comment,omitempty"`
	Area       *string   `json:"area,omitempty"`
}

func (a *ShipmentsAPI) createShipment(w http.ResponseWriter, r *http.Request) {
	var req createShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.ReferenceNo == "" {
		writeError(w, http.StatusBadRequest, "referenceNo is required")
		return
	}

	sh, err := a.svc.Create(r.Context(), models.ShipmentCreateInput{
		OwnerID:        req.OwnerID,
		ReferenceNo:    req.ReferenceNo,
		ShippingMethod: req.ShippingMethod,
		CountryCode:    req.CountryCode,
		WeightKg:       req.WeightKg,
		Pieces:         req.Pieces,
		LabelType:      req.LabelType,
		OrderPayload:   req.Order,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toShipmentResponse(sh))
}

func (a *ShipmentsAPI) getShipment(w http.ResponseWriter, r *http.Request) {
	sh, err := a.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentResponse(sh))
}

func (a *ShipmentsAPI) getShipmentByReference(w http.ResponseWriter, r *http.Request) {
	sh, err := a.svc.GetByReference(r.Context(), chi.URLParam(r, "referenceNo"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentResponse(sh))
}

func (a *ShipmentsAPI) listShipments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), 100)
	offset := queryInt(q.Get("offset"), 0)

	list, err := a.svc.List(r.Context(), q.Get("ownerId"), q.Get("status"), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]shipmentResponse, 0, len(list))
	for _, sh := range list {
		out = append(out, toShipmentResponse(sh))
	}
	writeJSON(w, http.StatusOK, map[string]any{"shipments": out})
}

func (a *ShipmentsAPI) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), 100)
	offset := queryInt(q.Get("offset"), 0)

	evs, err := a.svc.Events(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]trackingEventResponse, 0, len(evs))
	for _, e := range evs {
		out = append(out, trackingEventResponse{
			ID:         e.ID,
			OccurredAt: e.OccurredAt,
			StatusCode: e.StatusCode,
			Comment:    e.Comment,
			Area:       e.Area,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

type labelRequest struct {
	LabelType string `json:"labelType"`
}

func (a *ShipmentsAPI) requestLabel(w http.ResponseWriter, r *http.Request) {
	var req labelRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
	}

	sh, err := a.svc.RequestLabel(r.Context(), chi.URLParam(r, "id"), req.LabelType)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentResponse(sh))
}

type codeRequest struct {
	Code string `json:"code"`
	Type string `json:"type"`
}

func (a *ShipmentsAPI) track(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
	}

	sh, evs, err := a.svc.Track(r.Context(), chi.URLParam(r, "id"), req.Code, req.Type)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	events := make([]trackingEventResponse, 0, len(evs))
	for _, e := range evs {
		events = append(events, trackingEventResponse{
			ID:         e.ID,
			OccurredAt: e.OccurredAt,
			StatusCode: e.StatusCode,
			Comment:    e.Comment,
			Area:       e.Area,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"shipment": toShipmentResponse(sh),
		"events":   events,
	})
}

func (a *ShipmentsAPI) cancel(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
	}

	sh, err := a.svc.Cancel(r.Context(), chi.URLParam(r, "id"), req.Code, req.Type)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentResponse(sh))
}

func (a *ShipmentsAPI) shippingMethods(w http.ResponseWriter, r *http.Request) {
	out, err := a.svc.ShippingMethods(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"methods": out})
}

func (a *ShipmentsAPI) report(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sum, err := a.svc.Report(r.Context(), q.Get("ownerId"), q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func toShipmentResponse(sh *models.Shipment) shipmentResponse {
	return shipmentResponse{
		ID:             sh.ID,
		OwnerID:        sh.OwnerID,
		ReferenceNo:    sh.ReferenceNo,
		ShippingMethod: sh.ShippingMethod,
		CountryCode:    sh.CountryCode,
		WeightKg:       sh.WeightKg,
		Pieces:         sh.Pieces,
		LabelType:      sh.LabelType,
		Status:         sh.Status,
		OrderCode:      sh.OrderCode,
		TrackingNumber: sh.TrackingNumber,
		LabelURL:       sh.LabelURL,
		InvoiceURL:     sh.InvoiceURL,
		CreatedAt:      sh.CreatedAt,
		UpdatedAt:      sh.UpdatedAt,
	}
}

// Провайдерские и стораджевые ошибки мапятся на HTTP-коды здесь,
// сервис про HTTP не знает.
func writeServiceError(w http.ResponseWriter, err error) {
	var rejected *shipments.RejectedError
	var unavailable *shipments.UnavailableError
	switch {
	case errors.Is(err, pgshipments.ErrNotFound):
		writeError(w, http.StatusNotFound, "shipment not found")
	case errors.Is(err, pgshipments.ErrDuplicateReference):
		writeError(w, http.StatusConflict, "referenceNo already exists")
	case errors.As(err, &rejected):
		writeError(w, http.StatusUnprocessableEntity, rejected.Error())
	case errors.As(err, &unavailable):
		writeError(w, http.StatusBadGateway, unavailable.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
