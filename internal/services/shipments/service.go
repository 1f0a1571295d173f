package shipments

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/ShipBridge/internal/broker/messages"
	"github.com/BearBump/ShipBridge/internal/integrations/eccang"
	"github.com/BearBump/ShipBridge/internal/models"
	"github.com/BearBump/ShipBridge/internal/payload"
	"github.com/BearBump/ShipBridge/internal/storage/pgshipments"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Repository interface {
	CreateShipment(ctx context.Context, sh *models.Shipment) error
	GetShipment(ctx context.Context, id string) (*models.Shipment, error)
	GetShipmentByReference(ctx context.Context, referenceNo string) (*models.Shipment, error)
	ListShipments(ctx context.Context, ownerID, status string, limit, offset int) ([]*models.Shipment, error)
	UpdateShipment(ctx context.Context, sh *models.Shipment) error
	ListShipmentEvents(ctx context.Context, shipmentID string, limit, offset int) ([]*models.TrackingEvent, error)
	ApplyTrackingRefresh(ctx context.Context, ref pgshipments.TrackingRefresh) error
}

type Provider interface {
	CreateOrder(ctx context.Context, params any) (any, error)
	GetTrackNumber(ctx context.Context, params any) (any, error)
	GetLabelURL(ctx context.Context, params any) (any, error)
	GetCargoTrack(ctx context.Context, params any) (any, error)
	CancelOrder(ctx context.Context, params any) (any, error)
	GetShippingMethod(ctx context.Context, params any) (any, error)
	GetReceivingExpense(ctx context.Context, params any) (any, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// PollArmer взводит фоновый опрос трек-номера для отправления.
type PollArmer interface {
	Arm(shipmentID string)
}

// Ключи-кандидаты полей в ответах провайдера (имена гуляют между
// операциями и версиями API).
var (
	orderCodeKeys = []string{"orderCode", "order_code", "ordercode", "ordercode2", "order_code2", "code"}
	trackNumKeys  = []string{"trackingNumber", "tracking_number", "trackingNo", "tracking_no", "track_no", "track_number", "mailNo"}
	labelURLKeys  = []string{"labelUrl", "label_url"}
	invoiceKeys   = []string{"invoiceUrl", "invoice_url"}
	statusKeys    = []string{"status", "orderStatus", "order_status", "track_status"}
	messageKeys   = []string{"message", "msg", "error", "err_info", "description", "reason"}
	feeKeys       = []string{"totalFee", "total_fee", "total", "fee", "amount"}
)

type Service struct {
	repo     Repository
	provider Provider

	cache      BytesCache
	currentTTL time.Duration

	producer Producer
	topic    string

	armer PollArmer
}

func New(repo Repository, provider Provider) *Service {
	return &Service{repo: repo, provider: provider}
}

func (s *Service) WithCache(c BytesCache, ttl time.Duration) *Service {
	s.cache = c
	s.currentTTL = ttl
	return s
}

func (s *Service) WithProducer(p Producer, topic string) *Service {
	s.producer = p
	s.topic = topic
	return s
}

func (s *Service) WithPoller(armer PollArmer) *Service {
	s.armer = armer
	return s
}

// Create создаёт заказ у провайдера и заводит локальную запись.
// Если статус обещает трек-номер, но его ещё нет — взводит фоновый опрос.
func (s *Service) Create(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error) {
	if in.ReferenceNo == "" {
		return nil, errors.New("referenceNo is required")
	}

	params := make(map[string]any, len(in.OrderPayload)+1)
	for k, v := range in.OrderPayload {
		params[k] = v
	}
	params["reference_no"] = in.ReferenceNo

	resp, err := s.callProvider(ctx, "createOrder", s.provider.CreateOrder, params)
	if err != nil {
		return nil, err
	}

	sh := &models.Shipment{
		ID:             uuid.NewString(),
		OwnerID:        in.OwnerID,
		ReferenceNo:    in.ReferenceNo,
		ShippingMethod: in.ShippingMethod,
		CountryCode:    in.CountryCode,
		WeightKg:       in.WeightKg,
		Pieces:         in.Pieces,
		LabelType:      in.LabelType,
		Status:         resolveStatus(resp),
		OrderCode:      findOptional(resp, orderCodeKeys),
		TrackingNumber: findOptional(resp, trackNumKeys),
		LabelURL:       findOptional(resp, labelURLKeys),
		InvoiceURL:     findOptional(resp, invoiceKeys),
		RawRequest:     mergeAudit(nil, "createOrder", params),
		RawResponse:    mergeAudit(nil, "createOrder", resp),
	}

	if err := s.repo.CreateShipment(ctx, sh); err != nil {
		return nil, err
	}

	s.cacheCurrent(ctx, sh)
	s.publishUpdated(ctx, sh, "createOrder")

	if s.armer != nil && sh.TrackingNumber == nil &&
		(sh.Status == models.ShipmentStatusAwaitingTrackNum || sh.Status == models.ShipmentStatusLabelReady) {
		s.armer.Arm(sh.ID)
	}

	return sh, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Shipment, error) {
	if s.cache != nil && s.currentTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, currentKey(id)); err == nil && ok {
			var sh models.Shipment
			if json.Unmarshal(b, &sh) == nil {
				return &sh, nil
			}
		}
	}

	sh, err := s.repo.GetShipment(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheCurrent(ctx, sh)
	return sh, nil
}

// GetByReference нужен вызывающим, которые знают только свой референс
// (внешние системы не видят наших uuid).
func (s *Service) GetByReference(ctx context.Context, referenceNo string) (*models.Shipment, error) {
	return s.repo.GetShipmentByReference(ctx, referenceNo)
}

func (s *Service) List(ctx context.Context, ownerID, status string, limit, offset int) ([]*models.Shipment, error) {
	return s.repo.ListShipments(ctx, ownerID, status, limit, offset)
}

func (s *Service) Events(ctx context.Context, shipmentID string, limit, offset int) ([]*models.TrackingEvent, error) {
	return s.repo.ListShipmentEvents(ctx, shipmentID, limit, offset)
}

// RequestLabel запрашивает URL этикетки (и инвойса, если провайдер отдал).
func (s *Service) RequestLabel(ctx context.Context, id, labelType string) (*models.Shipment, error) {
	sh, err := s.repo.GetShipment(ctx, id)
	if err != nil {
		return nil, err
	}

	lt := labelType
	if lt == "" && sh.LabelType != nil {
		lt = *sh.LabelType
	}
	if lt == "" {
		lt = "PDF"
	}

	params := map[string]any{
		"reference_no": sh.ReferenceNo,
		"label":        lt,
	}

	resp, err := s.callProvider(ctx, "getLabelUrl", s.provider.GetLabelURL, params)
	if err != nil {
		return nil, err
	}

	sh.LabelType = &lt
	if v := findOptional(resp, labelURLKeys); v != nil {
		sh.LabelURL = v
	}
	if v := findOptional(resp, invoiceKeys); v != nil {
		sh.InvoiceURL = v
	}
	if sh.Status == models.ShipmentStatusAwaitingTrackNum && sh.LabelURL != nil {
		sh.Status = models.ShipmentStatusLabelReady
	}
	sh.RawRequest = mergeAudit(sh.RawRequest, "getLabelUrl", params)
	sh.RawResponse = mergeAudit(sh.RawResponse, "getLabelUrl", resp)

	if err := s.repo.UpdateShipment(ctx, sh); err != nil {
		return nil, err
	}

	s.cacheCurrent(ctx, sh)
	s.publishUpdated(ctx, sh, "getLabelUrl")
	return sh, nil
}

// Track запрашивает полный трек и атомарно заменяет события вместе с
// обновлением статуса и аудита: либо применяется всё, либо ничего.
func (s *Service) Track(ctx context.Context, id, code, trackType string) (*models.Shipment, []*models.TrackingEvent, error) {
	sh, err := s.repo.GetShipment(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	// Для трека сначала пробуем трек-номер, потом референс.
	resolved := code
	if resolved == "" && sh.TrackingNumber != nil {
		resolved = *sh.TrackingNumber
	}
	if resolved == "" {
		resolved = sh.ReferenceNo
	}
	if resolved == "" {
		return nil, nil, errors.New("shipment has no code to track")
	}

	if trackType == "" {
		trackType = "tracking"
	}

	params := map[string]any{"code": resolved, "type": trackType}

	resp, err := s.callProvider(ctx, "getCargoTrack", s.provider.GetCargoTrack, params)
	if err != nil {
		return nil, nil, err
	}

	// Нагрузка с событиями лежит в data, если провайдер её туда положил.
	eventsPayload := resp
	if m, ok := resp.(map[string]any); ok {
		if d, ok := m["data"]; ok && d != nil {
			eventsPayload = d
		}
	}
	events := eccang.NormalizeEvents(eventsPayload)

	if st, ok := payload.FindString(resp, statusKeys...); ok {
		sh.Status = eccang.NormalizeStatus(st)
	}
	sh.RawRequest = mergeAudit(sh.RawRequest, "getCargoTrack", params)
	sh.RawResponse = mergeAudit(sh.RawResponse, "getCargoTrack", resp)

	if err := s.repo.ApplyTrackingRefresh(ctx, pgshipments.TrackingRefresh{
		Shipment: sh,
		Events:   events,
	}); err != nil {
		return nil, nil, err
	}

	s.cacheCurrent(ctx, sh)
	s.publishUpdated(ctx, sh, "getCargoTrack")

	stored, err := s.repo.ListShipmentEvents(ctx, sh.ID, 100, 0)
	if err != nil {
		return nil, nil, err
	}
	return sh, stored, nil
}

// Cancel отменяет заказ у провайдера. Идентификатор подбирается по
// приоритету: явный код, код заказа, трек-номер, референс.
func (s *Service) Cancel(ctx context.Context, id, code, cancelType string) (*models.Shipment, error) {
	sh, err := s.repo.GetShipment(ctx, id)
	if err != nil {
		return nil, err
	}

	resolved := code
	resolvedType := cancelType
	if resolved == "" {
		switch {
		case sh.OrderCode != nil && *sh.OrderCode != "":
			resolved = *sh.OrderCode
			if resolvedType == "" {
				resolvedType = "order"
			}
		case sh.TrackingNumber != nil && *sh.TrackingNumber != "":
			resolved = *sh.TrackingNumber
			if resolvedType == "" {
				resolvedType = "tracking_number"
			}
		default:
			resolved = sh.ReferenceNo
			if resolvedType == "" {
				resolvedType = "reference_no"
			}
		}
	}
	if resolved == "" {
		return nil, errors.New("shipment has no code to cancel")
	}
	if resolvedType == "" {
		resolvedType = "order"
	}

	params := map[string]any{"code": resolved, "type": resolvedType}

	resp, err := s.callProvider(ctx, "cancelOrder", s.provider.CancelOrder, params)
	if err != nil {
		return nil, err
	}

	sh.Status = models.ShipmentStatusCancelled
	sh.RawRequest = mergeAudit(sh.RawRequest, "cancelOrder", params)
	sh.RawResponse = mergeAudit(sh.RawResponse, "cancelOrder", resp)

	if err := s.repo.UpdateShipment(ctx, sh); err != nil {
		return nil, err
	}

	s.cacheCurrent(ctx, sh)
	s.publishUpdated(ctx, sh, "cancelOrder")
	return sh, nil
}

// ResolveTrackNumber — один тик фонового опроса: спросить провайдера по
// референсу, при появлении трек-номера или кода заказа сохранить их.
// Возвращает true, когда опрос можно останавливать.
func (s *Service) ResolveTrackNumber(ctx context.Context, shipmentID string) (bool, error) {
	sh, err := s.repo.GetShipment(ctx, shipmentID)
	if err != nil {
		if err == pgshipments.ErrNotFound {
			// Запись пропала — опрашивать больше нечего.
			return true, nil
		}
		return false, err
	}

	if sh.TrackingNumber != nil && *sh.TrackingNumber != "" {
		return true, nil
	}

	params := map[string]any{"reference_no": sh.ReferenceNo}

	resp, err := s.callProvider(ctx, "getTrackNumber", s.provider.GetTrackNumber, params)
	if err != nil {
		if _, rejected := err.(*RejectedError); rejected {
			// Провайдер ещё не знает номер: не ошибка, просто пока нет.
			return false, nil
		}
		return false, err
	}

	trackNum := findOptional(resp, trackNumKeys)
	orderCode := findOptional(resp, orderCodeKeys)
	if trackNum == nil && orderCode == nil {
		return false, nil
	}

	if trackNum != nil {
		sh.TrackingNumber = trackNum
	}
	if orderCode != nil {
		sh.OrderCode = orderCode
	}
	if st, ok := payload.FindString(resp, statusKeys...); ok {
		sh.Status = eccang.NormalizeStatus(st)
	}
	sh.RawRequest = mergeAudit(sh.RawRequest, "getTrackNumber", params)
	sh.RawResponse = mergeAudit(sh.RawResponse, "getTrackNumber", resp)

	if err := s.repo.UpdateShipment(ctx, sh); err != nil {
		return false, err
	}

	s.cacheCurrent(ctx, sh)
	s.publishUpdated(ctx, sh, "getTrackNumber")
	return true, nil
}

type ReportSummary struct {
	TotalShipments int            `json:"totalShipments"`
	TotalWeightKg  float64        `json:"totalWeightKg"`
	TotalPieces    int64          `json:"totalPieces"`
	ByStatus       map[string]int `json:"byStatus"`
	TotalFees      float64        `json:"totalFees"`
}

// Report агрегирует локальные записи и добирает сумму расходов у
// провайдера. Недоступность провайдера не валит отчёт: fees останутся
// нулевыми.
func (s *Service) Report(ctx context.Context, ownerID, startDate, endDate string) (*ReportSummary, error) {
	list, err := s.repo.ListShipments(ctx, ownerID, "", 500, 0)
	if err != nil {
		return nil, err
	}

	sum := &ReportSummary{ByStatus: map[string]int{}}
	refs := make([]string, 0, len(list))
	for _, sh := range list {
		sum.TotalShipments++
		sum.ByStatus[sh.Status]++
		if sh.WeightKg != nil {
			sum.TotalWeightKg += *sh.WeightKg
		}
		if sh.Pieces != nil {
			sum.TotalPieces += int64(*sh.Pieces)
		}
		refs = append(refs, sh.ReferenceNo)
	}

	if len(refs) > 0 {
		resp, err := s.provider.GetReceivingExpense(ctx, map[string]any{
			"start_date":   startDate,
			"end_date":     endDate,
			"reference_no": refs,
		})
		if err != nil {
			slog.Warn("eccang receiving expense failed", "error", err.Error())
		} else if fees, ok := payload.FindNumber(resp, feeKeys...); ok {
			sum.TotalFees = fees
		}
	}

	return sum, nil
}

// ShippingMethods — справочник методов доставки провайдера (passthrough).
func (s *Service) ShippingMethods(ctx context.Context) (any, error) {
	resp, err := s.callProvider(ctx, "getShippingMethod", s.provider.GetShippingMethod, map[string]any{})
	if err != nil {
		return nil, err
	}
	if m, ok := resp.(map[string]any); ok {
		if d, ok := m["data"]; ok && d != nil {
			return d, nil
		}
	}
	return resp, nil
}

// callProvider — общий каркас вызова: транспортные и протокольные сбои
// превращаются в UnavailableError, отрицательный ack — в RejectedError.
func (s *Service) callProvider(ctx context.Context, op string, fn func(context.Context, any) (any, error), params any) (any, error) {
	resp, err := fn(ctx, params)
	if err != nil {
		slog.Error("eccang call failed", "operation", op, "error", err.Error())
		return nil, &UnavailableError{Operation: op, Err: err}
	}

	if ok, found := ackState(resp); found && !ok {
		msg, _ := payload.FindString(resp, messageKeys...)
		return nil, &RejectedError{Operation: op, Message: msg}
	}

	return resp, nil
}

// ackState проверяет флаг подтверждения. Провайдер шлёт его как bool,
// число (1/200 — успех) или строку. Отсутствие флага не считается отказом.
func ackState(resp any) (ok, found bool) {
	m, isMap := resp.(map[string]any)
	if !isMap {
		return false, false
	}

	for _, k := range []string{"ack", "ackCode", "success", "code"} {
		v, present := m[k]
		if !present || v == nil {
			continue
		}
		switch t := v.(type) {
		case bool:
			return t, true
		case float64:
			return t == 1 || t == 200, true
		case string:
			low := strings.ToLower(strings.TrimSpace(t))
			switch low {
			case "true", "success", "successful", "ok", "1", "200":
				return true, true
			}
			return false, true
		}
	}

	return false, false
}

func resolveStatus(resp any) string {
	if st, ok := payload.FindString(resp, statusKeys...); ok {
		return eccang.NormalizeStatus(st)
	}
	if ok, found := ackState(resp); found && ok {
		return models.ShipmentStatusSubmitted
	}
	return models.ShipmentStatusCreated
}

func findOptional(resp any, keys []string) *string {
	if s, ok := payload.FindString(resp, keys...); ok {
		return &s
	}
	return nil
}

// mergeAudit хранит последний запрос/ответ по каждой операции — не
// полный журнал. Повторный вызов той же операции затирает прежнюю запись.
func mergeAudit(m map[string]json.RawMessage, op string, v any) map[string]json.RawMessage {
	if m == nil {
		m = map[string]json.RawMessage{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte("null")
	}
	m[op] = b
	return m
}

func (s *Service) cacheCurrent(ctx context.Context, sh *models.Shipment) {
	if s.cache == nil || s.currentTTL <= 0 {
		return
	}
	b, err := json.Marshal(sh)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, currentKey(sh.ID), b, s.currentTTL)
}

func (s *Service) publishUpdated(ctx context.Context, sh *models.Shipment, op string) {
	if s.producer == nil || s.topic == "" {
		return
	}
	b, err := json.Marshal(messages.ShipmentUpdated{
		ShipmentID:     sh.ID,
		ReferenceNo:    sh.ReferenceNo,
		Operation:      op,
		Status:         sh.Status,
		UpdatedAt:      time.Now().UTC(),
		OrderCode:      sh.OrderCode,
		TrackingNumber: sh.TrackingNumber,
		LabelURL:       sh.LabelURL,
	})
	if err != nil {
		return
	}
	if err := s.producer.Publish(ctx, s.topic, []byte(sh.ID), b); err != nil {
		slog.Warn("publish shipment.updated", "shipment_id", sh.ID, "error", err.Error())
	}
}

func currentKey(id string) string {
	return fmt.Sprintf("shipment:%s:current", id)
}
