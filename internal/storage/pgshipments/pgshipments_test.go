package pgshipments

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BearBump/ShipBridge/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPGShipments_RepoFlow(t *testing.T) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "shipbridge_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/shipbridge_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	orderCode := "OC1"
	sh := &models.Shipment{
		ID:          uuid.NewString(),
		OwnerID:     "owner-1",
		ReferenceNo: "REF-001",
		Status:      models.ShipmentStatusAwaitingTrackNum,
		OrderCode:   &orderCode,
		RawRequest: map[string]json.RawMessage{
			"createOrder": json.RawMessage(`{"reference_no":"REF-001"}`),
		},
	}
	require.NoError(t, st.CreateShipment(ctx, sh))

	// Повтор с тем же reference_no — конфликт.
	dup := &models.Shipment{ID: uuid.NewString(), OwnerID: "owner-1", ReferenceNo: "REF-001", Status: models.ShipmentStatusCreated}
	require.ErrorIs(t, st.CreateShipment(ctx, dup), ErrDuplicateReference)

	got, err := st.GetShipment(ctx, sh.ID)
	require.NoError(t, err)
	require.Equal(t, "REF-001", got.ReferenceNo)
	require.Equal(t, models.ShipmentStatusAwaitingTrackNum, got.Status)
	require.Contains(t, got.RawRequest, "createOrder")

	byRef, err := st.GetShipmentByReference(ctx, "REF-001")
	require.NoError(t, err)
	require.Equal(t, sh.ID, byRef.ID)

	_, err = st.GetShipment(ctx, uuid.NewString())
	require.ErrorIs(t, err, ErrNotFound)

	// Обновление трек-номера и статуса.
	trackNum := "TN123"
	got.TrackingNumber = &trackNum
	got.Status = models.ShipmentStatusInTransit
	require.NoError(t, st.UpdateShipment(ctx, got))

	got, err = st.GetShipment(ctx, sh.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TrackingNumber)
	require.Equal(t, "TN123", *got.TrackingNumber)

	// Полный рефреш трека: замена событий + обновление записи атомарно.
	comment := "Departed facility"
	evTime := time.Now().UTC().Truncate(time.Second)
	got.Status = models.ShipmentStatusDelivered
	got.RawResponse = map[string]json.RawMessage{
		"getCargoTrack": json.RawMessage(`{"ask":"Success"}`),
	}
	require.NoError(t, st.ApplyTrackingRefresh(ctx, TrackingRefresh{
		Shipment: got,
		Events: []models.TrackingEvent{
			{OccurredAt: evTime.Add(-time.Hour), Comment: &comment},
			{OccurredAt: evTime},
		},
	}))

	evs, err := st.ListShipmentEvents(ctx, sh.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	require.WithinDuration(t, evTime, evs[0].OccurredAt, time.Second)

	// Повторный рефреш заменяет, а не дописывает.
	require.NoError(t, st.ApplyTrackingRefresh(ctx, TrackingRefresh{
		Shipment: got,
		Events:   []models.TrackingEvent{{OccurredAt: evTime}},
	}))
	evs, err = st.ListShipmentEvents(ctx, sh.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, evs, 1)

	list, err := st.ListShipments(ctx, "owner-1", models.ShipmentStatusDelivered, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
