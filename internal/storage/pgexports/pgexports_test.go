package pgexports

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/TrackIntake/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPGExports_JournalFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "trackintake_test",
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

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/trackintake_test?sslmode=disable"
	var st *Storage
	// порт уже слушается, но postgres может ещё принимать соединения не сразу
	require.Eventually(t, func() bool {
		st, err = New(dsn)
		return err == nil
	}, 30*time.Second, 500*time.Millisecond)
	t.Cleanup(st.Close)
	require.NoError(t, st.Ping(ctx))

	older := time.Date(2025, 3, 4, 5, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	ok, err := st.ApplyExport(ctx, models.ExportEntry{
		BatchID: "b1", Filename: "202503040500_345_Trackingdaten_dvs.csv", DeliveryPartnerID: "345",
		Channel: models.ExportChannelUpload, Station: "4202", Codes: []string{"A", "B"}, CompletedAt: older,
	})
	require.NoError(t, err)
	require.True(t, ok)

	// повторная доставка того же события
	ok, err = st.ApplyExport(ctx, models.ExportEntry{BatchID: "b1", Filename: "other", Codes: []string{"X"}})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = st.ApplyExport(ctx, models.ExportEntry{
		BatchID: "b2", Filename: "202503040600_345_Trackingdaten_dvs.csv", DeliveryPartnerID: "345",
		Channel: models.ExportChannelLocalDownload, Station: "4202", Codes: []string{"B"}, CompletedAt: newer,
	})
	require.NoError(t, err)
	require.True(t, ok)

	_, err = st.ApplyExport(ctx, models.ExportEntry{})
	require.Error(t, err)

	list, err := st.ListExports(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "b2", list[0].BatchID)
	require.Equal(t, 2, list[1].RecordCount)
	require.WithinDuration(t, older, list[1].CompletedAt, time.Second)

	e, found, err := st.GetExport(ctx, "b1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []string{"A", "B"}, e.Codes)
	require.Equal(t, "202503040500_345_Trackingdaten_dvs.csv", e.Filename)

	_, found, err = st.GetExport(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)

	batches, err := st.FindBatchesByCode(ctx, "B")
	require.NoError(t, err)
	require.Equal(t, []string{"b2", "b1"}, batches)
}
