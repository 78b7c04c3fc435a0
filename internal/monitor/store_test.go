package monitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidemark/tidemark/pkg/types"
)

func openTestStore(t *testing.T) *SQLiteRecordStore {
	t.Helper()
	s, err := NewSQLiteRecordStore(filepath.Join(t.TempDir(), "monitor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordStoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	obs := Observation{
		Record: types.HealthRecord{
			ID:         "rec-1",
			Component:  "event_store",
			Metric:     "freshness_seconds",
			Value:      120,
			Status:     types.StatusHealthy,
			Threshold:  300,
			Detail:     "fresh",
			AlertLevel: 0,
			CreatedAt:  1000,
		},
	}
	require.NoError(t, s.SaveObservation(ctx, obs))

	critical := obs
	critical.Record.ID = "rec-2"
	critical.Record.Status = types.StatusCritical
	critical.Record.AlertLevel = 2
	critical.Record.CreatedAt = 2000
	require.NoError(t, s.SaveObservation(ctx, critical))

	all, err := s.HealthRecords(ctx, 0, 5000, types.StatusHealthy)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "rec-2", all[0].ID, "newest first")

	severe, err := s.HealthRecords(ctx, 0, 5000, types.StatusCritical)
	require.NoError(t, err)
	require.Len(t, severe, 1)
	assert.Equal(t, types.StatusCritical, severe[0].Status)

	bounded, err := s.HealthRecords(ctx, 0, 1500, types.StatusHealthy)
	require.NoError(t, err)
	require.Len(t, bounded, 1)
	assert.Equal(t, "rec-1", bounded[0].ID)
}

func TestRecordStoreTypedRecords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveObservation(ctx, Observation{
		Gap: &types.MissingEventRecord{
			ObservedAt: 1000, GapStart: 0, GapEnd: 7200,
			GapSeconds: 7200, EstimatedMissing: 2,
		},
	}))
	require.NoError(t, s.SaveObservation(ctx, Observation{
		Drift: &types.SchemaDriftRecord{
			ObservedAt: 1000, FieldName: "campaign",
			ObservedType: types.FieldString, Change: "new_field", Impact: "low",
		},
		Lag: &types.SyncLagRecord{
			ObservedAt: 1000, Source: "dimension_feed", LagSeconds: 30,
			Status: types.StatusHealthy,
		},
		Load: &types.LoadPerformanceRecord{
			ObservedAt: 1000, BucketStart: 0, Processed: 100,
			Throughput: 0.03, Status: types.StatusHealthy,
		},
	}))

	gaps, err := s.Gaps(ctx, 0, 2000)
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.Equal(t, int64(2), gaps[0].EstimatedMissing)
}

func TestRecordStorePurgeRetention(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Unix(100*24*3600, 0)

	old := Observation{Record: types.HealthRecord{
		ID: "old", Component: "event_store", Metric: "m", Status: types.StatusHealthy,
		CreatedAt: now.Add(-60 * 24 * time.Hour).Unix(),
	}}
	fresh := Observation{Record: types.HealthRecord{
		ID: "fresh", Component: "event_store", Metric: "m", Status: types.StatusHealthy,
		CreatedAt: now.Add(-time.Hour).Unix(),
	}}
	require.NoError(t, s.SaveObservation(ctx, old))
	require.NoError(t, s.SaveObservation(ctx, fresh))

	n, err := s.Purge(ctx, now, DefaultRetention())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := s.HealthRecords(ctx, 0, now.Unix(), types.StatusHealthy)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "fresh", left[0].ID)
}
