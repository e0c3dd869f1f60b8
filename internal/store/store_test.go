package store

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

var origin = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func sla(day int, value float64) models.Observation {
	return models.Observation{
		ServiceID: "video-hearing",
		Metric:    models.MetricSLAPercent,
		Timestamp: origin.AddDate(0, 0, day),
		Value:     value,
	}
}

func TestRecordAndHistoryAscending(t *testing.T) {
	s := New()
	require.NoError(t, s.Record(sla(0, 98.2)))
	require.NoError(t, s.Record(sla(1, 97.9)))
	require.NoError(t, s.Record(sla(2, 97.6)))

	got := s.Snapshot("video-hearing", models.MetricSLAPercent, time.Time{})
	require.Len(t, got, 3)
	assert.Equal(t, 98.2, got[0].Value)
	assert.Equal(t, 97.6, got[2].Value)
	assert.Equal(t, 3, s.Len("video-hearing", models.MetricSLAPercent))
}

func TestRecordRejectsOutOfOrder(t *testing.T) {
	s := New()
	require.NoError(t, s.Record(sla(1, 97.9)))

	for _, obs := range []models.Observation{sla(1, 97.0), sla(0, 98.0)} {
		err := s.Record(obs)
		var ooo *OutOfOrderError
		require.True(t, errors.As(err, &ooo), "expected OutOfOrderError, got %v", err)
		assert.Equal(t, "video-hearing", ooo.ServiceID)
		assert.True(t, ooo.Last.Equal(origin.AddDate(0, 0, 1)))
	}
	assert.Equal(t, 1, s.Len("video-hearing", models.MetricSLAPercent))
}

func TestOrderingIsPerMetric(t *testing.T) {
	s := New()
	require.NoError(t, s.Record(sla(5, 97.9)))

	rt := models.Observation{ServiceID: "video-hearing", Metric: models.MetricResponseTime, Timestamp: origin, Value: 3.2}
	require.NoError(t, s.Record(rt))
}

func TestRecordRejectsInvalid(t *testing.T) {
	s := New()
	cases := []models.Observation{
		{Metric: models.MetricSLAPercent, Timestamp: origin, Value: 1},
		{ServiceID: "svc", Metric: "cpu", Timestamp: origin, Value: 1},
		{ServiceID: "svc", Metric: models.MetricSLAPercent, Value: 1},
		{ServiceID: "svc", Metric: models.MetricSLAPercent, Timestamp: origin, Value: math.NaN()},
	}
	for _, obs := range cases {
		assert.ErrorIs(t, s.Record(obs), ErrInvalidObservation)
	}
}

func TestHistoryUnknownIsEmpty(t *testing.T) {
	s := New()
	count := 0
	for range s.History("missing", models.MetricSLAPercent, time.Time{}) {
		count++
	}
	assert.Zero(t, count)
	_, ok := s.Last("missing", models.MetricResponseTime)
	assert.False(t, ok)
}

func TestHistorySinceAndRestartable(t *testing.T) {
	s := New()
	for day, v := range []float64{99.1, 98.9, 98.7, 98.4} {
		require.NoError(t, s.Record(sla(day, v)))
	}

	seq := s.History("video-hearing", models.MetricSLAPercent, origin.AddDate(0, 0, 2))
	var first, second []float64
	for obs := range seq {
		first = append(first, obs.Value)
	}
	for obs := range seq {
		second = append(second, obs.Value)
	}
	assert.Equal(t, []float64{98.7, 98.4}, first)
	assert.Equal(t, first, second)
}

func TestHistoryIsSnapshotAtCallTime(t *testing.T) {
	s := New()
	require.NoError(t, s.Record(sla(0, 99.0)))
	seq := s.History("video-hearing", models.MetricSLAPercent, time.Time{})
	require.NoError(t, s.Record(sla(1, 98.0)))

	count := 0
	for range seq {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestRegisterAndServices(t *testing.T) {
	s := New()
	require.NoError(t, s.Register(models.Service{ID: "case-mgmt", Name: "Case Management", SLATarget: 99}))
	require.NoError(t, s.Register(models.Service{ID: "audio", Name: "Audio", SLATarget: 99.5}))
	require.Error(t, s.Register(models.Service{ID: "bad", SLATarget: 120}))
	require.Error(t, s.Register(models.Service{ID: "nan", SLATarget: math.NaN()}))

	services := s.Services()
	require.Len(t, services, 2)
	assert.Equal(t, "audio", services[0].ID)

	svc, ok := s.Service("case-mgmt")
	require.True(t, ok)
	assert.Equal(t, 99.0, svc.SLATarget)
}

func TestConcurrentWritersAndReaders(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		wg.Add(2)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				obs := models.Observation{ServiceID: id, Metric: models.MetricResponseTime, Timestamp: origin.Add(time.Duration(i) * time.Minute), Value: float64(i)}
				if err := s.Record(obs); err != nil {
					t.Errorf("record: %v", err)
					return
				}
			}
		}(id)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				prev := -1.0
				for obs := range s.History(id, models.MetricResponseTime, time.Time{}) {
					if obs.Value <= prev {
						t.Errorf("history not ascending")
						return
					}
					prev = obs.Value
				}
			}
		}(id)
	}
	wg.Wait()

	for _, id := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, 200, s.Len(id, models.MetricResponseTime))
	}
}
