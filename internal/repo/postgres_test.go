package repo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

func TestPostgresHistoryRoundTrip(t *testing.T) {
	dsn := os.Getenv("SLA_FORECAST_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SLA_FORECAST_TEST_POSTGRES_DSN not set")
	}

	h, err := NewPostgresHistory(dsn)
	require.NoError(t, err)
	defer h.Close()

	serviceID := "pg-test-" + time.Now().Format("150405.000000")
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i, tier := range []models.RiskTier{models.TierLow, models.TierCritical} {
		breach := models.NoBreach
		if tier == models.TierCritical {
			breach = 4
		}
		require.NoError(t, h.SaveAssessment(ctx, models.ServiceOutlook{
			Service:     models.Service{ID: serviceID, SLATarget: 99},
			Forecast:    models.Forecast{HorizonDays: 30},
			Assessment:  models.RiskAssessment{ServiceID: serviceID, Tier: tier, FirstBreachOffsetDays: breach},
			EvaluatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	records, err := h.ListAssessments(ctx, serviceID, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.TierCritical, records[0].Tier)
	assert.Equal(t, 4, records[0].FirstBreachOffsetDays)
	assert.Equal(t, models.NoBreach, records[1].FirstBreachOffsetDays)
	assert.Equal(t, serviceID, records[1].Outlook.Service.ID)
}
