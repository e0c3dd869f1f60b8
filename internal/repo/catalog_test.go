package repo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-forecast/internal/models"
	"github.com/miradorstack/mirador-forecast/internal/store"
)

const catalogYAML = `
origin: "2024-03-01T00:00:00Z"
services:
  - id: video-hearing
    name: Video Hearing Platform
    slaTarget: 99.0
    riskFactors:
      - name: Vendor Performance Decline
        impact: 0.85
        trend: increasing
      - name: User Adoption Growth
        impact: 0.45
        trend: predictable
    slaHistory:
      - {day: 1, value: 97.9}
      - {day: 0, value: 98.2}
    responseTime:
      - {day: 1, hour: 9, value: 3.8}
      - {day: 1, hour: 8, value: 1.2}
`

func TestCatalogApplySeedsStore(t *testing.T) {
	catalog, err := ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)

	st := store.New()
	n, err := catalog.Apply(st, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	svc, ok := st.Service("video-hearing")
	require.True(t, ok)
	assert.Equal(t, 99.0, svc.SLATarget)
	require.Len(t, svc.RiskFactors, 2)
	assert.Equal(t, models.TrendStable, svc.RiskFactors[1].Trend)

	sla := st.Snapshot("video-hearing", models.MetricSLAPercent, time.Time{})
	require.Len(t, sla, 2)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), sla[0].Timestamp)
	assert.Equal(t, 97.9, sla[1].Value)

	rt := st.Snapshot("video-hearing", models.MetricResponseTime, time.Time{})
	require.Len(t, rt, 2)
	assert.Equal(t, time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC), rt[1].Timestamp)
}

func TestCatalogOriginDefaultsToToday(t *testing.T) {
	catalog := &Catalog{Services: []CatalogService{{
		Service:    models.Service{ID: "case-mgmt", Name: "Case Management", SLATarget: 99},
		SLAHistory: []CatalogPoint{{Day: 0, Value: 99.1}, {Day: 2, Value: 98.8}},
	}}}
	now := time.Date(2024, 5, 10, 15, 30, 0, 0, time.UTC)

	st := store.New()
	_, err := catalog.Apply(st, now)
	require.NoError(t, err)

	last, ok := st.Last("case-mgmt", models.MetricSLAPercent)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), last.Timestamp)
}

func TestParseCatalogRejectsBadEntries(t *testing.T) {
	_, err := ParseCatalog([]byte("services:\n  - name: nameless\n"))
	assert.Error(t, err)

	_, err = ParseCatalog([]byte("services:\n  - id: a\n  - id: a\n"))
	assert.ErrorContains(t, err, "duplicate")

	_, err = ParseCatalog([]byte("services:\n  - id: a\n    riskFactors:\n      - {name: x, impact: 0.1, trend: sideways}\n"))
	assert.Error(t, err)
}

func TestLoadCatalogMissingFileIsEmpty(t *testing.T) {
	catalog, err := LoadCatalog(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, catalog.Services)

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))
	catalog, err = LoadCatalog(path)
	require.NoError(t, err)
	assert.Len(t, catalog.Services, 1)
}

func TestShippedCatalogApplies(t *testing.T) {
	catalog, err := LoadCatalog(filepath.Join("..", "..", "configs", "catalog.yaml"))
	require.NoError(t, err)
	require.Len(t, catalog.Services, 5)

	st := store.New()
	_, err = catalog.Apply(st, time.Now())
	require.NoError(t, err)

	svc, ok := st.Service("video-hearing")
	require.True(t, ok)
	assert.Len(t, svc.RiskFactors, 4)
	assert.Equal(t, 10, st.Len("video-hearing", models.MetricResponseTime))

	last, ok := st.Last("case-management", models.MetricSLAPercent)
	require.True(t, ok)
	assert.Equal(t, 98.8, last.Value)
}
