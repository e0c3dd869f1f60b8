package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

func dialStream(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(newTestRouter(t))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/stream/latency" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestLatencyStreamFlagsAgainstRollingMean(t *testing.T) {
	conn := dialStream(t, "?window=2")
	t0 := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	values := []float64{1.2, 1.4, 3.8, 1.5}
	want := []bool{false, false, true, false}
	for i, v := range values {
		require.NoError(t, conn.WriteJSON(models.Sample{Timestamp: t0.Add(time.Duration(i) * time.Hour), Value: v}))
		var flag models.AnomalyFlag
		require.NoError(t, conn.ReadJSON(&flag))
		assert.Equal(t, want[i], flag.IsAnomaly, "sample %d (%v)", i, v)
		assert.Equal(t, v, flag.Observed)
	}
}

func TestLatencyStreamReportsBadSamples(t *testing.T) {
	conn := dialStream(t, "")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"value":"fast"}`)))

	var resp streamError
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Contains(t, resp.Error, "invalid sample")

	require.NoError(t, conn.WriteJSON(models.Sample{Value: 2}))
	var flag models.AnomalyFlag
	require.NoError(t, conn.ReadJSON(&flag))
	assert.False(t, flag.IsAnomaly)
	assert.False(t, flag.Timestamp.IsZero())
}

func TestLatencyStreamSurvivesTruncatedFrames(t *testing.T) {
	conn := dialStream(t, "")
	for _, frame := range []string{`{"value":`, ``} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
		var resp streamError
		require.NoError(t, conn.ReadJSON(&resp))
		assert.Contains(t, resp.Error, "invalid sample", "frame %q", frame)
	}

	require.NoError(t, conn.WriteJSON(models.Sample{Value: 1.2}))
	var flag models.AnomalyFlag
	require.NoError(t, conn.ReadJSON(&flag))
	assert.Equal(t, 1.2, flag.Observed)
}

func TestLatencyStreamRejectsBadRatio(t *testing.T) {
	server := httptest.NewServer(newTestRouter(t))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/stream/latency?ratio=0.5"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}
