package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	if out.Gauge != nil {
		return out.Gauge.GetValue()
	}
	return out.Counter.GetValue()
}

func TestSetConnectionStateIsOneHot(t *testing.T) {
	SetConnectionState("w1", "connected")
	assert.Equal(t, 1.0, value(t, connectionState.WithLabelValues("w1", "connected")))
	assert.Equal(t, 0.0, value(t, connectionState.WithLabelValues("w1", "connecting")))

	SetConnectionState("w1", "noConnection")
	assert.Equal(t, 0.0, value(t, connectionState.WithLabelValues("w1", "connected")))
	assert.Equal(t, 1.0, value(t, connectionState.WithLabelValues("w1", "noConnection")))

	ForgetWallet("w1")
}

func TestCounters(t *testing.T) {
	before := value(t, reconnects.WithLabelValues("error"))
	RecordReconnect("error")
	assert.Equal(t, before+1, value(t, reconnects.WithLabelValues("error")))

	before = value(t, droppedEvents.WithLabelValues("duplicate"))
	RecordDroppedEvent("duplicate")
	assert.Equal(t, before+1, value(t, droppedEvents.WithLabelValues("duplicate")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordTransactionEvent()

	h := InstrumentHandler(http.NewServeMux())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	srv := httptest.NewServer(Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, "walletsync_background_update_transaction_events_total"))
	assert.True(t, strings.Contains(text, `walletsync_http_requests_total{method="GET",path="/missing",status="404"}`))
}
