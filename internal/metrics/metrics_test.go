package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	r.OrderBookReceived("kraken", 1)
	r.OrderBookRejected("kraken")
	r.ScanCompleted(time.Millisecond, 1, 1, 1, 1)
	r.ScanFailed()
	r.MatrixSnapshot("ok")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecording(t *testing.T) {
	r := New()
	r.OrderBookReceived("kraken", 3)
	r.OrderBookReceived("kraken", 4)
	r.ScanCompleted(2*time.Millisecond, 10, 2, 2, 1)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `arbdetector_orderbooks_received_total{source="kraken"} 2`)
	assert.Contains(t, body, "arbdetector_orderbooks 4")
	assert.Contains(t, body, "arbdetector_open_arbitrages 2")
	assert.Contains(t, body, "arbdetector_arbitrages_closed_total 1")
	assert.Contains(t, body, "arbdetector_cross_rates 10")
}
