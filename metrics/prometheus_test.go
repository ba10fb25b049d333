package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetConnected(t *testing.T) {
	SetConnected("XAU/USD", true, 0)
	if got := testutil.ToFloat64(WSConnected.WithLabelValues("XAU/USD")); got != 1 {
		t.Errorf("Expected WSConnected to be 1, got %f", got)
	}

	SetConnected("XAU/USD", false, 3)
	if got := testutil.ToFloat64(WSConnected.WithLabelValues("XAU/USD")); got != 0 {
		t.Errorf("Expected WSConnected to be 0, got %f", got)
	}
	if got := testutil.ToFloat64(ReconnectAttempts.WithLabelValues("XAU/USD")); got != 3 {
		t.Errorf("Expected ReconnectAttempts to be 3, got %f", got)
	}
}

func TestObserveTick(t *testing.T) {
	TicksAccepted.Reset()
	ObserveTick("XAG/USD", 30.5, 0.02)
	ObserveTick("XAG/USD", 30.6, 0.03)

	if got := testutil.ToFloat64(TicksAccepted.WithLabelValues("XAG/USD")); got != 2 {
		t.Errorf("Expected 2 ticks, got %f", got)
	}
	if got := testutil.ToFloat64(LastMid.WithLabelValues("XAG/USD")); got != 30.6 {
		t.Errorf("Expected LastMid 30.6, got %f", got)
	}
	if got := testutil.ToFloat64(LastSpread.WithLabelValues("XAG/USD")); got != 0.03 {
		t.Errorf("Expected LastSpread 0.03, got %f", got)
	}
}

func TestIncrementFunctions(t *testing.T) {
	FramesDiscarded.Reset()
	ReconnectsScheduled.Reset()
	GiveUps.Reset()
	TransportErrors.Reset()

	IncDiscarded("XAU/USD", "invalid_json")
	IncDiscarded("XAU/USD", "invalid_json")
	IncDiscarded("XAU/USD", "missing_fields")
	IncReconnectScheduled("XAU/USD")
	IncGiveUp("XAU/USD")
	IncTransportError("XAU/USD")

	if got := testutil.ToFloat64(FramesDiscarded.WithLabelValues("XAU/USD", "invalid_json")); got != 2 {
		t.Errorf("Expected 2 invalid_json discards, got %f", got)
	}
	if got := testutil.ToFloat64(FramesDiscarded.WithLabelValues("XAU/USD", "missing_fields")); got != 1 {
		t.Errorf("Expected 1 missing_fields discard, got %f", got)
	}
	if got := testutil.ToFloat64(ReconnectsScheduled.WithLabelValues("XAU/USD")); got != 1 {
		t.Errorf("Expected 1 scheduled reconnect, got %f", got)
	}
	if got := testutil.ToFloat64(GiveUps.WithLabelValues("XAU/USD")); got != 1 {
		t.Errorf("Expected 1 give-up, got %f", got)
	}
	if got := testutil.ToFloat64(TransportErrors.WithLabelValues("XAU/USD")); got != 1 {
		t.Errorf("Expected 1 transport error, got %f", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	SetConnected("XPT/USD", true, 0)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pricefeed_ws_connected") {
		t.Fatalf("expected pricefeed_ws_connected in output")
	}
}
