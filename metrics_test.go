package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	return testutil.ToFloat64(c)
}

func TestMetricsHandlerServesRouterCollectors(t *testing.T) {
	routerRoutedTotal.Add(0) // promauto registered it at package init; a label-free counter is exported even at zero

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	metricsHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "omnitak_router_routed_events_total") {
		t.Errorf("expected omnitak_router_routed_events_total in metrics output")
	}
	if !strings.Contains(body, "omnitak_router_connected_clients") {
		t.Errorf("expected omnitak_router_connected_clients in metrics output")
	}
}

func TestRouterMetricsTrackRouting(t *testing.T) {
	before := testCounterValue(t, routerRoutedTotal)

	rt := NewRouter(4, testLogEntry())
	rt.Register(1, "tcp:a", "")
	rt.Register(2, "tcp:b", "")
	rt.Route(1, []byte("<event/>"))

	after := testCounterValue(t, routerRoutedTotal)
	if after <= before {
		t.Fatalf("expected routerRoutedTotal to increase, before=%v after=%v", before, after)
	}
}
