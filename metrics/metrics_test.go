package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.OrderCreated()
	m.OrderCreated()
	m.StatusChanged("Delivered")
	m.Login("invalid")
	m.Login("success")
	m.Login("success")

	if got := testutil.ToFloat64(m.ordersCreated); got != 2 {
		t.Errorf("orders_created_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.statusTransitions.WithLabelValues("Delivered")); got != 1 {
		t.Errorf("transitions{to=Delivered} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.logins.WithLabelValues("success")); got != 2 {
		t.Errorf("logins{result=success} = %v, want 2", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.OrderCreated()
	m.StatusChanged("Confirmed")
	m.Login("error")
}

func TestMiddlewareLabelsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(prometheus.NewRegistry())

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/orders/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, id := range []string{"a", "b", "c"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders/"+id, nil))
	}

	got := testutil.ToFloat64(m.requestCount.WithLabelValues(http.MethodGet, "/api/orders/:id", "204"))
	if got != 3 {
		t.Fatalf("http_requests_total = %v, want 3", got)
	}
}
