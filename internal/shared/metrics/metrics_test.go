package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectors_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors(reg)

	c.Transitions.WithLabelValues("select_stake", "select_destination").Inc()
	c.Rejections.WithLabelValues("rate_limited").Add(2)
	c.ActiveSessions.Set(3)

	if v := testutil.ToFloat64(c.Rejections.WithLabelValues("rate_limited")); v != 2 {
		t.Errorf("rejections = %v", v)
	}
	if v := testutil.ToFloat64(c.ActiveSessions); v != 3 {
		t.Errorf("active = %v", v)
	}
	if n := testutil.CollectAndCount(c.Transitions); n != 1 {
		t.Errorf("transition series = %d", n)
	}
}

func TestHandler_Health(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors(reg)
	c.GradeNoops.Inc()

	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(Handler(reg, func(context.Context) error {
		if !healthy.Load() {
			return errors.New("redis down")
		}
		return nil
	}))
	defer srv.Close()

	res, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d", res.StatusCode)
	}

	healthy.Store(false)
	res, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("healthz unhealthy = %d", res.StatusCode)
	}

	rec := httptest.NewRecorder()
	Handler(reg, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "wager_settlement_noops_total 1") {
		t.Errorf("metrics body missing noops counter:\n%s", rec.Body.String())
	}
}
