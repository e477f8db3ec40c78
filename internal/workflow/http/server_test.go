package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/radieske/sports-wager-engine/internal/catalog"
	"github.com/radieske/sports-wager-engine/internal/ratelimit"
	"github.com/radieske/sports-wager-engine/internal/wager/repo"
	"github.com/radieske/sports-wager-engine/internal/workflow"
)

func newServer(t *testing.T, rateMax int) *httptest.Server {
	t.Helper()
	lim := ratelimit.New(ratelimit.NewStore(), map[string]ratelimit.Rule{
		ratelimit.ClassWagerConstruction: {Max: rateMax, Window: time.Minute},
	}, nil)
	eng := workflow.New(workflow.Config{}, workflow.NewSessions(), lim, catalog.New(catalog.DefaultConfig(), nil, nil), repo.NewMemory(), nil, nil)
	srv := httptest.NewServer((&API{Engine: eng, Limiter: lim}).Router())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp, out
}

func TestHandleEvent_StatusMapping(t *testing.T) {
	srv := newServer(t, 3)
	const path = "/v1/sessions/u1/g1/events"

	tests := []struct {
		name    string
		path    string
		body    string
		status  int
		outcome string
	}{
		{"no session", path, `{"type":"select","option":"football"}`, http.StatusNotFound, "rejected"},
		{"start", path, `{"type":"start","kind":"parlay"}`, http.StatusOK, "prompt"},
		{"invalid option", path, `{"type":"select","option":"cricket"}`, http.StatusUnprocessableEntity, "prompt"},
		{"valid option", path, `{"type":"select","option":"football"}`, http.StatusOK, "prompt"},
		{"rate limited", path, `{"type":"select","option":"nfl"}`, http.StatusTooManyRequests, "rejected"},
		{"cancel", path, `{"type":"cancel"}`, http.StatusOK, "cancelled"},
		{"unknown kind", "/v1/sessions/u2/g1/events", `{"type":"start","kind":"teaser"}`, http.StatusUnprocessableEntity, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := post(t, srv, tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d (%v)", resp.StatusCode, tt.status, out)
			}
			if tt.outcome != "" && out["outcome"] != tt.outcome {
				t.Errorf("outcome = %v, want %s", out["outcome"], tt.outcome)
			}
			if tt.status == http.StatusTooManyRequests && resp.Header.Get("Retry-After") == "" {
				t.Error("missing Retry-After header")
			}
		})
	}
}

func TestHandleEvent_BadJSON(t *testing.T) {
	srv := newServer(t, 10)
	resp, err := http.Post(srv.URL+"/v1/sessions/u1/g1/events", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestRateStats(t *testing.T) {
	srv := newServer(t, 1)
	post(t, srv, "/v1/sessions/u1/g1/events", `{"type":"start"}`)
	post(t, srv, "/v1/sessions/u1/g1/events", `{"type":"select","option":"football"}`)

	resp, err := http.Get(srv.URL + "/v1/ratelimit/stats?owner=u1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var st ratelimit.OwnerStats
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Total != 1 || st.MostLimited != ratelimit.ClassWagerConstruction {
		t.Errorf("stats = %+v", st)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{1900 * time.Millisecond, 2},
		{2 * time.Second, 2},
		{10 * time.Millisecond, 1},
		{0, 1},
		{59*time.Second + time.Millisecond, 60},
	}
	for _, tt := range tests {
		if got := retryAfterSeconds(tt.in); got != tt.want {
			t.Errorf("retryAfterSeconds(%s) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
