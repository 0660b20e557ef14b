package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/region-compare-service/internal/adapter/http"
	"github.com/couchcryptid/region-compare-service/internal/dataset"
	"github.com/couchcryptid/region-compare-service/internal/domain"
	"github.com/couchcryptid/region-compare-service/internal/matching"
	"github.com/couchcryptid/region-compare-service/internal/observability"
	"github.com/couchcryptid/region-compare-service/internal/preference"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.QueryEvent
}

func (p *recordingPublisher) Publish(ev domain.QueryEvent) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return true
}

func (p *recordingPublisher) all() []domain.QueryEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.QueryEvent(nil), p.events...)
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, error) {
	return "", fmt.Errorf("connection refused")
}

func (failingStore) Set(context.Context, string, string) error {
	return fmt.Errorf("connection refused")
}

type testServer struct {
	*httpadapter.Server
	events  *recordingPublisher
	metrics *observability.Metrics
}

func newTestServer(t *testing.T, readyErr error) *testServer {
	t.Helper()
	return newTestServerWithStore(t, readyErr, preference.NewMemoryStore(time.Hour, nil))
}

func newTestServerWithStore(t *testing.T, readyErr error, store preference.Store) *testServer {
	t.Helper()
	cat, err := dataset.LoadDefault()
	require.NoError(t, err)

	events := &recordingPublisher{}
	metrics := observability.NewMetricsForTesting()
	srv := httpadapter.NewServer(":0", httpadapter.Deps{
		Engine:      matching.NewEngine(cat),
		Ready:       &mockReadiness{err: readyErr},
		Preferences: store,
		Events:      events,
		Metrics:     metrics,
		Logger:      slog.Default(),
	})
	return &testServer{Server: srv, events: events, metrics: metrics}
}

func (s *testServer) do(t *testing.T, method, target, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(t, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(t, http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode[map[string]string](t, rec)["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv := newTestServer(t, fmt.Errorf("publisher not running"))
	rec := srv.do(t, http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "publisher not running", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(t, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestFilterRegions(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/regions?type=state&parent=us", "")
	require.Equal(t, http.StatusOK, rec.Code)

	regions := decode[[]domain.Region](t, rec)
	ids := make([]string, len(regions))
	for i, r := range regions {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"us-ca", "us-tx", "us-ny", "us-fl"}, ids)
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.Queries.WithLabelValues("filter")))
}

func TestFilterRegions_AllWhenUnconstrained(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(t, http.MethodGet, "/api/regions", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Region](t, rec), 30)
}

func TestFilterRegions_InvalidType(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(t, http.MethodGet, "/api/regions?type=city", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "city")
}

func TestSearchRegions(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/regions/search?q=germ", "")
	require.Equal(t, http.StatusOK, rec.Code)
	regions := decode[[]domain.Region](t, rec)
	require.Len(t, regions, 1)
	assert.Equal(t, "de", regions[0].ID)

	rec = srv.do(t, http.MethodGet, "/api/regions/search", "")
	assert.Len(t, decode[[]domain.Region](t, rec), matching.SearchLimit)
}

func TestSearchRegions_EmptyResultIsArray(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(t, http.MethodGet, "/api/regions/search?q=atlantis", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestGetRegion(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/regions/fr", "")
	require.Equal(t, http.StatusOK, rec.Code)
	region := decode[domain.Region](t, rec)
	assert.Equal(t, "France", region.Name)
	assert.Equal(t, domain.RegionCountry, region.Type)

	rec = srv.do(t, http.MethodGet, "/api/regions/atlantis", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "region not found", decode[map[string]string](t, rec)["error"])
}

type matchesBody struct {
	Source  domain.Region  `json:"source"`
	Preset  string         `json:"preset"`
	Weights domain.Weights `json:"weights"`
	Matches []domain.Match `json:"matches"`
}

func TestMatches_DefaultPreset(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/regions/de/matches", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[matchesBody](t, rec)
	assert.Equal(t, "de", body.Source.ID)
	assert.Equal(t, domain.DefaultPreset, body.Preset)
	assert.NotEmpty(t, body.Weights)
	require.Len(t, body.Matches, matching.DefaultMatchLimit)
	for i, m := range body.Matches {
		assert.NotEqual(t, "de", m.ID)
		assert.GreaterOrEqual(t, m.Score, 0.0)
		assert.LessOrEqual(t, m.Score, 100.0)
		if i > 0 {
			assert.LessOrEqual(t, m.Score, body.Matches[i-1].Score)
		}
	}

	events := srv.events.all()
	require.Len(t, events, 1)
	assert.Equal(t, domain.QueryMatch, events[0].Kind)
	assert.Equal(t, "de", events[0].SourceID)
	assert.Equal(t, body.Matches[0].ID, events[0].TopMatchID)
}

func TestMatches_PresetAndLimit(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/regions/de/matches?preset=economy&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[matchesBody](t, rec)
	assert.Equal(t, "economy", body.Preset)
	assert.Len(t, body.Matches, 5)
}

func TestMatches_CustomWeights(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/regions/de/matches?preset=economy&w.gdpPerCapita=2&w.hdi=1&limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[matchesBody](t, rec)
	assert.Equal(t, domain.PresetCustom, body.Preset)
	assert.Equal(t, domain.Weights{"gdpPerCapita": 2, "hdi": 1}, body.Weights)
	assert.Len(t, body.Matches, 3)

	events := srv.events.all()
	require.Len(t, events, 1)
	assert.Equal(t, domain.Weights{"gdpPerCapita": 2, "hdi": 1}, events[0].Custom)
}

func TestMatches_BadRequests(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, target := range []string{
		"/api/regions/de/matches?limit=abc",
		"/api/regions/de/matches?limit=-1",
		"/api/regions/de/matches?w.gdp=-1",
		"/api/regions/de/matches?w.gdp=lots",
		"/api/regions/de/matches?w.gdp=NaN",
		"/api/regions/de/matches?w.=1",
	} {
		t.Run(target, func(t *testing.T) {
			rec := srv.do(t, http.MethodGet, target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}
	assert.Empty(t, srv.events.all())
}

func TestMatches_UnknownRegion(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(t, http.MethodGet, "/api/regions/atlantis/matches", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, srv.events.all())
}

type aggregateBody struct {
	Region  domain.Region  `json:"region"`
	Matches []domain.Match `json:"matches"`
}

func TestAggregate(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/api/aggregates", `{"ids":["fr","de","fr"],"name":"Franco-German"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[aggregateBody](t, rec)
	assert.Equal(t, "custom-de-fr", body.Region.ID)
	assert.Equal(t, "Franco-German", body.Region.Name)
	assert.Equal(t, domain.RegionCustom, body.Region.Type)
	assert.Equal(t, domain.AggregateFlag, body.Region.Flag)
	assert.Empty(t, body.Matches)

	events := srv.events.all()
	require.Len(t, events, 1)
	assert.Equal(t, domain.QueryAggregate, events[0].Kind)
	assert.Equal(t, "custom-de-fr", events[0].SourceID)
	assert.Equal(t, []string{"fr", "de", "fr"}, events[0].ComponentIDs)
}

func TestAggregate_WithMatches(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/api/aggregates?matches=4&preset=economy", `{"ids":["us-ca","us-tx"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[aggregateBody](t, rec)
	assert.Equal(t, "Custom Region", body.Region.Name)
	require.Len(t, body.Matches, 4)
	for _, m := range body.Matches {
		assert.NotEqual(t, body.Region.ID, m.ID)
	}
}

func TestAggregate_Errors(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name   string
		target string
		body   string
		status int
	}{
		{"malformed body", "/api/aggregates", `{"ids":`, http.StatusBadRequest},
		{"no ids", "/api/aggregates", `{"ids":[]}`, http.StatusBadRequest},
		{"bad matches param", "/api/aggregates?matches=many", `{"ids":["de"]}`, http.StatusBadRequest},
		{"nothing resolves", "/api/aggregates", `{"ids":["atlantis"]}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestIndicatorsPresetsStats(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/indicators", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ind := decode[struct {
		Indicators []domain.Indicator `json:"indicators"`
		Categories []domain.Category  `json:"categories"`
	}](t, rec)
	assert.Len(t, ind.Indicators, 20)
	assert.Len(t, ind.Categories, 6)

	rec = srv.do(t, http.MethodGet, "/api/presets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	presets := decode[[]domain.Preset](t, rec)
	require.Len(t, presets, 5)
	assert.Equal(t, domain.DefaultPreset, presets[0].Name)

	rec = srv.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[matching.Stats](t, rec)
	assert.Equal(t, 30, stats.Regions)
	assert.Equal(t, 20, stats.ByType[domain.RegionCountry])
	assert.Equal(t, 4, stats.ByType[domain.RegionProvince])
	assert.Equal(t, 6, stats.ByType[domain.RegionState])
}

type languageBody struct {
	Language  string   `json:"language"`
	Saved     bool     `json:"saved"`
	Supported []string `json:"supported"`
}

func withAcceptLanguage(v string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Accept-Language", v) }
}

func withCookie(c *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(c) }
}

func clientCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "client_id" {
			return c
		}
	}
	t.Fatal("client_id cookie not issued")
	return nil
}

func TestLanguagePreference_Flow(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/preferences/language", "", withAcceptLanguage("zh-CN,zh;q=0.9"))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[languageBody](t, rec)
	assert.Equal(t, "zh", body.Language)
	assert.False(t, body.Saved)
	assert.Equal(t, []string{"en", "zh", "es"}, body.Supported)
	cookie := clientCookie(t, rec)

	rec = srv.do(t, http.MethodPut, "/api/preferences/language", `{"language":"ES"}`, withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "es", decode[languageBody](t, rec).Language)
	assert.Empty(t, rec.Result().Cookies(), "existing client id is reused")

	rec = srv.do(t, http.MethodGet, "/api/preferences/language", "", withCookie(cookie), withAcceptLanguage("zh-CN"))
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[languageBody](t, rec)
	assert.Equal(t, "es", body.Language)
	assert.True(t, body.Saved)

	assert.Equal(t, 2.0, testutil.ToFloat64(srv.metrics.PreferenceOps.WithLabelValues("get", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.PreferenceOps.WithLabelValues("put", "success")))
}

func TestLanguagePreference_PutRejectsUnsupported(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPut, "/api/preferences/language", `{"language":"fr"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unsupported language", decode[map[string]string](t, rec)["error"])

	rec = srv.do(t, http.MethodPut, "/api/preferences/language", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLanguagePreference_StoreFailure(t *testing.T) {
	srv := newTestServerWithStore(t, nil, failingStore{})

	rec := srv.do(t, http.MethodGet, "/api/preferences/language", "", withAcceptLanguage("es"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "es", decode[languageBody](t, rec).Language)

	rec = srv.do(t, http.MethodPut, "/api/preferences/language", `{"language":"zh"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.PreferenceOps.WithLabelValues("get", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.PreferenceOps.WithLabelValues("put", "error")))
}
