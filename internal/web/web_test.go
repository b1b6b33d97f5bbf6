package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"eventboard/internal/catalog"
	"eventboard/internal/config"
	"eventboard/internal/feed"
	"eventboard/internal/model"
	"eventboard/internal/state"
)

type fixture struct {
	server    *Server
	catalog   *catalog.Catalog
	store     *state.Store
	overrides *state.OverrideStore
	hidden    *state.VisibilityStore
	now       time.Time
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	store := state.Open(t.TempDir())
	overrides := state.OpenOverrides(store)
	hidden := state.OpenVisibility(store)
	cat := catalog.New(overrides, hidden)

	refresher := feed.NewRefresher(
		func(ctx context.Context, src feed.Source) ([]map[string]string, error) { return nil, nil },
		func(rows []map[string]string) { cat.IngestFeed(rows) },
	)

	now := time.Date(2025, 7, 28, 8, 0, 0, 0, time.Local)
	srv := NewServer(Deps{
		Config:    cfg,
		Store:     store,
		Catalog:   cat,
		Overrides: overrides,
		Hidden:    hidden,
		Refresher: refresher,
		Sources:   func() []feed.Source { return nil },
		Now:       func() time.Time { return now },
	})
	return &fixture{server: srv, catalog: cat, store: store, overrides: overrides, hidden: hidden, now: now}
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeEvents(t *testing.T, rec *httptest.ResponseRecorder) eventsResponse {
	t.Helper()
	var resp eventsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding events response: %v\n%s", err, rec.Body.String())
	}
	return resp
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestEventsListAndClassification(t *testing.T) {
	f := newFixture(t, nil)
	f.catalog.IngestFeed([]map[string]string{
		{"subject": "Soon", "start": "2025-07-28 08:05:00", "end": "2025-07-28 09:00:00"},
		{"subject": "Later", "start": "2025-07-28 15:00:00", "end": "2025-07-28 16:00:00"},
	})

	rec := f.do(t, http.MethodGet, "/api/events?count=all", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeEvents(t, rec)
	if len(resp.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(resp.Events))
	}
	if resp.Events[0].Summary != "Soon" || resp.Events[0].State != "starting-soon" {
		t.Errorf("first event = %q/%q", resp.Events[0].Summary, resp.Events[0].State)
	}
	if resp.Events[0].SecondsToStart != 300 {
		t.Errorf("secondsToStart = %d, want 300", resp.Events[0].SecondsToStart)
	}
	if resp.Events[1].State != "normal" {
		t.Errorf("second state = %q", resp.Events[1].State)
	}
}

func TestEventsNowParameterOverridesClock(t *testing.T) {
	f := newFixture(t, nil)
	f.catalog.IngestFeed([]map[string]string{
		{"subject": "Meeting", "start": "2025-07-28 09:00:00", "end": "2025-07-28 10:00:00"},
	})

	rec := f.do(t, http.MethodGet, "/api/events?count=all&now=2025-07-28T09:30:00", nil)
	resp := decodeEvents(t, rec)
	if len(resp.Events) != 1 || resp.Events[0].State != "happening-now" {
		t.Fatalf("simulated clock not honored: %+v", resp.Events)
	}
}

func TestEventsCountParameterBeatsPersistedSettings(t *testing.T) {
	f := newFixture(t, nil)
	if err := state.SaveSettings(f.store, state.DisplaySettings{Count: "all"}); err != nil {
		t.Fatal(err)
	}
	f.catalog.IngestFeed([]map[string]string{
		{"subject": "One", "start": "2025-07-28 09:00:00", "end": "2025-07-28 10:00:00"},
		{"subject": "Two", "start": "2025-07-28 11:00:00", "end": "2025-07-28 12:00:00"},
	})

	persisted := decodeEvents(t, f.do(t, http.MethodGet, "/api/events", nil))
	if len(persisted.Events) != 2 {
		t.Fatalf("persisted count=all gave %d events", len(persisted.Events))
	}

	overridden := decodeEvents(t, f.do(t, http.MethodGet, "/api/events?count=1", nil))
	if len(overridden.Events) != 1 {
		t.Fatalf("query count=1 gave %d events", len(overridden.Events))
	}
	if overridden.Settings.Count != "1" {
		t.Errorf("settings echo = %q", overridden.Settings.Count)
	}
}

func TestEventsPrivateMasking(t *testing.T) {
	f := newFixture(t, nil)
	f.catalog.IngestFeed([]map[string]string{
		{"subject": "Therapy", "start": "2025-07-28 09:00:00", "end": "2025-07-28 10:00:00", "private": "yes", "description": "address"},
	})

	masked := decodeEvents(t, f.do(t, http.MethodGet, "/api/events?count=all", nil))
	if masked.Events[0].Summary != "Private" || masked.Events[0].Description != "" {
		t.Errorf("private details leaked: %+v", masked.Events[0])
	}

	shown := decodeEvents(t, f.do(t, http.MethodGet, "/api/events?count=all&private=1", nil))
	if shown.Events[0].Summary != "Therapy" || shown.Events[0].Description != "address" {
		t.Errorf("private reveal flag ignored: %+v", shown.Events[0])
	}
}

func TestOverrideUpsertAndDelete(t *testing.T) {
	f := newFixture(t, nil)

	body := overrideRequest{
		Summary: "Dentist",
		Start:   "2025-07-28 14:00:00",
		End:     "2025-07-28 15:00:00",
	}
	rec := f.do(t, http.MethodPost, "/api/events", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert status = %d: %s", rec.Code, rec.Body.String())
	}
	var dto eventDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &dto); err != nil {
		t.Fatal(err)
	}
	if !dto.IsOverride || dto.ID == "" {
		t.Fatalf("upsert response = %+v", dto)
	}

	list := decodeEvents(t, f.do(t, http.MethodGet, "/api/events?count=all", nil))
	if len(list.Events) != 1 || list.Events[0].Summary != "Dentist" {
		t.Fatalf("override not listed: %+v", list.Events)
	}

	del := f.do(t, http.MethodDelete, "/api/events/"+url.PathEscape(dto.ID), nil)
	if del.Code != http.StatusOK {
		t.Fatalf("delete status = %d", del.Code)
	}
	if del = f.do(t, http.MethodDelete, "/api/events/"+url.PathEscape(dto.ID), nil); del.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", del.Code)
	}
}

func TestOverrideEditUnlinksFeedRecord(t *testing.T) {
	f := newFixture(t, nil)
	f.catalog.IngestFeed([]map[string]string{
		{"subject": "Standup", "start": "2025-07-28 09:00:00", "end": "2025-07-28 09:15:00"},
	})

	feedRec, err := model.FromRow(map[string]string{
		"subject": "Standup", "start": "2025-07-28 09:00:00", "end": "2025-07-28 09:15:00",
	})
	if err != nil {
		t.Fatal(err)
	}

	body := overrideRequest{
		Summary:  "Standup",
		Start:    "2025-07-28 09:30:00",
		End:      "2025-07-28 09:45:00",
		Replaces: feedRec.Identity(),
	}
	if rec := f.do(t, http.MethodPost, "/api/events", body); rec.Code != http.StatusOK {
		t.Fatalf("upsert status = %d", rec.Code)
	}

	list := decodeEvents(t, f.do(t, http.MethodGet, "/api/events?count=all", nil))
	if len(list.Events) != 1 {
		t.Fatalf("events = %d, want 1 (feed record unlinked)", len(list.Events))
	}
	if !list.Events[0].IsOverride || list.Events[0].Replaces != feedRec.Identity() {
		t.Errorf("surviving event = %+v", list.Events[0])
	}
}

func TestOverrideUpsertRejectsBadTimes(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name string
		body overrideRequest
	}{
		{"unparseable start", overrideRequest{Summary: "x", Start: "nope", End: "2025-07-28 15:00:00"}},
		{"unparseable end", overrideRequest{Summary: "x", Start: "2025-07-28 14:00:00", End: "nope"}},
		{"end before start", overrideRequest{Summary: "x", Start: "2025-07-28 15:00:00", End: "2025-07-28 14:00:00"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if rec := f.do(t, http.MethodPost, "/api/events", tc.body); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHiddenToggle(t *testing.T) {
	f := newFixture(t, nil)
	f.catalog.IngestFeed([]map[string]string{
		{"subject": "Noise", "start": "2025-07-28 09:00:00", "end": "2025-07-28 10:00:00"},
	})
	feedRec, _ := model.FromRow(map[string]string{
		"subject": "Noise", "start": "2025-07-28 09:00:00", "end": "2025-07-28 10:00:00",
	})
	id := feedRec.Identity()

	rec := f.do(t, http.MethodPost, "/api/hidden/"+url.PathEscape(id), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle status = %d", rec.Code)
	}
	var resp struct {
		Hidden bool `json:"hidden"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Hidden {
		t.Fatal("first toggle must hide")
	}

	list := decodeEvents(t, f.do(t, http.MethodGet, "/api/events?count=all", nil))
	if len(list.Events) != 0 {
		t.Error("hidden event still listed")
	}
	list = decodeEvents(t, f.do(t, http.MethodGet, "/api/events?count=all&showHidden=1", nil))
	if len(list.Events) != 1 || !list.Events[0].Hidden {
		t.Errorf("showHidden list = %+v", list.Events)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	f := newFixture(t, nil)

	put := f.do(t, http.MethodPut, "/api/settings", state.DisplaySettings{
		File:  "team.csv",
		Count: "this_week",
	})
	if put.Code != http.StatusOK {
		t.Fatalf("put status = %d", put.Code)
	}

	get := f.do(t, http.MethodGet, "/api/settings", nil)
	var settings state.DisplaySettings
	if err := json.Unmarshal(get.Body.Bytes(), &settings); err != nil {
		t.Fatal(err)
	}
	if settings.File != "team.csv" || settings.Count != "this_week" {
		t.Errorf("settings = %+v", settings)
	}
	if settings.Layout != state.LayoutTop {
		t.Errorf("layout not normalized: %q", settings.Layout)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/refresh", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("refresh status = %d", rec.Code)
	}
	if rec = f.do(t, http.MethodGet, "/api/refresh", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET refresh status = %d", rec.Code)
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "board", Password: "secret"}
	f := newFixture(t, cfg)

	if rec := f.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("health must bypass auth, got %d", rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/api/events", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("WWW-Authenticate"), "Basic") {
		t.Error("missing WWW-Authenticate challenge")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("board", "secret")
	ok := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(ok, req)
	if ok.Code != http.StatusOK {
		t.Errorf("authenticated status = %d", ok.Code)
	}
}

func TestStaticPageServed(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("static root status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "data-ready") {
		t.Error("dashboard page missing readiness marker")
	}
}

func TestAPIPathNeverFallsBackToStatic(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown api path status = %d", rec.Code)
	}
}
