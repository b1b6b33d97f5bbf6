// Package web exposes the dashboard HTTP surface: the event read API,
// override and visibility mutations, display settings, and the embedded
// static page.
package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"eventboard/internal/catalog"
	"eventboard/internal/config"
	"eventboard/internal/feed"
	appLog "eventboard/internal/log"
	"eventboard/internal/model"
	"eventboard/internal/state"
)

// Deps are the collaborators a Server needs. Everything is passed in
// explicitly; the server owns no background work of its own.
type Deps struct {
	Config    *config.Config
	Store     *state.Store
	Catalog   *catalog.Catalog
	Overrides *state.OverrideStore
	Hidden    *state.VisibilityStore
	Refresher *feed.Refresher
	// Sources yields the refresh source list as currently configured.
	Sources func() []feed.Source
	// Now is the clock; the simulated-clock flag substitutes it.
	Now func() time.Time
	// PreviewPath is where the capture pipeline drops its PNG.
	PreviewPath string
}

// Server provides the HTTP API and static dashboard page.
type Server struct {
	deps Deps
	mux  *http.ServeMux
}

//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a Server around its dependencies.
func NewServer(d Deps) *Server {
	if d.Now == nil {
		d.Now = time.Now
	}
	s := &Server{deps: d, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// Handler returns the server's http.Handler, wrapped with basic auth
// when credentials are configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled")
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	ba := s.deps.Config.BasicAuth
	return ba != nil && ba.Username != "" && ba.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.deps.Config.BasicAuth.Username
	password := s.deps.Config.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="eventboard", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/api/events/", s.handleEventByID)
	s.mux.HandleFunc("/api/hidden/", s.handleHiddenToggle)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
	s.mux.HandleFunc("/preview.png", s.handlePreview)
	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventDTO is the JSON view of one record at a given instant.
type eventDTO struct {
	ID             string       `json:"id"`
	Summary        string       `json:"summary"`
	Start          time.Time    `json:"start"`
	End            time.Time    `json:"end"`
	AllDay         bool         `json:"allDay"`
	State          string       `json:"state"`
	SecondsToStart int64        `json:"secondsToStart"`
	SecondsToEnd   int64        `json:"secondsToEnd"`
	Description    string       `json:"description,omitempty"`
	Images         []string     `json:"images,omitempty"`
	RSVP           model.RSVP   `json:"rsvp,omitempty"`
	Private        bool         `json:"private,omitempty"`
	IsOverride     bool         `json:"isOverride,omitempty"`
	Replaces       string       `json:"replaces,omitempty"`
	Hidden         bool         `json:"hidden,omitempty"`
	Style          *model.Style `json:"style,omitempty"`
}

// viewSettings echo back the effective display options for the request.
type viewSettings struct {
	File        string `json:"file"`
	Count       string `json:"count"`
	Private     bool   `json:"private"`
	Transparent bool   `json:"trans"`
	ShowHidden  bool   `json:"showHidden"`
	Layout      string `json:"layout"`
}

type eventsResponse struct {
	Now      time.Time    `json:"now"`
	AllDay   []eventDTO   `json:"allDay"`
	Events   []eventDTO   `json:"events"`
	Revealed []string     `json:"revealed,omitempty"`
	Settings viewSettings `json:"settings"`
}

// handleEvents serves the visible event collection.
//
// GET /api/events?count=...&private=1&trans=1&showHidden=1&layout=...&now=...
//
// Query parameters override persisted settings for this request only;
// "now" substitutes the evaluation clock.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		s.handleEventUpsert(w, r)
		return
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	settings := s.effectiveSettings(r)
	now := s.requestNow(r)

	opts := catalog.ViewOptions{
		Window:     settings.Count,
		ShowHidden: settings.ShowHidden,
	}
	allDay, timed := s.deps.Catalog.VisibleEvents(now, opts)
	revealed := s.deps.Catalog.Reveal(now, opts)

	resp := eventsResponse{
		Now:      now,
		AllDay:   make([]eventDTO, 0, len(allDay)),
		Events:   make([]eventDTO, 0, len(timed)),
		Revealed: revealed,
		Settings: viewSettings{
			File:        settings.File,
			Count:       settings.Count,
			Private:     settings.Private,
			Transparent: settings.Transparent,
			ShowHidden:  settings.ShowHidden,
			Layout:      settings.Layout,
		},
	}
	for _, rec := range allDay {
		resp.AllDay = append(resp.AllDay, s.toDTO(rec, now, true, settings.Private))
	}
	for _, rec := range timed {
		resp.Events = append(resp.Events, s.toDTO(rec, now, false, settings.Private))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) toDTO(rec model.Record, now time.Time, allDay, revealPrivate bool) eventDTO {
	dto := eventDTO{
		ID:             rec.Identity(),
		Summary:        rec.Summary,
		Start:          rec.Start,
		End:            rec.End,
		AllDay:         allDay,
		State:          string(catalog.Classify(rec, now)),
		SecondsToStart: int64(rec.Start.Sub(now) / time.Second),
		SecondsToEnd:   int64(rec.End.Sub(now) / time.Second),
		Description:    rec.Description,
		Images:         rec.Images,
		RSVP:           rec.RSVP,
		Private:        rec.Private,
		IsOverride:     rec.IsOverride,
		Replaces:       rec.SourceIdentity,
		Hidden:         s.deps.Hidden.IsHidden(rec.Identity()),
	}
	if rec.Style != (model.Style{}) {
		style := rec.Style
		dto.Style = &style
	}
	if rec.Private && !revealPrivate {
		dto.Summary = "Private"
		dto.Description = ""
		dto.Images = nil
	}
	return dto
}

// overrideRequest is the POST /api/events body.
type overrideRequest struct {
	ID          string   `json:"id,omitempty"`
	Summary     string   `json:"summary"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Description string   `json:"description,omitempty"`
	Images      []string `json:"images,omitempty"`
	RSVP        string   `json:"rsvp,omitempty"`
	OutOfOffice bool     `json:"ooo,omitempty"`
	Private     bool     `json:"private,omitempty"`
	Replaces    string   `json:"replaces,omitempty"`
	Background  string   `json:"bgColor,omitempty"`
	Foreground  string   `json:"textColor,omitempty"`
}

func (s *Server) handleEventUpsert(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	start, err := model.ParseTimestamp(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start")
		return
	}
	end, err := model.ParseTimestamp(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end")
		return
	}
	if !end.After(start) {
		writeError(w, http.StatusBadRequest, "end must be after start")
		return
	}

	rec := model.Record{
		ExternalID:     strings.TrimSpace(req.ID),
		Summary:        req.Summary,
		RawStart:       req.Start,
		RawEnd:         req.End,
		Start:          start,
		End:            end,
		EndValid:       true,
		Description:    req.Description,
		Images:         req.Images,
		RSVP:           model.NormalizeRSVP(req.RSVP),
		OutOfOffice:    req.OutOfOffice,
		Private:        req.Private,
		SourceIdentity: req.Replaces,
		Style:          model.Style{Background: req.Background, Foreground: req.Foreground},
	}
	if rec.Summary == "" {
		rec.Summary = model.PlaceholderSummary
	}

	if err := s.deps.Overrides.Upsert(rec); err != nil {
		appLog.Error("web: override upsert failed", err, "id", rec.Identity())
		writeError(w, http.StatusInternalServerError, "failed to save override")
		return
	}
	rec.IsOverride = true
	appLog.Info("web: override saved", "id", rec.Identity(), "replaces", rec.SourceIdentity)
	writeJSON(w, http.StatusOK, s.toDTO(rec, s.requestNow(r), false, true))
}

func (s *Server) handleEventByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/events/")
	if id == "" {
		writeError(w, http.StatusNotFound, "missing event id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		rec, ok := s.deps.Catalog.Lookup(id)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown event")
			return
		}
		writeJSON(w, http.StatusOK, s.toDTO(rec, s.requestNow(r), false, true))

	case http.MethodDelete:
		existed, err := s.deps.Overrides.Delete(id)
		if err != nil {
			appLog.Error("web: override delete failed", err, "id", id)
			writeError(w, http.StatusInternalServerError, "failed to delete override")
			return
		}
		if !existed {
			writeError(w, http.StatusNotFound, "no override with that id")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"deleted": id})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleHiddenToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/hidden/")
	if id == "" {
		writeError(w, http.StatusNotFound, "missing event id")
		return
	}
	hidden := s.deps.Hidden.Toggle(id)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "hidden": hidden})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, state.LoadSettings(s.deps.Store))

	case http.MethodPut:
		var settings state.DisplaySettings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := state.SaveSettings(s.deps.Store, settings); err != nil {
			appLog.Error("web: settings save failed", err)
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
		settings.Normalize()
		writeJSON(w, http.StatusOK, settings)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	// Detach from the request context; the refresh outlives the request.
	s.deps.Refresher.Trigger(context.Background(), s.deps.Sources())
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
}

// handlePreview serves the last captured PNG from disk. ServeFile maps
// a missing file to 404 on its own.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.deps.PreviewPath)
}

func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("web: embedded static filesystem unavailable", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}
	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// API paths never fall back to the static page.
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

// effectiveSettings resolves display options for one request: query
// parameter > persisted settings > default.
func (s *Server) effectiveSettings(r *http.Request) state.DisplaySettings {
	settings := state.LoadSettings(s.deps.Store)
	q := r.URL.Query()

	if v := q.Get("file"); v != "" {
		settings.File = v
	}
	if v := q.Get("count"); v != "" {
		settings.Count = v
	}
	if q.Has("private") {
		settings.Private = isTruthy(q.Get("private"))
	}
	if q.Has("trans") {
		settings.Transparent = isTruthy(q.Get("trans"))
	}
	if q.Has("showHidden") {
		settings.ShowHidden = isTruthy(q.Get("showHidden"))
	}
	if v := q.Get("layout"); v != "" {
		settings.Layout = v
	}
	settings.Normalize()
	return settings
}

// requestNow resolves the evaluation clock: an explicit "now" query
// parameter wins over the injected clock.
func (s *Server) requestNow(r *http.Request) time.Time {
	if v := r.URL.Query().Get("now"); v != "" {
		if t, err := model.ParseTimestamp(v); err == nil {
			return t
		}
		appLog.Debug("web: ignoring unparseable now override", "value", v)
	}
	return s.deps.Now()
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("web: failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
