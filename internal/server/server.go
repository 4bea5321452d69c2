// Package server exposes extraction, simplification and highlighting over
// HTTP for a single interactive session.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/teisimplify/internal/grobid"
	"github.com/hyperifyio/teisimplify/internal/highlight"
	"github.com/hyperifyio/teisimplify/internal/ingest"
	"github.com/hyperifyio/teisimplify/internal/session"
	"github.com/hyperifyio/teisimplify/internal/simplify"
	"github.com/hyperifyio/teisimplify/internal/tei"
)

// DefaultMaxUploadBytes caps multipart uploads when Server.MaxUploadBytes is zero.
const DefaultMaxUploadBytes = 64 << 20

// Server wires the workflow components to HTTP handlers.
type Server struct {
	Loader   *ingest.Loader
	Provider simplify.Provider
	Session  *session.Session
	Settings *session.Settings
	// Timeout bounds each request. Zero means 2 minutes.
	Timeout        time.Duration
	MaxUploadBytes int64

	policy      *bluemonday.Policy
	highlighter highlight.Highlighter
}

// New returns a server with fresh session state when sess or settings are nil.
// The session is only read and updated through its methods, so it may be
// shared with other callers.
func New(loader *ingest.Loader, provider simplify.Provider, sess *session.Session, settings *session.Settings) *Server {
	if sess == nil {
		sess = session.New()
	}
	if settings == nil {
		settings = session.NewSettings()
	}
	// Highlighted text is rendered as HTML, so source text is escaped.
	return &Server{
		Loader:      loader,
		Provider:    provider,
		Session:     sess,
		Settings:    settings,
		policy:      markupPolicy(),
		highlighter: highlight.Highlighter{EscapeHTML: true},
	}
}

// markupPolicy admits only the highlight spans.
func markupPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("span")
	p.AllowAttrs("class", "title").OnElements("span")
	return p
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(r chi.Router) {
		// the event stream stays open for as long as the client listens
		r.Get("/session/events", s.handleSessionEvents)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(timeout))
			r.Post("/extract", s.handleExtract)
			r.Post("/simplify", s.handleSimplify)
			r.Post("/highlight", s.handleHighlight)
			r.Get("/session", s.handleGetSession)
			r.Patch("/session", s.handlePatchSession)
			r.Delete("/session", s.handleClearSession)
			r.Get("/settings", s.handleGetSettings)
			r.Put("/settings", s.handlePutSettings)
		})
	})
	return r
}

type extractResponse struct {
	Text string `json:"text"`
	Kind string `json:"kind"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	limit := s.MaxUploadBytes
	if limit <= 0 {
		limit = DefaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	file, hdr, err := r.FormFile(grobid.FormField)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing 'input' file")
		return
	}
	defer file.Close()
	if ingest.KindOf(hdr.Filename) == ingest.KindUnknown {
		writeError(w, http.StatusUnsupportedMediaType, ingest.ErrUnsupportedFileType.Error())
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}
	text, err := s.Loader.Load(r.Context(), hdr.Filename, data)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, extractResponse{Text: text, Kind: ingest.KindOf(hdr.Filename).String()})
	case errors.Is(err, ingest.ErrUnsupportedFileType):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, ingest.ErrInvalidPDF), errors.Is(err, ingest.ErrEmptyDocument), errors.Is(err, tei.ErrMalformedDocument):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Warn().Err(err).Str("file", hdr.Filename).Msg("extraction failed")
		writeError(w, http.StatusBadGateway, session.ExtractErrorText)
	}
}

type simplifyRequest struct {
	Text string `json:"text"`
}

type sessionResponse struct {
	session.Snapshot
	Highlighted string               `json:"highlighted"`
	Settings    session.SettingsView `json:"settings"`
}

func (s *Server) sessionView() sessionResponse {
	return s.viewOf(s.Session.Snapshot())
}

func (s *Server) viewOf(snap session.Snapshot) sessionResponse {
	return sessionResponse{
		Snapshot:    snap,
		Highlighted: s.policy.Sanitize(snap.Highlighted(s.highlighter)),
		Settings:    s.Settings.View(snap),
	}
}

func (s *Server) handleSimplify(w http.ResponseWriter, r *http.Request) {
	var req simplifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// Blank input leaves the current result untouched.
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, simplify.ErrEmptyInput.Error())
		return
	}
	ticket := s.Session.Begin()
	resp, err := s.Provider.Simplify(r.Context(), req.Text)
	if err != nil {
		if errors.Is(err, simplify.ErrEmptyInput) {
			s.Session.Cancel(ticket)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.Session.Fail(ticket, session.SimplifyErrorText)
		log.Warn().Err(err).Msg("simplification failed")
		writeError(w, http.StatusBadGateway, session.SimplifyErrorText)
		return
	}
	if !s.Session.Apply(ticket, resp) {
		writeError(w, http.StatusConflict, "superseded by a newer request")
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView())
}

type highlightRequest struct {
	Text     string              `json:"text"`
	Keywords map[string][]string `json:"keywords"`
}

type highlightResponse struct {
	Highlighted string            `json:"highlighted"`
	Matches     []highlight.Match `json:"matches"`
	// Keywords is the deduplicated set that was searched for.
	Keywords []string `json:"keywords"`
}

func (s *Server) handleHighlight(w http.ResponseWriter, r *http.Request) {
	var req highlightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	m := highlight.NewMatcher(req.Keywords)
	matches := m.Find(req.Text)
	out := s.highlighter.Render(req.Text, matches)
	if matches == nil {
		matches = []highlight.Match{}
	}
	writeJSON(w, http.StatusOK, highlightResponse{
		Highlighted: s.policy.Sanitize(out),
		Matches:     matches,
		Keywords:    m.Keywords(),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sessionView())
}

// sessionPatch edits the displayed result. Absent fields are left as they
// are; an empty keywords object clears the keywords.
type sessionPatch struct {
	Simplified *string             `json:"simplified"`
	Keywords   map[string][]string `json:"keywords"`
	Baseline   *string             `json:"baseline"`
	Trace      json.RawMessage     `json:"trace"`
	Metrics    *simplify.Metrics   `json:"metrics"`
}

func (s *Server) handlePatchSession(w http.ResponseWriter, r *http.Request) {
	var req sessionPatch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Simplified != nil {
		s.Session.SetSimplified(*req.Simplified)
	}
	if req.Keywords != nil {
		s.Session.SetKeywords(req.Keywords)
	}
	if req.Baseline != nil {
		s.Session.SetBaseline(*req.Baseline)
	}
	if len(req.Trace) > 0 {
		s.Session.SetTrace(req.Trace)
	}
	if req.Metrics != nil {
		s.Session.SetMetrics(req.Metrics)
	}
	writeJSON(w, http.StatusOK, s.sessionView())
}

// handleSessionEvents streams the session view as server-sent events, one
// event per change, starting with the current state.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	updates, cancel := s.Session.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			b, err := json.Marshal(s.viewOf(snap))
			if err != nil {
				log.Warn().Err(err).Msg("encode session event")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: session\ndata: %s\n\n", b); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleClearSession(w http.ResponseWriter, _ *http.Request) {
	s.Session.Clear()
	w.WriteHeader(http.StatusNoContent)
}

type settingsRequest struct {
	Lang string `json:"lang"`
	Mode string `json:"mode"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Settings.View(s.Session.Snapshot()))
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Mode != "" {
		m, err := session.ParseMode(req.Mode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.Settings.SetMode(m)
	}
	s.Settings.SetLang(req.Lang)
	writeJSON(w, http.StatusOK, s.Settings.View(s.Session.Snapshot()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// accessLog logs one line per request through the global zerolog logger.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http")
	})
}
