package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"iconcal/internal/catalog"
	"iconcal/internal/config"
	appLog "iconcal/internal/log"
	"iconcal/internal/metrics"
	"iconcal/internal/model"
)

// reportCacheTTL bounds how stale /api/* answers may be. Assets change
// rarely; rebuilding on every request would re-run special cases.
const reportCacheTTL = 30 * time.Second

// Builder produces the validated asset calendar for a year.
type Builder interface {
	Build(ctx context.Context, year int) (*catalog.Report, error)
}

// Server exposes the asset calendar over HTTP.
type Server struct {
	cfg      *config.Config
	catalog  Builder
	gatherer prometheus.Gatherer
	mux      *http.ServeMux
	now      func() time.Time

	reportsMu sync.RWMutex
	reports   map[int]*reportCache
}

// reportCache holds a built report and its timestamp.
type reportCache struct {
	report    *catalog.Report
	updatedAt time.Time
}

// NewServer constructs a new Server. gatherer may be nil, in which case
// /metrics is not registered.
func NewServer(cfg *config.Config, b Builder, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		cfg:      cfg,
		catalog:  b,
		gatherer: gatherer,
		mux:      http.NewServeMux(),
		now:      time.Now,
		reports:  make(map[int]*reportCache),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials count as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="iconcal", charset="UTF-8"`)
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

// ListenAndServe serves h on addr until ctx is cancelled, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/assets", s.handleAssets)
	s.mux.HandleFunc("GET /api/active", s.handleActive)
	s.mux.HandleFunc("GET /icon", s.handleIcon)
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// assetsResponse is the JSON response shape for /api/assets.
type assetsResponse struct {
	Year     int          `json:"year"`
	OK       bool         `json:"ok"`
	Entries  []entryDTO   `json:"entries"`
	Failures []failureDTO `json:"failures"`
}

// entryDTO is a JSON-friendly view of a valid asset.
type entryDTO struct {
	File  string `json:"file"`
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type failureDTO struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

// activeResponse is the JSON response shape for /api/active.
type activeResponse struct {
	Date    string    `json:"date"`
	Default bool      `json:"default"`
	Entry   *entryDTO `json:"entry,omitempty"`
}

// handleAssets lists valid assets and failures for a year.
//
// GET /api/assets?year=2025
//   - year: defaults to the current year in the configured timezone
func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	year := parseIntDefault(r.URL.Query().Get("year"), s.today().Year())
	if year < 1 || year > 9999 {
		writeError(w, http.StatusBadRequest, "year out of range")
		return
	}

	report, err := s.report(r.Context(), year)
	if err != nil {
		appLog.Error("api assets: build failed", err, "year", year)
		writeError(w, http.StatusInternalServerError, "failed to build asset calendar")
		return
	}

	resp := assetsResponse{
		Year:     report.Year,
		OK:       report.OK(),
		Entries:  make([]entryDTO, 0, len(report.Entries)),
		Failures: make([]failureDTO, 0, len(report.Failures)),
	}
	for _, e := range report.Entries {
		resp.Entries = append(resp.Entries, toEntryDTO(e))
	}
	for _, f := range report.Failures {
		resp.Failures = append(resp.Failures, failureDTO{
			File:   filepath.Base(f.File),
			Reason: metrics.Reason(f.Err, errors.Is(f.Err, catalog.ErrOverlap)),
			Error:  f.Err.Error(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleActive reports the asset active on a date.
//
// GET /api/active?date=2025-04-01
//   - date: defaults to today in the configured timezone
func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	day := s.today()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	entry, ok, err := s.lookup(r.Context(), day)
	if err != nil {
		appLog.Error("api active: build failed", err, "date", day.Format(time.DateOnly))
		writeError(w, http.StatusInternalServerError, "failed to build asset calendar")
		return
	}

	resp := activeResponse{Date: day.Format(time.DateOnly), Default: !ok}
	if ok {
		dto := toEntryDTO(entry)
		resp.Entry = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleIcon serves today's icon file, or the default icon.
func (s *Server) handleIcon(w http.ResponseWriter, r *http.Request) {
	icon := model.Icon{Name: "default", Path: s.cfg.DefaultIconPath(), Default: true}

	entry, ok, err := s.lookup(r.Context(), s.today())
	if err != nil {
		appLog.Error("icon: build failed", err)
		writeError(w, http.StatusInternalServerError, "failed to build asset calendar")
		return
	}
	if ok {
		icon = model.IconFor(entry)
	}

	w.Header().Set("X-Icon-Name", icon.Name)
	http.ServeFile(w, r, icon.Path)
}

func (s *Server) today() time.Time {
	return s.now().In(s.cfg.Location())
}

func (s *Server) lookup(ctx context.Context, day time.Time) (model.Entry, bool, error) {
	report, err := s.report(ctx, day.Year())
	if err != nil {
		return model.Entry{}, false, err
	}
	entry, ok := report.Calendar.Lookup(day)
	return entry, ok, nil
}

// report returns the cached report for year, rebuilding it when stale.
func (s *Server) report(ctx context.Context, year int) (*catalog.Report, error) {
	now := s.now()

	s.reportsMu.RLock()
	rc := s.reports[year]
	s.reportsMu.RUnlock()
	if rc != nil && now.Sub(rc.updatedAt) < reportCacheTTL {
		return rc.report, nil
	}

	report, err := s.catalog.Build(ctx, year)
	if err != nil {
		return nil, err
	}

	s.reportsMu.Lock()
	s.reports[year] = &reportCache{report: report, updatedAt: now}
	s.reportsMu.Unlock()
	return report, nil
}

func toEntryDTO(e model.Entry) entryDTO {
	return entryDTO{
		File:  filepath.Base(e.File),
		Name:  e.Name,
		Kind:  e.ID.Kind.String(),
		Start: e.Range.Start.Format(time.DateOnly),
		End:   e.Range.End.Format(time.DateOnly),
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
