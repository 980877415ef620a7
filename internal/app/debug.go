package app

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// debugServer serves metrics and plugin state on metrics.addr.
type debugServer struct {
	srv  *http.Server
	addr net.Addr
	done chan struct{}
	log  *zap.Logger
}

// DebugHandler returns the debug HTTP routes:
//
//	GET /metrics    Prometheus metrics
//	GET /plugins    loaded plugins
//	GET /plugins/{name}  one loaded plugin
//	GET /downloads  download progress
//	GET /status     status line and current page
func (app *Application) DebugHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", app.metrics.Handler())
	r.Get("/plugins", app.handlePlugins)
	r.Get("/plugins/{name}", app.handlePlugin)
	r.Get("/downloads", app.handleDownloads)
	r.Get("/status", app.handleStatus)
	return r
}

func (app *Application) serveDebug(addr string) (*debugServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &debugServer{
		srv: &http.Server{
			Handler:           app.DebugHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		addr: ln.Addr(),
		done: make(chan struct{}),
		log:  app.log.Named("debug"),
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("debug server stopped", zap.Error(err))
		}
	}()
	s.log.Info("debug server listening", zap.Stringer("addr", s.addr))
	return s, nil
}

func (s *debugServer) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Warn("debug server shutdown", zap.Error(err))
	}
	<-s.done
}

type downloadInfo struct {
	ID             string  `json:"id"`
	URL            string  `json:"url"`
	Path           string  `json:"path"`
	State          string  `json:"state"`
	Received       int64   `json:"received"`
	Total          int64   `json:"total"`
	Percent        float64 `json:"percent"`
	BytesPerSecond int64   `json:"bytes_per_second"`
	Error          string  `json:"error,omitempty"`
}

type injectionInfo struct {
	Scripts         int      `json:"scripts"`
	Bridges         []string `json:"bridges"`
	Passes          int      `json:"passes"`
	ScriptsExecuted int      `json:"scripts_executed"`
	ScriptFailures  int      `json:"script_failures"`
	BridgesBound    int      `json:"bridges_bound"`
	BindFailures    int      `json:"bind_failures"`
}

type statusInfo struct {
	Status    string        `json:"status"`
	URL       string        `json:"url"`
	Flash     bool          `json:"flash"`
	Injection injectionInfo `json:"injection"`
}

func (app *Application) handlePlugins(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, app.plugins.Infos())
}

func (app *Application) handlePlugin(w http.ResponseWriter, r *http.Request) {
	lp, ok := app.plugins.Get(chi.URLParam(r, "name"))
	if !ok {
		http.Error(w, "plugin not found", http.StatusNotFound)
		return
	}
	respondJSON(w, lp.Info())
}

func (app *Application) handleDownloads(w http.ResponseWriter, _ *http.Request) {
	list := app.browser.Downloads().List()
	out := make([]downloadInfo, 0, len(list))
	for _, p := range list {
		info := downloadInfo{
			ID:             p.ID,
			URL:            p.URL,
			Path:           p.Path,
			State:          p.State.String(),
			Received:       p.Received,
			Total:          p.Total,
			Percent:        p.Percent(),
			BytesPerSecond: p.BytesPerSecond,
		}
		if p.Err != nil {
			info.Error = p.Err.Error()
		}
		out = append(out, info)
	}
	respondJSON(w, out)
}

func (app *Application) handleStatus(w http.ResponseWriter, _ *http.Request) {
	reg := app.browser.Injector()
	stats := reg.Stats()
	info := statusInfo{
		URL:   app.browser.Engine().URL(),
		Flash: app.browser.Flash(),
		Injection: injectionInfo{
			Scripts:         stats.Scripts,
			Bridges:         reg.BridgeNames(),
			Passes:          stats.Passes,
			ScriptsExecuted: stats.ScriptsExecuted,
			ScriptFailures:  stats.ScriptFailures,
			BridgesBound:    stats.BridgesBound,
			BindFailures:    stats.BindFailures,
		},
	}
	if s, ok := app.view.(interface{ Status() string }); ok {
		info.Status = s.Status()
	}
	respondJSON(w, info)
}

// respondJSON sends a JSON response with appropriate headers.
func respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
